package process

import (
	"errors"
	"fmt"

	"github.com/kestrel-os/kestrel/internal/syscall"
)

// Kernel-level errors returned to capsules. These are distinct from the
// syscall.ErrorCode values handed to userspace; the dispatcher maps between
// the two at the boundary.
var (
	ErrNoSuchApp          = errors.New("no such app")
	ErrInactiveApp        = errors.New("app is not runnable")
	ErrOutOfMemory        = errors.New("grant region exhausted")
	ErrAlreadyEntered     = errors.New("grant already entered")
	ErrNotAllocated       = errors.New("grant not allocated")
	ErrAddressOutOfBounds = errors.New("address out of process-accessible range")
	ErrTooManyTasks       = errors.New("task queue full")
)

// ID identifies a process instance. Index locates the slot in the kernel's
// process table; Identifier is unique across the board's lifetime and changes
// when a process restarts, so stale IDs stop matching.
type ID struct {
	Index      int
	Identifier uint32
}

func (id ID) String() string {
	return fmt.Sprintf("proc[%d:%d]", id.Index, id.Identifier)
}

// State is the inner lifecycle state of a process.
type State uint8

const (
	// Running means the process expects to execute when scheduled.
	Running State = iota
	// Yielded means the process is waiting for an upcall.
	Yielded
	// Unstarted means the process has never executed.
	Unstarted
	// StoppedRunning is a Running process suspended by the kernel.
	StoppedRunning
	// StoppedYielded is a Yielded process suspended by the kernel.
	StoppedYielded
	// Faulted means the process crashed and was not restarted.
	Faulted
	// Terminated means the process exited and its identity is retired.
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Yielded:
		return "yielded"
	case Unstarted:
		return "unstarted"
	case StoppedRunning:
		return "stopped(running)"
	case StoppedYielded:
		return "stopped(yielded)"
	case Faulted:
		return "faulted"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StoppedExecutingReason reports why the kernel stopped executing a process,
// for the scheduler's accounting.
type StoppedExecutingReason uint8

const (
	// NoWorkLeft: the process has no more queued tasks.
	NoWorkLeft StoppedExecutingReason = iota
	// StoppedFaulted: the process faulted during this run.
	StoppedFaulted
	// Stopped: the process is in a stopped state.
	Stopped
	// TimesliceExpired: the process exhausted its timeslice.
	TimesliceExpired
	// KernelPreemption: the scheduler preempted the process cooperatively.
	KernelPreemption
)

func (r StoppedExecutingReason) String() string {
	switch r {
	case NoWorkLeft:
		return "no work left"
	case StoppedFaulted:
		return "faulted"
	case Stopped:
		return "stopped"
	case TimesliceExpired:
		return "timeslice expired"
	case KernelPreemption:
		return "kernel preemption"
	default:
		return "unknown"
	}
}

// ContextSwitchReason reports why control returned from a process to the
// kernel.
type ContextSwitchReason uint8

const (
	// ContextSwitchFault: the process violated its isolation boundary.
	ContextSwitchFault ContextSwitchReason = iota
	// ContextSwitchSyscallFired: the process issued a syscall.
	ContextSwitchSyscallFired
	// ContextSwitchInterrupted: an interrupt (including timeslice expiry)
	// stopped the process.
	ContextSwitchInterrupted
)

// FunctionCall is one deferred upcall invocation: the saved function pointer
// plus four word arguments (three event words and the saved appdata).
type FunctionCall struct {
	Source syscall.UpcallID
	PC     uint32
	Arg0   uint32
	Arg1   uint32
	Arg2   uint32
	Arg3   uint32
}

// ReturnArguments are the values carried by a null-upcall task. They wake
// bookkeeping but are never delivered through a function pointer.
type ReturnArguments struct {
	Arg0 uint32
	Arg1 uint32
	Arg2 uint32
}

// TaskKind discriminates queued task variants.
type TaskKind uint8

const (
	// TaskFunctionCall delivers a saved upcall into the process.
	TaskFunctionCall TaskKind = iota
	// TaskReturnValue is a null-upcall placeholder that is dropped at
	// delivery time without waking a function.
	TaskReturnValue
)

// Task is one unit of deferred work queued for a process, delivered FIFO by
// the kernel execution loop.
type Task struct {
	Kind         TaskKind
	FunctionCall FunctionCall
	ReturnValue  ReturnArguments
}

// CustomGrantID is the opaque, allocator-issued identity of a custom grant
// block inside a process's grant region.
type CustomGrantID struct {
	offset uint32
}

// WorkTracker counts kernel-wide pending work. Enqueueing a task increments
// it, consuming one decrements it; the kernel uses it to gate sleep.
type WorkTracker interface {
	IncrementWork()
	DecrementWork()
}

// Kernel is the slice of kernel behavior a process needs at construction and
// during execution.
type Kernel interface {
	WorkTracker
	// GrantCountAndFinalize returns the number of declared grants and
	// permanently closes grant creation.
	GrantCountAndFinalize() int
	// NextProcessIdentifier issues a board-unique process identifier.
	NextProcessIdentifier() uint32
}

// Clock is the virtual time source a process charges its execution to.
type Clock interface {
	Advance(us uint32)
}
