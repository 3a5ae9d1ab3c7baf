package process

import (
	"unsafe"

	"github.com/kestrel-os/kestrel/internal/procbuf"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// Process is the kernel's handle on one isolated process. Implementations
// own the process's memory image; the kernel, grant layer, and capsules only
// ever reach that memory through the boundary methods below.
type Process interface {
	// ProcessID returns the current identity. The identifier component
	// changes when the process restarts.
	ProcessID() ID

	// Name returns the human-readable process name, for logs and metrics.
	Name() string

	// Ready reports whether the process has work: it is Running or
	// Unstarted, or has queued tasks to deliver.
	Ready() bool

	// State returns the current lifecycle state.
	State() State

	// SetYieldedState moves a Running process to Yielded.
	SetYieldedState()

	// SetFaultState marks the process faulted, applying the configured
	// fault response.
	SetFaultState()

	// Stop suspends the process from its current state.
	Stop()

	// Resume returns a stopped process to the state it was stopped in.
	Resume()

	// Terminate retires the process with a completion code. Queued tasks
	// are dropped and the identity stops matching.
	Terminate(completionCode uint32)

	// TryRestart terminates the process and restarts it under a fresh
	// identifier.
	TryRestart(completionCode uint32)

	// HasTasks reports whether deferred work is queued.
	HasTasks() bool

	// EnqueueTask appends a task to the FIFO delivery queue and increments
	// the kernel work counter. Fails for inactive processes and on a full
	// queue.
	EnqueueTask(t Task) error

	// DequeueTask removes the oldest task, decrementing the work counter.
	DequeueTask() (Task, bool)

	// RemovePendingUpcalls drops every queued function-call task scheduled
	// through the given upcall identity, returning how many were removed.
	RemovePendingUpcalls(id syscall.UpcallID) int

	// SwitchTo transfers control to the process until it faults, issues a
	// syscall, or is interrupted. ok is false when the switch itself failed.
	SwitchTo() (reason ContextSwitchReason, sc syscall.Syscall, ok bool)

	// SetupMPU loads the process's memory protection configuration.
	SetupMPU()

	// SetProcessFunction arranges the process to run a delivered upcall
	// next time it is switched to.
	SetProcessFunction(fc FunctionCall) error

	// SetSyscallReturn stores the return value for the syscall the process
	// is blocked on.
	SetSyscallReturn(r syscall.Return)

	// SetByte writes one byte into process memory if the address is valid;
	// invalid addresses are silently ignored (reported false).
	SetByte(addr uint32, v byte) bool

	// IsValidUpcallFunctionPointer reports whether addr points into the
	// process's executable (flash) range.
	IsValidUpcallFunctionPointer(addr uint32) bool

	// GrantIsAllocated reports whether the numbered grant has storage.
	GrantIsAllocated(grantNum int) (bool, error)

	// AllocateGrant carves a block of the given size and alignment for the
	// numbered grant out of the grant region.
	AllocateGrant(grantNum int, size, align uintptr) error

	// GrantAllocatedCount returns how many grants currently have storage.
	GrantAllocatedCount() (int, error)

	// EnterGrant marks the numbered grant entered and returns the block
	// base. At most one entry may be live per grant; re-entry fails with
	// ErrAlreadyEntered.
	EnterGrant(grantNum int) (unsafe.Pointer, error)

	// LeaveGrant clears the entered mark. Called on every exit path.
	LeaveGrant(grantNum int)

	// AllocateCustomGrant carves an independently sized block out of the
	// grant region, returning its opaque identity and base.
	AllocateCustomGrant(size, align uintptr) (CustomGrantID, unsafe.Pointer, error)

	// EnterCustomGrant resolves a previously issued custom grant identity.
	EnterCustomGrant(id CustomGrantID) (unsafe.Pointer, error)

	// BuildReadOnlyProcessBuffer validates [addr, addr+size) against the
	// process-accessible range and wraps it as a read-only buffer.
	BuildReadOnlyProcessBuffer(addr, size uint32) (procbuf.ReadOnlyProcessBuffer, error)

	// BuildReadWriteProcessBuffer validates [addr, addr+size) against the
	// process-writeable range and wraps it as a read-write buffer.
	BuildReadWriteProcessBuffer(addr, size uint32) (procbuf.ReadWriteProcessBuffer, error)

	// Brk sets the app break, bounded by the grant region.
	Brk(addr uint32) (uint32, error)

	// SBrk moves the app break by a signed delta, returning the old break.
	SBrk(delta int32) (uint32, error)

	// Memory layout queries for memop.
	MemStart() uint32
	MemEnd() uint32
	FlashStart() uint32
	FlashEnd() uint32
	GrantRegionBegin() uint32
}
