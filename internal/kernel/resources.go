package kernel

import (
	"github.com/kestrel-os/kestrel/internal/capsule"
	"github.com/kestrel-os/kestrel/internal/platform"
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/sched"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// SyscallFilter vets driver-routed syscalls before dispatch. Returning a
// non-nil error answers the process with that error code instead of running
// the syscall. Yield, Exit, and Memop are never filtered.
type SyscallFilter interface {
	FilterSyscall(p process.Process, sc syscall.Syscall) error
}

// FaultHook gives the platform first refusal on process faults. A nil
// return means the platform handled the fault and the process state is left
// alone; an error defers to the process's own fault response.
type FaultHook interface {
	ProcessFaultHook(p process.Process) error
}

// ContextSwitchHook observes every switch into a process, before execution
// resumes.
type ContextSwitchHook interface {
	ContextSwitch(p process.Process)
}

// Resources bundles everything the execution loop needs from the board.
type Resources struct {
	Chip      platform.Chip
	Scheduler sched.Scheduler
	Drivers   *capsule.Registry
	// Deferred is optional; nil means no deferred call queue.
	Deferred *platform.DeferredCallQueue
	// Filter is optional; nil allows every syscall.
	Filter SyscallFilter
	// Fault is optional; nil applies each process's fault response directly.
	Fault FaultHook
	// ContextSwitch is optional.
	ContextSwitch ContextSwitchHook
}

// kernelWork adapts chip and deferred queue state to the scheduler's view of
// pending kernel work.
type kernelWork struct {
	res *Resources
}

func (w kernelWork) HasPendingInterrupts() bool {
	return w.res.Chip.HasPendingInterrupts()
}

func (w kernelWork) HasPendingDeferredCalls() bool {
	return w.res.Deferred != nil && w.res.Deferred.HasPending()
}

func (w kernelWork) ServiceInterrupts() {
	w.res.Chip.ServicePendingInterrupts()
}

func (w kernelWork) ServiceDeferredCalls() {
	for w.res.Deferred != nil && w.res.Deferred.Service() {
	}
}
