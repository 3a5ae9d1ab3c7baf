package sched

import "github.com/kestrel-os/kestrel/internal/process"

// DecisionKind discriminates scheduling decisions.
type DecisionKind uint8

const (
	// DecisionRunProcess runs the named process.
	DecisionRunProcess DecisionKind = iota
	// DecisionTrySleep lets the chip sleep until an interrupt.
	DecisionTrySleep
)

// Decision is one answer from the scheduler.
type Decision struct {
	Kind    DecisionKind
	Process process.ID
	// TimesliceUS is the execution budget in virtual microseconds. Nil means
	// the process runs unpreempted until it yields.
	TimesliceUS *uint32
}

// RunProcess builds a run decision with the given budget.
func RunProcess(id process.ID, timesliceUS *uint32) Decision {
	return Decision{Kind: DecisionRunProcess, Process: id, TimesliceUS: timesliceUS}
}

// TrySleep builds a sleep decision.
func TrySleep() Decision {
	return Decision{Kind: DecisionTrySleep}
}

// Lookup resolves process identities. Implemented by the kernel's process
// table. Schedulers resolve by slot so a restarted process, which carries a
// fresh identifier, keeps its place in the queue.
type Lookup interface {
	Lookup(id process.ID) (process.Process, bool)
	LookupSlot(slot int) (process.Process, bool)
}

// KernelWork is the kernel-side bottom-half work the loop exposes to the
// scheduler: pending checks plus the servicing operations themselves.
type KernelWork interface {
	HasPendingInterrupts() bool
	HasPendingDeferredCalls() bool
	// ServiceInterrupts runs queued top-half handlers until none remain.
	ServiceInterrupts()
	// ServiceDeferredCalls drains the deferred call queue.
	ServiceDeferredCalls()
}

// Scheduler decides which process the kernel runs next.
//
// The kernel is single-threaded; scheduler methods are never called
// concurrently.
type Scheduler interface {
	// Next picks the next decision.
	Next() Decision
	// Result reports how the last run ended and how much of the budget it
	// used.
	Result(reason process.StoppedExecutingReason, elapsedUS uint32)
	// DoKernelWorkNow reports whether pending bottom halves should preempt
	// scheduling another process.
	DoKernelWorkNow(work KernelWork) bool
	// ExecuteKernelWork services the pending bottom halves after
	// DoKernelWorkNow elected to run them. Implementations may reorder or
	// bound the work.
	ExecuteKernelWork(work KernelWork)
	// ContinueProcess reports whether the current process should keep its
	// slot when control bounces through the kernel mid-timeslice.
	ContinueProcess(id process.ID, work KernelWork) bool
}

func pendingKernelWork(work KernelWork) bool {
	return work.HasPendingInterrupts() || work.HasPendingDeferredCalls()
}

func slots(ids []process.ID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = id.Index
	}
	return out
}
