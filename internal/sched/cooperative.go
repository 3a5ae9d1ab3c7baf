package sched

import "github.com/kestrel-os/kestrel/internal/process"

// Cooperative runs each process unpreempted until it has no work left, then
// moves on. Suits boards where every process is trusted to yield.
type Cooperative struct {
	table Lookup
	queue []int
}

// NewCooperative creates a cooperative scheduler over the given processes.
func NewCooperative(table Lookup, ids ...process.ID) *Cooperative {
	return &Cooperative{table: table, queue: slots(ids)}
}

// Next implements Scheduler.
func (s *Cooperative) Next() Decision {
	for range s.queue {
		slot := s.queue[0]
		p, ok := s.table.LookupSlot(slot)
		if ok && p.Ready() {
			return RunProcess(p.ProcessID(), nil)
		}
		s.queue = append(s.queue[1:], slot)
	}
	return TrySleep()
}

// Result implements Scheduler. Only a process that ran out of work gives up
// its turn; interrupts bouncing through the kernel do not rotate the queue.
func (s *Cooperative) Result(reason process.StoppedExecutingReason, elapsedUS uint32) {
	_ = elapsedUS
	switch reason {
	case process.KernelPreemption, process.TimesliceExpired:
		return
	}
	if len(s.queue) > 0 {
		s.queue = append(s.queue[1:], s.queue[0])
	}
}

// DoKernelWorkNow implements Scheduler.
func (s *Cooperative) DoKernelWorkNow(work KernelWork) bool { return true }

// ExecuteKernelWork implements Scheduler.
func (s *Cooperative) ExecuteKernelWork(work KernelWork) {
	work.ServiceInterrupts()
	work.ServiceDeferredCalls()
}

// ContinueProcess implements Scheduler.
func (s *Cooperative) ContinueProcess(id process.ID, work KernelWork) bool {
	return !pendingKernelWork(work)
}
