package sched

import "github.com/kestrel-os/kestrel/internal/process"

// DefaultTimesliceUS is the round-robin execution budget when the board does
// not choose one.
const DefaultTimesliceUS uint32 = 10_000

// RoundRobin cycles ready processes with a fixed timeslice. A process
// preempted by kernel work keeps the head of the queue and resumes with its
// remaining budget; any other stop reason rotates it to the tail with a
// fresh budget.
type RoundRobin struct {
	table       Lookup
	queue       []int
	timesliceUS uint32
	// carryUS is the budget left over from a kernel-preempted run, handed
	// back to the same head on the next Next.
	carryUS uint32
}

// NewRoundRobin creates a round-robin scheduler over the given processes
// with DefaultTimesliceUS.
func NewRoundRobin(table Lookup, ids ...process.ID) *RoundRobin {
	return NewRoundRobinWithTimeslice(table, DefaultTimesliceUS, ids...)
}

// NewRoundRobinWithTimeslice creates a round-robin scheduler with an
// explicit budget.
func NewRoundRobinWithTimeslice(table Lookup, timesliceUS uint32, ids ...process.ID) *RoundRobin {
	return &RoundRobin{
		table:       table,
		queue:       slots(ids),
		timesliceUS: timesliceUS,
	}
}

// Next implements Scheduler. The first ready process in queue order runs;
// with nothing ready the chip may sleep.
func (s *RoundRobin) Next() Decision {
	for range s.queue {
		slot := s.queue[0]
		p, ok := s.table.LookupSlot(slot)
		if ok && p.Ready() {
			ts := s.grantedUS()
			return RunProcess(p.ProcessID(), &ts)
		}
		// Empty or unready slots rotate so one idle process cannot pin the
		// head. A carried budget dies with its head.
		s.carryUS = 0
		s.queue = append(s.queue[1:], slot)
	}
	return TrySleep()
}

// grantedUS is the budget of the next run: the carried remainder of a
// kernel-preempted slice, or a fresh timeslice.
func (s *RoundRobin) grantedUS() uint32 {
	if s.carryUS > 0 {
		return s.carryUS
	}
	return s.timesliceUS
}

// Result implements Scheduler. Kernel preemption keeps the head in place
// and banks the unused budget; every other reason rotates the head to the
// tail.
func (s *RoundRobin) Result(reason process.StoppedExecutingReason, elapsedUS uint32) {
	if reason == process.KernelPreemption {
		granted := s.grantedUS()
		if elapsedUS < granted {
			s.carryUS = granted - elapsedUS
		} else {
			s.carryUS = 0
		}
		return
	}
	s.carryUS = 0
	if len(s.queue) > 0 {
		s.queue = append(s.queue[1:], s.queue[0])
	}
}

// DoKernelWorkNow implements Scheduler. Round robin always services kernel
// work promptly.
func (s *RoundRobin) DoKernelWorkNow(work KernelWork) bool { return true }

// ExecuteKernelWork implements Scheduler.
func (s *RoundRobin) ExecuteKernelWork(work KernelWork) {
	work.ServiceInterrupts()
	work.ServiceDeferredCalls()
}

// ContinueProcess implements Scheduler. The process keeps running unless
// kernel work is pending.
func (s *RoundRobin) ContinueProcess(id process.ID, work KernelWork) bool {
	return !pendingKernelWork(work)
}
