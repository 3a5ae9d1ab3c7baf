package kernel

import (
	"go.uber.org/zap"

	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/sched"
)

// MinQuantaThresholdUS is the smallest timeslice remainder worth a context
// switch. A running process with less budget than this is charged the rest
// of its slice instead of being switched in.
const MinQuantaThresholdUS uint32 = 500

// KernelLoop runs the execution loop forever. It never returns; boards call
// it from main.
func (k *Kernel) KernelLoop(res *Resources) {
	res.Chip.Watchdog().Setup()
	k.logger.Info("kernel loop started", zap.String("boot_id", k.bootID.String()))
	for {
		k.KernelLoopOperation(res, false)
	}
}

// KernelLoopOperation performs one loop iteration: service interrupts and
// deferred calls, take one scheduling decision, and act on it. With noSleep
// set a sleep decision returns instead of blocking, which lets tests and
// embedders drive the loop.
func (k *Kernel) KernelLoopOperation(res *Resources, noSleep bool) {
	k.metrics.LoopIterations.Inc()
	res.Chip.Watchdog().Tickle()

	// Kernel-side work runs only when the scheduler elects to service it
	// now; a scheduler may defer bottom halves in favor of a process.
	work := kernelWork{res: res}
	if work.HasPendingInterrupts() || work.HasPendingDeferredCalls() {
		if res.Scheduler.DoKernelWorkNow(work) {
			res.Scheduler.ExecuteKernelWork(work)
		}
	}

	decision := res.Scheduler.Next()
	switch decision.Kind {
	case sched.DecisionRunProcess:
		p, ok := k.Lookup(decision.Process)
		if !ok {
			// The process restarted or died between Next and here.
			return
		}
		reason, elapsedUS := k.doProcess(res, p, decision.TimesliceUS)
		res.Scheduler.Result(reason, elapsedUS)
	case sched.DecisionTrySleep:
		if noSleep {
			return
		}
		k.trySleep(res)
	}
}

// RunUntilIdle drives the loop without sleeping until the system quiesces or
// maxOps iterations pass, returning the iterations used. For tests and the
// demo board.
func (k *Kernel) RunUntilIdle(res *Resources, maxOps int) int {
	for i := 0; i < maxOps; i++ {
		if k.idle(res) {
			return i
		}
		k.KernelLoopOperation(res, true)
	}
	return maxOps
}

func (k *Kernel) idle(res *Resources) bool {
	if res.Chip.HasPendingInterrupts() {
		return false
	}
	if res.Deferred != nil && res.Deferred.HasPending() {
		return false
	}
	ready := false
	k.EachProcess(func(p process.Process) {
		if p.Ready() {
			ready = true
		}
	})
	return !ready
}

// trySleep checks for work and sleeps the chip inside one atomic section, so
// an interrupt arriving after the check still wakes the chip.
func (k *Kernel) trySleep(res *Resources) {
	chip := res.Chip
	chip.Atomic(func() {
		deferredPending := res.Deferred != nil && res.Deferred.HasPending()
		if !chip.HasPendingInterrupts() && !deferredPending {
			k.metrics.Sleeps.Inc()
			chip.Watchdog().Suspend()
			chip.Sleep()
			chip.Watchdog().Resume()
		}
	})
}

// doProcess runs one process until its timeslice expires, it runs out of
// work, it faults, or kernel work preempts it. It returns why execution
// stopped and how many virtual microseconds of the budget were charged; an
// untimed run charges zero. Handing in a process that is already Faulted or
// Terminated is a scheduler bug and panics.
func (k *Kernel) doProcess(res *Resources, p process.Process, timesliceUS *uint32) (process.StoppedExecutingReason, uint32) {
	switch p.State() {
	case process.Faulted, process.Terminated:
		panic("attempted to schedule an unrunnable process")
	}

	timer := res.Chip.SchedulerTimer()
	timer.Reset()
	timed := timesliceUS != nil
	var budget uint32
	if timed {
		budget = *timesliceUS
		timer.Start(budget)
	}
	work := kernelWork{res: res}

	reason := process.NoWorkLeft

loop:
	for {
		// One timer read per iteration. Once the timer reports expiry it
		// must not be read again; the full budget is charged instead. A
		// sub-quantum remainder is not worth a switch and is charged the
		// same way.
		if timed {
			r, ok := timer.Remaining()
			if !ok || r < MinQuantaThresholdUS {
				reason = process.TimesliceExpired
				break loop
			}
		}

		if !res.Scheduler.ContinueProcess(p.ProcessID(), work) {
			reason = process.KernelPreemption
			break loop
		}

		switch p.State() {
		case process.Running:
			p.SetupMPU()
			if res.ContextSwitch != nil {
				res.ContextSwitch.ContextSwitch(p)
			}
			timer.Arm()
			csReason, sc, ok := p.SwitchTo()
			timer.Disarm()
			if !ok {
				reason = process.NoWorkLeft
				break loop
			}
			switch csReason {
			case process.ContextSwitchFault:
				k.handleFault(res, p)
				reason = process.StoppedFaulted
				break loop
			case process.ContextSwitchSyscallFired:
				k.handleSyscall(res, p, sc)
			case process.ContextSwitchInterrupted:
				// Loop back; the timer read at the top decides whether this
				// was a timeslice expiry.
			}

		case process.Yielded, process.Unstarted:
			t, ok := p.DequeueTask()
			if !ok {
				reason = process.NoWorkLeft
				break loop
			}
			switch t.Kind {
			case process.TaskFunctionCall:
				if err := p.SetProcessFunction(t.FunctionCall); err != nil {
					continue
				}
				k.metrics.UpcallsDelivered.Inc()
			case process.TaskReturnValue:
				// Null upcall: accounted, never delivered.
			}

		case process.StoppedRunning, process.StoppedYielded:
			reason = process.Stopped
			break loop

		case process.Faulted, process.Terminated:
			// The process retired itself mid-run, through Exit or a fault
			// response. Nothing left to execute.
			reason = process.NoWorkLeft
			break loop
		}
	}

	var elapsedUS uint32
	if timed {
		if reason == process.TimesliceExpired {
			elapsedUS = budget
			k.metrics.TimesliceExpirations.Inc()
		} else if r, ok := timer.Remaining(); ok {
			elapsedUS = budget - r
		} else {
			elapsedUS = budget
		}
		timer.Reset()
	}
	k.metrics.RecordProcessTime(p.Name(), elapsedUS)
	return reason, elapsedUS
}

// handleFault records the fault and gives the platform fault hook first
// refusal before applying the process's own fault response. Fault logging is
// rate limited; a crash-looping process must not drown the log.
func (k *Kernel) handleFault(res *Resources, p process.Process) {
	k.metrics.RecordFault(p.Name())
	if k.faultLog.Allow() {
		k.logger.Error("process fault",
			zap.String("name", p.Name()),
			zap.Stringer("id", p.ProcessID()),
		)
	}
	if res.Fault != nil && res.Fault.ProcessFaultHook(p) == nil {
		return
	}
	p.SetFaultState()
	if p.State() == process.Unstarted {
		// The fault policy restarted it.
		k.metrics.RecordRestart(p.Name())
	}
}
