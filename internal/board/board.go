package board

import (
	"fmt"

	"github.com/kestrel-os/kestrel/internal/capsule"
	"github.com/kestrel-os/kestrel/internal/config"
	"github.com/kestrel-os/kestrel/internal/kernel"
	"github.com/kestrel-os/kestrel/internal/logging"
	"github.com/kestrel-os/kestrel/internal/monitoring"
	"github.com/kestrel-os/kestrel/internal/platform"
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/sched"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// Board is an assembled system ready to run.
type Board struct {
	Kernel    *kernel.Kernel
	Resources *kernel.Resources
	Clock     *platform.VirtualClock
	Chip      *platform.EmulatedChip
	Counter   *capsule.Counter
	Echo      *capsule.Echo
	Procs     []*process.Standard
}

// New wires a board from configuration. Grants are declared before the
// first process is constructed; the order here is load-bearing.
func New(cfg *config.Config, def *config.Board, logger *logging.Logger, metrics *monitoring.Metrics) (*Board, error) {
	k := kernel.New(logger, metrics)

	counter := capsule.NewCounter(k)
	echo := capsule.NewEcho(k)
	drivers := capsule.NewRegistry()
	drivers.Register(capsule.CounterDriverNum, counter)
	drivers.Register(capsule.EchoDriverNum, echo)

	clock := platform.NewVirtualClock()
	timer := platform.NewVirtualSchedulerTimer(clock)
	chip := platform.NewEmulatedChip(timer)

	b := &Board{
		Kernel:  k,
		Clock:   clock,
		Chip:    chip,
		Counter: counter,
		Echo:    echo,
	}

	for _, entry := range def.Processes {
		p := process.NewStandard(k, clock, k.NextSlot(), process.Config{
			Name:           entry.Name,
			MemSize:        entry.MemSize,
			FlashSize:      entry.FlashSize,
			TaskQueueCap:   entry.TaskQueueCap,
			RestartOnFault: entry.RestartOnFault,
			Script:         demoScript(entry.Name),
		})
		p.SetInterruptCheck(timer.Expired)
		k.AddProcess(p)
		b.Procs = append(b.Procs, p)
	}

	var scheduler sched.Scheduler
	switch cfg.Scheduler.Policy {
	case config.PolicyRoundRobin:
		scheduler = sched.NewRoundRobinWithTimeslice(k, cfg.Scheduler.TimesliceUS, k.ProcessIDs()...)
	case config.PolicyCooperative:
		scheduler = sched.NewCooperative(k, k.ProcessIDs()...)
	default:
		return nil, fmt.Errorf("unknown scheduler policy %q", cfg.Scheduler.Policy)
	}

	b.Resources = &kernel.Resources{
		Chip:      chip,
		Scheduler: scheduler,
		Drivers:   drivers,
		Deferred:  platform.NewDeferredCallQueue(),
	}
	return b, nil
}

// Run enters the kernel loop. Never returns.
func (b *Board) Run() {
	b.Kernel.KernelLoop(b.Resources)
}

// RunUntilIdle drives the loop without sleeping until the system quiesces.
func (b *Board) RunUntilIdle(maxOps int) int {
	return b.Kernel.RunUntilIdle(b.Resources, maxOps)
}

// demoScript returns the instruction stream for the built-in demo apps.
// Unknown names get an empty script, which yields forever.
func demoScript(name string) []process.Action {
	upcallPC := process.DefaultFlashBase + 0x40
	statusAddr := process.DefaultMemBase + 0x10

	switch name {
	case "counter-app":
		return []process.Action{
			process.SyscallAction(syscall.NewCommand(capsule.CounterDriverNum, capsule.CounterCmdExists, 0, 0), 10),
			process.SyscallAction(syscall.NewSubscribe(capsule.CounterDriverNum, 0, upcallPC, 0xC0DE), 10),
			process.SyscallAction(syscall.NewCommand(capsule.CounterDriverNum, capsule.CounterCmdIncrement, 1, 0), 10),
			process.SyscallAction(syscall.NewYield(syscall.YieldWait, 0), 10),
			process.SyscallAction(syscall.NewCommand(capsule.CounterDriverNum, capsule.CounterCmdIncrement, 2, 0), 10),
			process.SyscallAction(syscall.NewYield(syscall.YieldNoWait, statusAddr), 10),
			process.SyscallAction(syscall.NewCommand(capsule.CounterDriverNum, capsule.CounterCmdRead, 0, 0), 10),
			process.SyscallAction(syscall.NewExit(syscall.ExitTerminate, 0), 10),
		}
	case "echo-app":
		src := process.DefaultMemBase + 0x100
		dst := process.DefaultMemBase + 0x200
		return []process.Action{
			process.SyscallAction(syscall.NewReadOnlyAllow(capsule.EchoDriverNum, 0, src, 64), 10),
			process.SyscallAction(syscall.NewReadWriteAllow(capsule.EchoDriverNum, 0, dst, 64), 10),
			process.SyscallAction(syscall.NewSubscribe(capsule.EchoDriverNum, 0, upcallPC, 0), 10),
			process.SyscallAction(syscall.NewCommand(capsule.EchoDriverNum, capsule.EchoCmdCopy, 0, 0), 10),
			process.SyscallAction(syscall.NewYield(syscall.YieldWait, 0), 10),
			process.SyscallAction(syscall.NewCommand(capsule.EchoDriverNum, capsule.EchoCmdLast, 0, 0), 10),
			process.SyscallAction(syscall.NewExit(syscall.ExitTerminate, 0), 10),
		}
	default:
		return nil
	}
}
