package kernel

import (
	"errors"

	"go.uber.org/zap"

	"github.com/kestrel-os/kestrel/internal/grant"
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// handleSyscall routes one decoded syscall. Driver-routed classes pass the
// platform filter first; Yield, Exit, and Memop never do.
func (k *Kernel) handleSyscall(res *Resources, p process.Process, sc syscall.Syscall) {
	k.metrics.RecordSyscall(sc.Class.String())
	k.logger.Debug("syscall",
		zap.String("process", p.Name()),
		zap.Stringer("call", sc),
	)

	if sc.Filterable() && res.Filter != nil {
		if err := res.Filter.FilterSyscall(p, sc); err != nil {
			k.metrics.FilteredTotal.Inc()
			p.SetSyscallReturn(syscall.Failure(errorCode(err)))
			return
		}
	}

	switch sc.Class {
	case syscall.ClassYield:
		k.handleYield(p, sc)
	case syscall.ClassSubscribe:
		k.handleSubscribe(res, p, sc)
	case syscall.ClassCommand:
		k.handleCommand(res, p, sc)
	case syscall.ClassReadWriteAllow:
		k.handleReadWriteAllow(res, p, sc)
	case syscall.ClassReadOnlyAllow:
		k.handleReadOnlyAllow(res, p, sc)
	case syscall.ClassMemop:
		p.SetSyscallReturn(memop(p, sc.Args[0], sc.Args[1]))
	case syscall.ClassExit:
		k.handleExit(p, sc)
	}
}

// handleYield blocks or polls the process. An unknown variant is a no-op:
// nothing is written back and the process keeps running.
func (k *Kernel) handleYield(p process.Process, sc syscall.Syscall) {
	which, addr := sc.Args[0], sc.Args[1]
	if which > syscall.YieldWait {
		return
	}
	if which == syscall.YieldNoWait {
		hasTasks := p.HasTasks()
		var flag byte
		if hasTasks {
			flag = 1
		}
		// An invalid status address is ignored, matching SetByte.
		p.SetByte(addr, flag)
		if !hasTasks {
			return
		}
	}
	p.SetYieldedState()
}

// handleSubscribe swaps an upcall slot. A process subscribing to a driver it
// has never commanded has no grant block yet; the owning capsule gets
// exactly one chance to allocate it before the subscribe fails.
func (k *Kernel) handleSubscribe(res *Resources, p process.Process, sc syscall.Syscall) {
	driverNum, subscribeNum := sc.Args[0], sc.Args[1]
	fnPtr, appdata := sc.Args[2], sc.Args[3]

	fail := func(code syscall.ErrorCode) {
		k.metrics.RecordSyscallError(sc.Class.String(), code.String())
		p.SetSyscallReturn(syscall.SubscribeFailure(code, fnPtr, appdata))
	}

	if fnPtr != 0 && !p.IsValidUpcallFunctionPointer(fnPtr) {
		fail(syscall.INVAL)
		return
	}
	d, ok := res.Drivers.Lookup(driverNum)
	if !ok {
		fail(syscall.NODEVICE)
		return
	}
	grantNum := k.grantNumForDriver(driverNum)
	if grantNum < 0 {
		fail(syscall.NODEVICE)
		return
	}

	upcall := grant.SavedUpcall{AppData: appdata, FnPtr: fnPtr}
	prev, err := grant.Subscribe(p, grantNum, subscribeNum, upcall)
	if errors.Is(err, process.ErrNotAllocated) {
		k.tryAllocateGrant(d.AllocateGrant, p, driverNum)
		prev, err = grant.Subscribe(p, grantNum, subscribeNum, upcall)
	}
	if err != nil {
		fail(errorCode(err))
		return
	}

	// Upcalls queued against the old slot contents must never fire with the
	// new appdata; dropping them only on success keeps failed swaps free of
	// side effects.
	purged := p.RemovePendingUpcalls(syscall.UpcallID{DriverNum: driverNum, SubscribeNum: subscribeNum})
	if purged > 0 {
		k.metrics.UpcallsPurged.Add(float64(purged))
	}
	p.SetSyscallReturn(syscall.SubscribeSuccess(prev.FnPtr, prev.AppData))
}

// tryAllocateGrant invokes a capsule's allocation hook and logs what it did
// to the process's grant count. The count comparison is diagnostic only; the
// retry that follows decides success.
func (k *Kernel) tryAllocateGrant(allocate func(process.ID) error, p process.Process, driverNum uint32) {
	before, _ := p.GrantAllocatedCount()
	allocErr := allocate(p.ProcessID())
	after, _ := p.GrantAllocatedCount()

	switch {
	case after == before+1:
		k.metrics.RecordGrantAllocation(driverLabel(driverNum))
		k.logger.Debug("grant allocated on subscribe",
			zap.String("process", p.Name()),
			zap.String("driver", driverLabel(driverNum)),
		)
	case allocErr == nil && after == before:
		k.logger.Debug("grant already allocated",
			zap.String("process", p.Name()),
			zap.String("driver", driverLabel(driverNum)),
		)
	default:
		k.metrics.RecordGrantFailure(driverLabel(driverNum))
		k.logger.Warn("grant allocation failed",
			zap.String("process", p.Name()),
			zap.String("driver", driverLabel(driverNum)),
			zap.Error(allocErr),
		)
	}
}

// handleCommand routes a command to its driver.
func (k *Kernel) handleCommand(res *Resources, p process.Process, sc syscall.Syscall) {
	d, ok := res.Drivers.Lookup(sc.Args[0])
	if !ok {
		k.metrics.RecordSyscallError(sc.Class.String(), syscall.NODEVICE.String())
		p.SetSyscallReturn(syscall.CommandFailure(syscall.NODEVICE).Return())
		return
	}
	cr := d.Command(sc.Args[1], sc.Args[2], sc.Args[3], p.ProcessID())
	if !cr.IsSuccess() {
		k.metrics.RecordSyscallError(sc.Class.String(), cr.Return().Err.String())
	}
	p.SetSyscallReturn(cr.Return())
}

// handleReadWriteAllow shares writable process memory with a driver. The
// (address, size) pair handed back always comes from a buffer the kernel
// consumed, so exactly one side holds a live share afterwards.
func (k *Kernel) handleReadWriteAllow(res *Resources, p process.Process, sc syscall.Syscall) {
	driverNum, allowNum, addr, size := sc.Args[0], sc.Args[1], sc.Args[2], sc.Args[3]

	d, ok := res.Drivers.Lookup(driverNum)
	if !ok {
		p.SetSyscallReturn(syscall.AllowReadWriteFailure(syscall.NODEVICE, addr, size))
		return
	}
	buf, err := p.BuildReadWriteProcessBuffer(addr, size)
	if err != nil {
		// The pointer never left the process; the original pair goes back
		// untouched.
		p.SetSyscallReturn(syscall.AllowReadWriteFailure(syscall.INVAL, addr, size))
		return
	}
	returned, aerr := d.AllowReadWrite(p.ProcessID(), allowNum, buf)
	raddr, rsize := returned.Consume()
	if aerr != nil {
		p.SetSyscallReturn(syscall.AllowReadWriteFailure(errorCode(aerr), raddr, rsize))
		return
	}
	p.SetSyscallReturn(syscall.AllowReadWriteSuccess(raddr, rsize))
}

// handleReadOnlyAllow shares readable process memory with a driver.
func (k *Kernel) handleReadOnlyAllow(res *Resources, p process.Process, sc syscall.Syscall) {
	driverNum, allowNum, addr, size := sc.Args[0], sc.Args[1], sc.Args[2], sc.Args[3]

	d, ok := res.Drivers.Lookup(driverNum)
	if !ok {
		p.SetSyscallReturn(syscall.AllowReadOnlyFailure(syscall.NODEVICE, addr, size))
		return
	}
	buf, err := p.BuildReadOnlyProcessBuffer(addr, size)
	if err != nil {
		p.SetSyscallReturn(syscall.AllowReadOnlyFailure(syscall.INVAL, addr, size))
		return
	}
	returned, aerr := d.AllowReadOnly(p.ProcessID(), allowNum, buf)
	raddr, rsize := returned.Consume()
	if aerr != nil {
		p.SetSyscallReturn(syscall.AllowReadOnlyFailure(errorCode(aerr), raddr, rsize))
		return
	}
	p.SetSyscallReturn(syscall.AllowReadOnlySuccess(raddr, rsize))
}

// handleExit retires or restarts the process. Valid variants do not return
// to the caller; anything else fails with NOSUPPORT.
func (k *Kernel) handleExit(p process.Process, sc syscall.Syscall) {
	which, completionCode := sc.Args[0], sc.Args[1]
	switch which {
	case syscall.ExitTerminate:
		k.logger.Info("process exited",
			zap.String("name", p.Name()),
			zap.Uint32("completion_code", completionCode),
		)
		p.Terminate(completionCode)
	case syscall.ExitRestart:
		k.metrics.RecordRestart(p.Name())
		k.logger.Info("process restarting",
			zap.String("name", p.Name()),
			zap.Uint32("completion_code", completionCode),
		)
		p.TryRestart(completionCode)
	default:
		p.SetSyscallReturn(syscall.Failure(syscall.NOSUPPORT))
	}
}

// errorCode maps kernel errors onto userspace error codes. ErrorCode values
// pass through; grant allocation failures become NOMEM.
func errorCode(err error) syscall.ErrorCode {
	var code syscall.ErrorCode
	if errors.As(err, &code) {
		return code
	}
	switch {
	case errors.Is(err, process.ErrOutOfMemory), errors.Is(err, process.ErrNotAllocated):
		return syscall.NOMEM
	case errors.Is(err, process.ErrNoSuchApp), errors.Is(err, process.ErrInactiveApp):
		return syscall.FAIL
	default:
		return syscall.FAIL
	}
}
