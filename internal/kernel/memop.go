package kernel

import (
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// Memop operands.
const (
	MemopBrk              uint32 = 0
	MemopSBrk             uint32 = 1
	MemopMemoryStart      uint32 = 2
	MemopMemoryEnd        uint32 = 3
	MemopFlashStart       uint32 = 4
	MemopFlashEnd         uint32 = 5
	MemopGrantBegin       uint32 = 6
	MemopFlashRegions     uint32 = 7
	MemopFlashRegionStart uint32 = 8
	MemopFlashRegionEnd   uint32 = 9
	MemopSetStackTop      uint32 = 10
	MemopSetHeapStart     uint32 = 11
)

// memop answers memory layout syscalls directly; no driver is involved and
// the platform filter never sees them.
func memop(p process.Process, operand, arg uint32) syscall.Return {
	switch operand {
	case MemopBrk:
		if _, err := p.Brk(arg); err != nil {
			return syscall.Failure(syscall.NOMEM)
		}
		return syscall.Success()

	case MemopSBrk:
		old, err := p.SBrk(int32(arg))
		if err != nil {
			return syscall.Failure(syscall.NOMEM)
		}
		return syscall.SuccessU32(old)

	case MemopMemoryStart:
		return syscall.SuccessU32(p.MemStart())

	case MemopMemoryEnd:
		return syscall.SuccessU32(p.MemEnd())

	case MemopFlashStart:
		return syscall.SuccessU32(p.FlashStart())

	case MemopFlashEnd:
		return syscall.SuccessU32(p.FlashEnd())

	case MemopGrantBegin:
		return syscall.SuccessU32(p.GrantRegionBegin())

	case MemopFlashRegions:
		// Process images carry no writeable flash regions.
		return syscall.SuccessU32(0)

	case MemopFlashRegionStart, MemopFlashRegionEnd:
		return syscall.Failure(syscall.NOMEM)

	case MemopSetStackTop, MemopSetHeapStart:
		// Debug hints; accepted and unused.
		return syscall.Success()

	default:
		return syscall.Failure(syscall.NOSUPPORT)
	}
}
