package kernel

import (
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// DriverAllowlistFilter permits driver-routed syscalls only for listed
// driver numbers. Boards that grant every process the full driver set leave
// Resources.Filter nil instead.
type DriverAllowlistFilter struct {
	Allowed map[uint32]bool
}

// FilterSyscall implements SyscallFilter.
func (f *DriverAllowlistFilter) FilterSyscall(p process.Process, sc syscall.Syscall) error {
	if f.Allowed[sc.DriverNum()] {
		return nil
	}
	return syscall.NODEVICE
}
