package capsule

import (
	"github.com/kestrel-os/kestrel/internal/procbuf"
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// Driver is the dispatch surface of one capsule. The kernel routes command
// and allow syscalls here after resolving the driver number; subscribe is
// handled in the kernel against the driver's grant, with AllocateGrant as
// the capsule's one chance to materialize storage for a process that has
// never called in.
//
// Allow methods receive the process's new buffer and return the previously
// held one, so exactly one side owns a given share at any time. On error the
// new buffer comes back to the kernel with the error.
type Driver interface {
	Command(commandNum, arg2, arg3 uint32, pid process.ID) syscall.CommandReturn

	AllowReadOnly(pid process.ID, allowNum uint32, buf procbuf.ReadOnlyProcessBuffer) (procbuf.ReadOnlyProcessBuffer, error)

	AllowReadWrite(pid process.ID, allowNum uint32, buf procbuf.ReadWriteProcessBuffer) (procbuf.ReadWriteProcessBuffer, error)

	AllocateGrant(pid process.ID) error
}

// Registry maps driver numbers to drivers. Populated at board init, read
// only afterwards.
type Registry struct {
	drivers map[uint32]Driver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[uint32]Driver)}
}

// Register binds a driver number. Rebinding a number is a board bug and
// panics.
func (r *Registry) Register(driverNum uint32, d Driver) {
	if _, exists := r.drivers[driverNum]; exists {
		panic("driver number registered twice")
	}
	r.drivers[driverNum] = d
}

// Lookup resolves a driver number.
func (r *Registry) Lookup(driverNum uint32) (Driver, bool) {
	d, ok := r.drivers[driverNum]
	return d, ok
}

// Len returns how many drivers are registered.
func (r *Registry) Len() int { return len(r.drivers) }
