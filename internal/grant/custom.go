package grant

import (
	"reflect"
	"unsafe"

	"github.com/kestrel-os/kestrel/internal/process"
)

// Allocator hands capsules a bump allocator over the process's grant region
// for the duration of one EnterWithAllocator call. Custom grant blocks grow
// without bound and are never individually freed; capsules own keeping their
// appetite proportional to the process's memory.
type Allocator struct {
	core Core
	proc process.Process
}

// CustomGrant owns one independently allocated, typed block inside a
// process's grant region. Access requires holding the handle; because Go
// passes the handle by ownership convention there is no runtime entry guard.
type CustomGrant[T any] struct {
	core Core
	pid  process.ID
	id   process.CustomGrantID
}

// AllocCustom carves a zeroed T out of the grant region. The returned
// pointer is valid only within the current closure; later access goes
// through the handle.
func AllocCustom[T any](a *Allocator) (*CustomGrant[T], *T, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	checkPointerFree(t)
	id, base, err := a.proc.AllocateCustomGrant(t.Size(), uintptr(t.Align()))
	if err != nil {
		return nil, nil, err
	}
	var zero T
	data := (*T)(base)
	*data = zero
	return &CustomGrant[T]{core: a.core, pid: a.proc.ProcessID(), id: id}, data, nil
}

// AllocCustomN carves a zeroed [n]T block out of the grant region, returning
// a slice view valid only within the current closure.
func AllocCustomN[T any](a *Allocator, n int) (*CustomGrantSlice[T], []T, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	checkPointerFree(t)
	id, base, err := a.proc.AllocateCustomGrant(t.Size()*uintptr(n), uintptr(t.Align()))
	if err != nil {
		return nil, nil, err
	}
	view := unsafe.Slice((*T)(base), n)
	var zero T
	for i := range view {
		view[i] = zero
	}
	return &CustomGrantSlice[T]{core: a.core, pid: a.proc.ProcessID(), id: id, n: n}, view, nil
}

// Enter resolves the block and runs f with the typed view.
func (c *CustomGrant[T]) Enter(f func(*T)) error {
	p, ok := c.core.Lookup(c.pid)
	if !ok {
		return process.ErrNoSuchApp
	}
	base, err := p.EnterCustomGrant(c.id)
	if err != nil {
		return err
	}
	f((*T)(base))
	return nil
}

// CustomGrantSlice owns an independently allocated [n]T block.
type CustomGrantSlice[T any] struct {
	core Core
	pid  process.ID
	id   process.CustomGrantID
	n    int
}

// Enter resolves the block and runs f with the typed slice view.
func (c *CustomGrantSlice[T]) Enter(f func([]T)) error {
	p, ok := c.core.Lookup(c.pid)
	if !ok {
		return process.ErrNoSuchApp
	}
	base, err := p.EnterCustomGrant(c.id)
	if err != nil {
		return err
	}
	f(unsafe.Slice((*T)(base), c.n))
	return nil
}
