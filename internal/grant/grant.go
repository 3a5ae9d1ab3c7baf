package grant

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/kestrel-os/kestrel/internal/process"
)

// Core is the slice of kernel behavior grants need: declaring grant numbers
// and resolving process identities. Implemented by the kernel.
type Core interface {
	// ClaimGrant reserves the next grant number for a driver, recording its
	// upcall count. Panics once grants are finalized.
	ClaimGrant(driverNum uint32, upcallCount int) int
	// Lookup resolves a process identity, matching both slot and
	// identifier.
	Lookup(id process.ID) (process.Process, bool)
	// EachProcess runs f over every resident process.
	EachProcess(f func(process.Process))
}

// Grant is an immutable handle on per-process storage of type T with a fixed
// number of upcall slots. It holds no memory itself; storage materializes in
// each process's grant region on first Enter.
type Grant[T any] struct {
	core        Core
	driverNum   uint32
	grantNum    int
	upcallCount int

	tType   reflect.Type
	size    uintptr
	align   uintptr
	tOffset uintptr
}

// Create declares a new grant for a driver. It must be called during board
// initialization, before any process exists; once the kernel finalizes
// grants this panics. T must be pointer-free.
func Create[T any](core Core, driverNum uint32, upcallCount int) *Grant[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	checkPointerFree(t)
	size, align, tOffset := blockLayout(upcallCount, t)
	return &Grant[T]{
		core:        core,
		driverNum:   driverNum,
		grantNum:    core.ClaimGrant(driverNum, upcallCount),
		upcallCount: upcallCount,
		tType:       t,
		size:        size,
		align:       align,
		tOffset:     tOffset,
	}
}

// DriverNum returns the owning driver number.
func (g *Grant[T]) DriverNum() uint32 { return g.driverNum }

// GrantNum returns the kernel-assigned grant number.
func (g *Grant[T]) GrantNum() int { return g.grantNum }

// UpcallCount returns the number of upcall slots co-allocated with T.
func (g *Grant[T]) UpcallCount() int { return g.upcallCount }

// Enter resolves the process, lazily allocating the grant block if needed,
// and runs f with the typed data and upcall table. The views passed to f are
// valid only inside f and must not be stored.
//
// Re-entering a grant that is already entered for the same process is a
// fatal programming error: it would alias the single mutable view the guard
// exists to prevent.
func (g *Grant[T]) Enter(pid process.ID, f func(*T, *UpcallTable)) error {
	_, err := g.enter(pid, true, f)
	return err
}

// TryEnter is Enter except that an already-entered grant is silently
// skipped: f does not run and entered reports false.
func (g *Grant[T]) TryEnter(pid process.ID, f func(*T, *UpcallTable)) (entered bool, err error) {
	return g.enter(pid, false, f)
}

// EnterWithAllocator is Enter with a grant-region allocator for
// capsule-driven custom grant allocations.
func (g *Grant[T]) EnterWithAllocator(pid process.ID, f func(*T, *UpcallTable, *Allocator)) error {
	_, err := g.enter(pid, true, func(data *T, table *UpcallTable) {
		f(data, table, &Allocator{core: g.core, proc: table.proc})
	})
	return err
}

func (g *Grant[T]) enter(pid process.ID, reentryFatal bool, f func(*T, *UpcallTable)) (bool, error) {
	p, ok := g.core.Lookup(pid)
	if !ok {
		return false, process.ErrNoSuchApp
	}
	base, err := g.enterProcess(p)
	if err == process.ErrAlreadyEntered {
		if reentryFatal {
			panic(fmt.Sprintf("grant %d re-entered for %s: grant views are single-entry", g.grantNum, pid))
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer p.LeaveGrant(g.grantNum)
	data, table := g.views(p, base)
	f(data, table)
	return true, nil
}

// enterProcess allocates the block on first use, marks the slot entered, and
// returns the block base.
func (g *Grant[T]) enterProcess(p process.Process) (unsafe.Pointer, error) {
	switch p.State() {
	case process.Terminated, process.Faulted:
		return nil, process.ErrInactiveApp
	}
	allocated, err := p.GrantIsAllocated(g.grantNum)
	if err != nil {
		return nil, err
	}
	if !allocated {
		if err := p.AllocateGrant(g.grantNum, g.size, g.align); err != nil {
			return nil, err
		}
	}
	base, err := p.EnterGrant(g.grantNum)
	if err != nil {
		return nil, err
	}
	if !allocated {
		g.initialize(base)
	}
	return base, nil
}

// initialize writes the block header and default-constructs the contents.
func (g *Grant[T]) initialize(base unsafe.Pointer) {
	*(*uint32)(base) = uint32(g.upcallCount)
	upcalls := unsafe.Slice((*SavedUpcall)(unsafe.Add(base, wordSize)), g.upcallCount)
	for i := range upcalls {
		upcalls[i] = SavedUpcall{}
	}
	var zero T
	*(*T)(unsafe.Add(base, g.tOffset)) = zero
}

func (g *Grant[T]) views(p process.Process, base unsafe.Pointer) (*T, *UpcallTable) {
	data := (*T)(unsafe.Add(base, g.tOffset))
	table := &UpcallTable{
		proc:      p,
		driverNum: g.driverNum,
		upcalls:   unsafe.Slice((*SavedUpcall)(unsafe.Add(base, wordSize)), g.upcallCount),
	}
	return data, table
}

// Each runs f for every process whose grant block is already allocated.
// Processes that have never entered this grant are skipped, not allocated.
// Calling Each while any matching grant is entered is fatal.
func (g *Grant[T]) Each(f func(process.ID, *T, *UpcallTable)) {
	g.core.EachProcess(func(p process.Process) {
		allocated, err := p.GrantIsAllocated(g.grantNum)
		if err != nil || !allocated {
			return
		}
		base, err := p.EnterGrant(g.grantNum)
		if err == process.ErrAlreadyEntered {
			panic(fmt.Sprintf("grant %d iterated while entered for %s", g.grantNum, p.ProcessID()))
		}
		if err != nil {
			return
		}
		defer p.LeaveGrant(g.grantNum)
		data, table := g.views(p, base)
		f(p.ProcessID(), data, table)
	})
}

// Iter returns an ephemeral handle per process with this grant allocated.
// Handles are consumed within one call chain, never stored.
func (g *Grant[T]) Iter() []ProcessGrant[T] {
	var out []ProcessGrant[T]
	g.core.EachProcess(func(p process.Process) {
		allocated, err := p.GrantIsAllocated(g.grantNum)
		if err != nil || !allocated {
			return
		}
		out = append(out, ProcessGrant[T]{grant: g, pid: p.ProcessID()})
	})
	return out
}

// ProcessGrant is an ephemeral (grant, process) pair produced by Iter.
type ProcessGrant[T any] struct {
	grant *Grant[T]
	pid   process.ID
}

// ProcessID returns the process side of the pair.
func (pg ProcessGrant[T]) ProcessID() process.ID { return pg.pid }

// Enter enters the grant for this process.
func (pg ProcessGrant[T]) Enter(f func(*T, *UpcallTable)) error {
	return pg.grant.Enter(pg.pid, f)
}
