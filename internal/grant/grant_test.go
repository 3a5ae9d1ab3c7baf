package grant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-os/kestrel/internal/grant"
	"github.com/kestrel-os/kestrel/internal/kernel"
	"github.com/kestrel-os/kestrel/internal/platform"
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

type counterData struct {
	Count uint32
	Flags uint32
}

func addProcess(k *kernel.Kernel, cfg process.Config) *process.Standard {
	p := process.NewStandard(k, platform.NewVirtualClock(), k.NextSlot(), cfg)
	k.AddProcess(p)
	return p
}

func TestLayoutWastesOneUnitWhenAligned(t *testing.T) {
	// 4-byte header + two 8-byte upcalls = 20, already 4-aligned; the
	// padding formula still inserts a full alignment unit.
	size, align, tOffset := grant.Layout[uint32](2)
	assert.Equal(t, uintptr(24), tOffset)
	assert.Equal(t, uintptr(28), size)
	assert.Equal(t, uintptr(4), align)
}

func TestLayoutPadsUpToAlignment(t *testing.T) {
	// 4 + 8 = 12; uint64 alignment 8 needs 4 bytes of padding.
	size, align, tOffset := grant.Layout[uint64](1)
	assert.Equal(t, uintptr(16), tOffset)
	assert.Equal(t, uintptr(24), size)
	assert.Equal(t, uintptr(8), align)
}

func TestCreateRejectsPointerTypes(t *testing.T) {
	k := kernel.New(nil, nil)
	assert.Panics(t, func() {
		grant.Create[struct{ P *int }](k, 1, 0)
	})
	assert.Panics(t, func() {
		grant.Create[struct{ S []byte }](k, 1, 0)
	})
}

func TestCreateAfterFinalizePanics(t *testing.T) {
	k := kernel.New(nil, nil)
	addProcess(k, process.Config{})
	assert.Panics(t, func() {
		grant.Create[counterData](k, 1, 0)
	})
}

func TestEnterAllocatesLazilyAndZeroes(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 1)
	p := addProcess(k, process.Config{})

	count, err := p.GrantAllocatedCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, g.Enter(p.ProcessID(), func(d *counterData, up *grant.UpcallTable) {
		assert.Zero(t, d.Count)
		assert.Equal(t, 1, up.Count())
		saved, ok := up.Saved(0)
		require.True(t, ok)
		assert.Zero(t, saved.FnPtr)
		d.Count = 7
	}))

	count, err = p.GrantAllocatedCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Same block on the next entry.
	require.NoError(t, g.Enter(p.ProcessID(), func(d *counterData, _ *grant.UpcallTable) {
		assert.Equal(t, uint32(7), d.Count)
	}))
}

func TestReentryPanics(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 0)
	p := addProcess(k, process.Config{})

	assert.Panics(t, func() {
		_ = g.Enter(p.ProcessID(), func(*counterData, *grant.UpcallTable) {
			_ = g.Enter(p.ProcessID(), func(*counterData, *grant.UpcallTable) {})
		})
	})
}

func TestTryEnterSkipsWhileEntered(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 0)
	p := addProcess(k, process.Config{})

	require.NoError(t, g.Enter(p.ProcessID(), func(*counterData, *grant.UpcallTable) {
		entered, err := g.TryEnter(p.ProcessID(), func(*counterData, *grant.UpcallTable) {
			t.Fatal("nested entry must be skipped")
		})
		assert.NoError(t, err)
		assert.False(t, entered)
	}))

	// Outside any entry TryEnter runs normally.
	entered, err := g.TryEnter(p.ProcessID(), func(*counterData, *grant.UpcallTable) {})
	assert.NoError(t, err)
	assert.True(t, entered)
}

func TestEnterErrors(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 0)
	p := addProcess(k, process.Config{})

	unknown := process.ID{Index: 9, Identifier: 9}
	err := g.Enter(unknown, func(*counterData, *grant.UpcallTable) {})
	assert.ErrorIs(t, err, process.ErrNoSuchApp)

	p.Terminate(0)
	err = g.Enter(p.ProcessID(), func(*counterData, *grant.UpcallTable) {})
	assert.Error(t, err)
}

func TestEachVisitsOnlyAllocated(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 0)
	p1 := addProcess(k, process.Config{Name: "a"})
	addProcess(k, process.Config{Name: "b"})

	require.NoError(t, g.Enter(p1.ProcessID(), func(d *counterData, _ *grant.UpcallTable) {
		d.Count = 1
	}))

	visited := 0
	g.Each(func(id process.ID, d *counterData, _ *grant.UpcallTable) {
		visited++
		assert.Equal(t, p1.ProcessID(), id)
		assert.Equal(t, uint32(1), d.Count)
	})
	assert.Equal(t, 1, visited)
}

func TestIterHandles(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 0)
	p1 := addProcess(k, process.Config{})
	p2 := addProcess(k, process.Config{})

	for _, p := range []*process.Standard{p1, p2} {
		require.NoError(t, g.Enter(p.ProcessID(), func(d *counterData, _ *grant.UpcallTable) {
			d.Count = uint32(p.ProcessID().Index) + 10
		}))
	}

	handles := g.Iter()
	require.Len(t, handles, 2)
	for _, h := range handles {
		require.NoError(t, h.Enter(func(d *counterData, _ *grant.UpcallTable) {
			assert.Equal(t, uint32(h.ProcessID().Index)+10, d.Count)
		}))
	}
}

func TestSubscribeSwap(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 2)
	p := addProcess(k, process.Config{})

	// No block yet: the dispatcher needs to see ErrNotAllocated so it can
	// give the capsule its allocation chance.
	_, err := grant.Subscribe(p, g.GrantNum(), 0, grant.SavedUpcall{FnPtr: 0x40080})
	assert.ErrorIs(t, err, process.ErrNotAllocated)

	require.NoError(t, g.Enter(p.ProcessID(), func(*counterData, *grant.UpcallTable) {}))

	prev, err := grant.Subscribe(p, g.GrantNum(), 0, grant.SavedUpcall{AppData: 0xC0DE, FnPtr: 0x40080})
	require.NoError(t, err)
	assert.Zero(t, prev.FnPtr)
	assert.Zero(t, prev.AppData)

	prev, err = grant.Subscribe(p, g.GrantNum(), 0, grant.SavedUpcall{})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x40080), prev.FnPtr)
	assert.Equal(t, uint32(0xC0DE), prev.AppData)

	_, err = grant.Subscribe(p, g.GrantNum(), 2, grant.SavedUpcall{})
	assert.ErrorIs(t, err, syscall.INVAL)
}

func TestScheduleUpcall(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 3, 1)
	p := addProcess(k, process.Config{})

	require.NoError(t, g.Enter(p.ProcessID(), func(*counterData, *grant.UpcallTable) {}))
	_, err := grant.Subscribe(p, g.GrantNum(), 0, grant.SavedUpcall{AppData: 0xBEEF, FnPtr: 0x40100})
	require.NoError(t, err)

	require.NoError(t, g.Enter(p.ProcessID(), func(_ *counterData, up *grant.UpcallTable) {
		assert.NoError(t, up.ScheduleUpcall(0, 1, 2, 3))
		assert.ErrorIs(t, up.ScheduleUpcall(1, 0, 0, 0), syscall.INVAL)
	}))

	task, ok := p.DequeueTask()
	require.True(t, ok)
	assert.Equal(t, process.TaskFunctionCall, task.Kind)
	assert.Equal(t, uint32(0x40100), task.FunctionCall.PC)
	assert.Equal(t, syscall.UpcallID{DriverNum: 3, SubscribeNum: 0}, task.FunctionCall.Source)
	assert.Equal(t, uint32(1), task.FunctionCall.Arg0)
	assert.Equal(t, uint32(2), task.FunctionCall.Arg1)
	assert.Equal(t, uint32(3), task.FunctionCall.Arg2)
	assert.Equal(t, uint32(0xBEEF), task.FunctionCall.Arg3)
}

func TestScheduleNullUpcall(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 1)
	p := addProcess(k, process.Config{})

	require.NoError(t, g.Enter(p.ProcessID(), func(_ *counterData, up *grant.UpcallTable) {
		assert.NoError(t, up.ScheduleUpcall(0, 9, 8, 7))
	}))

	task, ok := p.DequeueTask()
	require.True(t, ok)
	assert.Equal(t, process.TaskReturnValue, task.Kind)
	assert.Equal(t, uint32(9), task.ReturnValue.Arg0)
}

func TestCustomGrantThroughAllocator(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 0)
	p := addProcess(k, process.Config{})

	var handle *grant.CustomGrant[uint64]
	require.NoError(t, g.EnterWithAllocator(p.ProcessID(), func(_ *counterData, _ *grant.UpcallTable, alloc *grant.Allocator) {
		h, data, err := grant.AllocCustom[uint64](alloc)
		require.NoError(t, err)
		*data = 0xDEAD_BEEF
		handle = h
	}))

	require.NoError(t, handle.Enter(func(v *uint64) {
		assert.Equal(t, uint64(0xDEAD_BEEF), *v)
	}))
}

func TestCustomGrantSlice(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 0)
	p := addProcess(k, process.Config{})

	var handle *grant.CustomGrantSlice[uint32]
	require.NoError(t, g.EnterWithAllocator(p.ProcessID(), func(_ *counterData, _ *grant.UpcallTable, alloc *grant.Allocator) {
		h, view, err := grant.AllocCustomN[uint32](alloc, 4)
		require.NoError(t, err)
		require.Len(t, view, 4)
		for i := range view {
			view[i] = uint32(i * 11)
		}
		handle = h
	}))

	require.NoError(t, handle.Enter(func(view []uint32) {
		assert.Equal(t, []uint32{0, 11, 22, 33}, view)
	}))
}

func TestCustomGrantStaleAfterRestart(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[counterData](k, 1, 0)
	p := addProcess(k, process.Config{})

	var handle *grant.CustomGrant[uint32]
	require.NoError(t, g.EnterWithAllocator(p.ProcessID(), func(_ *counterData, _ *grant.UpcallTable, alloc *grant.Allocator) {
		h, _, err := grant.AllocCustom[uint32](alloc)
		require.NoError(t, err)
		handle = h
	}))

	p.TryRestart(0)
	err := handle.Enter(func(*uint32) {
		t.Fatal("stale handle must not resolve")
	})
	assert.ErrorIs(t, err, process.ErrNoSuchApp)
}

func TestGrantAllocationFailurePropagates(t *testing.T) {
	k := kernel.New(nil, nil)
	g := grant.Create[[4096]byte](k, 1, 0)
	p := addProcess(k, process.Config{MemSize: 2048, AppBreak: 1024})

	err := g.Enter(p.ProcessID(), func(*[4096]byte, *grant.UpcallTable) {
		t.Fatal("closure must not run without storage")
	})
	assert.ErrorIs(t, err, process.ErrOutOfMemory)
}
