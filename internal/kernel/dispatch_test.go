package kernel

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-os/kestrel/internal/capsule"
	"github.com/kestrel-os/kestrel/internal/platform"
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

func TestEchoEndToEnd(t *testing.T) {
	srcAddr := process.DefaultMemBase + 0x100
	dstAddr := process.DefaultMemBase + 0x200
	const n = 40 // spans three copy chunks

	h := newHarness(t, 10_000, process.Config{
		Name: "echo-app",
		Script: []process.Action{
			process.SyscallAction(syscall.NewReadOnlyAllow(capsule.EchoDriverNum, 0, srcAddr, n), 10),
			process.SyscallAction(syscall.NewReadWriteAllow(capsule.EchoDriverNum, 0, dstAddr, 64), 10),
			process.SyscallAction(syscall.NewSubscribe(capsule.EchoDriverNum, 0, testUpcallPC, 0), 10),
			process.SyscallAction(syscall.NewCommand(capsule.EchoDriverNum, capsule.EchoCmdCopy, 0, 0), 10),
			process.SyscallAction(syscall.NewYield(syscall.YieldWait, 0), 10),
			process.SyscallAction(syscall.NewCommand(capsule.EchoDriverNum, capsule.EchoCmdLast, 0, 0), 10),
			process.SyscallAction(syscall.NewExit(syscall.ExitTerminate, 0), 10),
		},
	})
	p := h.procs[0]

	pattern := make([]byte, n)
	for i := range pattern {
		pattern[i] = byte(i * 3)
	}
	require.True(t, p.WriteBytes(srcAddr, pattern))

	h.run(t, 100)

	assert.Equal(t, process.Terminated, p.State())
	for i, want := range pattern {
		got, ok := p.ReadByte(dstAddr + uint32(i))
		require.True(t, ok)
		assert.Equal(t, want, got, "byte %d", i)
	}

	delivered := p.DeliveredUpcalls()
	require.Len(t, delivered, 1)
	assert.Equal(t, uint32(n), delivered[0].Arg0)

	ret, ok := p.LastSyscallReturn()
	require.True(t, ok)
	assert.Equal(t, syscall.ReturnSuccessU32, ret.Kind)
	assert.Equal(t, uint32(n), ret.A0)
}

func TestEchoJournalsCopyHistory(t *testing.T) {
	srcAddr := process.DefaultMemBase + 0x100
	dstAddr := process.DefaultMemBase + 0x200

	h := newHarness(t, 10_000, process.Config{
		Name: "echo-app",
		Script: []process.Action{
			process.SyscallAction(syscall.NewReadOnlyAllow(capsule.EchoDriverNum, 0, srcAddr, 8), 10),
			process.SyscallAction(syscall.NewReadWriteAllow(capsule.EchoDriverNum, 0, dstAddr, 8), 10),
			process.SyscallAction(syscall.NewCommand(capsule.EchoDriverNum, capsule.EchoCmdCopy, 0, 0), 10),
			process.SyscallAction(syscall.NewCommand(capsule.EchoDriverNum, capsule.EchoCmdCopy, 0, 0), 10),
			process.SyscallAction(syscall.NewCommand(capsule.EchoDriverNum, capsule.EchoCmdHistory, 0, 0), 10),
			process.SyscallAction(syscall.NewExit(syscall.ExitTerminate, 0), 10),
		},
	})

	h.run(t, 100)

	ret, ok := h.procs[0].LastSyscallReturn()
	require.True(t, ok)
	assert.Equal(t, syscall.ReturnSuccessU32, ret.Kind)
	assert.Equal(t, uint32(2), ret.A0)
}

func TestEchoCopyWithoutBuffers(t *testing.T) {
	h := newHarness(t, 10_000, process.Config{
		Name: "echo-app",
		Script: []process.Action{
			process.SyscallAction(syscall.NewCommand(capsule.EchoDriverNum, capsule.EchoCmdCopy, 0, 0), 10),
		},
	})
	h.run(t, 100)

	ret, ok := h.procs[0].LastSyscallReturn()
	require.True(t, ok)
	assert.Equal(t, syscall.ReturnFailure, ret.Kind)
	assert.Equal(t, syscall.RESERVE, ret.Err)
}

func TestAllowSwapReturnsPreviousBuffer(t *testing.T) {
	addrA := process.DefaultMemBase + 0x100
	addrB := process.DefaultMemBase + 0x180

	h := newHarness(t, 10_000, process.Config{
		Name: "app",
		Script: []process.Action{
			process.SyscallAction(syscall.NewReadOnlyAllow(capsule.EchoDriverNum, 0, addrA, 32), 10),
			process.SyscallAction(syscall.NewReadOnlyAllow(capsule.EchoDriverNum, 0, addrB, 16), 10),
		},
	})
	h.run(t, 100)

	// The second allow hands back the first share.
	ret, ok := h.procs[0].LastSyscallReturn()
	require.True(t, ok)
	assert.Equal(t, syscall.ReturnAllowReadOnlySuccess, ret.Kind)
	assert.Equal(t, addrA, ret.A0)
	assert.Equal(t, uint32(32), ret.A1)
}

func TestFirstAllowReturnsEmptyBuffer(t *testing.T) {
	addr := process.DefaultMemBase + 0x100
	h := newHarness(t, 10_000, process.Config{
		Name: "app",
		Script: []process.Action{
			process.SyscallAction(syscall.NewReadWriteAllow(capsule.EchoDriverNum, 0, addr, 32), 10),
		},
	})
	h.run(t, 100)

	ret, ok := h.procs[0].LastSyscallReturn()
	require.True(t, ok)
	assert.Equal(t, syscall.ReturnAllowReadWriteSuccess, ret.Kind)
	assert.Zero(t, ret.A0)
	assert.Zero(t, ret.A1)
}

func TestAllowInvalidPointerKeepsOriginalPair(t *testing.T) {
	// Past the app break, so the share is rejected before any driver sees it.
	badAddr := process.DefaultMemBase + 40_000
	h := newHarness(t, 10_000, process.Config{
		Name: "app",
		Script: []process.Action{
			process.SyscallAction(syscall.NewReadWriteAllow(capsule.EchoDriverNum, 0, badAddr, 64), 10),
		},
	})
	h.run(t, 100)

	ret, ok := h.procs[0].LastSyscallReturn()
	require.True(t, ok)
	assert.Equal(t, syscall.ReturnAllowReadWriteFailure, ret.Kind)
	assert.Equal(t, syscall.INVAL, ret.Err)
	assert.Equal(t, badAddr, ret.A0)
	assert.Equal(t, uint32(64), ret.A1)
}

func TestAllowUnknownDriver(t *testing.T) {
	addr := process.DefaultMemBase + 0x100
	h := newHarness(t, 10_000, process.Config{
		Name: "app",
		Script: []process.Action{
			process.SyscallAction(syscall.NewReadOnlyAllow(0x9999, 0, addr, 32), 10),
		},
	})
	h.run(t, 100)

	ret, ok := h.procs[0].LastSyscallReturn()
	require.True(t, ok)
	assert.Equal(t, syscall.ReturnAllowReadOnlyFailure, ret.Kind)
	assert.Equal(t, syscall.NODEVICE, ret.Err)
	assert.Equal(t, addr, ret.A0)
	assert.Equal(t, uint32(32), ret.A1)
}

func TestFilterRejectsDriverCalls(t *testing.T) {
	h := newHarness(t, 10_000, process.Config{
		Name: "app",
		Script: []process.Action{
			// Memop passes the filter unconditionally; the command does not.
			process.SyscallAction(syscall.NewMemop(MemopMemoryStart, 0), 10),
			process.SyscallAction(syscall.NewCommand(capsule.CounterDriverNum, capsule.CounterCmdExists, 0, 0), 10),
		},
	})
	h.res.Filter = &DriverAllowlistFilter{Allowed: map[uint32]bool{capsule.EchoDriverNum: true}}

	h.run(t, 100)

	ret, ok := h.procs[0].LastSyscallReturn()
	require.True(t, ok)
	assert.Equal(t, syscall.ReturnFailure, ret.Kind)
	assert.Equal(t, syscall.NODEVICE, ret.Err)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.k.metrics.FilteredTotal))
}

func TestMemop(t *testing.T) {
	k := New(nil, nil)
	clock := platform.NewVirtualClock()
	p := process.NewStandard(k, clock, 0, process.Config{Name: "app"})

	memEnd := process.DefaultMemBase + process.DefaultMemSize
	flashEnd := process.DefaultFlashBase + process.DefaultFlashSize

	assert.Equal(t, syscall.SuccessU32(process.DefaultMemBase), memop(p, MemopMemoryStart, 0))
	assert.Equal(t, syscall.SuccessU32(memEnd), memop(p, MemopMemoryEnd, 0))
	assert.Equal(t, syscall.SuccessU32(process.DefaultFlashBase), memop(p, MemopFlashStart, 0))
	assert.Equal(t, syscall.SuccessU32(flashEnd), memop(p, MemopFlashEnd, 0))
	assert.Equal(t, syscall.SuccessU32(memEnd), memop(p, MemopGrantBegin, 0))
	assert.Equal(t, syscall.SuccessU32(0), memop(p, MemopFlashRegions, 0))
	assert.Equal(t, syscall.Failure(syscall.NOMEM), memop(p, MemopFlashRegionStart, 0))
	assert.Equal(t, syscall.Failure(syscall.NOMEM), memop(p, MemopFlashRegionEnd, 0))
	assert.Equal(t, syscall.Success(), memop(p, MemopSetStackTop, process.DefaultMemBase+0x400))
	assert.Equal(t, syscall.Success(), memop(p, MemopSetHeapStart, process.DefaultMemBase+0x800))
	assert.Equal(t, syscall.Failure(syscall.NOSUPPORT), memop(p, 99, 0))
}

func TestMemopBrkAndSBrk(t *testing.T) {
	k := New(nil, nil)
	clock := platform.NewVirtualClock()
	p := process.NewStandard(k, clock, 0, process.Config{Name: "app"})

	target := process.DefaultMemBase + 0x1000
	assert.Equal(t, syscall.Success(), memop(p, MemopBrk, target))

	r := memop(p, MemopSBrk, 16)
	require.Equal(t, syscall.ReturnSuccessU32, r.Kind)
	assert.Equal(t, target, r.A0)

	// Growing past the grant region fails.
	assert.Equal(t, syscall.Failure(syscall.NOMEM), memop(p, MemopBrk, process.DefaultMemBase+process.DefaultMemSize+1))
}

func TestTrySleepSkipsWhenInterruptPending(t *testing.T) {
	h := newHarness(t, 10_000)
	h.chip.RaiseInterrupt(func() {})

	h.k.trySleep(h.res)
	assert.Zero(t, h.chip.Sleeps())
}

func TestTrySleepSkipsWhenDeferredPending(t *testing.T) {
	h := newHarness(t, 10_000)
	h.res.Deferred.Defer(func() {})

	h.k.trySleep(h.res)
	assert.Zero(t, h.chip.Sleeps())
}

func TestTrySleepWakesOnInterrupt(t *testing.T) {
	h := newHarness(t, 10_000)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.k.trySleep(h.res)
	}()

	time.Sleep(10 * time.Millisecond)
	h.chip.RaiseInterrupt(func() {})
	wg.Wait()

	assert.Equal(t, 1, h.chip.Sleeps())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.k.metrics.Sleeps))
}
