package capsule

import (
	"github.com/kestrel-os/kestrel/internal/grant"
	"github.com/kestrel-os/kestrel/internal/procbuf"
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// EchoDriverNum is the echo capsule's driver number.
const EchoDriverNum uint32 = 0x0002

// Echo capsule commands.
const (
	EchoCmdExists  = 0
	EchoCmdCopy    = 1
	EchoCmdLast    = 2
	EchoCmdHistory = 3
)

// Echo allow slots: read-only 0 is the source, read-write 0 the destination.
const (
	echoAllowSource = 0
	echoAllowDest   = 0
)

// echoUpcallDone fires after each copy with the byte count.
const echoUpcallDone = 0

// echoChunkSize is the copy granularity. Small on purpose so multi-chunk
// paths run even for short buffers.
const echoChunkSize = 16

// echoState is the per-process grant storage of the echo capsule.
type echoState struct {
	Copied uint32
	Ops    uint32
}

// echoHistory is a ring of recent copy lengths, kept in a custom grant
// block.
type echoHistory struct {
	Lengths [8]uint32
	Next    uint32
}

func (h *echoHistory) record(n uint32) {
	h.Lengths[h.Next%uint32(len(h.Lengths))] = n
	h.Next++
}

// Echo copies a process's read-only allowed buffer into its read-write
// allowed buffer, chunk by chunk, and reports each copy through an upcall.
// Copy lengths are journaled per process in a custom grant ring.
type Echo struct {
	grant   *grant.Grant[echoState]
	sources map[process.ID]procbuf.ReadOnlyProcessBuffer
	dests   map[process.ID]procbuf.ReadWriteProcessBuffer
	history map[process.ID]*grant.CustomGrant[echoHistory]
}

// NewEcho declares the echo capsule's grant and returns the capsule.
func NewEcho(core grant.Core) *Echo {
	return &Echo{
		grant:   grant.Create[echoState](core, EchoDriverNum, 1),
		sources: make(map[process.ID]procbuf.ReadOnlyProcessBuffer),
		dests:   make(map[process.ID]procbuf.ReadWriteProcessBuffer),
		history: make(map[process.ID]*grant.CustomGrant[echoHistory]),
	}
}

// Command implements Driver.
func (e *Echo) Command(commandNum, arg2, arg3 uint32, pid process.ID) syscall.CommandReturn {
	switch commandNum {
	case EchoCmdExists:
		return syscall.CommandSuccess()

	case EchoCmdCopy:
		return e.copy(pid)

	case EchoCmdLast:
		var last uint32
		err := e.grant.Enter(pid, func(st *echoState, _ *grant.UpcallTable) {
			last = st.Copied
		})
		if err != nil {
			return syscall.CommandFailure(grantErrorCode(err))
		}
		return syscall.CommandSuccessU32(last)

	case EchoCmdHistory:
		h, ok := e.history[pid]
		if !ok {
			return syscall.CommandSuccessU32(0)
		}
		var ops uint32
		if err := h.Enter(func(j *echoHistory) { ops = j.Next }); err != nil {
			delete(e.history, pid)
			return syscall.CommandFailure(grantErrorCode(err))
		}
		return syscall.CommandSuccessU32(ops)

	default:
		return syscall.CommandFailure(syscall.NOSUPPORT)
	}
}

// copy moves min(len(src), len(dst)) bytes in echoChunkSize pieces, then
// journals the count and schedules the done upcall.
func (e *Echo) copy(pid process.ID) syscall.CommandReturn {
	src, haveSrc := e.sources[pid]
	dst, haveDst := e.dests[pid]
	if !haveSrc || !haveDst {
		return syscall.CommandFailure(syscall.RESERVE)
	}

	copied := 0
	outerErr := src.Enter(func(from procbuf.ReadableProcessSlice) {
		_ = dst.MutEnter(func(to procbuf.WriteableProcessSlice) {
			var scratch [echoChunkSize]byte
			for chunk := range from.Chunks(echoChunkSize) {
				if copied >= to.Len() {
					break
				}
				n := min(chunk.Len(), to.Len()-copied)
				part, _ := chunk.Slice(0, n)
				if part.CopyTo(scratch[:n]) != nil {
					break
				}
				dpart, ok := to.Slice(copied, copied+n)
				if !ok || dpart.CopyFrom(scratch[:n]) != nil {
					break
				}
				copied += n
			}
		})
	})
	if outerErr != nil {
		delete(e.sources, pid)
		delete(e.dests, pid)
		return syscall.CommandFailure(syscall.FAIL)
	}

	err := e.grant.EnterWithAllocator(pid, func(st *echoState, upcalls *grant.UpcallTable, alloc *grant.Allocator) {
		st.Ops++
		st.Copied = uint32(copied)
		e.journal(pid, alloc, uint32(copied))
		_ = upcalls.ScheduleUpcall(echoUpcallDone, uint32(copied), 0, 0)
	})
	if err != nil {
		return syscall.CommandFailure(grantErrorCode(err))
	}
	return syscall.CommandSuccessU32(uint32(copied))
}

// journal appends a copy length to the process's history ring, allocating it
// on first use. Journal failures are dropped; the copy already happened.
func (e *Echo) journal(pid process.ID, alloc *grant.Allocator, n uint32) {
	if h, ok := e.history[pid]; ok {
		if err := h.Enter(func(j *echoHistory) { j.record(n) }); err == nil {
			return
		}
		// Stale handle from a previous process instance.
		delete(e.history, pid)
	}
	h, j, err := grant.AllocCustom[echoHistory](alloc)
	if err != nil {
		return
	}
	j.record(n)
	e.history[pid] = h
}

// AllowReadOnly implements Driver.
func (e *Echo) AllowReadOnly(pid process.ID, allowNum uint32, buf procbuf.ReadOnlyProcessBuffer) (procbuf.ReadOnlyProcessBuffer, error) {
	if allowNum != echoAllowSource {
		return buf, syscall.NOSUPPORT
	}
	prev := e.sources[pid]
	e.sources[pid] = buf
	return prev, nil
}

// AllowReadWrite implements Driver.
func (e *Echo) AllowReadWrite(pid process.ID, allowNum uint32, buf procbuf.ReadWriteProcessBuffer) (procbuf.ReadWriteProcessBuffer, error) {
	if allowNum != echoAllowDest {
		return buf, syscall.NOSUPPORT
	}
	prev := e.dests[pid]
	e.dests[pid] = buf
	return prev, nil
}

// AllocateGrant implements Driver.
func (e *Echo) AllocateGrant(pid process.ID) error {
	return e.grant.Enter(pid, func(*echoState, *grant.UpcallTable) {})
}
