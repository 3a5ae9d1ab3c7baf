package procbuf

import "errors"

// ErrNoSuchApp is returned by Enter/MutEnter when the process that shared
// the buffer is no longer resident, or was replaced by a restarted instance.
var ErrNoSuchApp = errors.New("no such app")

// Owner resolves a buffer's backing memory and owning-process liveness.
// It is implemented by the process layer; procbuf stays free of a dependency
// on any concrete process type.
type Owner interface {
	// BufferLive reports whether the process instance with the given
	// identifier is still resident and has not terminated or restarted.
	BufferLive(identifier uint32) bool
	// BufferBytes returns the backing bytes for a range the process layer
	// validated when the buffer was built. The range stays backed for the
	// process's remaining lifetime because the kernel never lowers the
	// high-water mark of previously shared memory.
	BufferBytes(addr, size uint32) []byte
}

// ReadOnlyProcessBuffer describes process memory shared read-only into the
// kernel via a read-only allow. The zero value is a valid empty buffer.
type ReadOnlyProcessBuffer struct {
	addr    uint32
	size    uint32
	owner   Owner
	ownerID uint32
}

// NewReadOnly builds a buffer descriptor from an already validated range.
// Only the process layer constructs non-empty buffers.
func NewReadOnly(addr, size uint32, owner Owner, ownerID uint32) ReadOnlyProcessBuffer {
	return ReadOnlyProcessBuffer{addr: addr, size: size, owner: owner, ownerID: ownerID}
}

// Addr returns the process-space address of the buffer. Zero-length buffers
// always report address 0 regardless of the address supplied at creation.
func (b *ReadOnlyProcessBuffer) Addr() uint32 {
	if b.size == 0 {
		return 0
	}
	return b.addr
}

// Size returns the stored length without a liveness check. Used when handing
// the (address, size) pair back to the process.
func (b *ReadOnlyProcessBuffer) Size() uint32 { return b.size }

// Len returns the accessible length, re-checking process liveness. A buffer
// whose process is gone reports 0 independent of the stored fields.
func (b *ReadOnlyProcessBuffer) Len() int {
	if b.size == 0 || b.owner == nil || !b.owner.BufferLive(b.ownerID) {
		return 0
	}
	return int(b.size)
}

// Enter runs f with a readable view of the buffer. It fails with
// ErrNoSuchApp if the owning process is gone; liveness is checked on every
// call, never cached.
func (b *ReadOnlyProcessBuffer) Enter(f func(ReadableProcessSlice)) error {
	if b.size == 0 {
		f(ReadableProcessSlice{})
		return nil
	}
	if b.owner == nil || !b.owner.BufferLive(b.ownerID) {
		return ErrNoSuchApp
	}
	f(ReadableProcessSlice{data: b.owner.BufferBytes(b.addr, b.size)})
	return nil
}

// Consume extracts the (address, size) pair, emptying the buffer. Called when
// the pair is handed back to the process at the end of an allow.
func (b *ReadOnlyProcessBuffer) Consume() (addr, size uint32) {
	addr, size = b.Addr(), b.size
	*b = ReadOnlyProcessBuffer{}
	return addr, size
}

// ReadWriteProcessBuffer describes process memory shared read-write into the
// kernel via a read-write allow. The zero value is a valid empty buffer.
type ReadWriteProcessBuffer struct {
	addr    uint32
	size    uint32
	owner   Owner
	ownerID uint32
}

// NewReadWrite builds a buffer descriptor from an already validated range.
func NewReadWrite(addr, size uint32, owner Owner, ownerID uint32) ReadWriteProcessBuffer {
	return ReadWriteProcessBuffer{addr: addr, size: size, owner: owner, ownerID: ownerID}
}

// Addr returns the process-space address, canonically 0 when empty.
func (b *ReadWriteProcessBuffer) Addr() uint32 {
	if b.size == 0 {
		return 0
	}
	return b.addr
}

// Size returns the stored length without a liveness check.
func (b *ReadWriteProcessBuffer) Size() uint32 { return b.size }

// Len returns the accessible length, re-checking process liveness.
func (b *ReadWriteProcessBuffer) Len() int {
	if b.size == 0 || b.owner == nil || !b.owner.BufferLive(b.ownerID) {
		return 0
	}
	return int(b.size)
}

// Enter runs f with a readable view of the buffer.
func (b *ReadWriteProcessBuffer) Enter(f func(ReadableProcessSlice)) error {
	if b.size == 0 {
		f(ReadableProcessSlice{})
		return nil
	}
	if b.owner == nil || !b.owner.BufferLive(b.ownerID) {
		return ErrNoSuchApp
	}
	f(ReadableProcessSlice{data: b.owner.BufferBytes(b.addr, b.size)})
	return nil
}

// MutEnter runs f with a writeable view of the buffer. It fails with
// ErrNoSuchApp if the owning process is gone.
func (b *ReadWriteProcessBuffer) MutEnter(f func(WriteableProcessSlice)) error {
	if b.size == 0 {
		f(WriteableProcessSlice{})
		return nil
	}
	if b.owner == nil || !b.owner.BufferLive(b.ownerID) {
		return ErrNoSuchApp
	}
	f(WriteableProcessSlice{data: b.owner.BufferBytes(b.addr, b.size)})
	return nil
}

// Consume extracts the (address, size) pair, emptying the buffer.
func (b *ReadWriteProcessBuffer) Consume() (addr, size uint32) {
	addr, size = b.Addr(), b.size
	*b = ReadWriteProcessBuffer{}
	return addr, size
}
