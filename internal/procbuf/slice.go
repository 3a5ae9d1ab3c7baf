package procbuf

import (
	"iter"

	"github.com/kestrel-os/kestrel/internal/syscall"
)

// ReadableProcessSlice is a read-only view over process-shared bytes, valid
// only for the duration of the closure it was passed to.
type ReadableProcessSlice struct {
	data []byte
}

// NewReadable wraps a kernel-owned byte range so capsule code can stay
// agnostic to whether bytes came from a process or from the kernel itself.
func NewReadable(b []byte) ReadableProcessSlice {
	return ReadableProcessSlice{data: b}
}

// Len returns the number of readable bytes.
func (s ReadableProcessSlice) Len() int { return len(s.data) }

// Get returns the byte at index i, or false if i is out of range.
func (s ReadableProcessSlice) Get(i int) (byte, bool) {
	if i < 0 || i >= len(s.data) {
		return 0, false
	}
	return s.data[i], true
}

// CopyTo copies the whole slice into dst. The lengths must match exactly;
// on mismatch nothing is copied and SIZE is returned.
func (s ReadableProcessSlice) CopyTo(dst []byte) error {
	if len(dst) != len(s.data) {
		return syscall.SIZE
	}
	copy(dst, s.data)
	return nil
}

// Slice returns the half-open sub-range [start, end). It reports false when
// the range is not within start <= end <= Len().
func (s ReadableProcessSlice) Slice(start, end int) (ReadableProcessSlice, bool) {
	if start < 0 || start > end || end > len(s.data) {
		return ReadableProcessSlice{}, false
	}
	return ReadableProcessSlice{data: s.data[start:end]}, true
}

// Chunks returns a lazy sequence of consecutive sub-slices of the given size;
// only the final chunk may be shorter. The sequence is restartable: each
// range statement walks the slice from the beginning. A non-positive size
// yields nothing.
func (s ReadableProcessSlice) Chunks(size int) iter.Seq[ReadableProcessSlice] {
	return func(yield func(ReadableProcessSlice) bool) {
		if size <= 0 {
			return
		}
		for off := 0; off < len(s.data); off += size {
			end := min(off+size, len(s.data))
			if !yield(ReadableProcessSlice{data: s.data[off:end]}) {
				return
			}
		}
	}
}

// WriteableProcessSlice is a mutable view over process-shared bytes, valid
// only for the duration of the closure it was passed to.
type WriteableProcessSlice struct {
	data []byte
}

// NewWriteable wraps a kernel-owned byte range as a writeable slice.
func NewWriteable(b []byte) WriteableProcessSlice {
	return WriteableProcessSlice{data: b}
}

// Len returns the number of accessible bytes.
func (s WriteableProcessSlice) Len() int { return len(s.data) }

// Get returns the byte at index i, or false if i is out of range.
func (s WriteableProcessSlice) Get(i int) (byte, bool) {
	if i < 0 || i >= len(s.data) {
		return 0, false
	}
	return s.data[i], true
}

// Set stores b at index i, reporting false if i is out of range.
func (s WriteableProcessSlice) Set(i int, b byte) bool {
	if i < 0 || i >= len(s.data) {
		return false
	}
	s.data[i] = b
	return true
}

// CopyTo copies the whole slice into dst. The lengths must match exactly;
// on mismatch nothing is copied and SIZE is returned.
func (s WriteableProcessSlice) CopyTo(dst []byte) error {
	if len(dst) != len(s.data) {
		return syscall.SIZE
	}
	copy(dst, s.data)
	return nil
}

// CopyFrom copies src over the whole slice. The lengths must match exactly;
// on mismatch nothing is written and SIZE is returned.
func (s WriteableProcessSlice) CopyFrom(src []byte) error {
	if len(src) != len(s.data) {
		return syscall.SIZE
	}
	copy(s.data, src)
	return nil
}

// Readable narrows the view to read-only.
func (s WriteableProcessSlice) Readable() ReadableProcessSlice {
	return ReadableProcessSlice{data: s.data}
}

// Slice returns the half-open sub-range [start, end). It reports false when
// the range is not within start <= end <= Len().
func (s WriteableProcessSlice) Slice(start, end int) (WriteableProcessSlice, bool) {
	if start < 0 || start > end || end > len(s.data) {
		return WriteableProcessSlice{}, false
	}
	return WriteableProcessSlice{data: s.data[start:end]}, true
}

// Chunks returns a lazy, restartable sequence of consecutive mutable
// sub-slices of the given size; only the final chunk may be shorter.
func (s WriteableProcessSlice) Chunks(size int) iter.Seq[WriteableProcessSlice] {
	return func(yield func(WriteableProcessSlice) bool) {
		if size <= 0 {
			return
		}
		for off := 0; off < len(s.data); off += size {
			end := min(off+size, len(s.data))
			if !yield(WriteableProcessSlice{data: s.data[off:end]}) {
				return
			}
		}
	}
}
