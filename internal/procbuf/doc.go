// Package procbuf provides aliasing-safe views over memory a process has
// shared with the kernel through allow syscalls.
//
// A ProcessBuffer is a plain descriptor (address, length, owning process
// identity) that may outlive the closure it was created in. It re-checks
// process liveness on every access and never exposes raw memory directly.
// A ProcessSlice is the transient view handed to a closure for the duration
// of one Enter call; it is never stored.
//
// Process-shared memory is treated as potentially aliased: the process may
// have handed overlapping ranges to several drivers, and the process itself
// keeps access to the bytes. Slices therefore only expose byte-at-a-time
// accessors and whole-range copies, never a native Go slice of the backing
// memory.
package procbuf
