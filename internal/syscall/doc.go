// Package syscall defines the in-memory ABI between the kernel and isolated
// processes: syscall classes and arguments, return value encodings, and the
// userspace-visible error codes.
//
// Words are 32 bits. The emulated machine is a 32-bit address space, and every
// value that crosses the kernel/process boundary is a uint32.
package syscall
