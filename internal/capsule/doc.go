// Package capsule defines the driver interface the syscall dispatcher calls
// into, a registry mapping driver numbers to drivers, and the built-in
// capsules the demo board ships.
//
// Capsules are untrusted-by-convention kernel extensions: they never touch
// process memory directly, only through grants and process buffers.
package capsule
