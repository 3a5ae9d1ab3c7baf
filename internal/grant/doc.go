// Package grant implements lazy, typed, per-driver per-process storage
// inside each process's grant region.
//
// A Grant[T] is an immutable handle declared once at boot; it owns no memory.
// The first Enter for a given process materializes a block in that process's
// grant region laid out as [upcall count word][N saved upcalls][padding][T].
// Blocks are never freed or moved for the process's lifetime. Typed access
// happens only inside an entering closure, behind a runtime single-entry
// guard: the kernel is single-threaded, so the only way to hold two mutable
// views of one block is a capsule re-entering its own grant, which is a
// programming error and fatal.
//
// Grant types must be pointer-free: blocks live in untyped process memory
// that the garbage collector does not scan.
package grant
