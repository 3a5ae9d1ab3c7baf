// Package kernel owns the process table, grant bookkeeping, and the
// execution loop that multiplexes processes under a scheduling policy.
//
// The loop services chip interrupts and deferred calls, asks the scheduler
// for a decision, and either runs one process inside its timeslice or lets
// the chip sleep. Control returns from a process on every syscall, fault,
// and interrupt; the syscall dispatcher routes driver-bound calls through
// the capsule registry and answers the rest itself.
package kernel
