// Package platform provides the machine-facing pieces the kernel execution
// loop runs against: the chip (interrupt servicing, atomic sections, sleep),
// the virtual microsecond clock, scheduler timers for timeslice enforcement,
// watchdogs, and the deferred call queue for bottom-half capsule work.
//
// The emulated chip models a single-core 32-bit machine. Interrupts may be
// raised from other goroutines; everything else happens on the kernel
// goroutine.
package platform
