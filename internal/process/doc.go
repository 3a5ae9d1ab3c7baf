// Package process defines the kernel's view of an isolated process: its
// identity, lifecycle state machine, task queue, grant region, and shared
// buffer construction.
//
// The Process interface is what the kernel, grant layer, and capsules consume.
// Standard is the emulated implementation: a 32-bit address-space machine
// backed by a host byte array, driven by a scripted instruction stream that
// issues syscalls and burns virtual microseconds. Real register-level context
// switching and MPU programming are external collaborators and out of scope.
package process
