// Package sched defines the scheduler interface the kernel execution loop
// consults between processes, plus two policies: preemptive round robin and
// cooperative run-to-yield.
//
// Schedulers pick who runs and for how long; the kernel owns actually
// running them and reports back how each run ended.
package sched
