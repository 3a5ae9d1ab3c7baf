// Package monitoring exposes kernel activity as Prometheus metrics: syscall
// and upcall throughput, grant allocations, loop iterations, sleeps, faults,
// and virtual time charged per process.
package monitoring
