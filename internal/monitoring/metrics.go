package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all kernel Prometheus metrics.
type Metrics struct {
	// Syscall metrics
	SyscallsTotal *prometheus.CounterVec
	SyscallErrors *prometheus.CounterVec
	FilteredTotal prometheus.Counter

	// Upcall metrics
	UpcallsDelivered prometheus.Counter
	UpcallsPurged    prometheus.Counter

	// Grant metrics
	GrantAllocations *prometheus.CounterVec
	GrantFailures    *prometheus.CounterVec

	// Loop metrics
	LoopIterations       prometheus.Counter
	Sleeps               prometheus.Counter
	TimesliceExpirations prometheus.Counter
	ProcessTimeUS        *prometheus.CounterVec

	// Process metrics
	ProcessFaults   *prometheus.CounterVec
	ProcessRestarts *prometheus.CounterVec
}

// NewMetrics creates a metrics collector registered on reg. A nil reg gets a
// private registry, which keeps independent kernels (and tests) from
// colliding on metric names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		SyscallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_syscalls_total",
				Help: "Total number of syscalls handled",
			},
			[]string{"class"},
		),
		SyscallErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_syscall_errors_total",
				Help: "Total number of syscalls answered with an error",
			},
			[]string{"class", "code"},
		),
		FilteredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_syscalls_filtered_total",
				Help: "Total number of syscalls rejected by the filter",
			},
		),
		UpcallsDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_upcalls_delivered_total",
				Help: "Total number of upcalls delivered into processes",
			},
		),
		UpcallsPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_upcalls_purged_total",
				Help: "Total number of queued upcalls dropped on resubscribe",
			},
		),
		GrantAllocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_grant_allocations_total",
				Help: "Total number of grant blocks allocated",
			},
			[]string{"driver"},
		),
		GrantFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_grant_failures_total",
				Help: "Total number of failed grant allocations",
			},
			[]string{"driver"},
		),
		LoopIterations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_loop_iterations_total",
				Help: "Total number of kernel loop iterations",
			},
		),
		Sleeps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_sleeps_total",
				Help: "Total number of times the chip entered sleep",
			},
		),
		TimesliceExpirations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_timeslice_expirations_total",
				Help: "Total number of timeslice expirations",
			},
		),
		ProcessTimeUS: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_process_time_microseconds_total",
				Help: "Virtual microseconds charged to each process",
			},
			[]string{"process"},
		),
		ProcessFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_process_faults_total",
				Help: "Total number of process faults",
			},
			[]string{"process"},
		),
		ProcessRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_process_restarts_total",
				Help: "Total number of process restarts",
			},
			[]string{"process"},
		),
	}
}

// RecordSyscall records one handled syscall.
func (m *Metrics) RecordSyscall(class string) {
	m.SyscallsTotal.WithLabelValues(class).Inc()
}

// RecordSyscallError records a syscall answered with an error code.
func (m *Metrics) RecordSyscallError(class, code string) {
	m.SyscallErrors.WithLabelValues(class, code).Inc()
}

// RecordGrantAllocation records a grant block allocation for a driver.
func (m *Metrics) RecordGrantAllocation(driver string) {
	m.GrantAllocations.WithLabelValues(driver).Inc()
}

// RecordGrantFailure records a failed grant allocation for a driver.
func (m *Metrics) RecordGrantFailure(driver string) {
	m.GrantFailures.WithLabelValues(driver).Inc()
}

// RecordProcessTime charges virtual microseconds to a process.
func (m *Metrics) RecordProcessTime(name string, us uint32) {
	m.ProcessTimeUS.WithLabelValues(name).Add(float64(us))
}

// RecordFault records a process fault.
func (m *Metrics) RecordFault(name string) {
	m.ProcessFaults.WithLabelValues(name).Inc()
}

// RecordRestart records a process restart.
func (m *Metrics) RecordRestart(name string) {
	m.ProcessRestarts.WithLabelValues(name).Inc()
}
