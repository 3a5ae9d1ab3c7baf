package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsPrivateRegistry(t *testing.T) {
	// Two nil-registry collectors must not collide on metric names.
	a := NewMetrics(nil)
	b := NewMetrics(nil)

	a.LoopIterations.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.LoopIterations))
	assert.Zero(t, testutil.ToFloat64(b.LoopIterations))
}

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSyscall("command")
	m.FilteredTotal.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["kestrel_syscalls_total"])
	assert.True(t, names["kestrel_syscalls_filtered_total"])
}

func TestRecordHelpers(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordSyscall("yield")
	m.RecordSyscall("yield")
	m.RecordSyscallError("subscribe", "INVAL")
	m.RecordGrantAllocation("0x0001")
	m.RecordGrantFailure("0x0001")
	m.RecordProcessTime("app", 1500)
	m.RecordFault("app")
	m.RecordRestart("app")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SyscallsTotal.WithLabelValues("yield")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SyscallErrors.WithLabelValues("subscribe", "INVAL")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GrantAllocations.WithLabelValues("0x0001")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GrantFailures.WithLabelValues("0x0001")))
	assert.Equal(t, float64(1500), testutil.ToFloat64(m.ProcessTimeUS.WithLabelValues("app")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProcessFaults.WithLabelValues("app")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProcessRestarts.WithLabelValues("app")))
}
