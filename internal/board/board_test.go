package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-os/kestrel/internal/config"
	"github.com/kestrel-os/kestrel/internal/process"
)

func TestDemoBoardRunsToCompletion(t *testing.T) {
	b, err := New(config.Default(), config.DefaultBoard(), nil, nil)
	require.NoError(t, err)
	require.Len(t, b.Procs, 2)

	used := b.RunUntilIdle(1000)
	require.Less(t, used, 1000, "demo board failed to quiesce")

	for _, p := range b.Procs {
		assert.Equal(t, process.Terminated, p.State(), p.Name())
		assert.NotEmpty(t, p.DeliveredUpcalls(), p.Name())
	}

	// The counter app increments 1 then 2.
	counter := b.Procs[0]
	ret, ok := counter.LastSyscallReturn()
	require.True(t, ok)
	assert.Equal(t, uint32(3), ret.A0)
}

func TestCooperativePolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Policy = config.PolicyCooperative

	b, err := New(cfg, config.DefaultBoard(), nil, nil)
	require.NoError(t, err)

	used := b.RunUntilIdle(1000)
	require.Less(t, used, 1000)
	for _, p := range b.Procs {
		assert.Equal(t, process.Terminated, p.State(), p.Name())
	}
}

func TestUnknownPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Policy = "lottery"

	_, err := New(cfg, config.DefaultBoard(), nil, nil)
	assert.Error(t, err)
}

func TestBoardFilePlumbing(t *testing.T) {
	def := &config.Board{
		Name: "custom",
		Processes: []config.ProcessEntry{
			{Name: "quiet-app", MemSize: 32 * 1024, RestartOnFault: true},
		},
	}
	b, err := New(config.Default(), def, nil, nil)
	require.NoError(t, err)
	require.Len(t, b.Procs, 1)
	assert.Equal(t, "quiet-app", b.Procs[0].Name())

	// An unknown app name has an empty script and immediately yields.
	used := b.RunUntilIdle(100)
	assert.Less(t, used, 100)
	assert.Equal(t, process.Yielded, b.Procs[0].State())
}
