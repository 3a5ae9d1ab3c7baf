package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Board is a parsed board definition: the processes to load at boot.
type Board struct {
	Name      string         `toml:"name"`
	Processes []ProcessEntry `toml:"process"`
}

// ProcessEntry describes one process image.
type ProcessEntry struct {
	Name           string `toml:"name"`
	MemSize        uint32 `toml:"mem_size"`
	FlashSize      uint32 `toml:"flash_size"`
	TaskQueueCap   int    `toml:"task_queue_cap"`
	RestartOnFault bool   `toml:"restart_on_fault"`
}

// LoadBoard parses a TOML board definition.
func LoadBoard(path string) (*Board, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read board file: %w", err)
	}
	var b Board
	if err := toml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to parse board file: %w", err)
	}
	if len(b.Processes) == 0 {
		return nil, fmt.Errorf("board %q defines no processes", b.Name)
	}
	return &b, nil
}

// DefaultBoard returns the built-in demo board: two processes exercising the
// counter and echo capsules.
func DefaultBoard() *Board {
	return &Board{
		Name: "demo",
		Processes: []ProcessEntry{
			{Name: "counter-app"},
			{Name: "echo-app"},
		},
	}
}
