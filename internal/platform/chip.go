package platform

import (
	"sync"
	"sync/atomic"
)

// Chip abstracts the hardware the kernel loop drives: interrupt servicing,
// atomic sections, and the low-power wait the loop drops into when no work
// is pending.
type Chip interface {
	// ServicePendingInterrupts runs queued top-half handlers until none
	// remain.
	ServicePendingInterrupts()
	// HasPendingInterrupts reports whether any interrupt is queued. Safe to
	// call inside Atomic.
	HasPendingInterrupts() bool
	// Sleep waits for the next interrupt. Called only inside Atomic, after
	// the pending check, so a wake raised in between is not lost.
	Sleep()
	// Atomic runs f with interrupt delivery held off.
	Atomic(f func())
	// SchedulerTimer returns the chip's timeslice timer.
	SchedulerTimer() SchedulerTimer
	// Watchdog returns the chip's watchdog.
	Watchdog() Watchdog
}

// EmulatedChip is a single-core chip model. Interrupts are handler closures
// queued by device emulations, possibly from other goroutines; the kernel
// goroutine drains them.
type EmulatedChip struct {
	mu      sync.Mutex
	wake    *sync.Cond
	pending []func()
	// count mirrors len(pending) so the pending check works inside Atomic,
	// which already holds mu.
	count    atomic.Int32
	sleeps   atomic.Int64
	timer    SchedulerTimer
	watchdog Watchdog
}

// NewEmulatedChip creates a chip with the given scheduler timer. A nil timer
// gets NullSchedulerTimer; the watchdog defaults to NullWatchdog.
func NewEmulatedChip(timer SchedulerTimer) *EmulatedChip {
	if timer == nil {
		timer = NullSchedulerTimer{}
	}
	c := &EmulatedChip{timer: timer, watchdog: NullWatchdog{}}
	c.wake = sync.NewCond(&c.mu)
	return c
}

// SetWatchdog replaces the chip watchdog. Board setup only.
func (c *EmulatedChip) SetWatchdog(w Watchdog) { c.watchdog = w }

// RaiseInterrupt queues a top-half handler and wakes the chip if sleeping.
// Safe to call from any goroutine.
func (c *EmulatedChip) RaiseInterrupt(handler func()) {
	c.mu.Lock()
	c.pending = append(c.pending, handler)
	c.count.Store(int32(len(c.pending)))
	c.mu.Unlock()
	c.wake.Signal()
}

// ServicePendingInterrupts implements Chip. Handlers run outside the chip
// lock so they may raise further interrupts.
func (c *EmulatedChip) ServicePendingInterrupts() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		h := c.pending[0]
		c.pending = c.pending[1:]
		c.count.Store(int32(len(c.pending)))
		c.mu.Unlock()
		if h != nil {
			h()
		}
	}
}

// HasPendingInterrupts implements Chip.
func (c *EmulatedChip) HasPendingInterrupts() bool {
	return c.count.Load() > 0
}

// Sleep implements Chip. The caller holds the atomic section, which on this
// chip is the same lock interrupt delivery takes, so the pending re-check
// and the wait are one critical section.
func (c *EmulatedChip) Sleep() {
	c.sleeps.Add(1)
	for len(c.pending) == 0 {
		c.wake.Wait()
	}
}

// Atomic implements Chip.
func (c *EmulatedChip) Atomic(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f()
}

// Sleeps returns how many times the chip entered its low-power wait.
func (c *EmulatedChip) Sleeps() int { return int(c.sleeps.Load()) }

// SchedulerTimer implements Chip.
func (c *EmulatedChip) SchedulerTimer() SchedulerTimer { return c.timer }

// Watchdog implements Chip.
func (c *EmulatedChip) Watchdog() Watchdog { return c.watchdog }
