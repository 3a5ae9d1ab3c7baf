package platform

// SchedulerTimer enforces process timeslices. The kernel starts it with a
// budget before switching to a process and polls Remaining at preemption
// points.
//
// Remaining reports ok=false once the budget is exhausted. After that the
// timer value is meaningless and callers must not ask again until the next
// Start; the kernel charges the full budget instead.
type SchedulerTimer interface {
	// Start loads a fresh budget of virtual microseconds.
	Start(us uint32)
	// Reset stops accounting entirely, for untimed (cooperative) execution.
	Reset()
	// Arm enables expiry interrupts while the process runs.
	Arm()
	// Disarm disables expiry interrupts on return to the kernel.
	Disarm()
	// Remaining returns the unused budget. ok is false on expiry.
	Remaining() (us uint32, ok bool)
}

// VirtualSchedulerTimer measures timeslices against a VirtualClock.
type VirtualSchedulerTimer struct {
	clock    *VirtualClock
	startUS  uint64
	budgetUS uint32
	active   bool
	armed    bool
	expired  bool
}

// NewVirtualSchedulerTimer creates a stopped timer on the given clock.
func NewVirtualSchedulerTimer(clock *VirtualClock) *VirtualSchedulerTimer {
	return &VirtualSchedulerTimer{clock: clock}
}

// Start implements SchedulerTimer.
func (t *VirtualSchedulerTimer) Start(us uint32) {
	t.startUS = t.clock.NowUS()
	t.budgetUS = us
	t.active = true
	t.expired = false
}

// Reset implements SchedulerTimer.
func (t *VirtualSchedulerTimer) Reset() {
	t.active = false
	t.armed = false
	t.expired = false
}

// Arm implements SchedulerTimer.
func (t *VirtualSchedulerTimer) Arm() { t.armed = true }

// Disarm implements SchedulerTimer.
func (t *VirtualSchedulerTimer) Disarm() { t.armed = false }

// Expired reports whether the timer fired while armed, without consuming the
// reading. Used as the process interrupt check.
func (t *VirtualSchedulerTimer) Expired() bool {
	if !t.active || !t.armed {
		return false
	}
	return t.clock.NowUS()-t.startUS >= uint64(t.budgetUS)
}

// Remaining implements SchedulerTimer.
func (t *VirtualSchedulerTimer) Remaining() (uint32, bool) {
	if !t.active {
		return 0, false
	}
	if t.expired {
		panic("scheduler timer queried after expiry")
	}
	elapsed := t.clock.NowUS() - t.startUS
	if elapsed >= uint64(t.budgetUS) {
		t.expired = true
		return 0, false
	}
	return t.budgetUS - uint32(elapsed), true
}

// NullSchedulerTimer never expires. Boards without timeslicing use it; every
// process then runs until it yields.
type NullSchedulerTimer struct{}

func (NullSchedulerTimer) Start(uint32)              {}
func (NullSchedulerTimer) Reset()                    {}
func (NullSchedulerTimer) Arm()                      {}
func (NullSchedulerTimer) Disarm()                   {}
func (NullSchedulerTimer) Remaining() (uint32, bool) { return 0, false }
