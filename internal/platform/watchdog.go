package platform

// Watchdog is tickled by the kernel loop on every iteration and suspended
// across sleeps.
type Watchdog interface {
	Setup()
	Tickle()
	Suspend()
	Resume()
}

// NullWatchdog is the default: no watchdog hardware.
type NullWatchdog struct{}

func (NullWatchdog) Setup()   {}
func (NullWatchdog) Tickle()  {}
func (NullWatchdog) Suspend() {}
func (NullWatchdog) Resume()  {}

// CountingWatchdog records kernel loop liveness, for tests and the demo
// board.
type CountingWatchdog struct {
	Tickles   int
	Suspends  int
	Resumes   int
	suspended bool
}

func (w *CountingWatchdog) Setup() {}

func (w *CountingWatchdog) Tickle() { w.Tickles++ }

func (w *CountingWatchdog) Suspend() {
	w.Suspends++
	w.suspended = true
}

func (w *CountingWatchdog) Resume() {
	w.Resumes++
	w.suspended = false
}

// Suspended reports whether the watchdog is currently suspended.
func (w *CountingWatchdog) Suspended() bool { return w.suspended }
