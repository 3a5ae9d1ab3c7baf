package kernel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kestrel-os/kestrel/internal/logging"
	"github.com/kestrel-os/kestrel/internal/monitoring"
	"github.com/kestrel-os/kestrel/internal/process"
)

// grantEntry records one declared grant: the driver that owns it and how
// many upcall slots its blocks carry.
type grantEntry struct {
	driverNum   uint32
	upcallCount int
}

// Kernel is the core of the system: the process table, the kernel-wide work
// counter, and the grant registry. It is single-threaded; everything except
// interrupt raising happens on the loop goroutine.
type Kernel struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics
	bootID  uuid.UUID

	procs []process.Process
	work  int

	grants          []grantEntry
	grantsFinalized bool

	nextIdentifier uint32

	// faultLog keeps a crash-looping process from flooding the log.
	faultLog *rate.Limiter
}

// New creates a kernel. A nil logger discards output; nil metrics get a
// private registry.
func New(logger *logging.Logger, metrics *monitoring.Metrics) *Kernel {
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics(nil)
	}
	k := &Kernel{
		logger:   logger,
		metrics:  metrics,
		bootID:   uuid.New(),
		faultLog: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	k.logger.Info("kernel created", zap.String("boot_id", k.bootID.String()))
	return k
}

// BootID returns the identifier minted for this kernel instance.
func (k *Kernel) BootID() uuid.UUID { return k.bootID }

// Logger returns the kernel logger, for board wiring.
func (k *Kernel) Logger() *logging.Logger { return k.logger }

// Metrics returns the kernel metrics, for board wiring.
func (k *Kernel) Metrics() *monitoring.Metrics { return k.metrics }

// NextSlot returns the process table index the next AddProcess will use.
func (k *Kernel) NextSlot() int { return len(k.procs) }

// AddProcess appends a loaded process to the table. The process must have
// been constructed with index NextSlot().
func (k *Kernel) AddProcess(p process.Process) {
	k.procs = append(k.procs, p)
	k.logger.Info("process loaded",
		zap.String("name", p.Name()),
		zap.Stringer("id", p.ProcessID()),
	)
}

// Lookup resolves a process identity. Both the slot and the identifier must
// match, so identities from before a restart stop resolving.
func (k *Kernel) Lookup(id process.ID) (process.Process, bool) {
	if id.Index < 0 || id.Index >= len(k.procs) {
		return nil, false
	}
	p := k.procs[id.Index]
	if p == nil || p.ProcessID() != id {
		return nil, false
	}
	return p, true
}

// LookupSlot returns the current occupant of a process table slot. A slot
// survives restarts, unlike an ID.
func (k *Kernel) LookupSlot(slot int) (process.Process, bool) {
	if slot < 0 || slot >= len(k.procs) || k.procs[slot] == nil {
		return nil, false
	}
	return k.procs[slot], true
}

// EachProcess runs f over every resident process.
func (k *Kernel) EachProcess(f func(process.Process)) {
	for _, p := range k.procs {
		if p != nil {
			f(p)
		}
	}
}

// ProcessIDs returns the current identity of every resident process, in
// table order. Board setup feeds these to the scheduler.
func (k *Kernel) ProcessIDs() []process.ID {
	ids := make([]process.ID, 0, len(k.procs))
	for _, p := range k.procs {
		if p != nil {
			ids = append(ids, p.ProcessID())
		}
	}
	return ids
}

// ClaimGrant implements grant.Core. Grants are declared only during board
// initialization; claiming one after the first process exists is a board
// bug.
func (k *Kernel) ClaimGrant(driverNum uint32, upcallCount int) int {
	if k.grantsFinalized {
		panic("grant created after grants were finalized")
	}
	if upcallCount < 0 {
		panic("negative upcall count")
	}
	num := len(k.grants)
	k.grants = append(k.grants, grantEntry{driverNum: driverNum, upcallCount: upcallCount})
	return num
}

// GrantCountAndFinalize implements process.Kernel. The first process
// construction calls this; grant creation is closed from then on.
func (k *Kernel) GrantCountAndFinalize() int {
	k.grantsFinalized = true
	return len(k.grants)
}

// GrantsFinalized reports whether grant creation has closed.
func (k *Kernel) GrantsFinalized() bool { return k.grantsFinalized }

// grantNumForDriver finds the grant a driver claimed, or -1.
func (k *Kernel) grantNumForDriver(driverNum uint32) int {
	for i, e := range k.grants {
		if e.driverNum == driverNum {
			return i
		}
	}
	return -1
}

// NextProcessIdentifier implements process.Kernel. Identifiers start at 1 so
// the zero value never names a live process.
func (k *Kernel) NextProcessIdentifier() uint32 {
	k.nextIdentifier++
	return k.nextIdentifier
}

// IncrementWork implements process.WorkTracker.
func (k *Kernel) IncrementWork() { k.work++ }

// DecrementWork implements process.WorkTracker.
func (k *Kernel) DecrementWork() {
	if k.work == 0 {
		panic("work counter underflow")
	}
	k.work--
}

// HasWork reports whether any process has queued tasks.
func (k *Kernel) HasWork() bool { return k.work > 0 }

// driverLabel formats a driver number as a metrics label.
func driverLabel(driverNum uint32) string {
	return fmt.Sprintf("0x%04x", driverNum)
}
