package process

import (
	"unsafe"

	"github.com/kestrel-os/kestrel/internal/procbuf"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// Default memory geometry of the emulated machine.
const (
	DefaultMemBase   uint32 = 0x2000_0000
	DefaultFlashBase uint32 = 0x0004_0000
	DefaultMemSize   uint32 = 64 * 1024
	DefaultFlashSize uint32 = 64 * 1024

	defaultTaskQueueCap = 10
	defaultSyscallCost  = 10
	defaultUpcallCost   = 10
)

// ActionKind discriminates scripted process actions.
type ActionKind uint8

const (
	// ActionSyscall issues a syscall after burning CostUS.
	ActionSyscall ActionKind = iota
	// ActionCompute burns CostUS and keeps running.
	ActionCompute
	// ActionFault violates the isolation boundary after burning CostUS.
	ActionFault
)

// Action is one step of a process's scripted instruction stream.
type Action struct {
	Kind    ActionKind
	Syscall syscall.Syscall
	CostUS  uint32
}

// SyscallAction scripts a syscall costing the given virtual microseconds.
func SyscallAction(sc syscall.Syscall, costUS uint32) Action {
	return Action{Kind: ActionSyscall, Syscall: sc, CostUS: costUS}
}

// ComputeAction scripts plain execution for the given virtual microseconds.
func ComputeAction(costUS uint32) Action {
	return Action{Kind: ActionCompute, CostUS: costUS}
}

// FaultAction scripts an isolation violation.
func FaultAction(costUS uint32) Action {
	return Action{Kind: ActionFault, CostUS: costUS}
}

// DeliveredUpcall records one upcall the machine actually executed, for
// inspection by tests and the demo board.
type DeliveredUpcall struct {
	Source syscall.UpcallID
	PC     uint32
	Arg0   uint32
	Arg1   uint32
	Arg2   uint32
	Arg3   uint32
}

// Config shapes a Standard process.
type Config struct {
	Name string
	// MemSize is the RAM image size in bytes; the grant region grows down
	// from the top.
	MemSize uint32
	// AppBreak is the initial app break offset; app-owned memory is
	// [MemBase, MemBase+AppBreak).
	AppBreak uint32
	// FlashSize is the executable image size in bytes.
	FlashSize uint32
	// TaskQueueCap bounds the deferred-task FIFO.
	TaskQueueCap int
	// SyscallCostUS is charged for the implicit yield issued when the
	// script runs out.
	SyscallCostUS uint32
	// UpcallCostUS is charged for executing one delivered upcall.
	UpcallCostUS uint32
	// RestartOnFault restarts the process instead of leaving it Faulted.
	RestartOnFault bool
	// Script is the initial instruction stream; restart replays it.
	Script []Action
}

func (c *Config) fill() {
	if c.MemSize == 0 {
		c.MemSize = DefaultMemSize
	}
	if c.AppBreak == 0 {
		c.AppBreak = c.MemSize / 2
	}
	if c.FlashSize == 0 {
		c.FlashSize = DefaultFlashSize
	}
	if c.TaskQueueCap == 0 {
		c.TaskQueueCap = defaultTaskQueueCap
	}
	if c.SyscallCostUS == 0 {
		c.SyscallCostUS = defaultSyscallCost
	}
	if c.UpcallCostUS == 0 {
		c.UpcallCostUS = defaultUpcallCost
	}
}

const grantUnallocated = int32(-1)

// Standard is the emulated process machine.
type Standard struct {
	kernel Kernel
	clock  Clock
	cfg    Config

	id    ID
	state State

	// RAM image. backing keeps the 8-byte-aligned allocation alive; memory
	// aliases it so grant blocks get deterministic alignment.
	backing []uint64
	memory  []byte
	flash   []byte

	memBase   uint32
	flashBase uint32
	appBrk    uint32 // offset of the app break
	kernelBrk uint32 // offset of the grant-region bump pointer, grows down

	grantOffsets []int32
	grantEntered []bool

	tasks     []Task
	pendingFn *FunctionCall

	script    []Action
	delivered []DeliveredUpcall

	lastReturn syscall.Return
	haveReturn bool

	completionCode uint32
	restarts       int

	interrupted func() bool
	mpuLoads    int
}

// NewStandard creates an emulated process in the Running state, as if a
// loader had just started it. Creating the first process finalizes grant
// creation on the kernel.
func NewStandard(k Kernel, clock Clock, index int, cfg Config) *Standard {
	cfg.fill()
	grantCount := k.GrantCountAndFinalize()

	p := &Standard{
		kernel:       k,
		clock:        clock,
		cfg:          cfg,
		id:           ID{Index: index, Identifier: k.NextProcessIdentifier()},
		state:        Running,
		backing:      make([]uint64, (cfg.MemSize+7)/8),
		flash:        make([]byte, cfg.FlashSize),
		memBase:      DefaultMemBase,
		flashBase:    DefaultFlashBase,
		appBrk:       cfg.AppBreak,
		kernelBrk:    cfg.MemSize,
		grantOffsets: make([]int32, grantCount),
		grantEntered: make([]bool, grantCount),
		tasks:        make([]Task, 0, cfg.TaskQueueCap),
		script:       append([]Action(nil), cfg.Script...),
	}
	p.memory = unsafe.Slice((*byte)(unsafe.Pointer(&p.backing[0])), cfg.MemSize)
	for i := range p.grantOffsets {
		p.grantOffsets[i] = grantUnallocated
	}
	return p
}

// Name returns the configured process name.
func (p *Standard) Name() string { return p.cfg.Name }

// ProcessID implements Process.
func (p *Standard) ProcessID() ID { return p.id }

// State implements Process.
func (p *Standard) State() State { return p.state }

func (p *Standard) active() bool {
	return p.state != Terminated && p.state != Faulted
}

// Ready implements Process.
func (p *Standard) Ready() bool {
	return len(p.tasks) > 0 || p.state == Running || p.state == Unstarted
}

// SetYieldedState implements Process.
func (p *Standard) SetYieldedState() {
	if p.state == Running {
		p.state = Yielded
	}
}

// SetFaultState implements Process. With RestartOnFault set the process is
// restarted in place; otherwise it stays Faulted and its tasks are dropped.
func (p *Standard) SetFaultState() {
	if p.cfg.RestartOnFault {
		p.TryRestart(0)
		return
	}
	p.dropTasks()
	p.state = Faulted
}

// Stop implements Process.
func (p *Standard) Stop() {
	switch p.state {
	case Running:
		p.state = StoppedRunning
	case Yielded:
		p.state = StoppedYielded
	}
}

// Resume implements Process.
func (p *Standard) Resume() {
	switch p.state {
	case StoppedRunning:
		p.state = Running
	case StoppedYielded:
		p.state = Yielded
	}
}

// Terminate implements Process.
func (p *Standard) Terminate(completionCode uint32) {
	p.completionCode = completionCode
	p.dropTasks()
	p.pendingFn = nil
	p.state = Terminated
}

// TryRestart implements Process. The RAM image is wiped, grant storage is
// forgotten, the script is replayed from the beginning, and a fresh
// identifier retires every stale reference to the old instance. The restarted
// process waits Unstarted for its queued entry-point call.
func (p *Standard) TryRestart(completionCode uint32) {
	p.completionCode = completionCode
	p.dropTasks()
	p.pendingFn = nil
	clear(p.memory)
	p.appBrk = p.cfg.AppBreak
	p.kernelBrk = p.cfg.MemSize
	for i := range p.grantOffsets {
		p.grantOffsets[i] = grantUnallocated
		p.grantEntered[i] = false
	}
	p.script = append(p.script[:0], p.cfg.Script...)
	p.delivered = p.delivered[:0]
	p.id = ID{Index: p.id.Index, Identifier: p.kernel.NextProcessIdentifier()}
	p.restarts++
	p.state = Unstarted

	// Queue the entry-point call so the loop starts the process the same
	// way it delivers any other task.
	_ = p.EnqueueTask(Task{Kind: TaskFunctionCall, FunctionCall: FunctionCall{PC: p.flashBase}})
}

// Restarts returns how many times the process has restarted.
func (p *Standard) Restarts() int { return p.restarts }

// CompletionCode returns the code from the most recent terminate/restart.
func (p *Standard) CompletionCode() uint32 { return p.completionCode }

// HasTasks implements Process.
func (p *Standard) HasTasks() bool { return len(p.tasks) > 0 }

// EnqueueTask implements Process.
func (p *Standard) EnqueueTask(t Task) error {
	if !p.active() {
		return ErrInactiveApp
	}
	if len(p.tasks) >= p.cfg.TaskQueueCap {
		return ErrTooManyTasks
	}
	p.tasks = append(p.tasks, t)
	p.kernel.IncrementWork()
	return nil
}

// DequeueTask implements Process.
func (p *Standard) DequeueTask() (Task, bool) {
	if len(p.tasks) == 0 {
		return Task{}, false
	}
	t := p.tasks[0]
	p.tasks = p.tasks[1:]
	p.kernel.DecrementWork()
	return t, true
}

// RemovePendingUpcalls implements Process.
func (p *Standard) RemovePendingUpcalls(id syscall.UpcallID) int {
	kept := p.tasks[:0]
	removed := 0
	for _, t := range p.tasks {
		if t.Kind == TaskFunctionCall && t.FunctionCall.Source == id {
			removed++
			p.kernel.DecrementWork()
			continue
		}
		kept = append(kept, t)
	}
	p.tasks = kept
	return removed
}

func (p *Standard) dropTasks() {
	for range p.tasks {
		p.kernel.DecrementWork()
	}
	p.tasks = p.tasks[:0]
}

// SetInterruptCheck installs the hook the machine polls before executing, so
// the platform can interrupt a switched-in process.
func (p *Standard) SetInterruptCheck(f func() bool) { p.interrupted = f }

// AppendScript extends the instruction stream.
func (p *Standard) AppendScript(actions ...Action) {
	p.script = append(p.script, actions...)
}

// DeliveredUpcalls returns the upcalls the machine has executed.
func (p *Standard) DeliveredUpcalls() []DeliveredUpcall { return p.delivered }

// SwitchTo implements Process. The machine first runs any upcall the kernel
// set up, then consumes scripted actions until one returns control. A process
// whose script has run out issues a blocking yield.
func (p *Standard) SwitchTo() (ContextSwitchReason, syscall.Syscall, bool) {
	if p.state != Running {
		return 0, syscall.Syscall{}, false
	}
	if p.interrupted != nil && p.interrupted() {
		return ContextSwitchInterrupted, syscall.Syscall{}, true
	}
	if fc := p.pendingFn; fc != nil {
		p.pendingFn = nil
		p.delivered = append(p.delivered, DeliveredUpcall{
			Source: fc.Source,
			PC:     fc.PC,
			Arg0:   fc.Arg0,
			Arg1:   fc.Arg1,
			Arg2:   fc.Arg2,
			Arg3:   fc.Arg3,
		})
		p.clock.Advance(p.cfg.UpcallCostUS)
	}
	for {
		// Interrupts, including timeslice expiry, preempt between actions.
		if p.interrupted != nil && p.interrupted() {
			return ContextSwitchInterrupted, syscall.Syscall{}, true
		}
		if len(p.script) == 0 {
			p.clock.Advance(p.cfg.SyscallCostUS)
			return ContextSwitchSyscallFired, syscall.NewYield(syscall.YieldWait, 0), true
		}
		a := p.script[0]
		p.script = p.script[1:]
		p.clock.Advance(a.CostUS)
		switch a.Kind {
		case ActionCompute:
			continue
		case ActionFault:
			return ContextSwitchFault, syscall.Syscall{}, true
		default:
			return ContextSwitchSyscallFired, a.Syscall, true
		}
	}
}

// SetupMPU implements Process.
func (p *Standard) SetupMPU() { p.mpuLoads++ }

// SetProcessFunction implements Process.
func (p *Standard) SetProcessFunction(fc FunctionCall) error {
	if !p.active() {
		return ErrInactiveApp
	}
	p.pendingFn = &fc
	p.state = Running
	return nil
}

// SetSyscallReturn implements Process.
func (p *Standard) SetSyscallReturn(r syscall.Return) {
	p.lastReturn = r
	p.haveReturn = true
}

// LastSyscallReturn returns the most recent syscall return value set for the
// process.
func (p *Standard) LastSyscallReturn() (syscall.Return, bool) {
	return p.lastReturn, p.haveReturn
}

// SetByte implements Process. Only app-owned writable memory is touched;
// anything else is silently ignored.
func (p *Standard) SetByte(addr uint32, v byte) bool {
	if !p.inAppOwnedMemory(addr, 1) {
		return false
	}
	p.memory[addr-p.memBase] = v
	return true
}

// ReadByte reads one byte of app-owned memory, for tests and capsule
// diagnostics.
func (p *Standard) ReadByte(addr uint32) (byte, bool) {
	if !p.inAppOwnedMemory(addr, 1) {
		return 0, false
	}
	return p.memory[addr-p.memBase], true
}

// WriteBytes copies data into app-owned memory, for board/test setup.
func (p *Standard) WriteBytes(addr uint32, data []byte) bool {
	if !p.inAppOwnedMemory(addr, uint32(len(data))) {
		return false
	}
	copy(p.memory[addr-p.memBase:], data)
	return true
}

// IsValidUpcallFunctionPointer implements Process.
func (p *Standard) IsValidUpcallFunctionPointer(addr uint32) bool {
	return addr >= p.flashBase && addr < p.flashBase+p.cfg.FlashSize
}

func (p *Standard) inAppOwnedMemory(addr, size uint32) bool {
	end := addr + size
	return end >= addr && addr >= p.memBase && end <= p.memBase+p.appBrk
}

func (p *Standard) inFlash(addr, size uint32) bool {
	end := addr + size
	return end >= addr && addr >= p.flashBase && end <= p.flashBase+p.cfg.FlashSize
}

// BufferLive implements procbuf.Owner.
func (p *Standard) BufferLive(identifier uint32) bool {
	return p.id.Identifier == identifier && p.active()
}

// BufferBytes implements procbuf.Owner. Ranges were validated when the
// buffer was built and stay backed for the process's lifetime.
func (p *Standard) BufferBytes(addr, size uint32) []byte {
	if p.inFlash(addr, size) {
		off := addr - p.flashBase
		return p.flash[off : off+size]
	}
	off := addr - p.memBase
	return p.memory[off : off+size]
}

// BuildReadOnlyProcessBuffer implements Process. Read-only shares may come
// from app-owned RAM or from flash.
func (p *Standard) BuildReadOnlyProcessBuffer(addr, size uint32) (procbuf.ReadOnlyProcessBuffer, error) {
	if size > 0 && !p.inAppOwnedMemory(addr, size) && !p.inFlash(addr, size) {
		return procbuf.ReadOnlyProcessBuffer{}, ErrAddressOutOfBounds
	}
	return procbuf.NewReadOnly(addr, size, p, p.id.Identifier), nil
}

// BuildReadWriteProcessBuffer implements Process. Writable shares must be
// app-owned RAM.
func (p *Standard) BuildReadWriteProcessBuffer(addr, size uint32) (procbuf.ReadWriteProcessBuffer, error) {
	if size > 0 && !p.inAppOwnedMemory(addr, size) {
		return procbuf.ReadWriteProcessBuffer{}, ErrAddressOutOfBounds
	}
	return procbuf.NewReadWrite(addr, size, p, p.id.Identifier), nil
}

// GrantIsAllocated implements Process.
func (p *Standard) GrantIsAllocated(grantNum int) (bool, error) {
	if !p.active() {
		return false, ErrInactiveApp
	}
	if grantNum < 0 || grantNum >= len(p.grantOffsets) {
		return false, ErrAddressOutOfBounds
	}
	return p.grantOffsets[grantNum] != grantUnallocated, nil
}

// AllocateGrant implements Process. Allocating an already allocated grant is
// a no-op; storage is never freed or moved.
func (p *Standard) AllocateGrant(grantNum int, size, align uintptr) error {
	if !p.active() {
		return ErrInactiveApp
	}
	if grantNum < 0 || grantNum >= len(p.grantOffsets) {
		return ErrAddressOutOfBounds
	}
	if p.grantOffsets[grantNum] != grantUnallocated {
		return nil
	}
	off, err := p.allocInGrantRegion(size, align)
	if err != nil {
		return err
	}
	p.grantOffsets[grantNum] = int32(off)
	return nil
}

// GrantAllocatedCount implements Process.
func (p *Standard) GrantAllocatedCount() (int, error) {
	if !p.active() {
		return 0, ErrInactiveApp
	}
	n := 0
	for _, off := range p.grantOffsets {
		if off != grantUnallocated {
			n++
		}
	}
	return n, nil
}

// EnterGrant implements Process.
func (p *Standard) EnterGrant(grantNum int) (unsafe.Pointer, error) {
	if !p.active() {
		return nil, ErrInactiveApp
	}
	if grantNum < 0 || grantNum >= len(p.grantOffsets) {
		return nil, ErrAddressOutOfBounds
	}
	off := p.grantOffsets[grantNum]
	if off == grantUnallocated {
		return nil, ErrNotAllocated
	}
	if p.grantEntered[grantNum] {
		return nil, ErrAlreadyEntered
	}
	p.grantEntered[grantNum] = true
	return unsafe.Pointer(&p.memory[off]), nil
}

// LeaveGrant implements Process.
func (p *Standard) LeaveGrant(grantNum int) {
	if grantNum >= 0 && grantNum < len(p.grantEntered) {
		p.grantEntered[grantNum] = false
	}
}

// AllocateCustomGrant implements Process.
func (p *Standard) AllocateCustomGrant(size, align uintptr) (CustomGrantID, unsafe.Pointer, error) {
	if !p.active() {
		return CustomGrantID{}, nil, ErrInactiveApp
	}
	off, err := p.allocInGrantRegion(size, align)
	if err != nil {
		return CustomGrantID{}, nil, err
	}
	return CustomGrantID{offset: off}, unsafe.Pointer(&p.memory[off]), nil
}

// EnterCustomGrant implements Process.
func (p *Standard) EnterCustomGrant(id CustomGrantID) (unsafe.Pointer, error) {
	if !p.active() {
		return nil, ErrInactiveApp
	}
	if id.offset < p.kernelBrk || id.offset >= p.cfg.MemSize {
		return nil, ErrAddressOutOfBounds
	}
	return unsafe.Pointer(&p.memory[id.offset]), nil
}

// allocInGrantRegion bump-allocates downward from the kernel break.
// Alignment is applied to the host address of the block so typed views are
// correctly aligned. Blocks are never individually freed.
func (p *Standard) allocInGrantRegion(size, align uintptr) (uint32, error) {
	if align == 0 {
		align = 1
	}
	base := uintptr(unsafe.Pointer(&p.memory[0]))
	cur := base + uintptr(p.kernelBrk)
	if size > uintptr(p.kernelBrk) {
		return 0, ErrOutOfMemory
	}
	newAbs := (cur - size) &^ (align - 1)
	if newAbs < base {
		return 0, ErrOutOfMemory
	}
	newOff := uint32(newAbs - base)
	if newOff < p.appBrk {
		return 0, ErrOutOfMemory
	}
	p.kernelBrk = newOff
	return newOff, nil
}

// Brk implements Process.
func (p *Standard) Brk(addr uint32) (uint32, error) {
	if addr < p.memBase || addr > p.memBase+p.kernelBrk {
		return 0, ErrAddressOutOfBounds
	}
	p.appBrk = addr - p.memBase
	return addr, nil
}

// SBrk implements Process.
func (p *Standard) SBrk(delta int32) (uint32, error) {
	old := p.memBase + p.appBrk
	target := int64(old) + int64(delta)
	if target < int64(p.memBase) || target > int64(p.memBase+p.kernelBrk) {
		return 0, ErrAddressOutOfBounds
	}
	p.appBrk = uint32(target) - p.memBase
	return old, nil
}

// MemStart implements Process.
func (p *Standard) MemStart() uint32 { return p.memBase }

// MemEnd implements Process.
func (p *Standard) MemEnd() uint32 { return p.memBase + p.cfg.MemSize }

// FlashStart implements Process.
func (p *Standard) FlashStart() uint32 { return p.flashBase }

// FlashEnd implements Process.
func (p *Standard) FlashEnd() uint32 { return p.flashBase + p.cfg.FlashSize }

// GrantRegionBegin implements Process.
func (p *Standard) GrantRegionBegin() uint32 { return p.memBase + p.kernelBrk }
