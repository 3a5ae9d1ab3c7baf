package platform

import "sync/atomic"

// VirtualClock is the microsecond time source process execution is charged
// to. Time only moves when something advances it, which keeps timeslice
// accounting exact.
type VirtualClock struct {
	nowUS atomic.Uint64
}

// NewVirtualClock starts a clock at zero.
func NewVirtualClock() *VirtualClock { return &VirtualClock{} }

// Advance moves the clock forward.
func (c *VirtualClock) Advance(us uint32) { c.nowUS.Add(uint64(us)) }

// NowUS returns the current virtual time in microseconds.
func (c *VirtualClock) NowUS() uint64 { return c.nowUS.Load() }
