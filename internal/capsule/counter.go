package capsule

import (
	"errors"

	"github.com/kestrel-os/kestrel/internal/grant"
	"github.com/kestrel-os/kestrel/internal/procbuf"
	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// CounterDriverNum is the counter capsule's driver number.
const CounterDriverNum uint32 = 0x0001

// Counter capsule commands.
const (
	CounterCmdExists    = 0
	CounterCmdIncrement = 1
	CounterCmdRead      = 2
	CounterCmdReset     = 3
)

// counterUpcallDone fires after each increment with the new value.
const counterUpcallDone = 0

// counterState is the per-process grant storage of the counter capsule.
type counterState struct {
	Count uint32
}

// Counter is a per-process counter capsule. Each process gets its own count
// in grant storage, allocated the first time the process calls in.
type Counter struct {
	grant *grant.Grant[counterState]
}

// NewCounter declares the counter's grant and returns the capsule.
func NewCounter(core grant.Core) *Counter {
	return &Counter{grant: grant.Create[counterState](core, CounterDriverNum, 1)}
}

// Command implements Driver.
func (c *Counter) Command(commandNum, arg2, arg3 uint32, pid process.ID) syscall.CommandReturn {
	switch commandNum {
	case CounterCmdExists:
		return syscall.CommandSuccess()

	case CounterCmdIncrement:
		amount := arg2
		if amount == 0 {
			amount = 1
		}
		var value uint32
		err := c.grant.Enter(pid, func(st *counterState, upcalls *grant.UpcallTable) {
			st.Count += amount
			value = st.Count
			// Delivery failure means the process queue is full or the
			// process died; the increment stands either way.
			_ = upcalls.ScheduleUpcall(counterUpcallDone, value, 0, 0)
		})
		if err != nil {
			return syscall.CommandFailure(grantErrorCode(err))
		}
		return syscall.CommandSuccessU32(value)

	case CounterCmdRead:
		var value uint32
		err := c.grant.Enter(pid, func(st *counterState, _ *grant.UpcallTable) {
			value = st.Count
		})
		if err != nil {
			return syscall.CommandFailure(grantErrorCode(err))
		}
		return syscall.CommandSuccessU32(value)

	case CounterCmdReset:
		err := c.grant.Enter(pid, func(st *counterState, _ *grant.UpcallTable) {
			st.Count = 0
		})
		if err != nil {
			return syscall.CommandFailure(grantErrorCode(err))
		}
		return syscall.CommandSuccess()

	default:
		return syscall.CommandFailure(syscall.NOSUPPORT)
	}
}

// AllowReadOnly implements Driver. The counter takes no buffers.
func (c *Counter) AllowReadOnly(pid process.ID, allowNum uint32, buf procbuf.ReadOnlyProcessBuffer) (procbuf.ReadOnlyProcessBuffer, error) {
	return buf, syscall.NOSUPPORT
}

// AllowReadWrite implements Driver.
func (c *Counter) AllowReadWrite(pid process.ID, allowNum uint32, buf procbuf.ReadWriteProcessBuffer) (procbuf.ReadWriteProcessBuffer, error) {
	return buf, syscall.NOSUPPORT
}

// AllocateGrant implements Driver.
func (c *Counter) AllocateGrant(pid process.ID) error {
	return c.grant.Enter(pid, func(*counterState, *grant.UpcallTable) {})
}

// grantErrorCode maps grant entry failures to userspace error codes.
func grantErrorCode(err error) syscall.ErrorCode {
	var code syscall.ErrorCode
	if errors.As(err, &code) {
		return code
	}
	switch {
	case errors.Is(err, process.ErrOutOfMemory):
		return syscall.NOMEM
	case errors.Is(err, process.ErrNoSuchApp), errors.Is(err, process.ErrInactiveApp):
		return syscall.FAIL
	default:
		return syscall.FAIL
	}
}
