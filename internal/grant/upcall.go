package grant

import (
	"unsafe"

	"github.com/kestrel-os/kestrel/internal/process"
	"github.com/kestrel-os/kestrel/internal/syscall"
)

// UpcallTable is the scoped view of a grant block's upcall slots, valid only
// inside the entering closure.
type UpcallTable struct {
	proc      process.Process
	driverNum uint32
	upcalls   []SavedUpcall
}

// ScheduleUpcall queues a deferred invocation of the numbered upcall,
// carrying the three event words plus the appdata saved at subscribe time.
// The kernel execution loop delivers it when the process next runs. Fails
// with INVAL when subscribeNum is out of range. An unsubscribed slot
// produces a null-upcall task: the pending-work accounting still fires but
// no function is woken.
func (t *UpcallTable) ScheduleUpcall(subscribeNum int, r0, r1, r2 uint32) error {
	if subscribeNum < 0 || subscribeNum >= len(t.upcalls) {
		return syscall.INVAL
	}
	saved := t.upcalls[subscribeNum]
	var task process.Task
	if saved.FnPtr == 0 {
		task = process.Task{
			Kind:        process.TaskReturnValue,
			ReturnValue: process.ReturnArguments{Arg0: r0, Arg1: r1, Arg2: r2},
		}
	} else {
		task = process.Task{
			Kind: process.TaskFunctionCall,
			FunctionCall: process.FunctionCall{
				Source: syscall.UpcallID{DriverNum: t.driverNum, SubscribeNum: uint32(subscribeNum)},
				PC:     saved.FnPtr,
				Arg0:   r0,
				Arg1:   r1,
				Arg2:   r2,
				Arg3:   saved.AppData,
			},
		}
	}
	return t.proc.EnqueueTask(task)
}

// Count returns the number of upcall slots.
func (t *UpcallTable) Count() int { return len(t.upcalls) }

// Saved returns a copy of the numbered slot, for diagnostics.
func (t *UpcallTable) Saved(subscribeNum int) (SavedUpcall, bool) {
	if subscribeNum < 0 || subscribeNum >= len(t.upcalls) {
		return SavedUpcall{}, false
	}
	return t.upcalls[subscribeNum], true
}

// Subscribe swaps a new saved upcall into the numbered slot of a process's
// grant block and returns the previous pair. It operates on the raw block
// without knowing the grant type: the syscall dispatcher calls it for
// whatever driver the process named.
//
// Returns process.ErrNotAllocated when the block does not exist yet (the
// dispatcher then gives the owning capsule one chance to allocate it) and
// syscall.INVAL when subscribeNum is outside the slot count recorded in the
// block header.
func Subscribe(p process.Process, grantNum int, subscribeNum uint32, upcall SavedUpcall) (SavedUpcall, error) {
	base, err := p.EnterGrant(grantNum)
	if err != nil {
		return SavedUpcall{}, err
	}
	defer p.LeaveGrant(grantNum)

	count := *(*uint32)(base)
	if subscribeNum >= count {
		return SavedUpcall{}, syscall.INVAL
	}
	upcalls := unsafe.Slice((*SavedUpcall)(unsafe.Add(base, wordSize)), int(count))
	prev := upcalls[subscribeNum]
	upcalls[subscribeNum] = upcall
	return prev, nil
}
