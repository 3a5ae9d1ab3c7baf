package syscall

import "fmt"

// Class identifies the syscall class a process invoked.
type Class uint8

const (
	ClassYield Class = iota
	ClassSubscribe
	ClassCommand
	ClassReadWriteAllow
	ClassReadOnlyAllow
	ClassMemop
	ClassExit
)

func (c Class) String() string {
	switch c {
	case ClassYield:
		return "yield"
	case ClassSubscribe:
		return "subscribe"
	case ClassCommand:
		return "command"
	case ClassReadWriteAllow:
		return "read-write-allow"
	case ClassReadOnlyAllow:
		return "read-only-allow"
	case ClassMemop:
		return "memop"
	case ClassExit:
		return "exit"
	default:
		return "invalid"
	}
}

// UpcallID names one upcall slot: the driver that owns it and the subscribe
// index within that driver's grant.
type UpcallID struct {
	DriverNum    uint32
	SubscribeNum uint32
}

// Yield variants for the first yield argument.
const (
	YieldNoWait uint32 = 0
	YieldWait   uint32 = 1
)

// Exit variants for the first exit argument.
const (
	ExitTerminate uint32 = 0
	ExitRestart   uint32 = 1
)

// Syscall is a decoded system call: a class plus four word-sized arguments.
// The meaning of each argument depends on the class; the accessor methods
// document the positional layout.
type Syscall struct {
	Class Class
	Args  [4]uint32
}

// NewYield builds a Yield syscall. which selects the variant; addr is the
// address the kernel writes the "upcall triggered" status byte to for the
// no-wait variant.
func NewYield(which, addr uint32) Syscall {
	return Syscall{Class: ClassYield, Args: [4]uint32{which, addr}}
}

// NewSubscribe builds a Subscribe syscall. fnPtr zero is the unsubscribe
// sentinel.
func NewSubscribe(driverNum, subscribeNum, fnPtr, appdata uint32) Syscall {
	return Syscall{Class: ClassSubscribe, Args: [4]uint32{driverNum, subscribeNum, fnPtr, appdata}}
}

// NewCommand builds a Command syscall.
func NewCommand(driverNum, commandNum, arg0, arg1 uint32) Syscall {
	return Syscall{Class: ClassCommand, Args: [4]uint32{driverNum, commandNum, arg0, arg1}}
}

// NewReadWriteAllow builds a ReadWriteAllow syscall sharing
// [addr, addr+size) with the kernel.
func NewReadWriteAllow(driverNum, allowNum, addr, size uint32) Syscall {
	return Syscall{Class: ClassReadWriteAllow, Args: [4]uint32{driverNum, allowNum, addr, size}}
}

// NewReadOnlyAllow builds a ReadOnlyAllow syscall.
func NewReadOnlyAllow(driverNum, allowNum, addr, size uint32) Syscall {
	return Syscall{Class: ClassReadOnlyAllow, Args: [4]uint32{driverNum, allowNum, addr, size}}
}

// NewMemop builds a Memop syscall.
func NewMemop(operand, arg0 uint32) Syscall {
	return Syscall{Class: ClassMemop, Args: [4]uint32{operand, arg0}}
}

// NewExit builds an Exit syscall.
func NewExit(which, completionCode uint32) Syscall {
	return Syscall{Class: ClassExit, Args: [4]uint32{which, completionCode}}
}

// DriverNum returns the driver number for driver-routed classes.
func (s Syscall) DriverNum() uint32 { return s.Args[0] }

// Filterable reports whether the syscall is subject to the platform syscall
// filter. Yield, Exit, and Memop are always permitted.
func (s Syscall) Filterable() bool {
	switch s.Class {
	case ClassYield, ClassExit, ClassMemop:
		return false
	default:
		return true
	}
}

func (s Syscall) String() string {
	return fmt.Sprintf("%s(%#x, %#x, %#x, %#x)", s.Class, s.Args[0], s.Args[1], s.Args[2], s.Args[3])
}
