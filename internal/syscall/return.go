package syscall

import "fmt"

// ReturnKind discriminates the encoded syscall return variants.
type ReturnKind uint8

const (
	ReturnFailure ReturnKind = iota
	ReturnFailureU32
	ReturnFailure2U32
	ReturnSuccess
	ReturnSuccessU32
	ReturnSuccess2U32
	ReturnSuccess3U32
	ReturnSubscribeSuccess
	ReturnSubscribeFailure
	ReturnAllowReadWriteSuccess
	ReturnAllowReadWriteFailure
	ReturnAllowReadOnlySuccess
	ReturnAllowReadOnlyFailure
)

// Return is the value a syscall hands back to the process. Every syscall
// produces a well-formed Return except Yield and the valid Exit variants,
// which do not return.
type Return struct {
	Kind ReturnKind
	Err  ErrorCode
	A0   uint32
	A1   uint32
	A2   uint32
}

// Success returns the bare success variant.
func Success() Return { return Return{Kind: ReturnSuccess} }

// SuccessU32 returns success carrying one value.
func SuccessU32(v uint32) Return { return Return{Kind: ReturnSuccessU32, A0: v} }

// Success2U32 returns success carrying two values.
func Success2U32(v0, v1 uint32) Return { return Return{Kind: ReturnSuccess2U32, A0: v0, A1: v1} }

// Success3U32 returns success carrying three values.
func Success3U32(v0, v1, v2 uint32) Return {
	return Return{Kind: ReturnSuccess3U32, A0: v0, A1: v1, A2: v2}
}

// Failure returns the bare failure variant.
func Failure(e ErrorCode) Return { return Return{Kind: ReturnFailure, Err: e} }

// FailureU32 returns failure carrying one value.
func FailureU32(e ErrorCode, v uint32) Return {
	return Return{Kind: ReturnFailureU32, Err: e, A0: v}
}

// SubscribeSuccess carries the previous (appdata, fnptr) pair out of a
// successful subscribe swap.
func SubscribeSuccess(prevFnPtr, prevAppdata uint32) Return {
	return Return{Kind: ReturnSubscribeSuccess, A0: prevFnPtr, A1: prevAppdata}
}

// SubscribeFailure carries the rejected (appdata, fnptr) pair back to the
// process together with the error.
func SubscribeFailure(e ErrorCode, fnPtr, appdata uint32) Return {
	return Return{Kind: ReturnSubscribeFailure, Err: e, A0: fnPtr, A1: appdata}
}

// AllowReadWriteSuccess reports the (address, size) previously held by the
// capsule, now returned to the process.
func AllowReadWriteSuccess(addr, size uint32) Return {
	return Return{Kind: ReturnAllowReadWriteSuccess, A0: addr, A1: size}
}

// AllowReadWriteFailure reports the (address, size) now held by the process
// after a rejected read-write allow.
func AllowReadWriteFailure(e ErrorCode, addr, size uint32) Return {
	return Return{Kind: ReturnAllowReadWriteFailure, Err: e, A0: addr, A1: size}
}

// AllowReadOnlySuccess reports the (address, size) previously held by the
// capsule.
func AllowReadOnlySuccess(addr, size uint32) Return {
	return Return{Kind: ReturnAllowReadOnlySuccess, A0: addr, A1: size}
}

// AllowReadOnlyFailure reports the (address, size) now held by the process
// after a rejected read-only allow.
func AllowReadOnlyFailure(e ErrorCode, addr, size uint32) Return {
	return Return{Kind: ReturnAllowReadOnlyFailure, Err: e, A0: addr, A1: size}
}

// IsSuccess reports whether the return encodes any success variant.
func (r Return) IsSuccess() bool {
	switch r.Kind {
	case ReturnSuccess, ReturnSuccessU32, ReturnSuccess2U32, ReturnSuccess3U32,
		ReturnSubscribeSuccess, ReturnAllowReadWriteSuccess, ReturnAllowReadOnlySuccess:
		return true
	default:
		return false
	}
}

func (r Return) String() string {
	if r.IsSuccess() {
		return fmt.Sprintf("success(%#x, %#x, %#x)", r.A0, r.A1, r.A2)
	}
	return fmt.Sprintf("failure(%s, %#x, %#x)", r.Err, r.A0, r.A1)
}

// CommandReturn is the restricted return type capsules produce from Command.
// It is a Return limited to the command-legal variants.
type CommandReturn struct {
	rv Return
}

// CommandSuccess returns the bare success command return.
func CommandSuccess() CommandReturn { return CommandReturn{rv: Success()} }

// CommandSuccessU32 returns a command success carrying one value.
func CommandSuccessU32(v uint32) CommandReturn { return CommandReturn{rv: SuccessU32(v)} }

// CommandSuccess2U32 returns a command success carrying two values.
func CommandSuccess2U32(v0, v1 uint32) CommandReturn { return CommandReturn{rv: Success2U32(v0, v1)} }

// CommandSuccess3U32 returns a command success carrying three values.
func CommandSuccess3U32(v0, v1, v2 uint32) CommandReturn {
	return CommandReturn{rv: Success3U32(v0, v1, v2)}
}

// CommandFailure returns the bare failure command return.
func CommandFailure(e ErrorCode) CommandReturn { return CommandReturn{rv: Failure(e)} }

// CommandFailureU32 returns a command failure carrying one value.
func CommandFailureU32(e ErrorCode, v uint32) CommandReturn {
	return CommandReturn{rv: FailureU32(e, v)}
}

// Return unwraps the underlying syscall return.
func (c CommandReturn) Return() Return { return c.rv }

// IsSuccess reports whether the command succeeded.
func (c CommandReturn) IsSuccess() bool { return c.rv.IsSuccess() }
