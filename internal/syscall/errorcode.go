package syscall

// ErrorCode is the set of errors a syscall may return to userspace.
// Values follow the stable ABI numbering; 0 is reserved for success and is
// never a valid ErrorCode.
type ErrorCode uint32

const (
	FAIL      ErrorCode = 1  // generic failure
	BUSY      ErrorCode = 2  // underlying resource is busy
	ALREADY   ErrorCode = 3  // operation already in progress
	OFF       ErrorCode = 4  // component is powered down
	RESERVE   ErrorCode = 5  // reservation required
	INVAL     ErrorCode = 6  // invalid argument
	SIZE      ErrorCode = 7  // size mismatch or limit exceeded
	CANCEL    ErrorCode = 8  // operation was cancelled
	NOMEM     ErrorCode = 9  // out of memory
	NOSUPPORT ErrorCode = 10 // operation not supported
	NODEVICE  ErrorCode = 11 // no driver registered for this number
)

// Error lets an ErrorCode travel as a Go error inside the kernel while
// remaining a plain ABI value at the syscall boundary.
func (e ErrorCode) Error() string { return e.String() }

func (e ErrorCode) String() string {
	switch e {
	case FAIL:
		return "FAIL"
	case BUSY:
		return "BUSY"
	case ALREADY:
		return "ALREADY"
	case OFF:
		return "OFF"
	case RESERVE:
		return "RESERVE"
	case INVAL:
		return "INVAL"
	case SIZE:
		return "SIZE"
	case CANCEL:
		return "CANCEL"
	case NOMEM:
		return "NOMEM"
	case NOSUPPORT:
		return "NOSUPPORT"
	case NODEVICE:
		return "NODEVICE"
	default:
		return "UNKNOWN"
	}
}
