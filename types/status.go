package types

// ResultCode classifies the outcome of a launch or injection
type ResultCode int

// Result codes reported at the public boundary
const (
	Succeeded ResultCode = iota // 0 success

	// Caller errors, detected before anything is forked
	InvalidParameter // 1 empty path, malformed command line

	// Runtime failures
	LaunchFailure   // 2 resolution / fork / exec failed
	InjectionFailed // 3 handshake was never discovered

	// Platform lacks the capability
	Unsupported // 4 attach to running process, global hooks
)

var (
	resultCodeString = []string{
		"Succeeded",
		"Invalid Parameter",
		"Launch Failure",
		"Injection Failed",
		"Unsupported",
	}
)

func (c ResultCode) String() string {
	i := int(c)
	if i >= 0 && i < len(resultCodeString) {
		return resultCodeString[i]
	}
	return "Unknown"
}
