package types

import "fmt"

// Result carries a result code together with a human readable message.
// A Result with code Succeeded is not an error.
type Result struct {
	Code    ResultCode
	Message string
}

// NewResult creates a result with formatted message
func NewResult(code ResultCode, format string, args ...interface{}) Result {
	return Result{Code: code, Message: fmt.Sprintf(format, args...)}
}

// OK reports whether the result is a success
func (r Result) OK() bool {
	return r.Code == Succeeded
}

// Err returns nil for a succeeded result and the result itself otherwise,
// so callers can use the usual err != nil checks
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return r
}

func (r Result) Error() string {
	if r.Message == "" {
		return r.Code.String()
	}
	return fmt.Sprintf("%v: %s", r.Code, r.Message)
}

// Is matches results by code so that errors.Is(err, Result{Code: X}) works
func (r Result) Is(target error) bool {
	t, ok := target.(Result)
	return ok && t.Code == r.Code
}
