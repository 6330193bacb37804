// Package ptracer holds a freshly exec'd tracee at its program entry point.
//
// The child must have been started with PTRACE_TRACEME (forkexec.Runner.Ptrace)
// and every call has to come from the OS thread that started it, so callers
// lock their goroutine to the thread with runtime.LockOSThread.
package ptracer

import (
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds every wait for the tracee to stop
const DefaultTimeout = 10 * time.Second

var (
	// ErrTimeout is returned when the tracee did not stop in time
	ErrTimeout = errors.New("ptracer: timed out waiting for tracee to stop")
	// ErrExited is returned when the tracee exited or was killed before the
	// entry point was reached
	ErrExited = errors.New("ptracer: tracee exited before reaching entry point")
)

// Handler receives debug output
type Handler interface {
	Debug(v ...interface{})
}

// Tracer pauses tracees at their entry point
type Tracer struct {
	Handler

	// Timeout bounds each wait, DefaultTimeout when zero
	Timeout time.Duration

	// ProcRoot is the procfs mount, /proc when empty
	ProcRoot string
}

// EntryStop describes a tracee held by StopAtEntry
type EntryStop struct {
	Pid   int
	Entry uintptr

	// Paused is false on architectures without breakpoint support, where the
	// tracee was released at its exec stop
	Paused bool
}

func (t *Tracer) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return DefaultTimeout
}

func (t *Tracer) procRoot() string {
	if t.ProcRoot != "" {
		return t.ProcRoot
	}
	return "/proc"
}

func (t *Tracer) debug(v ...interface{}) {
	if t.Handler != nil {
		t.Handler.Debug(v...)
	}
}
