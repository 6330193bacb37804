package ptracer

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const pollInterval = time.Millisecond

// StopAtEntry takes the tracee from its exec stop to its program entry
// point. Preloaded libraries have been loaded and their constructors have
// run when it returns, but no instruction of the program itself has.
//
// On error the tracee is left in an undefined state and the caller should
// kill it.
func (t *Tracer) StopAtEntry(pid int) (*EntryStop, error) {
	// the first SIGTRAP of a PTRACE_TRACEME child is its successful execve
	if err := t.waitTrap(pid); err != nil {
		return nil, errors.WithMessage(err, "exec stop")
	}
	t.debug("ptracer: exec stop: ", pid)

	// the tracee dies with us instead of being left stopped forever
	if err := unix.PtraceSetOptions(pid, unix.PTRACE_O_EXITKILL); err != nil {
		return nil, errors.Wrap(err, "ptracer: set options")
	}

	if !breakpointSupported {
		t.debug("ptracer: no breakpoint support, releasing at exec stop: ", pid)
		if err := unix.PtraceDetach(pid); err != nil {
			return nil, errors.Wrap(err, "ptracer: detach")
		}
		return &EntryStop{Pid: pid}, nil
	}

	entry, err := entryPoint(t.procRoot(), pid)
	if err != nil {
		return nil, err
	}
	t.debug("ptracer: entry point: ", pid, " ", entry)

	orig := make([]byte, len(breakpointInsn))
	if _, err := unix.PtracePeekData(pid, entry, orig); err != nil {
		return nil, errors.Wrap(err, "ptracer: peek entry")
	}
	if _, err := unix.PtracePokeData(pid, entry, breakpointInsn); err != nil {
		return nil, errors.Wrap(err, "ptracer: poke breakpoint")
	}

	if err := unix.PtraceCont(pid, 0); err != nil {
		return nil, errors.Wrap(err, "ptracer: continue")
	}
	if err := t.waitTrap(pid); err != nil {
		return nil, errors.WithMessage(err, "entry breakpoint")
	}

	if _, err := unix.PtracePokeData(pid, entry, orig); err != nil {
		return nil, errors.Wrap(err, "ptracer: restore entry")
	}
	if err := resetPC(pid, entry); err != nil {
		return nil, errors.Wrap(err, "ptracer: reset pc")
	}
	t.debug("ptracer: paused at entry: ", pid)
	return &EntryStop{Pid: pid, Entry: entry, Paused: true}, nil
}

// Detach releases a tracee held by StopAtEntry
func Detach(pid int) error {
	return errors.Wrap(unix.PtraceDetach(pid), "ptracer: detach")
}

// waitTrap waits until pid stops with SIGTRAP, passing any other stop
// signal on to the tracee
func (t *Tracer) waitTrap(pid int) error {
	deadline := time.Now().Add(t.timeout())
	for {
		sig, err := waitStop(pid, deadline)
		if err != nil {
			return err
		}
		if sig == unix.SIGTRAP {
			return nil
		}
		t.debug("ptracer: passing signal: ", pid, " ", sig)
		if err := unix.PtraceCont(pid, int(sig)); err != nil {
			return errors.Wrap(err, "ptracer: continue")
		}
	}
}

// waitStop polls wait4 until pid stops or the deadline passes
func waitStop(pid int, deadline time.Time) (unix.Signal, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG|unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "ptracer: wait4")
		}
		if wpid == pid {
			switch {
			case ws.Stopped():
				return ws.StopSignal(), nil
			case ws.Exited():
				return 0, errors.WithMessagef(ErrExited, "exit status %d", ws.ExitStatus())
			case ws.Signaled():
				return 0, errors.WithMessagef(ErrExited, "signal %v", ws.Signal())
			}
		}
		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}
