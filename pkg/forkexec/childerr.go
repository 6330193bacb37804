package forkexec

import (
	"fmt"
	"syscall"
)

// Step names the point between clone and execve where the child failed
type Step int

// Steps of the child setup, in order
const (
	StepClone Step = iota + 1
	StepCloseSync
	StepDupFd
	StepClearCloexec
	StepChdir
	StepTraceMe
	StepExec
)

var stepName = [...]string{
	StepClone:        "clone",
	StepCloseSync:    "close sync socket",
	StepDupFd:        "dup3",
	StepClearCloexec: "fcntl",
	StepChdir:        "chdir",
	StepTraceMe:      "ptrace(TRACEME)",
	StepExec:         "execve",
}

func (s Step) String() string {
	if s >= StepClone && s <= StepExec {
		return stepName[s]
	}
	return "unknown"
}

// ChildError is written by the child to the sync socket when a step fails.
// Fd is the target descriptor for fd mapping steps and -1 otherwise.
type ChildError struct {
	Err      syscall.Errno
	Location Step
	Fd       int
}

func (e ChildError) Error() string {
	if e.Fd >= 0 {
		return fmt.Sprintf("%v(fd %d): %v", e.Location, e.Fd, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Location, e.Err)
}

// Unwrap exposes the errno, errors.Is(err, syscall.ENOENT) works
func (e ChildError) Unwrap() error {
	return e.Err
}
