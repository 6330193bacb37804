package forkexec

import (
	"syscall"
	"unsafe" // required for go:linkname.

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// Start forks and execs the child and returns its pid once execve has
// succeeded. With Ptrace set the calling goroutine must stay locked to its
// OS thread until the tracer is done with the child.
func (r *Runner) Start() (int, error) {
	p, err := newExecParams(r)
	if err != nil {
		return 0, err
	}

	files := r.Files
	if files == nil {
		files = []uintptr{0, 1, 2}
	}
	fds, spare := fdPlan(files)

	// sync[1] goes to the child and closes on a successful execve
	sync, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, errors.Wrap(err, "forkexec: socketpair")
	}

	pid, errno := forkAndExec(r, p, fds, spare, sync)
	afterFork()
	syscall.ForkLock.Unlock()

	return awaitExec(sync, int(pid), errno)
}

// awaitExec reads the child's report. EOF means execve succeeded.
func awaitExec(sync [2]int, pid int, errno syscall.Errno) (int, error) {
	unix.Close(sync[1])
	defer unix.Close(sync[0])

	if errno != 0 {
		return 0, ChildError{Err: errno, Location: StepClone, Fd: -1}
	}

	var ce ChildError
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&ce)), unsafe.Sizeof(ce))
	n, err := readFull(sync[0], buf)
	if n == 0 && err == nil {
		return pid, nil
	}
	if n != len(buf) {
		// short report, the child died while writing it
		ce = ChildError{Err: syscall.EPIPE, Location: StepExec, Fd: -1}
		if e, ok := err.(syscall.Errno); ok {
			ce.Err = e
		}
	}
	killAndReap(pid)
	return 0, ce
}

func readFull(fd int, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := syscall.Read(fd, buf[total:])
		switch {
		case err == syscall.EINTR:
			continue
		case err != nil:
			return total, err
		case n == 0:
			return total, nil
		}
		total += n
	}
	return total, nil
}

// killAndReap makes sure a failed child leaves no zombie behind
func killAndReap(pid int) {
	syscall.Kill(pid, syscall.SIGKILL)
	for {
		if _, err := syscall.Wait4(pid, nil, 0, nil); err != syscall.EINTR {
			return
		}
	}
}
