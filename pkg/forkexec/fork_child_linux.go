package forkexec

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// forkAndExec clones the calling process. The child maps fds, changes
// directory, optionally requests tracing and execs. Any failure is written
// to sync[1] as a ChildError. Modeled on syscall.forkAndExecInChild.
//
//go:norace
func forkAndExec(r *Runner, p *execParams, fds []int, spare int, sync [2]int) (pid uintptr, errno syscall.Errno) {
	// no fd created by another thread may leak into the child without
	// close-on-exec
	syscall.ForkLock.Lock()
	beforeFork()

	pid, _, errno = syscall.RawSyscall6(syscall.SYS_CLONE, uintptr(syscall.SIGCHLD), 0, 0, 0, 0, 0)
	if errno != 0 || pid != 0 {
		return
	}

	// child: raw syscalls and nosplit helpers only
	afterForkInChild()

	report := sync[1]
	if _, _, errno = syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(sync[0]), 0, 0); errno != 0 {
		childFail(report, StepCloseSync, -1, errno)
	}

	var (
		step Step
		fd   int
	)
	if report, step, fd, errno = remapFds(fds, spare, report); errno != 0 {
		childFail(report, step, fd, errno)
	}

	// nothing past the mapped fds survives execve; kernels before 5.11
	// reject the call and rely on Go opening fds close-on-exec
	syscall.RawSyscall(unix.SYS_CLOSE_RANGE, uintptr(len(fds)), ^uintptr(0), unix.CLOSE_RANGE_CLOEXEC)

	if p.dir != nil {
		if _, _, errno = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(p.dir)), 0, 0); errno != 0 {
			childFail(report, StepChdir, -1, errno)
		}
	}

	// the tracer sees a SIGTRAP stop once execve succeeds
	if r.Ptrace {
		if _, _, errno = syscall.RawSyscall(syscall.SYS_PTRACE, uintptr(syscall.PTRACE_TRACEME), 0, 0); errno != 0 {
			childFail(report, StepTraceMe, -1, errno)
		}
	}

	errno = execve(p)
	childFail(report, StepExec, -1, errno)
	return
}

// remapFds makes fd i refer to fds[i] in two passes. Sources that the
// second pass would overwrite, the report socket included, are first
// parked at spare and above with close-on-exec set.
//
//go:nosplit
func remapFds(fds []int, spare, report int) (int, Step, int, syscall.Errno) {
	if report < spare {
		if _, _, errno := syscall.RawSyscall(syscall.SYS_DUP3, uintptr(report), uintptr(spare), syscall.O_CLOEXEC); errno != 0 {
			return report, StepDupFd, -1, errno
		}
		report = spare
		spare++
	}
	for i := range fds {
		if fds[i] < 0 || fds[i] >= i {
			continue
		}
		if _, _, errno := syscall.RawSyscall(syscall.SYS_DUP3, uintptr(fds[i]), uintptr(spare), syscall.O_CLOEXEC); errno != 0 {
			return report, StepDupFd, i, errno
		}
		fds[i] = spare
		spare++
	}

	for i := range fds {
		switch fds[i] {
		case -1:
			syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(i), 0, 0)

		case i:
			// dup3 refuses oldfd == newfd, clear the flag instead
			if _, _, errno := syscall.RawSyscall(syscall.SYS_FCNTL, uintptr(i), syscall.F_SETFD, 0); errno != 0 {
				return report, StepClearCloexec, i, errno
			}

		default:
			if _, _, errno := syscall.RawSyscall(syscall.SYS_DUP3, uintptr(fds[i]), uintptr(i), 0); errno != 0 {
				return report, StepDupFd, i, errno
			}
		}
	}
	return report, 0, -1, 0
}

//go:nosplit
func execve(p *execParams) syscall.Errno {
	errno := rawExecve(p)
	for n := 0; errno == syscall.ETXTBSY && n < etxtbsyRetries; n++ {
		syscall.RawSyscall(unix.SYS_NANOSLEEP, uintptr(unsafe.Pointer(&etxtbsyRetryInterval)), 0, 0)
		errno = rawExecve(p)
	}
	return errno
}

//go:nosplit
func rawExecve(p *execParams) syscall.Errno {
	_, _, errno := syscall.RawSyscall(unix.SYS_EXECVE, uintptr(unsafe.Pointer(p.path)),
		uintptr(unsafe.Pointer(&p.argv[0])), uintptr(unsafe.Pointer(&p.env[0])))
	return errno
}

// childFail reports the failed step to the parent and exits
//
//go:nosplit
func childFail(report int, step Step, fd int, errno syscall.Errno) {
	ce := ChildError{Err: errno, Location: step, Fd: fd}
	syscall.RawSyscall(unix.SYS_WRITE, uintptr(report), uintptr(unsafe.Pointer(&ce)), unsafe.Sizeof(ce))
	for {
		syscall.RawSyscall(syscall.SYS_EXIT_GROUP, ExecFailureStatus, 0, 0)
	}
}
