package forkexec

// Runner is the configuration including the exec path, argv, env and
// the fd mapping for the new process
type Runner struct {
	// Path is executed by execve, Args[0] when empty
	Path string

	// argv and env for execve syscall for the child process
	Args []string
	Env  []string

	// file disriptors map for new process, from 0 to len - 1
	// -1 closes the fd in the child, nil keeps stdin, stdout and stderr
	Files []uintptr

	// work path set by chdir(dir) (current working directory for child)
	WorkDir string

	// ptrace controls child process to call ptrace(PTRACE_TRACEME)
	// runtime.LockOSThread is required for tracer to call ptrace syscalls
	Ptrace bool
}
