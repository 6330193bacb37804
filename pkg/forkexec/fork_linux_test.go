package forkexec

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func wait(t *testing.T, pid int) unix.WaitStatus {
	t.Helper()
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		require.NoError(t, err)
		return ws
	}
}

func copyEcho(t *testing.T) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "echo")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY, 0777)
	require.NoError(t, err)
	echo, err := os.Open("/bin/echo")
	require.NoError(t, err)
	defer echo.Close()
	_, err = io.Copy(f, echo)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return name
}

func TestFork_OK(t *testing.T) {
	t.Parallel()
	r := Runner{
		Args: []string{copyEcho(t)},
	}
	pid, err := r.Start()
	require.NoError(t, err)
	ws := wait(t, pid)
	assert.True(t, ws.Exited())
	assert.Equal(t, 0, ws.ExitStatus())
}

func TestFork_NotFound(t *testing.T) {
	t.Parallel()
	r := Runner{
		Args: []string{"/nonexistent/binary"},
	}
	pid, err := r.Start()
	assert.Equal(t, 0, pid)

	var childErr ChildError
	require.True(t, errors.As(err, &childErr))
	assert.Equal(t, StepExec, childErr.Location)
	assert.ErrorIs(t, err, syscall.ENOENT)
	assert.Equal(t, "execve: no such file or directory", err.Error())
}

func TestFork_BadWorkDir(t *testing.T) {
	t.Parallel()
	r := Runner{
		Args:    []string{"/bin/true"},
		WorkDir: "/nonexistent/dir",
	}
	_, err := r.Start()
	var childErr ChildError
	require.True(t, errors.As(err, &childErr))
	assert.Equal(t, StepChdir, childErr.Location)
}

func TestFork_Path(t *testing.T) {
	t.Parallel()
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()

	r := Runner{
		Path:  "/bin/sh",
		Args:  []string{"custom-name", "-c", "echo $0"},
		Files: []uintptr{0, wr.Fd(), 2},
	}
	pid, err := r.Start()
	require.NoError(t, err)
	wr.Close()

	out, err := io.ReadAll(rd)
	require.NoError(t, err)
	wait(t, pid)
	assert.Equal(t, "custom-name\n", string(out))
}

func TestFork_EmptyArgs(t *testing.T) {
	t.Parallel()
	_, err := (&Runner{}).Start()
	assert.Error(t, err)
}

func TestFork_FilesAndWorkDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()

	r := Runner{
		Args:    []string{"/bin/sh", "-c", "pwd; echo $FOO; echo err >&2"},
		Env:     []string{"FOO=bar"},
		Files:   []uintptr{^uintptr(0), wr.Fd(), wr.Fd()},
		WorkDir: dir,
	}
	pid, err := r.Start()
	require.NoError(t, err)
	wr.Close()

	out, err := io.ReadAll(rd)
	require.NoError(t, err)
	ws := wait(t, pid)
	assert.Equal(t, 0, ws.ExitStatus())

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, resolved, lines[0])
	assert.Equal(t, "bar", lines[1])
	assert.Equal(t, "err", lines[2])
}

func TestFork_Ptrace(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := Runner{
		Args:   []string{"/bin/true"},
		Ptrace: true,
	}
	pid, err := r.Start()
	if errors.Is(err, syscall.EPERM) {
		t.Skip("ptrace not permitted")
	}
	require.NoError(t, err)

	// stopped by SIGTRAP after execve
	ws := wait(t, pid)
	require.True(t, ws.Stopped())
	assert.Equal(t, unix.SIGTRAP, ws.StopSignal())

	require.NoError(t, unix.PtraceDetach(pid))
	ws = wait(t, pid)
	assert.True(t, ws.Exited())
}

func TestFork_BadFd(t *testing.T) {
	t.Parallel()
	r := Runner{
		Args:  []string{"/bin/true"},
		Files: []uintptr{0, 1, 2, 1000},
	}
	_, err := r.Start()
	var childErr ChildError
	require.True(t, errors.As(err, &childErr))
	assert.Equal(t, StepDupFd, childErr.Location)
	assert.Equal(t, 3, childErr.Fd)
	assert.ErrorIs(t, err, syscall.EBADF)
}

func TestFdPlan(t *testing.T) {
	fds, spare := fdPlan([]uintptr{0, 9, ^uintptr(0)})
	assert.Equal(t, []int{0, 9, -1}, fds)
	assert.Equal(t, 10, spare)

	_, spare = fdPlan([]uintptr{2, 1})
	assert.Equal(t, 3, spare)
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "dup3", StepDupFd.String())
	assert.Equal(t, "unknown", Step(0).String())
	assert.Equal(t, "unknown", Step(100).String())
	assert.Equal(t, "dup3(fd 2): bad file descriptor",
		ChildError{Err: syscall.EBADF, Location: StepDupFd, Fd: 2}.Error())
	assert.Equal(t, "chdir: no such file or directory",
		ChildError{Err: syscall.ENOENT, Location: StepChdir, Fd: -1}.Error())
}
