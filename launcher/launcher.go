// Package launcher starts target programs: it expands and resolves the
// application path, tokenizes the command line, forks and execs with
// optional output capture, optionally holds the child at its entry point
// and hands uncaptured children to the zombie reaper.
package launcher

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/criyle/go-inject/pkg/cmdline"
	"github.com/criyle/go-inject/pkg/forkexec"
	"github.com/criyle/go-inject/pkg/pipe"
	"github.com/criyle/go-inject/pkg/reaper"
	"github.com/criyle/go-inject/ptracer"
	"github.com/criyle/go-inject/types"
)

// DefaultOutputLimit caps each captured stream
const DefaultOutputLimit = 64 << 20

// Params describes one launch
type Params struct {
	App     string
	WorkDir string
	CmdLine string

	// Env is the complete environment as NAME=value, nil inherits the
	// current process environment
	Env []string

	// PauseAtEntry holds the child at its entry point until Resume. The
	// calling goroutine must be locked to its OS thread until then.
	PauseAtEntry bool

	// CaptureOutput collects stdout and stderr and waits for the exit
	// status. Captured children are not handed to the reaper.
	CaptureOutput bool

	// NoReap keeps an uncaptured child away from the reaper, for callers
	// that wait on it themselves
	NoReap bool

	// OutputLimit caps each captured stream, DefaultOutputLimit when zero
	// and unlimited when negative
	OutputLimit int64
}

// Result is the outcome of a launch
type Result struct {
	// Pid is 0 when the launch failed
	Pid int

	// ExitCode is the literal exit code if Exited, 1 for any other
	// termination. Only set when output was captured.
	ExitCode int
	Exited   bool
	Stdout   string
	Stderr   string

	// Paused reports the child is held at its entry point
	Paused bool
}

// Launcher launches processes
type Launcher struct {
	// Reaper collects uncaptured children, nil leaves them to the caller
	Reaper *reaper.Reaper

	// Chain runs before every reap pass, it is passed to Reaper.Install
	Chain reaper.Handler

	// Tracer pauses children at their entry point
	Tracer *ptracer.Tracer

	Log logrus.FieldLogger

	expander expander
}

// New creates a launcher logging to log
func New(r *reaper.Reaper, log logrus.FieldLogger) *Launcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Launcher{
		Reaper:   r,
		Tracer:   &ptracer.Tracer{Handler: log},
		Log:      log,
		expander: defaultExpander,
	}
}

func (l *Launcher) log() logrus.FieldLogger {
	if l.Log == nil {
		return logrus.StandardLogger()
	}
	return l.Log
}

func (l *Launcher) tracer() *ptracer.Tracer {
	if l.Tracer == nil {
		return &ptracer.Tracer{Handler: l.log()}
	}
	return l.Tracer
}

func (l *Launcher) expand(path string) string {
	if l.expander.getwd == nil {
		return defaultExpander.expand(path)
	}
	return l.expander.expand(path)
}

// Launch starts p.App. Errors are types.Result values carrying
// InvalidParameter for bad input and LaunchFailure otherwise.
func (l *Launcher) Launch(p Params) (*Result, error) {
	if p.App == "" {
		l.log().Error("invalid empty app")
		return nil, types.NewResult(types.InvalidParameter, "empty application path")
	}
	if p.PauseAtEntry && p.CaptureOutput {
		return nil, types.NewResult(types.InvalidParameter, "cannot capture output of a paused launch")
	}

	workDir := p.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(p.App)
	}
	app := l.expand(p.App)
	workDir = l.expand(workDir)

	argv, err := cmdline.Split(app, p.CmdLine)
	if err != nil {
		l.log().WithError(err).Errorf("failed to parse command line %q", p.CmdLine)
		return nil, types.NewResult(types.InvalidParameter, "malformed command line %q", p.CmdLine)
	}

	path, err := resolve(app)
	if err != nil {
		l.log().WithError(err).Errorf("cannot find %q", app)
		return nil, types.NewResult(types.LaunchFailure, "%v", err)
	}

	env := p.Env
	if env == nil {
		env = os.Environ()
	}

	log := l.log().WithFields(logrus.Fields{"app": path, "workdir": workDir})
	log.Debugf("launching %q", argv)

	runner := forkexec.Runner{
		Path:    path,
		Args:    argv,
		Env:     env,
		WorkDir: workDir,
		Ptrace:  p.PauseAtEntry,
	}

	var stdout, stderr *pipe.Buffer
	if p.CaptureOutput {
		limit := p.OutputLimit
		if limit == 0 {
			limit = DefaultOutputLimit
		}
		if stdout, err = pipe.NewBuffer(limit); err != nil {
			return nil, types.NewResult(types.LaunchFailure, "%v", err)
		}
		if stderr, err = pipe.NewBuffer(limit); err != nil {
			stdout.W.Close()
			return nil, types.NewResult(types.LaunchFailure, "%v", err)
		}
		runner.Files = []uintptr{0, stdout.W.Fd(), stderr.W.Fd()}
	}

	track := !p.CaptureOutput && !p.NoReap && l.Reaper != nil
	if track {
		if err := l.Reaper.Install(l.Chain); err != nil {
			log.WithError(err).Warn("zombie reaper unavailable")
			track = false
		}
	}

	pid, err := runner.Start()
	if p.CaptureOutput {
		// the child holds its own copies, EOF arrives when it exits
		stdout.W.Close()
		stderr.W.Close()
	}
	if err != nil {
		log.WithError(err).Error("failed to start process")
		return nil, types.NewResult(types.LaunchFailure, "%v", err)
	}
	log = log.WithField("pid", pid)

	res := &Result{Pid: pid}
	if p.PauseAtEntry {
		stop, err := l.tracer().StopAtEntry(pid)
		if err != nil {
			log.WithError(err).Error("failed to pause at entry point")
			killAndWait(pid)
			return nil, types.NewResult(types.LaunchFailure, "pause at entry: %v", err)
		}
		res.Paused = stop.Paused
	}

	if track {
		if err := l.Reaper.Track(pid); err != nil {
			log.WithError(err).Warn("failed to track child")
		}
	}

	if p.CaptureOutput {
		<-stdout.Done
		<-stderr.Done
		res.Stdout = string(stdout.Bytes())
		res.Stderr = string(stderr.Bytes())
		res.ExitCode, res.Exited, err = Wait(pid)
		if err != nil {
			log.WithError(err).Error("failed to wait on process")
		} else if !res.Exited {
			log.Warn("process did not exit normally")
		}
	}
	log.WithField("paused", res.Paused).Info("process launched")
	return res, nil
}

// Resume releases a child held at its entry point after delay. It must be
// called from the goroutine that launched it.
func (l *Launcher) Resume(pid int, delay time.Duration) error {
	if delay > 0 {
		l.log().WithField("pid", pid).Infof("waiting %v before resuming", delay)
		time.Sleep(delay)
	}
	if err := ptracer.Detach(pid); err != nil {
		return types.NewResult(types.LaunchFailure, "resume %d: %v", pid, err)
	}
	return nil
}

// Wait blocks until pid terminates. code is the exit status when the child
// exited normally and 1 otherwise.
func Wait(pid int) (code int, exited bool, err error) {
	var ws unix.WaitStatus
	for {
		_, err = unix.Wait4(pid, &ws, 0, nil)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 1, false, errors.Wrapf(err, "wait4 %d", pid)
	}
	if ws.Exited() {
		return ws.ExitStatus(), true, nil
	}
	return 1, false, nil
}

func killAndWait(pid int) {
	unix.Kill(pid, unix.SIGKILL)
	Wait(pid)
}

// LockThread pins the calling goroutine to its OS thread for a paused
// launch and returns the matching unlock
func LockThread() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
