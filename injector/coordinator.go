// Package injector launches a target with the capture agent preloaded and
// waits for the agent to announce itself before letting the target run.
package injector

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/criyle/go-inject/handshake"
	"github.com/criyle/go-inject/launcher"
	"github.com/criyle/go-inject/pkg/envmod"
	"github.com/criyle/go-inject/types"
)

const connectFailedMessage = "Couldn't connect to target program. Check that it didn't crash or exit " +
	"during early initialisation, e.g. due to an incorrectly configured working directory."

// Request describes one launch with injection
type Request struct {
	App     string
	WorkDir string
	CmdLine string

	// Env is applied after the globally registered modifications and
	// before the hooks
	Env []envmod.Modification

	CaptureFile string
	Options     CaptureOptions

	// WaitForExit blocks until the target terminates
	WaitForExit bool
}

// Result is the outcome of LaunchAndInject
type Result struct {
	Status types.Result

	// Ident is the handshake id announced by the agent, 0 on failure
	Ident uint32
	Pid   int
	State State

	// ExitCode is set with WaitForExit
	ExitCode int
}

// session tracks a single LaunchAndInject call
type session struct {
	id    uuid.UUID
	pid   int
	ident uint32
	state State
	log   logrus.FieldLogger
}

func (s *session) transition(to State) {
	s.log.WithField("state", to).Debugf("injector: %v -> %v", s.state, to)
	s.state = to
}

// Coordinator drives launch, handshake and resume
type Coordinator struct {
	Launcher   *launcher.Launcher
	Hooks      Hooks
	Discoverer handshake.Discoverer
	Backoff    handshake.Backoff

	// Registry holds modifications registered for every launch, may be nil
	Registry *envmod.Registry

	// CaptureFile, Options and LogFile configure HookedEnviron
	CaptureFile string
	Options     CaptureOptions
	LogFile     string

	Log logrus.FieldLogger

	// Environ is the base environment, os.Environ when nil
	Environ func() []string

	closers []func()
}

func (c *Coordinator) log() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *Coordinator) environ() []string {
	if c.Environ == nil {
		return os.Environ()
	}
	return c.Environ()
}

// LaunchAndInject launches req.App paused, waits for the agent handshake
// and resumes it
func (c *Coordinator) LaunchAndInject(req Request) Result {
	return c.LaunchAndInjectContext(context.Background(), req)
}

// LaunchAndInjectContext is LaunchAndInject with a context that can abort
// the handshake poll
func (c *Coordinator) LaunchAndInjectContext(ctx context.Context, req Request) Result {
	s := &session{id: uuid.New(), state: Idle}
	s.log = c.log().WithField("session", s.id.String())

	if req.App == "" {
		s.transition(Failed)
		return Result{
			Status: types.NewResult(types.InvalidParameter, "Invalid empty path to launch."),
			State:  s.state,
		}
	}

	env := c.environment(req)

	s.transition(Launching)
	s.log.Infof("running process %s for injection", req.App)

	// ptrace requests must come from the thread that launched the target
	defer launcher.LockThread()()

	res, err := c.Launcher.Launch(launcher.Params{
		App:          req.App,
		WorkDir:      req.WorkDir,
		CmdLine:      req.CmdLine,
		Env:          env.Environ(),
		PauseAtEntry: true,
		NoReap:       req.WaitForExit,
	})
	if err != nil {
		s.transition(Failed)
		return Result{Status: toResult(err, types.LaunchFailure), State: s.state}
	}
	s.pid = res.Pid
	s.log = s.log.WithField("pid", s.pid)

	s.transition(AwaitingHandshake)
	ident, perr := c.Backoff.Poll(ctx, s.pid, c.discoverer())
	if perr != nil {
		s.log.WithError(perr).Warn("injector: no handshake from target")
	}
	s.ident = ident

	if res.Paused {
		var delay time.Duration
		if perr == nil {
			delay = time.Duration(req.Options.DelayForDebugger) * time.Second
		}
		// a target that never answered is still released, the caller decides its fate
		if err := c.Launcher.Resume(s.pid, delay); err != nil {
			s.log.WithError(err).Warn("injector: failed to resume target")
		}
	}

	out := Result{Pid: s.pid, Ident: s.ident}
	if req.WaitForExit {
		code, _, err := launcher.Wait(s.pid)
		if err != nil {
			s.log.WithError(err).Warn("injector: failed to wait on target")
		}
		out.ExitCode = code
	}

	if perr != nil {
		s.transition(Failed)
		out.Status = types.NewResult(types.InjectionFailed, connectFailedMessage)
		out.Ident = 0
	} else {
		s.transition(Injected)
		s.log.WithField("ident", s.ident).Info("injector: target injected")
	}
	out.State = s.state
	return out
}

// environment builds the target environment. The saved originals come from
// the controller's own environment, before registered and caller
// directives, so ResetHooking in the target restores exactly that.
func (c *Coordinator) environment(req Request) envmod.Table {
	env := envmod.FromEnviron(c.environ())
	hooks := c.Hooks.Modifications(env, req.CaptureFile, req.Options, c.LogFile)
	if c.Registry != nil {
		envmod.ApplyAll(env, c.Registry.Pending())
	}
	envmod.ApplyAll(env, req.Env)
	envmod.ApplyAll(env, hooks)
	return env
}

func (c *Coordinator) discoverer() handshake.Discoverer {
	if c.Discoverer == nil {
		return handshake.NewProcNet()
	}
	return c.Discoverer
}

// toResult keeps a types.Result error as is and wraps anything else
func toResult(err error, code types.ResultCode) types.Result {
	var r types.Result
	if errors.As(err, &r) {
		return r
	}
	return types.NewResult(code, "%v", err)
}

// HookedEnviron returns envp with the agent hooks applied using the
// coordinator's capture settings
func (c *Coordinator) HookedEnviron(envp []string) []string {
	return c.Hooks.HookedEnviron(envp, c.CaptureFile, c.Options, c.LogFile)
}

// UnhookedEnviron returns envp without the child-only variables
func (c *Coordinator) UnhookedEnviron(envp []string) []string {
	return c.Hooks.UnhookedEnviron(envp)
}

// ResetHooking restores the loader variables of the current process
func (c *Coordinator) ResetHooking() error {
	return c.Hooks.ResetHooking()
}

// Close releases the reaper and watcher created by FromConfig
func (c *Coordinator) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
