package injector

import "github.com/criyle/go-inject/types"

// InjectIntoProcess would attach to a running process, which needs a
// preload that is only honoured at exec
func (c *Coordinator) InjectIntoProcess(pid int, env []string, logFile string, opts CaptureOptions, waitForExit bool) Result {
	c.log().WithField("pid", pid).Error("injecting into already running processes is not implemented")
	return Result{
		Status: types.NewResult(types.Unsupported,
			"Injecting into already running processes is not supported on non-Windows systems"),
		State: Failed,
	}
}

// StartGlobalHook is not available on this platform
func (c *Coordinator) StartGlobalHook(pathMatch, logFile string, opts CaptureOptions) types.Result {
	return types.NewResult(types.Unsupported, "Global hooking is not supported on this platform")
}

// CanGlobalHook reports whether StartGlobalHook can work
func (c *Coordinator) CanGlobalHook() bool {
	return false
}

// IsGlobalHookActive always reports false
func (c *Coordinator) IsGlobalHookActive() bool {
	return false
}

// StopGlobalHook does nothing
func (c *Coordinator) StopGlobalHook() {}
