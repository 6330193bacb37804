package launcher

import "os"

// LaunchProcess starts app with the current process environment. With
// capture set it blocks until the process exits and returns its output.
func (l *Launcher) LaunchProcess(app, workDir, cmdLine string, capture bool) (*Result, error) {
	return l.Launch(Params{
		App:           app,
		WorkDir:       workDir,
		CmdLine:       cmdLine,
		Env:           os.Environ(),
		CaptureOutput: capture,
	})
}

// LaunchScript runs script with args through a bash login shell
func (l *Launcher) LaunchScript(script, workDir, args string, capture bool) (*Result, error) {
	return l.LaunchProcess("bash", workDir, `-lc "`+script+" "+args+`"`, capture)
}
