package injector

import (
	"os"
	"path/filepath"

	"github.com/criyle/go-inject/config"
	"github.com/criyle/go-inject/pkg/envmod"
	"github.com/criyle/go-inject/types"
)

// CaptureOptions are passed to the agent encoded in the capture-options variable
type CaptureOptions = types.CaptureOptions

// Hooks names the agent and the variables used to load and configure it
type Hooks struct {
	// AgentLibrary is the file name put into the preload list
	AgentLibrary string
	// AgentLibDir is searched for the agent, BinDir when empty
	AgentLibDir string
	// BinDir is the directory of the running executable when empty
	BinDir string

	PreloadVar      string
	LibPathVar      string
	OrigLibPathVar  string
	OrigPreloadVar  string
	CaptureFileVar  string
	CaptureOptsVar  string
	DebugLogFileVar string

	// ChildOnlyVars are removed from environments that must not be hooked
	ChildOnlyVars []string
}

// HooksFromConfig copies the hook settings out of cfg
func HooksFromConfig(cfg *config.Config) Hooks {
	return Hooks{
		AgentLibrary:    cfg.AgentLibrary,
		AgentLibDir:     cfg.AgentLibDir,
		PreloadVar:      cfg.PreloadVar,
		LibPathVar:      cfg.LibPathVar,
		OrigLibPathVar:  cfg.OrigLibPathVar,
		OrigPreloadVar:  cfg.OrigPreloadVar,
		CaptureFileVar:  cfg.CaptureFileVar,
		CaptureOptsVar:  cfg.CaptureOptsVar,
		DebugLogFileVar: cfg.DebugLogFileVar,
		ChildOnlyVars:   append([]string(nil), cfg.ChildOnlyVars...),
	}
}

// DefaultHooks uses the default variable names
func DefaultHooks() Hooks {
	cfg, _ := config.LoadFrom(map[string]string{})
	return HooksFromConfig(cfg)
}

func (h Hooks) binDir() string {
	if h.BinDir != "" {
		return h.BinDir
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// Modifications returns the directives that load the agent into a process
// started with environment t. The saved originals are read from t as it is
// at the time of the call.
func (h Hooks) Modifications(t envmod.Table, captureFile string, opts CaptureOptions, logFile string) []envmod.Modification {
	bin := h.binDir()
	libDir := h.AgentLibDir
	if libDir == "" {
		libDir = bin
	}
	return []envmod.Modification{
		envmod.AppendVar(h.OrigLibPathVar, t[h.LibPathVar], envmod.SepPlatform),
		envmod.AppendVar(h.OrigPreloadVar, t[h.PreloadVar], envmod.SepPlatform),
		envmod.AppendVar(h.LibPathVar, bin, envmod.SepPlatform),
		envmod.AppendVar(h.LibPathVar, bin+"/../lib", envmod.SepPlatform),
		envmod.AppendVar(h.LibPathVar, libDir, envmod.SepPlatform),
		envmod.AppendVar(h.PreloadVar, h.AgentLibrary, envmod.SepPlatform),
		envmod.SetVar(h.CaptureFileVar, captureFile),
		envmod.SetVar(h.CaptureOptsVar, opts.EncodeAsString()),
		envmod.SetVar(h.DebugLogFileVar, logFile),
	}
}

// HookedEnviron returns envp with the agent hooks applied, for processes
// the agent spawns that should be captured as well
func (h Hooks) HookedEnviron(envp []string, captureFile string, opts CaptureOptions, logFile string) []string {
	t := envmod.FromEnviron(envp)
	envmod.ApplyAll(t, h.Modifications(t, captureFile, opts, logFile))
	return t.Environ()
}

// UnhookedEnviron returns envp without the variables that only the direct
// child may inherit
func (h Hooks) UnhookedEnviron(envp []string) []string {
	t := envmod.FromEnviron(envp)
	for _, name := range h.ChildOnlyVars {
		delete(t, name)
	}
	return t.Environ()
}

// ResetHooking restores the loader variables of the current process to the
// values saved before the agent was hooked in
func (h Hooks) ResetHooking() error {
	if err := os.Setenv(h.LibPathVar, os.Getenv(h.OrigLibPathVar)); err != nil {
		return err
	}
	if err := os.Setenv(h.PreloadVar, os.Getenv(h.OrigPreloadVar)); err != nil {
		return err
	}
	if err := os.Unsetenv(h.OrigLibPathVar); err != nil {
		return err
	}
	return os.Unsetenv(h.OrigPreloadVar)
}
