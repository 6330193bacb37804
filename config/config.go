// Package config reads injector settings from INJECTOR_* environment
// variables and capture options from YAML files
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/criyle/go-inject/types"
)

// Config holds the injector settings
type Config struct {
	// AgentLibrary is the file name of the agent put into the preload list
	AgentLibrary string `env:"INJECTOR_AGENT_LIB" envDefault:"libinject_agent.so"`
	// AgentLibDir is appended to the library search path, the directory of
	// the running executable when empty
	AgentLibDir string `env:"INJECTOR_AGENT_LIB_DIR"`

	PreloadVar      string   `env:"INJECTOR_PRELOAD_VAR" envDefault:"LD_PRELOAD"`
	LibPathVar      string   `env:"INJECTOR_LIB_PATH_VAR" envDefault:"LD_LIBRARY_PATH"`
	OrigLibPathVar  string   `env:"INJECTOR_ORIG_LIB_PATH_VAR" envDefault:"INJECT_ORIGLIBPATH"`
	OrigPreloadVar  string   `env:"INJECTOR_ORIG_PRELOAD_VAR" envDefault:"INJECT_ORIGPRELOAD"`
	CaptureFileVar  string   `env:"INJECTOR_CAPTURE_FILE_VAR" envDefault:"INJECT_CAPFILE"`
	CaptureOptsVar  string   `env:"INJECTOR_CAPTURE_OPTS_VAR" envDefault:"INJECT_CAPOPTS"`
	DebugLogFileVar string   `env:"INJECTOR_DEBUG_LOG_FILE_VAR" envDefault:"INJECT_DEBUG_LOG_FILE"`
	ChildOnlyVars   []string `env:"INJECTOR_CHILD_ONLY_VARS" envSeparator:"," envDefault:"ENABLE_INJECT_LAYER"`

	// FirstPort and LastPort bound the agent control port scan
	FirstPort uint16 `env:"INJECTOR_FIRST_PORT" envDefault:"38920"`
	LastPort  uint16 `env:"INJECTOR_LAST_PORT" envDefault:"38927"`
	// RegistryDir switches discovery from the port scan to ident files
	RegistryDir string `env:"INJECTOR_REGISTRY_DIR"`

	BackoffInitial  time.Duration `env:"INJECTOR_BACKOFF_INITIAL" envDefault:"1ms"`
	BackoffMax      time.Duration `env:"INJECTOR_BACKOFF_MAX" envDefault:"500ms"`
	BackoffAttempts int           `env:"INJECTOR_BACKOFF_ATTEMPTS" envDefault:"16"`

	// PauseTimeout bounds each wait for the target to stop
	PauseTimeout time.Duration `env:"INJECTOR_PAUSE_TIMEOUT" envDefault:"10s"`

	LogFile  string `env:"INJECTOR_LOG_FILE"`
	LogLevel string `env:"INJECTOR_LOG_LEVEL" envDefault:"info"`
}

// Load parses the configuration from the process environment
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return &cfg, cfg.Validate()
}

// LoadFrom parses the configuration from the given variables only
func LoadFrom(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return &cfg, cfg.Validate()
}

// Validate checks the values that cannot be expressed as tags
func (c *Config) Validate() error {
	switch {
	case c.FirstPort > c.LastPort:
		return errors.Errorf("config: port range %d-%d is empty", c.FirstPort, c.LastPort)
	case c.BackoffAttempts <= 0:
		return errors.Errorf("config: backoff attempts must be positive, got %d", c.BackoffAttempts)
	case c.AgentLibrary == "":
		return errors.New("config: empty agent library")
	case c.PreloadVar == "" || c.LibPathVar == "":
		return errors.New("config: empty loader variable name")
	}
	return nil
}

// LoadCaptureOptions reads capture options from a YAML file. Keys that are
// absent keep their DefaultCaptureOptions value.
func LoadCaptureOptions(path string) (types.CaptureOptions, error) {
	opts := types.DefaultCaptureOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrap(err, "failed to read capture options")
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "failed to parse capture options %s", path)
	}
	return opts, nil
}
