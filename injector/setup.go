package injector

import (
	"github.com/sirupsen/logrus"

	"github.com/criyle/go-inject/config"
	"github.com/criyle/go-inject/handshake"
	"github.com/criyle/go-inject/launcher"
	"github.com/criyle/go-inject/pkg/envmod"
	"github.com/criyle/go-inject/pkg/reaper"
	"github.com/criyle/go-inject/ptracer"
	"github.com/criyle/go-inject/types"
)

// FromConfig builds a coordinator with its reaper, launcher and discoverer
// set up from cfg. Close releases them.
func FromConfig(cfg *config.Config, log logrus.FieldLogger) (*Coordinator, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := reaper.New(reaper.WithLogger(log))
	l := launcher.New(r, log)
	l.Tracer = &ptracer.Tracer{Handler: log, Timeout: cfg.PauseTimeout}

	c := &Coordinator{
		Launcher: l,
		Hooks:    HooksFromConfig(cfg),
		Backoff: handshake.Backoff{
			Initial:  cfg.BackoffInitial,
			Max:      cfg.BackoffMax,
			Attempts: cfg.BackoffAttempts,
			Log:      log,
		},
		Registry: &envmod.Registry{},
		Options:  types.DefaultCaptureOptions(),
		LogFile:  cfg.LogFile,
		Log:      log,
	}
	c.closers = append(c.closers, r.Shutdown)

	if cfg.RegistryDir != "" {
		reg := handshake.NewRegistry(cfg.RegistryDir, log)
		if err := reg.Watch(); err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, func() { reg.Close() })
		c.Discoverer = reg
	} else {
		c.Discoverer = &handshake.ProcNet{First: cfg.FirstPort, Last: cfg.LastPort}
	}
	return c, nil
}
