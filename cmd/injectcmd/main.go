// Command injectcmd launches a program with the capture agent preloaded and
// prints the handshake id once the agent has answered.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/criyle/go-inject/config"
	"github.com/criyle/go-inject/injector"
	"github.com/criyle/go-inject/launcher"
	"github.com/criyle/go-inject/pkg/cmdline"
	"github.com/criyle/go-inject/pkg/envmod"
	"github.com/criyle/go-inject/types"
)

var (
	workDir, captureFile, optsFile, logFile string
	waitForExit, plainLaunch, verbose       bool
	preloads                                arrayFlags
	envMods                                 []envmod.Modification
)

func printUsage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] <executable> [args...]\n", os.Args[0])
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = printUsage
	flag.StringVar(&workDir, "w", "", "Set the working directory, the executable's directory when empty")
	flag.StringVar(&captureFile, "c", "", "Set the capture file template passed to the agent")
	flag.StringVar(&optsFile, "opts", "", "Read capture options from a YAML file")
	flag.StringVar(&logFile, "log", "", "Write debug logs to file, also passed to the agent")
	flag.Var(envFlags{&envMods, envmod.Set}, "env", "Set NAME=VALUE in the target environment")
	flag.Var(envFlags{&envMods, envmod.Append}, "env-append", "Append VALUE to NAME in the target environment")
	flag.Var(envFlags{&envMods, envmod.Prepend}, "env-prepend", "Prepend VALUE to NAME in the target environment")
	flag.Var(&preloads, "preload", "Preload an extra library before the agent")
	flag.BoolVar(&waitForExit, "wait", false, "Wait for the target to exit")
	flag.BoolVar(&plainLaunch, "launch", false, "Launch without injection and print the captured output")
	flag.BoolVar(&verbose, "v", false, "Show debug logs")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	os.Exit(run(cfg, log, args))
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		log.SetOutput(f)
	}
	return log, nil
}

func run(cfg *config.Config, log *logrus.Logger, args []string) int {
	c, err := injector.FromConfig(cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to set up injector")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer c.Close()

	for _, p := range preloads {
		c.Registry.Register(envmod.AppendVar(cfg.PreloadVar, p, envmod.SepPlatform))
	}

	app, cmdLine := args[0], cmdline.Join(args[1:])
	if plainLaunch {
		return launch(c.Launcher, c.Registry, app, cmdLine)
	}

	opts := types.DefaultCaptureOptions()
	if optsFile != "" {
		if opts, err = config.LoadCaptureOptions(optsFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res := c.LaunchAndInjectContext(ctx, injector.Request{
		App:         app,
		WorkDir:     workDir,
		CmdLine:     cmdLine,
		Env:         envMods,
		CaptureFile: captureFile,
		Options:     opts,
		WaitForExit: waitForExit,
	})
	if !res.Status.OK() {
		fmt.Fprintln(os.Stderr, res.Status.Error())
		return 1
	}
	fmt.Println(res.Ident)
	if waitForExit {
		return res.ExitCode
	}
	return 0
}

func launch(l *launcher.Launcher, reg *envmod.Registry, app, cmdLine string) int {
	env := envmod.FromEnviron(os.Environ())
	envmod.ApplyAll(env, reg.Pending())
	envmod.ApplyAll(env, envMods)

	res, err := l.Launch(launcher.Params{
		App:           app,
		WorkDir:       workDir,
		CmdLine:       cmdLine,
		Env:           env.Environ(),
		CaptureOutput: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Fprint(os.Stdout, res.Stdout)
	fmt.Fprint(os.Stderr, res.Stderr)
	return res.ExitCode
}
