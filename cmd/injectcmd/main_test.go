package main

import (
	"flag"
	"io"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/criyle/go-inject/config"
	"github.com/criyle/go-inject/launcher"
	"github.com/criyle/go-inject/pkg/envmod"
)

func TestEnvFlags(t *testing.T) {
	var mods []envmod.Modification
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(envFlags{&mods, envmod.Set}, "env", "")
	fs.Var(envFlags{&mods, envmod.Append}, "env-append", "")
	fs.Var(envFlags{&mods, envmod.Prepend}, "env-prepend", "")

	require.NoError(t, fs.Parse([]string{
		"-env", "A=1",
		"-env-prepend", "PATH=/opt/bin",
		"-env", "B=x=y",
		"-env-append", "PATH=/usr/games",
	}))
	assert.Equal(t, []envmod.Modification{
		envmod.SetVar("A", "1"),
		envmod.PrependVar("PATH", "/opt/bin", envmod.SepPlatform),
		envmod.SetVar("B", "x=y"),
		envmod.AppendVar("PATH", "/usr/games", envmod.SepPlatform),
	}, mods)

	env := envmod.Table{"PATH": "/bin"}
	envmod.ApplyAll(env, mods)
	assert.Equal(t, "/opt/bin:/bin:/usr/games", env["PATH"])

	assert.Error(t, fs.Parse([]string{"-env", "novalue"}))
	assert.Error(t, fs.Parse([]string{"-env", "=value"}))
}

func TestArrayFlags(t *testing.T) {
	var f arrayFlags
	require.NoError(t, f.Set("a.so"))
	require.NoError(t, f.Set("b.so"))
	assert.Equal(t, "[a.so b.so]", f.String())
}

func TestLaunchExitCode(t *testing.T) {
	log, _ := test.NewNullLogger()
	l := launcher.New(nil, log)

	var reg envmod.Registry
	reg.Register(envmod.SetVar("INJECTCMD_CODE", "3"))
	assert.Equal(t, 3, launch(l, &reg, "/bin/sh", "-c 'exit $INJECTCMD_CODE'"))
	assert.Equal(t, 0, launch(l, &reg, "/bin/true", ""))
	assert.Equal(t, 1, launch(l, &reg, "/nonexistent/program", ""))
}

func TestRunPlainLaunch(t *testing.T) {
	plainLaunch = true
	defer func() { plainLaunch = false }()

	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)
	log, _ := test.NewNullLogger()

	assert.Equal(t, 4, run(cfg, log, []string{"/bin/sh", "-c", "exit 4"}))
}
