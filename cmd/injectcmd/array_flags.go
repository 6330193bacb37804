package main

import (
	"fmt"
	"strings"

	"github.com/criyle/go-inject/pkg/envmod"
)

type arrayFlags []string

func (f *arrayFlags) String() string {
	return fmt.Sprint([]string(*f))
}

func (f *arrayFlags) Set(value string) error {
	*f = append(*f, value)
	return nil
}

// envFlags collects NAME=VALUE arguments as modifications of one kind, in
// command line order across all the env flags
type envFlags struct {
	mods *[]envmod.Modification
	op   envmod.Op
}

func (f envFlags) String() string {
	if f.mods == nil {
		return ""
	}
	var names []string
	for _, m := range *f.mods {
		if m.Op == f.op {
			names = append(names, m.Name)
		}
	}
	return strings.Join(names, ",")
}

func (f envFlags) Set(value string) error {
	name, v, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected NAME=VALUE, got %q", value)
	}
	m := envmod.Modification{Name: name, Value: v, Op: f.op, Sep: envmod.SepPlatform}
	if f.op == envmod.Set {
		m.Sep = envmod.SepNone
	}
	*f.mods = append(*f.mods, m)
	return nil
}
