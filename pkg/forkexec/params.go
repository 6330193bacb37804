package forkexec

import (
	"syscall"

	"github.com/pkg/errors"
)

// execParams are the Runner fields converted before fork, the child must
// not allocate
type execParams struct {
	path *byte
	argv []*byte
	env  []*byte
	dir  *byte
}

func newExecParams(r *Runner) (*execParams, error) {
	if len(r.Args) == 0 {
		return nil, errors.New("forkexec: empty argv")
	}
	path := r.Path
	if path == "" {
		path = r.Args[0]
	}

	var (
		p   execParams
		err error
	)
	if p.path, err = syscall.BytePtrFromString(path); err != nil {
		return nil, errors.Wrap(err, "forkexec: path")
	}
	if p.argv, err = syscall.SlicePtrFromStrings(r.Args); err != nil {
		return nil, errors.Wrap(err, "forkexec: argv")
	}
	if p.env, err = syscall.SlicePtrFromStrings(r.Env); err != nil {
		return nil, errors.Wrap(err, "forkexec: env")
	}
	if r.WorkDir != "" {
		if p.dir, err = syscall.BytePtrFromString(r.WorkDir); err != nil {
			return nil, errors.Wrap(err, "forkexec: workdir")
		}
	}
	return &p, nil
}

// fdPlan converts the fd map and returns the first descriptor above every
// source and target, where sources can be parked during the shuffle
func fdPlan(files []uintptr) ([]int, int) {
	fds := make([]int, len(files))
	spare := len(files)
	for i, f := range files {
		fds[i] = int(f)
		if fds[i] > spare {
			spare = fds[i]
		}
	}
	return fds, spare + 1
}
