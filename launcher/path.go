package launcher

import (
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// expander resolves the shell shorthands a user may type for a path
type expander struct {
	getwd      func() (string, error)
	getenv     func(string) string
	lookupUser func(string) (*user.User, error)
}

var defaultExpander = expander{
	getwd:      os.Getwd,
	getenv:     os.Getenv,
	lookupUser: user.Lookup,
}

// expand trims path and replaces a leading ./ with the current directory,
// ~/ with $HOME and ~user with that user's home directory. Anything else,
// including an unknown user, is returned trimmed but unchanged.
func (e expander) expand(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case strings.HasPrefix(path, "./"):
		if wd, err := e.getwd(); err == nil {
			return wd + path[1:]
		}

	case strings.HasPrefix(path, "~/"):
		return e.getenv("HOME") + path[1:]

	case strings.HasPrefix(path, "~") && len(path) > 1:
		name, rest := path[1:], ""
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name, rest = name[:i], name[i:]
		}
		if name == "" {
			return path
		}
		if u, err := e.lookupUser(name); err == nil {
			return u.HomeDir + rest
		}
	}
	return path
}

// resolve turns app into the path handed to execve. A name with a slash has
// its directory made absolute, anything else is searched in PATH.
func resolve(app string) (string, error) {
	if strings.Contains(app, "/") {
		dir, base := filepath.Split(app)
		if dir == "" {
			dir = "."
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", errors.Wrapf(err, "resolve %q", app)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		return filepath.Join(abs, base), nil
	}

	path, err := exec.LookPath(app)
	if err != nil && !errors.Is(err, exec.ErrDot) {
		return "", errors.Wrapf(err, "resolve %q", app)
	}
	if !filepath.IsAbs(path) {
		if path, err = filepath.Abs(path); err != nil {
			return "", errors.Wrapf(err, "resolve %q", app)
		}
	}
	return path, nil
}
