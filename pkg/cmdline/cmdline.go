// Package cmdline splits a single command line string into an argument
// vector the way a POSIX shell would for the simple cases: whitespace
// separation, single quotes and double quotes with backslash escaping.
//
// No variable expansion, globbing or escaping outside of double quotes is
// performed.
package cmdline

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformed is returned when the command line ends inside a quote or with a
// dangling escape
var ErrMalformed = errors.New("cmdline: malformed command line")

// Split parses line into argv. argv[0] is always app by convention.
// On malformed input it returns nil and ErrMalformed, never a partial parse.
func Split(app, line string) ([]string, error) {
	argv := []string{app}

	var (
		a       strings.Builder
		haveArg bool // set once a quote opened, so '' yields an empty argument
		dquot   bool
		squot   bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case !dquot && !squot && (c == ' ' || c == '\t'):
			if a.Len() > 0 || haveArg {
				argv = append(argv, a.String())
			}
			a.Reset()
			haveArg = false

		case !dquot && !squot && c == '"':
			dquot = true
			haveArg = true

		case !dquot && !squot && c == '\'':
			squot = true
			haveArg = true

		case dquot && c == '"':
			dquot = false

		case squot && c == '\'':
			squot = false

		case squot:
			a.WriteByte(c)

		case dquot && c == '\\':
			i++
			if i >= len(line) {
				return nil, ErrMalformed
			}
			a.WriteByte(line[i])

		default:
			a.WriteByte(c)
		}
	}

	if squot || dquot {
		return nil, ErrMalformed
	}
	if a.Len() > 0 || haveArg {
		argv = append(argv, a.String())
	}
	return argv, nil
}

// Join quotes args into a single command line so that Split(app, Join(args))
// yields app followed by args.
func Join(args []string) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quote(arg))
	}
	return b.String()
}

func quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t'\"\\") {
		return arg
	}
	if !strings.Contains(arg, "'") {
		return "'" + arg + "'"
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(arg); i++ {
		if arg[i] == '"' || arg[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(arg[i])
	}
	b.WriteByte('"')
	return b.String()
}
