package ptracer

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// State returns the state letter from /proc/<pid>/stat, e.g. 'R', 'S',
// 'T' (stopped) or 't' (tracing stop)
func (t *Tracer) State(pid int) (byte, error) {
	data, err := os.ReadFile(filepath.Join(t.procRoot(), strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, errors.Wrap(err, "ptracer: read stat")
	}
	return parseState(data)
}

// parseState skips past the comm field, which may itself contain spaces
// and parentheses
func parseState(data []byte) (byte, error) {
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return 0, errors.Errorf("ptracer: malformed stat %q", data)
	}
	return data[i+2], nil
}
