package envmod

import (
	"bytes"
	"sort"
	"strings"
)

// Table maps variable names to values. Order is not kept: flattening produces
// entries sorted by name.
type Table map[string]string

// FromEnviron builds a table from "NAME=value" entries such as os.Environ().
// Entries without '=' are skipped; a repeated name keeps the last value.
func FromEnviron(environ []string) Table {
	t := make(Table, len(environ))
	for _, e := range environ {
		i := strings.IndexByte(e, '=')
		if i < 0 {
			continue
		}
		t[e[:i]] = e[i+1:]
	}
	return t
}

// FromBlock builds a table from a NUL delimited environment block. The block
// may end with one or two NUL bytes.
func FromBlock(block []byte) Table {
	var environ []string
	for _, e := range bytes.Split(block, []byte{0}) {
		if len(e) > 0 {
			environ = append(environ, string(e))
		}
	}
	return FromEnviron(environ)
}

// Clone returns a copy of the table
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// Equal reports whether both tables hold the same names and values
func (t Table) Equal(o Table) bool {
	if len(t) != len(o) {
		return false
	}
	for k, v := range t {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Environ flattens the table into sorted "NAME=value" entries
func (t Table) Environ() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	environ := make([]string, 0, len(keys))
	for _, k := range keys {
		environ = append(environ, k+"="+t[k])
	}
	return environ
}

// Block flattens the table into a NUL delimited block terminated by an extra
// NUL
func (t Table) Block() []byte {
	var b bytes.Buffer
	for _, e := range t.Environ() {
		b.WriteString(e)
		b.WriteByte(0)
	}
	b.WriteByte(0)
	return b.Bytes()
}
