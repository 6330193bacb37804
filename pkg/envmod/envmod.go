// Package envmod models a process environment as a table and applies ordered
// Set / Append / Prepend directives to it.
package envmod

import "fmt"

// Op is the kind of modification applied to a variable
type Op int

// Modification kinds
const (
	Set Op = iota
	Append
	Prepend
)

var opString = []string{"Set", "Append", "Prepend"}

func (o Op) String() string {
	if o >= Set && o <= Prepend {
		return opString[o]
	}
	return "Unknown"
}

// Sep is the separator inserted between an existing value and an appended or
// prepended one
type Sep int

// Separators. SepPlatform is ':' on every platform this package supports.
const (
	SepNone Sep = iota
	SepColon
	SepSemicolon
	SepPlatform
)

func (s Sep) String() string {
	switch s {
	case SepNone:
		return ""
	case SepColon, SepPlatform:
		return ":"
	case SepSemicolon:
		return ";"
	}
	return ""
}

// Modification is a single directive targeting one environment variable
type Modification struct {
	Name  string
	Value string
	Op    Op
	Sep   Sep
}

// SetVar creates a Set directive
func SetVar(name, value string) Modification {
	return Modification{Name: name, Value: value, Op: Set, Sep: SepNone}
}

// AppendVar creates an Append directive
func AppendVar(name, value string, sep Sep) Modification {
	return Modification{Name: name, Value: value, Op: Append, Sep: sep}
}

// PrependVar creates a Prepend directive
func PrependVar(name, value string, sep Sep) Modification {
	return Modification{Name: name, Value: value, Op: Prepend, Sep: sep}
}

func (m Modification) String() string {
	return fmt.Sprintf("%v(%s=%q, sep=%q)", m.Op, m.Name, m.Value, m.Sep.String())
}

// ApplyValue returns the new value of a variable currently holding v
func (m Modification) ApplyValue(v string) string {
	switch m.Op {
	case Set:
		return m.Value

	case Append:
		if v == "" {
			return m.Value
		}
		return v + m.Sep.String() + m.Value

	case Prepend:
		if v == "" {
			return m.Value
		}
		return m.Value + m.Sep.String() + v
	}
	return v
}

// Apply applies a single modification to the table. An absent variable is
// treated as empty.
func Apply(t Table, m Modification) {
	t[m.Name] = m.ApplyValue(t[m.Name])
}

// ApplyAll applies the modifications strictly in order; later entries observe
// the effect of earlier ones
func ApplyAll(t Table, mods []Modification) {
	for _, m := range mods {
		Apply(t, m)
	}
}
