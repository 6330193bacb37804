package envmod

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Registry accumulates modifications registered by independent callers until
// they are applied as one ordered batch
type Registry struct {
	mu      sync.Mutex
	pending []Modification
}

// Register appends a modification to the pending batch
func (r *Registry) Register(m Modification) {
	r.mu.Lock()
	r.pending = append(r.pending, m)
	r.mu.Unlock()
}

// Pending returns a copy of the pending batch without clearing it
func (r *Registry) Pending() []Modification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Modification(nil), r.pending...)
}

// Take returns the pending batch and clears it. Concurrent callers each get a
// disjoint batch.
func (r *Registry) Take() []Modification {
	r.mu.Lock()
	defer r.mu.Unlock()
	mods := r.pending
	r.pending = nil
	return mods
}

// ApplyTo consumes the pending batch and applies it to t
func (r *Registry) ApplyTo(t Table) {
	ApplyAll(t, r.Take())
}

// ApplyToProcess consumes the pending batch and applies it to the environment
// of the current process. A directive that cannot be set does not stop the
// rest of the batch; the first such error is returned.
func (r *Registry) ApplyToProcess() error {
	mods := r.Take()
	env := FromEnviron(os.Environ())
	var first error
	for _, m := range mods {
		Apply(env, m)
		if err := os.Setenv(m.Name, env[m.Name]); err != nil && first == nil {
			first = errors.Wrapf(err, "envmod: set %s", m.Name)
		}
	}
	return first
}
