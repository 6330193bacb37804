// Package handshake discovers the ident a preloaded agent announces once it
// is up inside the target process.
//
// Two discoverers are provided: ProcNet finds the agent's listening control
// port through procfs, Registry reads ident files the agent publishes into a
// directory. Backoff polls either of them with exponentially growing delays.
package handshake

// Discoverer looks up the ident published by the agent inside pid.
// A zero ident with a nil error means "not yet".
type Discoverer interface {
	Discover(pid int) (uint32, error)
}

// DiscovererFunc adapts a function to Discoverer
type DiscovererFunc func(pid int) (uint32, error)

// Discover calls f(pid)
func (f DiscovererFunc) Discover(pid int) (uint32, error) {
	return f(pid)
}

// Notifier is implemented by discoverers that can tell when a retry is
// worthwhile before the backoff delay ends
type Notifier interface {
	Changed() <-chan struct{}
}
