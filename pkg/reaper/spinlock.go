package reaper

import (
	"runtime"
	"sync/atomic"
)

// spinLock is shared by Track and the SIGCHLD reap pass. Critical sections are
// a handful of index swaps, so spinning beats parking the goroutine.
type spinLock struct {
	state atomic.Int32
}

func (l *spinLock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	l.state.Store(0)
}
