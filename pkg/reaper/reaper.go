// Package reaper collects exited children that nobody waits for.
//
// The reaper subscribes to SIGCHLD and on every delivery runs the handler
// that was installed before it, then waits on the pids it tracks with
// WNOHANG. It never calls wait on -1, so children owned by other code in
// the process are left alone.
package reaper

import (
	"os"
	"os/signal"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var (
	// ErrInvalidPid is returned by Track for pid <= 0
	ErrInvalidPid = errors.New("reaper: invalid pid")
	// ErrClosed is returned after Shutdown
	ErrClosed = errors.New("reaper: shut down")
)

// Handler is the SIGCHLD consumer that was installed before the reaper
type Handler interface {
	HandleSignal(sig os.Signal)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(sig os.Signal)

// HandleSignal calls f(sig)
func (f HandlerFunc) HandleSignal(sig os.Signal) {
	f(sig)
}

// Waiter performs a non-blocking wait on pid and reports whether the child
// is gone (exited, killed or no longer ours)
type Waiter func(pid int) bool

// Option configures a Reaper
type Option func(*Reaper)

// WithWaiter replaces the wait4(WNOHANG) call
func WithWaiter(w Waiter) Option {
	return func(r *Reaper) {
		r.wait = w
	}
}

// WithLogger sets the logger used by Install and Shutdown. The reap pass
// itself never logs.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Reaper) {
		r.log = l
	}
}

// Reaper tracks child pids and collects them once they exit
type Reaper struct {
	lock spinLock

	// guarded by lock
	records   []*record
	active    list
	free      list
	installed bool
	closed    bool

	wait Waiter
	log  logrus.FieldLogger

	sigCh     chan os.Signal
	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a reaper. It does nothing until Install is called.
func New(opts ...Option) *Reaper {
	r := &Reaper{
		active: newList(),
		free:   newList(),
		wait:   wait4NoHang,
		log:    logrus.StandardLogger(),
		sigCh:  make(chan os.Signal, 1),
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Install subscribes the reaper to SIGCHLD. prev, which may be nil, runs
// before every reap pass. Only the first call has any effect.
func (r *Reaper) Install(prev Handler) error {
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return ErrClosed
	}
	if r.installed {
		r.lock.Unlock()
		return nil
	}
	r.installed = true
	r.lock.Unlock()

	signal.Notify(r.sigCh, unix.SIGCHLD)
	go r.loop(prev)
	r.log.Debug("reaper: installed SIGCHLD handler")
	return nil
}

// Installed reports whether Install has run
func (r *Reaper) Installed() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.installed
}

func (r *Reaper) loop(prev Handler) {
	for {
		select {
		case sig := <-r.sigCh:
			if prev != nil {
				prev.HandleSignal(sig)
			}
			r.Collect()

		case <-r.kick:
			r.Collect()

		case <-r.done:
			return
		}
	}
}

// Track adds pid to the active list. A reap pass is requested afterwards
// so a child that exited before being tracked is still collected.
//
// The kernel does not hand out a pid again before it is waited on, and the
// reaper is the only waiter for tracked pids, so Track does not search for
// duplicates while holding the lock.
func (r *Reaper) Track(pid int) error {
	if pid <= 0 {
		return ErrInvalidPid
	}
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return ErrClosed
	}
	i := r.free.popFront(r.records)
	if i == nilIndex {
		i = int32(len(r.records))
		r.records = append(r.records, &record{next: nilIndex})
	}
	rec := r.records[i]
	rec.pid = pid
	rec.state = stateActive
	r.active.append(r.records, i)
	r.lock.Unlock()

	select {
	case r.kick <- struct{}{}:
	default:
	}
	return nil
}

// Collect runs one reap pass. It is called from the signal loop, and is
// exported so callers without SIGCHLD delivery can drive it.
func (r *Reaper) Collect() {
	r.lock.Lock()
	pending := r.active.take()
	rs := r.records
	r.lock.Unlock()

	// the detached records are owned by this pass until they are spliced back
	reclaimed := newList()
	for cur := pending.head; cur != nilIndex; {
		i := cur
		cur = rs[i].next
		if !r.wait(rs[i].pid) {
			continue
		}
		pending.remove(rs, i)
		rs[i].state = stateReclaimed
		reclaimed.append(rs, i)
	}
	for cur := reclaimed.head; cur != nilIndex; cur = rs[cur].next {
		rs[cur].pid = 0
		rs[cur].state = stateFree
	}

	// Track may have grown the slab meanwhile, link through the current one
	r.lock.Lock()
	r.active.splice(r.records, pending)
	r.free.splice(r.records, reclaimed)
	r.lock.Unlock()
}

// Shutdown stops signal delivery and releases the free records. Active
// records are left in place since their processes are gone or irrelevant.
func (r *Reaper) Shutdown() {
	r.closeOnce.Do(func() {
		signal.Stop(r.sigCh)
		close(r.done)

		r.lock.Lock()
		for i := r.free.popFront(r.records); i != nilIndex; i = r.free.popFront(r.records) {
			r.records[i] = nil
		}
		r.closed = true
		r.lock.Unlock()
		r.log.Debug("reaper: shut down")
	})
}

// Snapshot is a point in time view of the reaper lists
type Snapshot struct {
	Active  []int
	Free    int
	Records int
}

// Snapshot walks the lists under the lock. It is meant for diagnostics and
// tests, not for the signal path.
func (r *Reaper) Snapshot() Snapshot {
	r.lock.Lock()
	defer r.lock.Unlock()

	var s Snapshot
	for _, i := range r.active.indices(r.records) {
		s.Active = append(s.Active, r.records[i].pid)
	}
	s.Free = len(r.free.indices(r.records))
	s.Records = len(r.records)
	return s
}

func wait4NoHang(pid int) bool {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			// collected elsewhere
			return true
		case err != nil:
			return false
		}
		return wpid == pid && (ws.Exited() || ws.Signaled())
	}
}
