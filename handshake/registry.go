package handshake

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Registry is a directory of ident files named after the pid that wrote
// them. The agent publishes, the controller discovers.
type Registry struct {
	Dir string
	Log logrus.FieldLogger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	changed chan struct{}
	done    chan struct{}
}

// NewRegistry creates a registry in dir
func NewRegistry(dir string, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{Dir: dir, Log: log}
}

func (r *Registry) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

func (r *Registry) path(pid int) string {
	return filepath.Join(r.Dir, strconv.Itoa(pid))
}

// Publish records ident for pid. The file appears atomically so a reader
// never sees a partial write.
func (r *Registry) Publish(pid int, ident uint32) error {
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return errors.Wrap(err, "handshake: create registry")
	}
	f, err := os.CreateTemp(r.Dir, ".publish-*")
	if err != nil {
		return errors.Wrap(err, "handshake: create ident file")
	}
	_, err = f.WriteString(strconv.FormatUint(uint64(ident), 10))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return errors.Wrap(err, "handshake: write ident file")
	}
	if err := os.Rename(f.Name(), r.path(pid)); err != nil {
		os.Remove(f.Name())
		return errors.Wrap(err, "handshake: publish ident file")
	}
	return nil
}

// Discover implements Discoverer
func (r *Registry) Discover(pid int) (uint32, error) {
	data, err := os.ReadFile(r.path(pid))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "handshake: read ident file")
	}
	ident, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "handshake: ident file for %d", pid)
	}
	return uint32(ident), nil
}

// Remove deletes the ident file of pid
func (r *Registry) Remove(pid int) error {
	err := os.Remove(r.path(pid))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(err, "handshake: remove ident file")
}

// Watch starts watching the directory so Changed fires when an ident file
// is published
func (r *Registry) Watch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		return nil
	}
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return errors.Wrap(err, "handshake: create registry")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "handshake: watcher")
	}
	if err := w.Add(r.Dir); err != nil {
		w.Close()
		return errors.Wrap(err, "handshake: watch registry")
	}
	r.watcher = w
	r.changed = make(chan struct{}, 1)
	r.done = make(chan struct{})
	go r.loop(w, r.changed, r.done)
	return nil
}

func (r *Registry) loop(w *fsnotify.Watcher, changed chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			// temp files are renamed into place, which shows up as Create
			if strings.HasPrefix(filepath.Base(ev.Name), ".") || !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				continue
			}
			select {
			case changed <- struct{}{}:
			default:
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.log().WithError(err).Warn("handshake: registry watcher")
		}
	}
}

// Changed implements Notifier. It is nil, and never fires, before Watch.
func (r *Registry) Changed() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// Close stops watching
func (r *Registry) Close() error {
	r.mu.Lock()
	w, done := r.watcher, r.done
	r.watcher = nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return errors.Wrap(err, "handshake: close watcher")
}
