package handshake

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrTimeout is returned by Poll when every attempt came back empty
var ErrTimeout = errors.New("handshake: no ident discovered")

// Backoff polls a Discoverer, doubling the delay between attempts up to Max
type Backoff struct {
	Initial  time.Duration
	Max      time.Duration
	Attempts int

	Log logrus.FieldLogger
}

// DefaultBackoff gives the agent a few seconds to come up
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:  time.Millisecond,
		Max:      500 * time.Millisecond,
		Attempts: 16,
	}
}

func (b Backoff) log() logrus.FieldLogger {
	if b.Log == nil {
		return logrus.StandardLogger()
	}
	return b.Log
}

// Poll asks d for pid's ident until it is non-zero, the attempts run out or
// ctx is done. A discover error counts as "not yet". If d implements
// Notifier, a notification triggers an extra Discover within the current
// delay; only an elapsed delay uses up an attempt.
func (b Backoff) Poll(ctx context.Context, pid int, d Discoverer) (uint32, error) {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := b.Initial
	if delay <= 0 {
		delay = time.Millisecond
	}

	var wake <-chan struct{}
	if n, ok := d.(Notifier); ok {
		wake = n.Changed()
	}

	log := b.log().WithField("pid", pid)
	discover := func(attempt int) uint32 {
		ident, err := d.Discover(pid)
		switch {
		case err != nil:
			log.WithError(err).Debug("handshake: discover failed")
		case ident != 0:
			log.WithField("ident", ident).Debugf("handshake: discovered after %d attempts", attempt+1)
		}
		return ident
	}

	for i := 0; ; i++ {
		if ident := discover(i); ident != 0 {
			return ident, nil
		}
		if i+1 >= attempts {
			return 0, ErrTimeout
		}

		timer := time.NewTimer(delay)
	sleep:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return 0, ctx.Err()
			case <-wake:
				// possibly another pid's file, the delay keeps running
				if ident := discover(i); ident != 0 {
					timer.Stop()
					return ident, nil
				}
			case <-timer.C:
				break sleep
			}
		}

		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
}
