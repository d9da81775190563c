package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Dispatcher delivers statuses to its sinks on a separate goroutine. When
// the buffer is full new statuses are dropped and counted.
type Dispatcher struct {
	log   logrus.FieldLogger
	sinks []Notifier
	ch    chan Status

	dropped atomic.Uint64

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// Ensure interface compliance.
var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(
	log logrus.FieldLogger,
	buffer int,
	sinks ...Notifier,
) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}

	return &Dispatcher{
		log:   log.WithField("component", "notify"),
		sinks: sinks,
		ch:    make(chan Status, buffer),
		done:  make(chan struct{}),
	}
}

// Start begins delivering statuses.
func (d *Dispatcher) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}

	d.started = true

	go d.run()

	return nil
}

// Stop flushes queued statuses and stops delivery. Statuses sent after Stop
// are dropped.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()

		return nil
	}

	d.closed = true
	started := d.started
	close(d.ch)
	d.mu.Unlock()

	if started {
		<-d.done
	}

	if n := d.dropped.Load(); n > 0 {
		d.log.WithField("dropped", n).Warn("Statuses dropped because the queue was full")
	}

	return nil
}

// Notify enqueues s without blocking.
func (d *Dispatcher) Notify(s Status) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)

		return
	}

	select {
	case d.ch <- s:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns how many statuses were discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for s := range d.ch {
		for _, sink := range d.sinks {
			sink.Notify(s)
		}
	}
}
