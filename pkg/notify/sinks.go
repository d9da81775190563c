package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// LogSink writes statuses to a logger.
type LogSink struct {
	log logrus.FieldLogger
}

// NewLogSink returns a sink that logs every status.
func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log.WithField("component", "status")}
}

// Notify logs s. Failures are logged as warnings.
func (l *LogSink) Notify(s Status) {
	entry := l.log.WithField("kind", s.Kind)

	if s.Name != "" {
		entry = entry.WithField("file", s.Name)
	}

	if s.Link != "" {
		entry = entry.WithField("link", s.Link)
	}

	if s.Kind == KindFailed {
		entry.Warn(s.String())

		return
	}

	entry.Info(s.String())
}

// History keeps the most recent statuses in a ring buffer.
type History struct {
	mu    sync.Mutex
	buf   []Status
	next  int
	count int
}

// NewHistory returns a history holding up to size statuses.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}

	return &History{buf: make([]Status, size)}
}

// Notify records s, evicting the oldest status when full.
func (h *History) Notify(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = s
	h.next = (h.next + 1) % len(h.buf)

	if h.count < len(h.buf) {
		h.count++
	}
}

// Recent returns up to limit statuses, newest first. A limit <= 0 returns
// everything held.
func (h *History) Recent(limit int) []Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Status, 0, n)

	for i := 0; i < n; i++ {
		idx := (h.next - 1 - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}

	return out
}
