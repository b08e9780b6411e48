package input

import (
	"sync"

	"github.com/bnema/segbridge/internal/logger"
	"github.com/charmbracelet/log"
)

// LogQueue records input at debug level without touching any device. It
// stands in when /dev/uinput is unavailable.
type LogQueue struct {
	log *log.Logger

	mu      sync.Mutex
	pending int
	synced  int
	closed  bool
}

func NewLogQueue() *LogQueue {
	return &LogQueue{log: logger.WithPrefix("input")}
}

func (q *LogQueue) queued() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.pending++
	return nil
}

func (q *LogQueue) QueueKey(code KeyCode, pressed bool) error {
	q.log.Debug("key", "code", code, "pressed", pressed)
	return q.queued()
}

func (q *LogQueue) QueueButton(btn Button, pressed bool) error {
	q.log.Debug("button", "button", btn, "pressed", pressed)
	return q.queued()
}

func (q *LogQueue) QueueRelativeAxis(axis Axis, delta int) error {
	q.log.Debug("motion", "axis", axis, "delta", delta)
	return q.queued()
}

func (q *LogQueue) QueueAbsoluteAxis(axis Axis, value, min, max int) error {
	q.log.Debug("position", "axis", axis, "value", value, "min", min, "max", max)
	return q.queued()
}

func (q *LogQueue) Sync() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.log.Debug("sync", "events", q.pending)
	q.synced += q.pending
	q.pending = 0
	return nil
}

// Synced returns how many events have been flushed so far.
func (q *LogQueue) Synced() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.synced
}

func (q *LogQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
