// Package throttle rate limits repetitive log messages, such as an error that
// recurs on every video frame.
package throttle

import (
	"strconv"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
)

const DefaultInterval = 15 * time.Second

// Log emits at most one message per Interval.
// Messages that are swallowed are counted, and the count is appended to the next message that gets through.
type Log struct {
	Interval time.Duration

	lock       sync.Mutex
	last       time.Time
	suppressed int
	now        func() time.Time
}

func New(interval time.Duration) *Log {
	return &Log{Interval: interval}
}

// allow returns true if a message may be emitted now, and the number of messages that were suppressed before it
func (t *Log) allow() (bool, int) {
	t.lock.Lock()
	defer t.lock.Unlock()
	now := time.Now()
	if t.now != nil {
		now = t.now()
	}
	if !t.last.IsZero() && now.Sub(t.last) < t.Interval {
		t.suppressed++
		return false, 0
	}
	t.last = now
	n := t.suppressed
	t.suppressed = 0
	return true, n
}

func (t *Log) Warnf(log logs.Log, format string, args ...any) {
	if ok, n := t.allow(); ok {
		log.Warnf(format+suffix(n), args...)
	}
}

func (t *Log) Errorf(log logs.Log, format string, args ...any) {
	if ok, n := t.allow(); ok {
		log.Errorf(format+suffix(n), args...)
	}
}

func suffix(suppressed int) string {
	if suppressed == 0 {
		return ""
	}
	return " (" + strconv.Itoa(suppressed) + " similar messages suppressed)"
}
