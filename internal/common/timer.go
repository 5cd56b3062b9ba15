// Package common provides timing helpers shared by the client and the
// benchmark runner.
package common

import (
	"log/slog"
	"time"
)

// Timer measures one wall-clock interval with an optional name.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
	stopped  bool
}

// NewTimer starts an unnamed timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer starts a timer with the given name.
func NewNamedTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop records and returns the elapsed duration. Later calls return the first result.
func (t *Timer) Stop() time.Duration {
	if !t.stopped {
		t.duration = time.Since(t.start)
		t.stopped = true
	}
	return t.duration
}

// Elapsed returns the time since start without stopping the timer.
func (t *Timer) Elapsed() time.Duration {
	if t.stopped {
		return t.duration
	}
	return time.Since(t.start)
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// LogValue groups the name and elapsed seconds for structured logs.
func (t *Timer) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Float64("seconds", t.Elapsed().Seconds())}
	if t.name != "" {
		attrs = append([]slog.Attr{slog.String("name", t.name)}, attrs...)
	}
	return slog.GroupValue(attrs...)
}
