// Package progress reports the advance of an evaluation or benchmark run.
package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Reporter receives run events in enumeration order. Implementations must be
// safe to call from the single driver goroutine; the console and log
// reporters are also safe for concurrent use.
type Reporter interface {
	// OnStart is called once with the number of items to process.
	OnStart(total int)
	// OnItem is called after each item, skipped or not.
	OnItem(current, total int, name string)
	// OnSkip records an item excluded from the aggregate.
	OnSkip(name, reason string)
	// OnError records a per-item failure that did not stop the run.
	OnError(name string, err error)
	// OnComplete is called once when the run ends.
	OnComplete()
}

// NoOp ignores every event.
type NoOp struct{}

func (NoOp) OnStart(int)             {}
func (NoOp) OnItem(int, int, string) {}
func (NoOp) OnSkip(string, string)   {}
func (NoOp) OnError(string, error)   {}
func (NoOp) OnComplete()             {}

// Console draws a progress bar on a terminal.
type Console struct {
	writer         io.Writer
	prefix         string
	width          int
	updateInterval time.Duration

	mu         sync.Mutex
	startTime  time.Time
	lastUpdate time.Time
	skipped    int
	failed     int
}

// NewConsole writes to w (stderr when nil).
func NewConsole(w io.Writer, prefix string) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{
		writer:         w,
		prefix:         prefix,
		width:          40,
		updateInterval: 100 * time.Millisecond,
	}
}

// WithWidth sets the progress bar width.
func (c *Console) WithWidth(width int) *Console {
	c.width = width
	return c
}

// WithUpdateInterval sets how frequently the bar is redrawn.
func (c *Console) WithUpdateInterval(interval time.Duration) *Console {
	c.updateInterval = interval
	return c
}

func (c *Console) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.lastUpdate = time.Time{}
	c.skipped, c.failed = 0, 0
	_, _ = fmt.Fprintf(c.writer, "%s0/%d (0.0%%)\n", c.prefix, total)
}

func (c *Console) OnItem(current, total int, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && current < total {
		return
	}
	c.lastUpdate = now
	c.draw(current, total, now)
}

func (c *Console) OnSkip(string, string) {
	c.mu.Lock()
	c.skipped++
	c.mu.Unlock()
}

func (c *Console) OnError(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failed++
	_, _ = fmt.Fprintf(c.writer, "\n%sError on %s: %v\n", c.prefix, name, err)
}

func (c *Console) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)
	_, _ = fmt.Fprintf(c.writer, "\n%sCompleted in %v (%d skipped, %d failed)\n",
		c.prefix, elapsed.Round(time.Millisecond), c.skipped, c.failed)
}

func (c *Console) draw(current, total int, now time.Time) {
	if total == 0 {
		return
	}
	if current > total {
		current = total
	}

	percent := float64(current) / float64(total) * 100.0
	filled := c.width * current / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	status := fmt.Sprintf("\r%s[%s] %d/%d (%.1f%%)", c.prefix, bar, current, total, percent)

	if elapsed := now.Sub(c.startTime); elapsed > 0 && current > 0 {
		status += fmt.Sprintf(" %.1f/s", float64(current)/elapsed.Seconds())
		if current < total {
			eta := time.Duration(elapsed.Seconds() * float64(total-current) / float64(current) * float64(time.Second))
			status += fmt.Sprintf(" ETA: %v", eta.Round(time.Second))
		}
	}
	_, _ = fmt.Fprint(c.writer, status)
}

// Log reports through slog, every interval items.
type Log struct {
	logger   *slog.Logger
	level    slog.Level
	interval int

	mu        sync.Mutex
	lastLog   int
	skipped   int
	startTime time.Time
}

// NewLog logs at level (slog.Default when logger is nil).
func NewLog(logger *slog.Logger, level slog.Level) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger, level: level, interval: 10}
}

// WithInterval sets how often progress is logged, in items.
func (l *Log) WithInterval(n int) *Log {
	if n < 1 {
		n = 1
	}
	l.interval = n
	return l
}

func (l *Log) OnStart(total int) {
	l.mu.Lock()
	l.startTime = time.Now()
	l.lastLog = 0
	l.skipped = 0
	l.mu.Unlock()
	l.logger.Log(context.Background(), l.level, "Starting run", "total", total)
}

func (l *Log) OnItem(current, total int, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current-l.lastLog < l.interval && current != total {
		return
	}
	l.lastLog = current
	elapsed := time.Since(l.startTime)
	var percent float64
	if total > 0 {
		percent = float64(current) / float64(total) * 100.0
	}
	l.logger.Log(context.Background(), l.level, "Progress update",
		"current", current,
		"total", total,
		"last", name,
		"percent", fmt.Sprintf("%.1f", percent),
		"elapsed", elapsed.Round(time.Millisecond),
	)
}

// OnSkip only counts; the caller logs each skip with its reason.
func (l *Log) OnSkip(string, string) {
	l.mu.Lock()
	l.skipped++
	l.mu.Unlock()
}

func (l *Log) OnError(name string, err error) {
	l.logger.Warn("Image failed", "image", name, "error", err)
}

func (l *Log) OnComplete() {
	l.mu.Lock()
	elapsed := time.Since(l.startTime)
	skipped := l.skipped
	l.mu.Unlock()
	l.logger.Log(context.Background(), l.level, "Run completed",
		"elapsed", elapsed.Round(time.Millisecond),
		"skipped", skipped)
}

// Multi fans events out to several reporters.
type Multi []Reporter

func (m Multi) OnStart(total int) {
	for _, r := range m {
		r.OnStart(total)
	}
}

func (m Multi) OnItem(current, total int, name string) {
	for _, r := range m {
		r.OnItem(current, total, name)
	}
}

func (m Multi) OnSkip(name, reason string) {
	for _, r := range m {
		r.OnSkip(name, reason)
	}
}

func (m Multi) OnError(name string, err error) {
	for _, r := range m {
		r.OnError(name, err)
	}
}

func (m Multi) OnComplete() {
	for _, r := range m {
		r.OnComplete()
	}
}
