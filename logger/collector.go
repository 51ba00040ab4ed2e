package logger

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry levels used by the Collector export filter.
const (
	CollectedLog   = 10
	CollectedWarn  = 20
	CollectedError = 30
)

// Entry is one collected log record.
type Entry struct {
	Level   int
	Time    time.Time
	Message string
}

// Collector implements Logger while retaining every record in memory so a
// diagnostics snapshot can be exported after the fact (for example attached
// to a metrics upload). It optionally tees into another Logger.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	next    Logger
}

// NewCollector creates a Collector. next may be nil to collect silently.
func NewCollector(next Logger) *Collector {
	return &Collector{next: next}
}

func (c *Collector) push(level int, format string, args ...any) {
	c.mu.Lock()
	c.entries = append(c.entries, Entry{
		Level:   level,
		Time:    time.Now(),
		Message: fmt.Sprintf(format, args...),
	})
	c.mu.Unlock()
}

// Logf records at log level and forwards.
func (c *Collector) Logf(format string, args ...any) {
	c.push(CollectedLog, format, args...)
	if c.next != nil {
		c.next.Logf(format, args...)
	}
}

// Warnf records at warn level and forwards.
func (c *Collector) Warnf(format string, args ...any) {
	c.push(CollectedWarn, format, args...)
	if c.next != nil {
		c.next.Warnf(format, args...)
	}
}

// Errorf records at error level and forwards.
func (c *Collector) Errorf(format string, args ...any) {
	c.push(CollectedError, format, args...)
	if c.next != nil {
		c.next.Errorf(format, args...)
	}
}

// Clear drops all collected entries.
func (c *Collector) Clear() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

// Entries returns a copy of the collected records.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ExportToStr renders the newest records at or above minLevel, at most
// maxEntries of them (0 means all), one per line.
func (c *Collector) ExportToStr(minLevel, maxEntries int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var filtered []Entry
	for _, e := range c.entries {
		if e.Level >= minLevel {
			filtered = append(filtered, e)
		}
	}
	if maxEntries > 0 && len(filtered) > maxEntries {
		filtered = filtered[len(filtered)-maxEntries:]
	}

	var b strings.Builder
	for _, e := range filtered {
		fmt.Fprintf(&b, "%s [%s] %s\n",
			e.Time.UTC().Format(time.RFC3339Nano), collectedLevelName(e.Level), e.Message)
	}
	return b.String()
}

func collectedLevelName(level int) string {
	switch level {
	case CollectedLog:
		return "LOG"
	case CollectedWarn:
		return "WARN"
	case CollectedError:
		return "ERROR"
	default:
		return fmt.Sprintf("L%d", level)
	}
}
