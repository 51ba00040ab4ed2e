// Package logger provides the logging capability used across vchat-go.
//
// Core protocol code never reaches for an ambient singleton: components take
// a Logger at construction time. The package-level Default and the Tracef..
// Errorf helpers exist only for convenience at the edges (cmd binaries,
// quick debugging).
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level is the verbosity threshold used by the logger. Lower values are more
// verbose.
type Level int32

const (
	// LevelTrace enables extremely verbose logs (protocol payloads, router inputs).
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

// ParseLevel parses a log level string into a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

// Logger is the capability handed to protocol components.
//
// Implementations must be safe for use from multiple goroutines.
type Logger interface {
	Logf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StdLogger writes leveled lines through the standard library log package.
type StdLogger struct {
	mu    sync.Mutex
	out   *log.Logger
	level atomic.Int32
}

// NewStdLogger creates a StdLogger writing to w with the given threshold.
func NewStdLogger(w io.Writer, level Level) *StdLogger {
	l := &StdLogger{out: log.New(w, "", log.LstdFlags|log.Lmicroseconds)}
	l.level.Store(int32(level))
	return l
}

// SetLevel updates the threshold.
func (l *StdLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// SetOutput replaces the destination writer.
func (l *StdLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.SetOutput(w)
}

// Enabled reports whether a level would be emitted.
func (l *StdLogger) Enabled(level Level) bool {
	return level >= Level(l.level.Load())
}

func (l *StdLogger) emit(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

// Logf logs at INFO level.
func (l *StdLogger) Logf(format string, args ...any) { l.emit(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func (l *StdLogger) Warnf(format string, args ...any) { l.emit(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func (l *StdLogger) Errorf(format string, args ...any) { l.emit(LevelError, format, args...) }

// Tracef logs at TRACE level.
func (l *StdLogger) Tracef(format string, args ...any) { l.emit(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func (l *StdLogger) Debugf(format string, args ...any) { l.emit(LevelDebug, format, args...) }

// Default is the process-wide convenience logger.
var Default = NewStdLogger(os.Stderr, LevelInfo)

// SetLevel sets the global log level threshold on Default.
func SetLevel(level Level) { Default.SetLevel(level) }

// SetOutput replaces the writer used by Default.
func SetOutput(w io.Writer) { Default.SetOutput(w) }

// Tracef logs at TRACE level on Default.
func Tracef(format string, args ...any) { Default.Tracef(format, args...) }

// Debugf logs at DEBUG level on Default.
func Debugf(format string, args ...any) { Default.Debugf(format, args...) }

// Infof logs at INFO level on Default.
func Infof(format string, args ...any) { Default.Logf(format, args...) }

// Warnf logs at WARN level on Default.
func Warnf(format string, args ...any) { Default.Warnf(format, args...) }

// Errorf logs at ERROR level on Default.
func Errorf(format string, args ...any) { Default.Errorf(format, args...) }

// Nop is a Logger that discards everything.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Logf(string, ...any)   {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
