package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2/data/binding"

	"github.com/ConserveLee/snapbuy/internal/constants"
)

// LogLevel defines the severity of the log
type LogLevel int

const (
	LevelInfo LogLevel = iota
	LevelWarn
	LevelError
	LevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelDebug:
		return "DEBUG"
	default:
		return "INFO"
	}
}

// AppLogger handles application logging to UI and console
type AppLogger struct {
	mu          sync.Mutex
	dataBinding binding.StringList // nil when running headless
	console     *slog.Logger
	maxLines    int
}

// NewAppLogger creates a logger that mirrors Info/Warn/Error lines into data
// (when non-nil) and writes every entry to stderr.
func NewAppLogger(data binding.StringList, debug bool) *AppLogger {
	return NewAppLoggerTo(data, os.Stderr, debug)
}

// NewAppLoggerTo is NewAppLogger with an explicit console writer.
func NewAppLoggerTo(data binding.StringList, w io.Writer, debug bool) *AppLogger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return &AppLogger{
		dataBinding: data,
		console:     slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
		maxLines:    constants.MaxLogLines,
	}
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *AppLogger {
	return NewAppLoggerTo(nil, io.Discard, false)
}

// Info logs an informational message
func (l *AppLogger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a recoverable problem
func (l *AppLogger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *AppLogger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Debug logs to the console only (to keep UI clean)
func (l *AppLogger) Debug(format string, args ...interface{}) {
	l.console.Debug(fmt.Sprintf(format, args...))
}

func (l *AppLogger) log(level LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	switch level {
	case LevelWarn:
		l.console.Warn(msg)
	case LevelError:
		l.console.Error(msg)
	default:
		l.console.Info(msg)
	}

	if l.dataBinding == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05")
	formattedMsg := fmt.Sprintf("[%s] %s: %s", timestamp, level, msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.dataBinding.Append(formattedMsg)

	// Keep the history bounded
	list, _ := l.dataBinding.Get()
	if len(list) > l.maxLines {
		l.dataBinding.Set(list[len(list)-l.maxLines:])
	}
}
