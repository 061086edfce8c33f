package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the severity of a log line
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	SILENT
)

var levelNames = map[Level]string{
	DEBUG:  "DEBUG",
	INFO:   "INFO",
	WARN:   "WARN",
	ERROR:  "ERROR",
	SILENT: "SILENT",
}

// Logger writes leveled, component-tagged lines.
// It never writes to stdout unless explicitly handed os.Stdout,
// because stdout is reserved for the analysis report.
type Logger struct {
	mu    sync.Mutex
	level Level
	out   *log.Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(INFO, os.Stderr)
)

// New creates a Logger writing to output (stderr when nil)
func New(level Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		level: level,
		out:   log.New(output, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// Init replaces the package-level logger
func Init(level Level, output io.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = New(level, output)
}

// Default returns the package-level logger
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLevel changes the minimum level that is written
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the current minimum level
func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Enabled reports whether a line at level would be written
func (l *Logger) Enabled(level Level) bool {
	return level < SILENT && level >= l.Level()
}

func (l *Logger) logf(level Level, component, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	prefix := "[" + levelNames[level] + "]"
	if component != "" {
		prefix += " [" + component + "]"
	}
	l.out.Printf("%s %s", prefix, fmt.Sprintf(format, args...))
}

// Debug logs a debug line
func (l *Logger) Debug(component, format string, args ...interface{}) {
	l.logf(DEBUG, component, format, args...)
}

// Info logs an info line
func (l *Logger) Info(component, format string, args ...interface{}) {
	l.logf(INFO, component, format, args...)
}

// Warn logs a warning line
func (l *Logger) Warn(component, format string, args ...interface{}) {
	l.logf(WARN, component, format, args...)
}

// Error logs an error line
func (l *Logger) Error(component, format string, args ...interface{}) {
	l.logf(ERROR, component, format, args...)
}

// StdLogger returns a *log.Logger that writes through l at INFO level.
// Used for libraries that want a plain log.Logger (HTTP server, goa middleware).
func (l *Logger) StdLogger(component string) *log.Logger {
	return log.New(&lineWriter{l: l, component: component}, "", 0)
}

type lineWriter struct {
	l         *Logger
	component string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.l.Info(w.component, "%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func Debug(component, format string, args ...interface{}) {
	Default().Debug(component, format, args...)
}

func Info(component, format string, args ...interface{}) {
	Default().Info(component, format, args...)
}

func Warn(component, format string, args ...interface{}) {
	Default().Warn(component, format, args...)
}

func Error(component, format string, args ...interface{}) {
	Default().Error(component, format, args...)
}

// ParseLevel parses a level name, case-insensitively
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none", "off":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// String returns the level name
func (lv Level) String() string {
	if name, ok := levelNames[lv]; ok {
		return name
	}
	return "UNKNOWN"
}
