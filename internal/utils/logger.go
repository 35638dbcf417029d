// internal/utils/logger.go
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

// Logger is the process logger. It keeps the fields-map call shape used
// across the services and writes through zerolog to stdout and an optional file.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	stdout  io.Writer
	zl      zerolog.Logger
	level   LogLevel
	enabled bool
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = NewLogger(os.Stdout)
	})
	return globalLogger
}

// NewLogger builds a logger writing console-formatted lines to w.
func NewLogger(w io.Writer) *Logger {
	l := &Logger{
		stdout:  w,
		level:   INFO,
		enabled: true,
	}
	l.rebuild()
	return l
}

// InitLogger initializes the logger with a log file
func InitLogger(logFile string) error {
	logger := GetLogger()

	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if logger.file != nil {
		logger.file.Close()
	}
	logger.file = file
	logger.rebuild()
	return nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.rebuild()
	return err
}

// rebuild must be called with l.mu held (or before the logger is shared).
func (l *Logger) rebuild() {
	console := zerolog.ConsoleWriter{Out: l.stdout, TimeFormat: "2006-01-02 15:04:05.000", NoColor: true}
	var out io.Writer = console
	if l.file != nil {
		// the file gets JSON lines, the console gets the readable form
		out = zerolog.MultiLevelWriter(console, l.file)
	}
	l.zl = zerolog.New(out).With().Timestamp().Logger().Level(toZerolog(l.level))
	if !l.enabled {
		l.zl = l.zl.Level(zerolog.Disabled)
	}
}

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARNING:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel sets the minimum level for logging
func (l *Logger) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.rebuild()
}

// Enable enables or disables logging
func (l *Logger) Enable(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
	l.rebuild()
}

// Zerolog exposes the underlying logger for libraries that take one.
func (l *Logger) Zerolog() zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl
}

func (l *Logger) log(level LogLevel, message string, fields map[string]interface{}) {
	l.mu.Lock()
	zl := l.zl
	l.mu.Unlock()

	var event *zerolog.Event
	switch level {
	case DEBUG:
		event = zl.Debug()
	case INFO:
		event = zl.Info()
	case WARNING:
		event = zl.Warn()
	case ERROR:
		event = zl.Error()
	case FATAL:
		// WithLevel does not exit; the exit happens below after the write
		event = zl.WithLevel(zerolog.FatalLevel)
	}
	if event == nil {
		return
	}

	for key, value := range fields {
		if err, ok := value.(error); ok {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, value)
	}
	event.Msg(message)

	if level == FATAL {
		os.Exit(1)
	}
}

func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.log(DEBUG, message, fields)
}

func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.log(INFO, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.log(WARNING, message, fields)
}

func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.log(ERROR, message, fields)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields map[string]interface{}) {
	l.log(FATAL, message, fields)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARNING, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(FATAL, fmt.Sprintf(format, args...), nil)
}
