package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// ConsoleLogger implements Logger for human-readable console output
type ConsoleLogger struct {
	mu               sync.Mutex
	writer           io.Writer
	level            LogLevel
	traceID          string
	colorEnabled     bool
	timestampEnabled bool
}

// ConsoleLoggerConfig contains configuration for console logger
type ConsoleLoggerConfig struct {
	Writer           io.Writer
	Level            LogLevel
	ColorEnabled     bool
	TimestampEnabled bool
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(config ConsoleLoggerConfig) *ConsoleLogger {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}
	return &ConsoleLogger{
		writer:           config.Writer,
		level:            config.Level,
		colorEnabled:     config.ColorEnabled,
		timestampEnabled: config.TimestampEnabled,
	}
}

func (l *ConsoleLogger) log(level LogLevel, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder

	if l.timestampEnabled {
		sb.WriteString(time.Now().UTC().Format(time.RFC3339))
		sb.WriteByte(' ')
	}

	levelText := level.String()
	if l.colorEnabled {
		switch level {
		case DEBUG:
			levelText = colorGray + levelText + colorReset
		case INFO:
			levelText = colorBlue + levelText + colorReset
		case WARN:
			levelText = colorYellow + levelText + colorReset
		case ERROR:
			levelText = colorRed + levelText + colorReset
		}
	}
	sb.WriteString(levelText)
	sb.WriteByte(' ')
	sb.WriteString(msg)

	if l.traceID != "" {
		sb.WriteString(" trace=")
		sb.WriteString(l.traceID)
	}

	for _, field := range fields {
		fmt.Fprintf(&sb, " %s=%v", field.Key, field.Value)
	}
	sb.WriteByte('\n')

	fmt.Fprint(l.writer, sb.String())
}

// Debug logs a debug-level message
func (l *ConsoleLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }

// Info logs an info-level message
func (l *ConsoleLogger) Info(msg string, fields ...Field) { l.log(INFO, msg, fields...) }

// Warn logs a warning-level message
func (l *ConsoleLogger) Warn(msg string, fields ...Field) { l.log(WARN, msg, fields...) }

// Error logs an error-level message
func (l *ConsoleLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

// WithTraceID returns a copy of the logger with the trace ID set
func (l *ConsoleLogger) WithTraceID(traceID string) Logger {
	return &ConsoleLogger{
		writer:           l.writer,
		level:            l.level,
		traceID:          traceID,
		colorEnabled:     l.colorEnabled,
		timestampEnabled: l.timestampEnabled,
	}
}

// SetLevel sets the minimum log level
func (l *ConsoleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}
