package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger implements Logger writing JSON lines to a rotating file
type FileLogger struct {
	mu      sync.Mutex
	out     *lumberjack.Logger
	level   LogLevel
	traceID string
}

// FileLoggerConfig contains configuration for file logger
type FileLoggerConfig struct {
	FilePath   string
	Level      LogLevel
	MaxSizeMB  int // rotate after this many megabytes, 0 uses the lumberjack default
	MaxBackups int
	MaxAgeDays int
}

// NewFileLogger creates a file logger with rotation handled by lumberjack
func NewFileLogger(config FileLoggerConfig) *FileLogger {
	return &FileLogger{
		out: &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
		},
		level: config.Level,
	}
}

func (l *FileLogger) log(level LogLevel, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		TraceID:   l.traceID,
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields))
		for _, field := range fields {
			entry.Fields[field.Key] = field.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write log entry: %v\n", err)
	}
}

// Debug logs a debug-level message
func (l *FileLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }

// Info logs an info-level message
func (l *FileLogger) Info(msg string, fields ...Field) { l.log(INFO, msg, fields...) }

// Warn logs a warning-level message
func (l *FileLogger) Warn(msg string, fields ...Field) { l.log(WARN, msg, fields...) }

// Error logs an error-level message
func (l *FileLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

// WithTraceID returns a copy of the logger with the trace ID set
func (l *FileLogger) WithTraceID(traceID string) Logger {
	return &FileLogger{
		out:     l.out,
		level:   l.level,
		traceID: traceID,
	}
}

// Close flushes and closes the underlying log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
