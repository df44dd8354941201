// Package logging provides real-time log output for generation runs.
// The generation outcome is the durable record; this package provides
// optional console output for monitoring a run as it streams.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
// This is for real-time monitoring only - the GenerationOutcome carries the
// durable warnings and errors of a run.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	sessionID string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{
		output:   io.Discard,
		minLevel: LevelError,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		sessionID: l.sessionID,
	}
}

// WithSession returns a new logger scoped to a generation session.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		sessionID: sessionID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.sessionID != "" {
		fieldStr = fmt.Sprintf(" session=%s%s", l.sessionID, fieldStr)
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Run-derived logging methods ---
// These are called by the session runner during a generation run. They
// provide real-time console output without duplicating outcome data.

// AttemptStart logs the start of a generation attempt.
func (l *Logger) AttemptStart(attempt, maxAttempts int) {
	l.Info("attempt_start", map[string]interface{}{
		"attempt": attempt,
		"max":     maxAttempts,
	})
}

// AttemptFailed logs a failed attempt and its classification.
func (l *Logger) AttemptFailed(attempt int, class string, err error) {
	l.Warn("attempt_failed", map[string]interface{}{
		"attempt": attempt,
		"class":   class,
		"error":   err.Error(),
	})
}

// TaskResolved logs a task resolution (real-time output).
func (l *Logger) TaskResolved(taskID, mode string, length int) {
	l.Info("task_resolved", map[string]interface{}{
		"task":   taskID,
		"mode":   mode,
		"length": length,
	})
}

// TaskMissing logs a task that no extraction strategy matched.
func (l *Logger) TaskMissing(taskID string) {
	l.Warn("task_missing", map[string]interface{}{
		"task": taskID,
	})
}

// RunComplete logs the completion of a generation run.
func (l *Logger) RunComplete(status string, resolved, total int, duration time.Duration) {
	l.Info("run_complete", map[string]interface{}{
		"status":   status,
		"resolved": resolved,
		"total":    total,
		"duration": duration.String(),
	})
}
