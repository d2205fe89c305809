// Package logger provides the structured logging abstraction used by every participant of the
// transaction protocol engine.
//
// The Logger interface defines methods for logging messages at various severity levels
// (Debug, Info, Warn, Error, Fatal) and supports structured logging with key-value pairs.
// Protocol participants attach their name with With("participant", name) and log the
// simulated time, phase and transaction ID of every noteworthy event.
//
// Log Levels:
//
//   - DebugLevel: phase-by-phase protocol trace, buffer occupancy.
//   - InfoLevel:  run summaries.
//   - WarnLevel:  recoverable oddities.
//   - ErrorLevel: transport/response errors and protocol violations.
//   - FatalLevel: errors that terminate the program.
package logger

import (
	"fmt"
	"strings"
)

// Level indicates the logging severity level.
type Level int8

const (
	// DebugLevel traces every phase and buffer change.
	DebugLevel Level = iota - 1
	// InfoLevel is the default.
	InfoLevel
	WarnLevel
	// ErrorLevel reports error responses and protocol violations.
	ErrorLevel
	FatalLevel
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseLevel parses the names returned by Level.String. An empty name yields InfoLevel.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	level, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = level

	return nil
}

// Logger is the structured logger every participant writes to. Key-values alternate between a
// string key and any value, e.g. Debug("backpressure", "time", now, "txn", id).
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs and then calls os.Exit(1). Protocol violations inside a simulation never use
	// it; they halt the kernel instead.
	Fatal(msg string, keysAndValues ...any)
	// With returns a child carrying keyValues on every record. Children share the parent's
	// level but not its fields.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level.
	Level() Level
	// SetLevel changes the minimum enabled level of the logger and all of its children.
	SetLevel(level Level)
}
