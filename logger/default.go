package logger

import "sync/atomic"

// defLogger is the logger participants fall back to when none is configured.
var defLogger atomic.Pointer[Logger]

func init() {
	SetLogger(NewSlog(InfoLevel, false))
}

// Debug logs to the default logger.
func Debug(msg string, keysAndValues ...any) { GetLogger().Debug(msg, keysAndValues...) }

// Info logs to the default logger.
func Info(msg string, keysAndValues ...any) { GetLogger().Info(msg, keysAndValues...) }

// Warn logs to the default logger.
func Warn(msg string, keysAndValues ...any) { GetLogger().Warn(msg, keysAndValues...) }

// Error logs to the default logger.
func Error(msg string, keysAndValues ...any) { GetLogger().Error(msg, keysAndValues...) }

// Fatal logs to the default logger and exits.
func Fatal(msg string, keysAndValues ...any) { GetLogger().Fatal(msg, keysAndValues...) }

// SetLevel changes the level of the default logger. Participants created before the call keep
// logging through children of it and follow the change.
func SetLevel(level Level) { GetLogger().SetLevel(level) }

// GetLogger returns the default logger, captured by participant configs at creation time.
func GetLogger() Logger {
	return *defLogger.Load()
}

// SetLogger replaces the default logger. Participants created earlier keep the previous one.
// A nil logger is ignored.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&l)
}

// With returns a child of the default logger, e.g. With("participant", name).
func With(keyValues ...any) Logger {
	return GetLogger().With(keyValues...)
}
