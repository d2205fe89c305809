package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	console "github.com/phsym/console-slog"
)

// levelFatal sits above slog.LevelError so fatal records stay distinguishable.
const levelFatal = slog.Level(12)

// WallClockKey is the JSON key of the wall-clock timestamp. The plain "time" key is left to
// participants, which log the simulated time under it.
const WallClockKey = "ts"

// SlogOption configures a logger created by NewSlogWriter.
type SlogOption func(*slogConfig)

type slogConfig struct {
	addSource bool
	console   bool
	wallClock bool
}

// WithSource adds the caller's file and line to every record.
func WithSource() SlogOption {
	return func(c *slogConfig) { c.addSource = true }
}

// WithConsole selects the human friendly console handler instead of JSON lines.
func WithConsole(enabled bool) SlogOption {
	return func(c *slogConfig) { c.console = enabled }
}

// WithoutWallClock drops the wall-clock timestamp from JSON records. Only the simulated time
// logged by participants remains, so traces of two runs can be compared line by line.
func WithoutWallClock() SlogOption {
	return func(c *slogConfig) { c.wallClock = false }
}

// SlogLogger implements Logger on top of log/slog.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var _ Logger = (*SlogLogger)(nil)

// NewSlog creates a slog-backed logger writing to stdout.
//
// When the ENV environment variable is "development" the console handler is used, otherwise
// records are written as JSON lines.
func NewSlog(level Level, addSource bool) Logger {
	opts := []SlogOption{WithConsole(os.Getenv("ENV") == "development")}
	if addSource {
		opts = append(opts, WithSource())
	}

	return NewSlogWriter(os.Stdout, level, opts...)
}

// NewSlogWriter creates a slog-backed logger writing to w.
func NewSlogWriter(w io.Writer, level Level, opts ...SlogOption) Logger {
	cfg := slogConfig{wallClock: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	inst := &SlogLogger{level: &slog.LevelVar{}}
	inst.level.Set(toSlogLevel(level))

	if cfg.console {
		inst.logger = slog.New(console.NewHandler(w, &console.HandlerOptions{
			AddSource: cfg.addSource,
			Level:     inst.level,
		}))

		return inst
	}

	inst.logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: cfg.addSource,
		Level:     inst.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// built-in attributes only arrive at the top level
			if len(groups) > 0 {
				return a
			}

			switch {
			case a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime:
				if !cfg.wallClock {
					return slog.Attr{}
				}
				a.Key = WallClockKey
			case a.Key == slog.LevelKey:
				if lv, ok := a.Value.Any().(slog.Level); ok && lv >= levelFatal {
					a.Value = slog.StringValue("FATAL")
				}
			}

			return a
		},
	}))

	return inst
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

func (l *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	l.log(context.Background(), levelFatal, msg, keysAndValues...)
	os.Exit(1)
}

// With returns a child logger sharing the parent's level.
func (l *SlogLogger) With(keyValues ...any) Logger {
	return &SlogLogger{
		logger: l.logger.With(keyValues...),
		level:  l.level,
	}
}

func (l *SlogLogger) Level() Level {
	switch lv := l.level.Level(); {
	case lv <= slog.LevelDebug:
		return DebugLevel
	case lv <= slog.LevelInfo:
		return InfoLevel
	case lv <= slog.LevelWarn:
		return WarnLevel
	case lv <= slog.LevelError:
		return ErrorLevel
	default:
		return FatalLevel
	}
}

func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(toSlogLevel(level))
}

// log must be called directly by an exported logging method, the caller depth is fixed.
func (l *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.logger.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // runtime.Callers, log, exported method
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return levelFatal
	}
}
