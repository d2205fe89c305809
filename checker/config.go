package checker

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-tlm/logger"
)

var (
	// ErrConfigNil indicates an option applied to a nil configuration.
	ErrConfigNil = errors.New("checker config is nil")

	// ErrInvalidOption indicates an option value outside its valid range.
	ErrInvalidOption = errors.New("invalid checker option")
)

// Config holds the configuration of a Checker.
type Config struct {
	// trace logs every observed phase at info level. Defaults to false.
	trace bool

	logger logger.Logger
}

// NewConfig creates a checker configuration with defaults, then applies opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{logger: logger.GetLogger()}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Trace returns if observed phases are traced.
func (cfg *Config) Trace() bool { return cfg.trace }

// Option represents a functional option for configuring a Checker.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}
	return o.applyFunc(cfg)
}

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithTrace logs every observed phase at info level.
func WithTrace(enabled bool) Option {
	return newOptFunc("WithTrace", func(cfg *Config) error {
		cfg.trace = enabled
		return nil
	})
}

// WithLogger sets the logger of the checker.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("%w: logger is nil", ErrInvalidOption)
		}
		cfg.logger = l

		return nil
	})
}
