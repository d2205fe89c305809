package initiator

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/tlm"
)

var (
	// ErrConfigNil indicates an option applied to a nil configuration.
	ErrConfigNil = errors.New("initiator config is nil")

	// ErrInvalidOption indicates an option value outside its valid range.
	ErrInvalidOption = errors.New("invalid initiator option")

	// ErrNilGenerator indicates that New was called without a request generator.
	ErrNilGenerator = errors.New("request generator is nil")
)

// ResponseCheck validates a finished transaction with an OK status.
// A non-nil error is reported like an error response.
type ResponseCheck func(t *tlm.Transaction) error

// Config holds the configuration of an Initiator.
type Config struct {
	// beginReqDelay annotates BEGIN_REQ, modelling processing time before the call.
	// Defaults to 10 ns.
	beginReqDelay sim.DelayFunc

	// endRespDelay annotates END_RESP. Defaults to 10 ns.
	endRespDelay sim.DelayFunc

	// interRequestDelay separates the issue of two consecutive requests. Defaults to 10 ns.
	interRequestDelay sim.DelayFunc

	// returnPath enables the backward return-path shortcut on BEGIN_RESP. Defaults to false.
	returnPath bool

	// escalateErrors turns error responses into a halt of the simulation. Defaults to false.
	escalateErrors bool

	responseCheck ResponseCheck
	pool          *tlm.Pool
	doneHandlers  []func()

	logger logger.Logger
}

// NewConfig creates an initiator configuration with defaults, then applies opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		beginReqDelay:     sim.Fixed(10 * sim.Nanosecond),
		endRespDelay:      sim.Fixed(10 * sim.Nanosecond),
		interRequestDelay: sim.Fixed(10 * sim.Nanosecond),
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// ReturnPathShortcut returns if the backward return-path shortcut is enabled.
func (cfg *Config) ReturnPathShortcut() bool { return cfg.returnPath }

// EscalateErrors returns if error responses halt the simulation.
func (cfg *Config) EscalateErrors() bool { return cfg.escalateErrors }

// Option represents a functional option for configuring an Initiator.
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

func delayOption(name string, d sim.DelayFunc, set func(*Config, sim.DelayFunc)) Option {
	return newOptFunc(name, func(cfg *Config) error {
		if d == nil {
			return fmt.Errorf("%w: %s: delay is nil", ErrInvalidOption, name)
		}
		set(cfg, d)

		return nil
	})
}

// WithBeginReqDelay sets the delay annotated on BEGIN_REQ.
//
// The default value is a fixed 10 ns.
func WithBeginReqDelay(d sim.DelayFunc) Option {
	return delayOption("WithBeginReqDelay", d, func(cfg *Config, d sim.DelayFunc) { cfg.beginReqDelay = d })
}

// WithEndRespDelay sets the delay annotated on END_RESP.
//
// The default value is a fixed 10 ns.
func WithEndRespDelay(d sim.DelayFunc) Option {
	return delayOption("WithEndRespDelay", d, func(cfg *Config, d sim.DelayFunc) { cfg.endRespDelay = d })
}

// WithInterRequestDelay sets the wait between issuing two requests.
//
// The default value is a fixed 10 ns.
func WithInterRequestDelay(d sim.DelayFunc) Option {
	return delayOption("WithInterRequestDelay", d, func(cfg *Config, d sim.DelayFunc) { cfg.interRequestDelay = d })
}

// WithReturnPathShortcut enables the backward return-path shortcut: a BEGIN_RESP received
// while nothing else is queued for delivery is checked immediately and answered with
// UPDATED and END_RESP.
//
// The default value is false.
func WithReturnPathShortcut(enabled bool) Option {
	return newOptFunc("WithReturnPathShortcut", func(cfg *Config) error {
		cfg.returnPath = enabled
		return nil
	})
}

// WithEscalateErrors makes every error response halt the simulation with a *tlm.ResponseError.
//
// The default value is false: errors are logged, counted and collected.
func WithEscalateErrors(enabled bool) Option {
	return newOptFunc("WithEscalateErrors", func(cfg *Config) error {
		cfg.escalateErrors = enabled
		return nil
	})
}

// WithResponseCheck adds a validation of successful transactions, e.g. a data comparison.
func WithResponseCheck(check ResponseCheck) Option {
	return newOptFunc("WithResponseCheck", func(cfg *Config) error {
		cfg.responseCheck = check
		return nil
	})
}

// WithPool sets the transaction pool. By default every initiator owns a private pool.
func WithPool(pool *tlm.Pool) Option {
	return newOptFunc("WithPool", func(cfg *Config) error {
		if pool == nil {
			return fmt.Errorf("%w: pool is nil", ErrInvalidOption)
		}
		cfg.pool = pool

		return nil
	})
}

// WithDoneHandler registers a handler called once every generated request has completed.
func WithDoneHandler(h func()) Option {
	return newOptFunc("WithDoneHandler", func(cfg *Config) error {
		if h != nil {
			cfg.doneHandlers = append(cfg.doneHandlers, h)
		}
		return nil
	})
}

// WithLogger sets the logger of the initiator.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("%w: logger is nil", ErrInvalidOption)
		}
		cfg.logger = l

		return nil
	})
}
