package interconnect

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-tlm/logger"
)

var (
	// ErrConfigNil indicates an option applied to a nil configuration.
	ErrConfigNil = errors.New("router config is nil")

	// ErrInvalidOption indicates an option value outside its valid range.
	ErrInvalidOption = errors.New("invalid router option")

	// ErrInvalidAddressMap indicates an address map that does not give every target port
	// exactly one non-empty, non-overlapping range.
	ErrInvalidAddressMap = errors.New("invalid address map")
)

// AddressRange is the global address window [Base, Base+Size) decoded to one target port.
type AddressRange struct {
	Base uint64
	Size uint64
}

// Contains returns if addr lies inside the range.
func (r AddressRange) Contains(addr uint64) bool {
	return addr >= r.Base && addr-r.Base < r.Size
}

// Last returns the last global address of the range.
func (r AddressRange) Last() uint64 { return r.Base + r.Size - 1 }

func (r AddressRange) overlaps(o AddressRange) bool {
	return r.Base <= o.Last() && o.Base <= r.Last()
}

func (r AddressRange) String() string {
	return fmt.Sprintf("[0x%x, 0x%x]", r.Base, r.Last())
}

// SplitAddressMap divides [0, total) into n consecutive ranges of equal size.
// The last range absorbs the remainder.
func SplitAddressMap(total uint64, n int) []AddressRange {
	if n <= 0 {
		return nil
	}

	size := total / uint64(n)
	ranges := make([]AddressRange, n)
	for i := range ranges {
		ranges[i] = AddressRange{Base: uint64(i) * size, Size: size}
	}
	ranges[n-1].Size = total - ranges[n-1].Base

	return ranges
}

// Config holds the configuration of a Router.
type Config struct {
	// addressMap assigns range j to target port j.
	addressMap []AddressRange

	// routingTable stores routes in a side table keyed by transaction instead of a
	// transaction extension. Defaults to false.
	routingTable bool

	logger logger.Logger
}

// NewConfig creates a router configuration with defaults, then applies opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{logger: logger.GetLogger()}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// AddressMap returns a copy of the address map.
func (cfg *Config) AddressMap() []AddressRange {
	return append([]AddressRange(nil), cfg.addressMap...)
}

// RoutingTable returns if routes are kept in a side table.
func (cfg *Config) RoutingTable() bool { return cfg.routingTable }

func (cfg *Config) validate(numTargets int) error {
	if len(cfg.addressMap) != numTargets {
		return fmt.Errorf("%w: %d ranges for %d target ports", ErrInvalidAddressMap, len(cfg.addressMap), numTargets)
	}

	for i, r := range cfg.addressMap {
		if r.Size == 0 {
			return fmt.Errorf("%w: range %d is empty", ErrInvalidAddressMap, i)
		}
		if r.Base+r.Size-1 < r.Base {
			return fmt.Errorf("%w: range %d wraps around", ErrInvalidAddressMap, i)
		}
		for j := range i {
			if r.overlaps(cfg.addressMap[j]) {
				return fmt.Errorf("%w: range %d %s overlaps range %d %s",
					ErrInvalidAddressMap, i, r, j, cfg.addressMap[j])
			}
		}
	}

	return nil
}

// Option represents a functional option for configuring a Router.
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

// WithAddressMap sets the address map; ranges[j] is decoded to target port j.
func WithAddressMap(ranges ...AddressRange) Option {
	return newOptFunc("WithAddressMap", func(cfg *Config) error {
		cfg.addressMap = append([]AddressRange(nil), ranges...)
		return nil
	})
}

// WithRoutingTable keeps routes in a side table keyed by transaction instead of the
// routing extension attached to the transaction.
func WithRoutingTable() Option {
	return newOptFunc("WithRoutingTable", func(cfg *Config) error {
		cfg.routingTable = true
		return nil
	})
}

// WithLogger sets the logger of the router.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("%w: logger is nil", ErrInvalidOption)
		}
		cfg.logger = l

		return nil
	})
}
