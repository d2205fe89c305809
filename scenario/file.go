package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/target"
	"github.com/arloliu/go-tlm/tlm"
)

var (
	// ErrInvalidScenario indicates a scenario description that cannot be built.
	ErrInvalidScenario = errors.New("invalid scenario")

	// ErrUnknownKey indicates a key in a scenario file that no field decodes.
	ErrUnknownKey = errors.New("unknown scenario key")
)

// Delay is a timing annotation read from a scenario file.
//
// "10ns" is a fixed delay, "rand(30ns)" a whole number of nanoseconds drawn uniformly from
// [0, 30ns) with the scenario random source.
type Delay struct {
	Value  sim.Time
	Random bool
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Delay) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))

	random := false
	if inner, ok := strings.CutPrefix(s, "rand("); ok {
		inner, ok = strings.CutSuffix(inner, ")")
		if !ok {
			return fmt.Errorf("%w: unterminated delay %q", ErrInvalidScenario, s)
		}
		s = inner
		random = true
	}

	v, err := sim.ParseTime(s)
	if err != nil {
		return err
	}
	d.Value = v
	d.Random = random

	return nil
}

// String returns the text form of the delay.
func (d Delay) String() string {
	if d.Random {
		return "rand(" + d.Value.String() + ")"
	}

	return d.Value.String()
}

// Config describes a complete topology: initiators, targets, an optional router and optional
// protocol checkers on every initiator link.
type Config struct {
	Name string `toml:"name"`
	// Seed seeds the random source of generators and random delays. Defaults to 1.
	Seed uint64 `toml:"seed"`
	// TimeLimit bounds the simulated time. Zero means no limit.
	TimeLimit sim.Time `toml:"time_limit"`
	// LogLevel selects the level of the scenario logger when none is supplied to Build.
	LogLevel logger.Level `toml:"log_level"`
	// LogWallClock keeps the wall-clock timestamp in JSON logs. Load and Parse default it to true.
	LogWallClock bool `toml:"log_wall_clock"`
	// Checker inserts a protocol checker between every initiator and its peer.
	Checker bool `toml:"checker"`
	// Trace makes the checkers log every observed phase.
	Trace bool `toml:"trace"`
	// SharedPool makes all initiators allocate from one transaction pool.
	SharedPool bool `toml:"shared_pool"`

	Router     *RouterConfig     `toml:"router"`
	Initiators []InitiatorConfig `toml:"initiator"`
	Targets    []TargetConfig    `toml:"target"`
}

// RouterConfig describes the interconnect. Without Ranges or AddressSpace, target i owns a
// range as large as its memory, placed right after the range of target i-1.
type RouterConfig struct {
	Name         string        `toml:"name"`
	RoutingTable bool          `toml:"routing_table"`
	AddressSpace uint64        `toml:"address_space"`
	Ranges       []RangeConfig `toml:"range"`
}

// RangeConfig is the address range of one router output.
type RangeConfig struct {
	Base uint64 `toml:"base"`
	Size uint64 `toml:"size"`
}

// InitiatorConfig describes one traffic generating initiator. It issues either the explicit
// Requests or Count random requests.
type InitiatorConfig struct {
	Name string `toml:"name"`

	Count        int    `toml:"count"`
	AddressSpace uint64 `toml:"address_space"`
	WordSize     uint32 `toml:"word_size"`

	Requests []RequestConfig `toml:"request"`

	BeginReqDelay     *Delay `toml:"begin_req_delay"`
	EndRespDelay      *Delay `toml:"end_resp_delay"`
	InterRequestDelay *Delay `toml:"inter_request_delay"`

	ReturnPath     bool `toml:"return_path"`
	EscalateErrors bool `toml:"escalate_errors"`
	// VerifyReads checks that random reads return zeros or the address pattern written there.
	VerifyReads bool `toml:"verify_reads"`
}

// RequestConfig is one explicit request.
type RequestConfig struct {
	Command tlm.Command `toml:"command"`
	Address uint64      `toml:"address"`
	// Data holds the bytes written by a write command, each in [0, 255].
	Data   []int  `toml:"data"`
	Length uint32 `toml:"length"`
	// StreamingWidth defaults to the data length.
	StreamingWidth uint32 `toml:"streaming_width"`
	// ByteEnable is the byte enable mask, each entry in [0, 255]. Targets answer any mask with
	// BYTE_ENABLE_ERROR.
	ByteEnable []int `toml:"byte_enable"`
}

// TargetConfig describes one memory target.
type TargetConfig struct {
	Name       string        `toml:"name"`
	Policy     target.Policy `toml:"policy"`
	Capacity   int           `toml:"capacity"`
	MemorySize int           `toml:"memory_size"`
	MaxBurst   uint32        `toml:"max_burst"`

	AcceptDelay *Delay `toml:"accept_delay"`
	Latency     *Delay `toml:"latency"`

	DMI bool `toml:"dmi"`
}

// Load reads a scenario file.
func Load(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}

	return finish(&cfg, meta)
}

// Parse reads a scenario from its TOML text.
func Parse(data string) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	return finish(&cfg, meta)
}

func finish(cfg *Config, meta toml.MetaData) (*Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(keys, ", "))
	}

	if !meta.IsDefined("seed") {
		cfg.Seed = 1
	}
	if !meta.IsDefined("log_level") {
		cfg.LogLevel = logger.InfoLevel
	}
	if !meta.IsDefined("log_wall_clock") {
		cfg.LogWallClock = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the topology. Participant names left empty get defaults.
func (cfg *Config) Validate() error {
	if len(cfg.Initiators) == 0 {
		return fmt.Errorf("%w: no initiator", ErrInvalidScenario)
	}
	if len(cfg.Targets) == 0 {
		return fmt.Errorf("%w: no target", ErrInvalidScenario)
	}
	if cfg.Router == nil && len(cfg.Initiators) != len(cfg.Targets) {
		return fmt.Errorf("%w: %d initiators and %d targets need a router",
			ErrInvalidScenario, len(cfg.Initiators), len(cfg.Targets))
	}

	names := make(map[string]bool)
	unique := func(name string) error {
		if names[name] {
			return fmt.Errorf("%w: duplicate participant name %q", ErrInvalidScenario, name)
		}
		names[name] = true

		return nil
	}

	for i := range cfg.Initiators {
		ic := &cfg.Initiators[i]
		if ic.Name == "" {
			ic.Name = fmt.Sprintf("initiator%d", i)
		}
		if err := unique(ic.Name); err != nil {
			return err
		}
		if ic.Count < 0 {
			return fmt.Errorf("%w: initiator %s: negative count", ErrInvalidScenario, ic.Name)
		}
		if ic.Count > 0 && len(ic.Requests) > 0 {
			return fmt.Errorf("%w: initiator %s: count and explicit requests are exclusive", ErrInvalidScenario, ic.Name)
		}
	}

	for i := range cfg.Targets {
		tc := &cfg.Targets[i]
		if tc.Name == "" {
			tc.Name = fmt.Sprintf("target%d", i)
		}
		if err := unique(tc.Name); err != nil {
			return err
		}
		if tc.Capacity < 0 || tc.MemorySize < 0 {
			return fmt.Errorf("%w: target %s: negative capacity or memory size", ErrInvalidScenario, tc.Name)
		}
	}

	if cfg.Router != nil {
		if cfg.Router.Name == "" {
			cfg.Router.Name = "router"
		}
		if err := unique(cfg.Router.Name); err != nil {
			return err
		}
		if n := len(cfg.Router.Ranges); n > 0 && n != len(cfg.Targets) {
			return fmt.Errorf("%w: router has %d ranges for %d targets", ErrInvalidScenario, n, len(cfg.Targets))
		}
	}

	return nil
}
