package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/arloliu/go-tlm/checker"
	"github.com/arloliu/go-tlm/initiator"
	"github.com/arloliu/go-tlm/interconnect"
	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/target"
	"github.com/arloliu/go-tlm/tlm"
)

var (
	// ErrUnfinished indicates that the simulation ran out of events before every initiator
	// completed its requests.
	ErrUnfinished = errors.New("simulation quiesced with unfinished initiators")

	// ErrLeak indicates transactions still held after a clean run.
	ErrLeak = errors.New("transactions not returned to their pool")
)

// NewLogger creates the JSON or console logger described by the log settings of cfg.
func NewLogger(cfg *Config) logger.Logger {
	opts := []logger.SlogOption{logger.WithConsole(os.Getenv("ENV") == "development")}
	if !cfg.LogWallClock {
		opts = append(opts, logger.WithoutWallClock())
	}

	return logger.NewSlogWriter(os.Stdout, cfg.LogLevel, opts...)
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger logger.Logger
}

// WithLogger sets the logger of every participant. By default Build creates a slog logger at
// the level of the scenario.
func WithLogger(l logger.Logger) Option {
	return func(o *buildOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// OccupancySample is one change of the number of transactions admitted by a target.
type OccupancySample struct {
	Time     sim.Time
	InFlight int
}

// Simulation is a built topology ready to run.
type Simulation struct {
	Config     *Config
	Kernel     *sim.Kernel
	Initiators []*initiator.Initiator
	Targets    []*target.Target
	Checkers   []*checker.Checker
	// Router is nil when initiators are bound one to one to targets.
	Router *interconnect.Router

	pools     []*tlm.Pool
	occupancy map[string][]OccupancySample
	rng       *rand.Rand
	logger    logger.Logger
}

// Build creates and binds every participant of cfg.
func Build(cfg *Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NewLogger(cfg)
	}

	s := &Simulation{
		Config:    cfg,
		occupancy: make(map[string][]OccupancySample),
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)), //nolint:gosec
		logger:    o.logger.With("scenario", cfg.Name),
	}
	s.Kernel = sim.NewKernel(sim.WithKernelLogger(s.logger), sim.WithTimeLimit(cfg.TimeLimit))

	if err := s.buildTargets(); err != nil {
		return nil, err
	}
	if err := s.buildRouter(); err != nil {
		return nil, err
	}
	if err := s.buildInitiators(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Simulation) buildTargets() error {
	for _, tc := range s.Config.Targets {
		opts := []target.Option{
			target.WithPolicy(tc.Policy),
			target.WithDMI(tc.DMI),
			target.WithLogger(s.logger),
			target.WithOccupancyHandler(s.recordOccupancy),
		}
		if tc.Capacity > 0 {
			opts = append(opts, target.WithBufferCapacity(tc.Capacity))
		}
		if tc.MemorySize > 0 {
			opts = append(opts, target.WithMemorySize(tc.MemorySize))
		}
		if tc.MaxBurst > 0 {
			opts = append(opts, target.WithMaxBurst(tc.MaxBurst))
		}
		if tc.AcceptDelay != nil {
			opts = append(opts, target.WithAcceptDelay(s.delay(tc.AcceptDelay)))
		}
		if tc.Latency != nil {
			opts = append(opts, target.WithLatency(s.delay(tc.Latency)))
		}

		t, err := target.New(tc.Name, s.Kernel, opts...)
		if err != nil {
			return fmt.Errorf("target %s: %w", tc.Name, err)
		}
		s.Targets = append(s.Targets, t)
	}

	return nil
}

func (s *Simulation) buildRouter() error {
	rc := s.Config.Router
	if rc == nil {
		return nil
	}

	opts := []interconnect.Option{
		interconnect.WithAddressMap(s.addressMap()...),
		interconnect.WithLogger(s.logger),
	}
	if rc.RoutingTable {
		opts = append(opts, interconnect.WithRoutingTable())
	}

	r, err := interconnect.New(rc.Name, s.Kernel, len(s.Config.Initiators), len(s.Targets), opts...)
	if err != nil {
		return fmt.Errorf("router %s: %w", rc.Name, err)
	}

	for j, t := range s.Targets {
		if err := tlm.Bind(r.InitiatorPort(j), t); err != nil {
			return fmt.Errorf("bind %s to %s: %w", rc.Name, t.Name(), err)
		}
	}
	s.Router = r

	return nil
}

// addressMap returns the configured ranges, an even split of the address space, or one range
// per target sized by its memory.
func (s *Simulation) addressMap() []interconnect.AddressRange {
	rc := s.Config.Router

	switch {
	case len(rc.Ranges) > 0:
		ranges := make([]interconnect.AddressRange, 0, len(rc.Ranges))
		for _, r := range rc.Ranges {
			ranges = append(ranges, interconnect.AddressRange{Base: r.Base, Size: r.Size})
		}

		return ranges

	case rc.AddressSpace > 0:
		return interconnect.SplitAddressMap(rc.AddressSpace, len(s.Targets))

	default:
		ranges := make([]interconnect.AddressRange, 0, len(s.Targets))
		var base uint64
		for _, t := range s.Targets {
			size := uint64(t.Config().MemorySize()) //nolint:gosec
			ranges = append(ranges, interconnect.AddressRange{Base: base, Size: size})
			base += size
		}

		return ranges
	}
}

func (s *Simulation) buildInitiators() error {
	var shared *tlm.Pool
	if s.Config.SharedPool {
		shared = tlm.NewPool(
			tlm.WithPoolName(s.Config.Name+".mm"),
			tlm.WithPoolClock(s.Kernel.Now),
			tlm.WithPoolLogger(s.logger),
		)
		s.pools = append(s.pools, shared)
	}

	for i, ic := range s.Config.Initiators {
		opts := []initiator.Option{
			initiator.WithReturnPathShortcut(ic.ReturnPath),
			initiator.WithEscalateErrors(ic.EscalateErrors),
			initiator.WithLogger(s.logger),
		}
		if ic.BeginReqDelay != nil {
			opts = append(opts, initiator.WithBeginReqDelay(s.delay(ic.BeginReqDelay)))
		}
		if ic.EndRespDelay != nil {
			opts = append(opts, initiator.WithEndRespDelay(s.delay(ic.EndRespDelay)))
		}
		if ic.InterRequestDelay != nil {
			opts = append(opts, initiator.WithInterRequestDelay(s.delay(ic.InterRequestDelay)))
		}
		if ic.VerifyReads {
			opts = append(opts, initiator.WithResponseCheck(s.verifyRead))
		}
		if shared != nil {
			opts = append(opts, initiator.WithPool(shared))
		}

		gen, err := s.generator(i, ic)
		if err != nil {
			return fmt.Errorf("initiator %s: %w", ic.Name, err)
		}

		ini, err := initiator.New(ic.Name, s.Kernel, gen, opts...)
		if err != nil {
			return fmt.Errorf("initiator %s: %w", ic.Name, err)
		}
		if shared == nil {
			s.pools = append(s.pools, ini.Pool())
		}
		s.Initiators = append(s.Initiators, ini)

		if err := s.bindInitiator(i, ini); err != nil {
			return err
		}
	}

	return nil
}

// bindInitiator binds initiator i to its peer, through a checker when enabled.
func (s *Simulation) bindInitiator(i int, ini *initiator.Initiator) error {
	var peer tlm.TargetPort
	if s.Router != nil {
		peer = s.Router.TargetPort(i)
	} else {
		peer = s.Targets[i]
	}

	if !s.Config.Checker {
		if err := tlm.Bind(ini, peer); err != nil {
			return fmt.Errorf("bind %s: %w", ini.Name(), err)
		}

		return nil
	}

	c, err := checker.New(ini.Name()+".checker", s.Kernel,
		checker.WithTrace(s.Config.Trace),
		checker.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}
	if err := tlm.Bind(ini, c); err != nil {
		return fmt.Errorf("bind %s: %w", ini.Name(), err)
	}
	if err := tlm.Bind(c, peer); err != nil {
		return fmt.Errorf("bind %s: %w", c.Name(), err)
	}
	s.Checkers = append(s.Checkers, c)

	return nil
}

func (s *Simulation) generator(i int, ic InitiatorConfig) (initiator.Generator, error) {
	if len(ic.Requests) == 0 {
		space := ic.AddressSpace
		if space == 0 {
			space = s.defaultAddressSpace(i)
		}

		return initiator.NewRandomGenerator(s.rng, ic.Count, space, ic.WordSize), nil
	}

	reqs := make([]initiator.Request, 0, len(ic.Requests))
	for n, rc := range ic.Requests {
		data, err := requestBytes(n, "data", rc.Data)
		if err != nil {
			return nil, err
		}
		byteEnable, err := requestBytes(n, "byte_enable", rc.ByteEnable)
		if err != nil {
			return nil, err
		}

		reqs = append(reqs, initiator.Request{
			Command:        rc.Command,
			Address:        rc.Address,
			Data:           data,
			Length:         rc.Length,
			StreamingWidth: rc.StreamingWidth,
			ByteEnable:     byteEnable,
		})
	}

	return initiator.NewSliceGenerator(reqs...), nil
}

// requestBytes converts a list of TOML integers into bytes. A missing list stays nil.
func requestBytes(n int, key string, vals []int) ([]byte, error) {
	if vals == nil {
		return nil, nil
	}

	out := make([]byte, len(vals))
	for k, v := range vals {
		if v < 0 || v > 0xff {
			return nil, fmt.Errorf("%w: request %d: %s byte %d out of range", ErrInvalidScenario, n, key, v)
		}
		out[k] = byte(v)
	}

	return out, nil
}

// defaultAddressSpace covers every router range, or the memory of the target bound to
// initiator i.
func (s *Simulation) defaultAddressSpace(i int) uint64 {
	if s.Router == nil {
		return uint64(s.Targets[i].Config().MemorySize()) //nolint:gosec
	}

	var space uint64
	for _, r := range s.Router.Config().AddressMap() {
		space = max(space, r.Base+r.Size)
	}

	return space
}

func (s *Simulation) delay(d *Delay) sim.DelayFunc {
	if d.Random {
		return sim.Uniform(s.rng, uint64(d.Value/sim.Nanosecond))
	}

	return sim.Fixed(d.Value)
}

// verifyRead accepts reads returning zeros or the address pattern of a random write. Behind a
// router the transaction carries a local address, so every range base is tried.
func (s *Simulation) verifyRead(t *tlm.Transaction) error {
	if t.Command() != tlm.ReadCommand {
		return nil
	}

	data := t.Data()
	if bytes.Count(data, []byte{0}) == len(data) {
		return nil
	}

	bases := []uint64{0}
	if s.Router != nil {
		bases = bases[:0]
		for _, r := range s.Router.Config().AddressMap() {
			if t.Address() < r.Size {
				bases = append(bases, r.Base)
			}
		}
	}
	for _, base := range bases {
		if bytes.Equal(data, initiator.AddressPattern(base+t.Address(), uint32(len(data)))) { //nolint:gosec
			return nil
		}
	}

	return fmt.Errorf("read at %#x returned % x", t.Address(), data)
}

func (s *Simulation) recordOccupancy(name string, now sim.Time, inFlight int, _ int) {
	s.occupancy[name] = append(s.occupancy[name], OccupancySample{Time: now, InFlight: inFlight})
}

// Run starts every initiator and runs the kernel until no events remain.
//
// The report is returned even when the run fails. A clean run fails with ErrUnfinished when an
// initiator did not complete, and with ErrLeak when a pool still has transactions handed out.
func (s *Simulation) Run(ctx context.Context) (*Report, error) {
	for _, ini := range s.Initiators {
		ini.Start()
	}

	err := s.Kernel.Run(ctx)
	report := s.report(err)
	if err != nil {
		s.logger.Error("simulation failed", "time", s.Kernel.Now(), "error", err)
		return report, err
	}

	for _, ini := range s.Initiators {
		if !ini.Done() {
			err = fmt.Errorf("%w: %s has %d outstanding", ErrUnfinished, ini.Name(), ini.Outstanding())
			report.Err = err

			return report, err
		}
	}

	for _, p := range s.pools {
		if verr := p.Verify(); verr != nil {
			report.Err = verr
			return report, verr
		}
		if n := p.Outstanding(); n > 0 {
			err = fmt.Errorf("%w: %d outstanding", ErrLeak, n)
			report.Err = err

			return report, err
		}
	}

	s.logger.Info("simulation finished", "time", s.Kernel.Now(), "events", s.Kernel.Executed())

	return report, nil
}
