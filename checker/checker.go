package checker

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/tlm"
)

// step is one phase transition of a transaction.
type step struct {
	from tlm.Phase
	to   tlm.Phase
}

// legalSteps lists every transition of the base protocol. UninitializedPhase stands for a
// transaction the checker has not seen yet.
var legalSteps = map[step]bool{
	{from: tlm.UninitializedPhase, to: tlm.BeginReq}: true,
	{from: tlm.BeginReq, to: tlm.EndReq}:             true,
	{from: tlm.BeginReq, to: tlm.BeginResp}:          true,
	{from: tlm.EndReq, to: tlm.BeginResp}:            true,
	{from: tlm.BeginResp, to: tlm.EndResp}:           true,
}

// txnState is the last phase observed for a transaction and its annotated time.
type txnState struct {
	last tlm.Phase
	at   sim.Time
}

// Checker observes every call between one initiator-side and one target-side participant and
// halts the simulation on the first protocol violation.
//
// It is transparent: calls are forwarded unchanged in both directions.
type Checker struct {
	name   string
	kernel *sim.Kernel
	cfg    *Config
	logger logger.Logger

	// tsock faces the initiator, isock faces the target
	tsock *tlm.TargetSocket
	isock *tlm.InitiatorSocket

	states   *xsync.MapOf[*tlm.Transaction, txnState]
	reqOpen  *tlm.Transaction
	respOpen *tlm.Transaction

	metrics Metrics
}

var (
	_ tlm.TargetPort    = (*Checker)(nil)
	_ tlm.InitiatorPort = (*Checker)(nil)
)

// New creates a protocol checker. Bind an initiator to it with tlm.Bind(initiator, checker)
// and the checker to a target with tlm.Bind(checker, target).
func New(name string, kernel *sim.Kernel, opts ...Option) (*Checker, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	c := &Checker{
		name:   name,
		kernel: kernel,
		cfg:    cfg,
		logger: cfg.logger.With("participant", name),
		states: xsync.NewMapOf[*tlm.Transaction, txnState](),
	}
	c.tsock = tlm.NewTargetSocket(name+".target_socket", kernel.Now, c.logger)
	c.isock = tlm.NewInitiatorSocket(name+".initiator_socket", kernel.Now, c.logger)

	return c, nil
}

// Name returns the checker name.
func (c *Checker) Name() string { return c.name }

// TargetSocket implements tlm.TargetPort.
func (c *Checker) TargetSocket() *tlm.TargetSocket { return c.tsock }

// InitiatorSocket implements tlm.InitiatorPort.
func (c *Checker) InitiatorSocket() *tlm.InitiatorSocket { return c.isock }

// Metrics returns the checker metrics.
func (c *Checker) Metrics() *Metrics { return &c.metrics }

// Observed returns how many times phase was observed, including phases folded into
// UPDATED return values.
func (c *Checker) Observed(phase tlm.Phase) uint64 {
	switch phase {
	case tlm.BeginReq:
		return c.metrics.BeginReqCount.Load()
	case tlm.EndReq:
		return c.metrics.EndReqCount.Load()
	case tlm.BeginResp:
		return c.metrics.BeginRespCount.Load()
	case tlm.EndResp:
		return c.metrics.EndRespCount.Load()
	default:
		return 0
	}
}

// Open returns the number of transactions between BEGIN_REQ and their end.
func (c *Checker) Open() int { return c.states.Size() }

// NBTransportFW implements tlm.ForwardTransport.
func (c *Checker) NBTransportFW(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	c.observe(trans, phase, delay, true)
	res, updated, delay := c.isock.NBTransportFW(trans, phase, delay)
	c.result(trans, phase, res, updated, delay, true)

	return res, updated, delay
}

// NBTransportBW implements tlm.BackwardTransport.
func (c *Checker) NBTransportBW(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	c.observe(trans, phase, delay, false)
	res, updated, delay := c.tsock.NBTransportBW(trans, phase, delay)
	c.result(trans, phase, res, updated, delay, false)

	return res, updated, delay
}

// observe validates one phase transition of trans.
func (c *Checker) observe(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time, forward bool) {
	if forward && !phase.IsForward() {
		c.fatal(trans, phase, tlm.ErrIllegalPhase, "not a forward path phase")
	}
	if !forward && !phase.IsBackward() {
		c.fatal(trans, phase, tlm.ErrIllegalPhase, "not a backward path phase")
	}

	st, _ := c.states.Load(trans)
	if !legalSteps[step{from: st.last, to: phase}] {
		c.fatal(trans, phase, tlm.ErrIllegalPhase, fmt.Sprintf("%s after %s", phase, st.last))
	}

	at := c.kernel.Now() + delay
	if st.last != tlm.UninitializedPhase && at < st.at {
		c.fatal(trans, phase, tlm.ErrTimingOrder, fmt.Sprintf("annotated at %s, %s was at %s", at, st.last, st.at))
	}

	switch phase {
	case tlm.BeginReq:
		if c.reqOpen != nil {
			c.fatal(trans, phase, tlm.ErrExclusion, "request of txn "+c.reqOpen.ID().String()+" is still open")
		}
		if !trans.ResponseStatus().IsIncomplete() {
			c.fatal(trans, phase, tlm.ErrIllegalPhase, "BEGIN_REQ with response status "+trans.ResponseStatus().String())
		}
		if trans.HasPool() && trans.RefCount() < 1 {
			c.fatal(trans, phase, tlm.ErrRefCount, "pooled transaction sent without being acquired")
		}
		c.reqOpen = trans

	case tlm.EndReq:
		c.reqOpen = nil

	case tlm.BeginResp:
		if c.respOpen != nil {
			c.fatal(trans, phase, tlm.ErrExclusion, "response of txn "+c.respOpen.ID().String()+" is still open")
		}
		if trans.ResponseStatus().IsIncomplete() {
			c.fatal(trans, phase, tlm.ErrIncompleteResponse, "BEGIN_RESP without response status")
		}
		if st.last == tlm.BeginReq {
			c.reqOpen = nil
		}
		c.respOpen = trans

	case tlm.EndResp:
		c.respOpen = nil
	}

	c.metrics.observe(phase)
	if c.cfg.trace {
		c.logger.Info("phase", "time", c.kernel.Now(), "txn", trans.ID(), "phase", phase, "delay", delay)
	}

	if phase == tlm.EndResp {
		c.states.Delete(trans)
		c.metrics.incFinishedCount()
		return
	}
	c.states.Store(trans, txnState{last: phase, at: at})
}

// result validates the synchronous answer to a call carrying phase.
func (c *Checker) result(trans *tlm.Transaction, phase tlm.Phase, res tlm.SyncResult, updated tlm.Phase, delay sim.Time, forward bool) {
	switch res {
	case tlm.Accepted:
		if updated != phase {
			c.fatal(trans, updated, tlm.ErrIllegalPhase, "ACCEPTED changed the phase of "+phase.String())
		}

	case tlm.Updated:
		// the answer is a transition in the opposite direction
		c.observe(trans, updated, delay, !forward)

	case tlm.Completed:
		switch phase {
		case tlm.EndResp:
		case tlm.BeginResp:
			c.fatal(trans, phase, tlm.ErrDeprecatedTransition, "BEGIN_RESP answered with COMPLETED")
		default:
			c.complete(trans, phase)
		}
	}
}

func (c *Checker) complete(trans *tlm.Transaction, phase tlm.Phase) {
	if trans.ResponseStatus().IsIncomplete() {
		c.fatal(trans, phase, tlm.ErrIncompleteResponse, "COMPLETED without response status")
	}

	if c.reqOpen == trans {
		c.reqOpen = nil
	}
	if c.respOpen == trans {
		c.respOpen = nil
	}
	c.states.Delete(trans)
	c.metrics.incCompletedCount()
	c.metrics.incFinishedCount()

	if c.cfg.trace {
		c.logger.Info("completed", "time", c.kernel.Now(), "txn", trans.ID(), "status", trans.ResponseStatus())
	}
}

// BTransport implements tlm.ForwardTransport.
func (c *Checker) BTransport(trans *tlm.Transaction, delay sim.Time) sim.Time {
	delay = c.isock.BTransport(trans, delay)
	if trans.ResponseStatus().IsIncomplete() {
		c.fatal(trans, tlm.UninitializedPhase, tlm.ErrIncompleteResponse, "b_transport returned without response status")
	}

	return delay
}

// TransportDbg implements tlm.ForwardTransport.
func (c *Checker) TransportDbg(trans *tlm.Transaction) uint32 {
	return c.isock.TransportDbg(trans)
}

// GetDirectMemPtr implements tlm.ForwardTransport.
func (c *Checker) GetDirectMemPtr(trans *tlm.Transaction, dmi *tlm.DMI) bool {
	return c.isock.GetDirectMemPtr(trans, dmi)
}

// InvalidateDirectMemPtr implements tlm.BackwardTransport.
func (c *Checker) InvalidateDirectMemPtr(start, end uint64) {
	c.tsock.InvalidateDirectMemPtr(start, end)
}

func (c *Checker) fatal(trans *tlm.Transaction, phase tlm.Phase, err error, detail string) {
	tlm.Fatal(c.logger, c.name, c.kernel.Now(), trans, phase, err, detail)
}
