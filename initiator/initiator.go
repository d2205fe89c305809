package initiator

import (
	"fmt"

	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/peq"
	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/tlm"
)

// Initiator is the requester side of the approximately-timed protocol.
//
// It issues the requests of its Generator one after another. At most one request is in the
// BEGIN_REQ..END_REQ window at any time: a prepared request stalls until END_REQ of its
// predecessor arrives. Responses are checked, closed with END_RESP and released.
type Initiator struct {
	name   string
	kernel *sim.Kernel
	cfg    *Config
	logger logger.Logger
	socket *tlm.InitiatorSocket
	peq    *peq.Queue
	pool   *tlm.Pool
	gen    Generator

	requestInProgress *tlm.Transaction
	stalled           *tlm.Transaction
	outstanding       int
	exhausted         bool
	started           bool
	done              bool

	dmi      tlm.DMI
	dmiValid bool

	errs    []error
	metrics Metrics
}

var _ tlm.InitiatorPort = (*Initiator)(nil)

// New creates an initiator issuing the requests of gen.
func New(name string, kernel *sim.Kernel, gen Generator, opts ...Option) (*Initiator, error) {
	if gen == nil {
		return nil, ErrNilGenerator
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	i := &Initiator{
		name:   name,
		kernel: kernel,
		cfg:    cfg,
		logger: cfg.logger.With("participant", name),
		pool:   cfg.pool,
		gen:    gen,
	}
	if i.pool == nil {
		i.pool = tlm.NewPool(
			tlm.WithPoolName(name+".mm"),
			tlm.WithPoolClock(kernel.Now),
			tlm.WithPoolLogger(i.logger),
		)
	}
	i.socket = tlm.NewInitiatorSocket(name+".socket", kernel.Now, i.logger)
	i.peq = peq.New(name+".peq", kernel, i.peqCallback, peq.WithLogger(i.logger))

	return i, nil
}

// Name returns the initiator name.
func (i *Initiator) Name() string { return i.name }

// Config returns the initiator configuration.
func (i *Initiator) Config() *Config { return i.cfg }

// InitiatorSocket implements tlm.InitiatorPort.
func (i *Initiator) InitiatorSocket() *tlm.InitiatorSocket { return i.socket }

// Pool returns the transaction pool of the initiator.
func (i *Initiator) Pool() *tlm.Pool { return i.pool }

// Metrics returns the initiator metrics.
func (i *Initiator) Metrics() *Metrics { return &i.metrics }

// Errors returns the response errors observed so far.
func (i *Initiator) Errors() []error { return i.errs }

// Done returns if every generated request has completed.
func (i *Initiator) Done() bool { return i.done }

// Outstanding returns the number of issued but not yet completed transactions.
func (i *Initiator) Outstanding() int { return i.outstanding }

// RequestInProgress returns the transaction in its BEGIN_REQ..END_REQ window, or nil.
func (i *Initiator) RequestInProgress() *tlm.Transaction { return i.requestInProgress }

// Start schedules the request issuing activity at the current simulated time.
// Calling Start more than once has no effect.
func (i *Initiator) Start() {
	if i.started {
		return
	}
	i.started = true
	i.kernel.Schedule(sim.ZeroTime, i.issueNext)
}

// issueNext prepares the next request and sends it unless a request is still in progress.
func (i *Initiator) issueNext() {
	req, ok := i.gen.Next()
	if !ok {
		i.exhausted = true
		i.checkDone()
		return
	}

	trans := i.pool.Allocate()
	trans.Acquire()
	req.fill(trans)
	i.outstanding++

	if i.requestInProgress != nil {
		i.stalled = trans
		i.metrics.incStallCount()
		i.logger.Debug("request stalled", "time", i.kernel.Now(), "txn", trans.ID(),
			"waiting_for", i.requestInProgress.ID())
		return
	}

	i.send(trans)
}

func (i *Initiator) send(trans *tlm.Transaction) {
	i.requestInProgress = trans
	i.metrics.incIssuedCount()

	delay := i.cfg.beginReqDelay()
	i.logger.Debug("BEGIN_REQ", "time", i.kernel.Now(), "txn", trans.ID(), "command", trans.Command(),
		"address", trans.Address(), "delay", delay)

	res, phase, delay := i.socket.NBTransportFW(trans, tlm.BeginReq, delay)
	switch res {
	case tlm.Updated:
		i.peq.Notify(trans, phase, delay)
	case tlm.Completed:
		i.requestInProgress = nil
		i.metrics.incShortcutCount()
		i.check(trans)
		i.finish(trans)
	case tlm.Accepted:
		// END_REQ or BEGIN_RESP follows on the backward path
	}

	i.kernel.Schedule(i.cfg.interRequestDelay(), i.issueNext)
}

// NBTransportBW implements tlm.BackwardTransport.
func (i *Initiator) NBTransportBW(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	switch phase {
	case tlm.EndReq:
	case tlm.BeginResp:
		if i.cfg.returnPath && i.peq.Pending() == 0 {
			if trans == i.requestInProgress {
				i.endRequest()
			}
			i.metrics.incShortcutCount()
			i.logger.Debug("return path shortcut", "time", i.kernel.Now(), "phase", tlm.EndResp, "txn", trans.ID())

			i.check(trans)
			i.finish(trans)

			return tlm.Updated, tlm.EndResp, delay + i.cfg.endRespDelay()
		}
	default:
		i.fatal(trans, phase, tlm.ErrIllegalPhase, "backward path")
	}

	i.peq.Notify(trans, phase, delay)

	return tlm.Accepted, phase, delay
}

// transitionKey identifies a row of the delivery transition table: whether the delivered
// transaction is the one in its request window, and the delivered phase.
type transitionKey struct {
	inRequest bool
	phase     tlm.Phase
}

type transition func(i *Initiator, trans *tlm.Transaction)

var transitions = map[transitionKey]transition{
	{inRequest: true, phase: tlm.EndReq}:     (*Initiator).onEndRequest,
	{inRequest: true, phase: tlm.BeginResp}:  (*Initiator).onImplicitEndRequest,
	{inRequest: false, phase: tlm.BeginResp}: (*Initiator).onBeginResponse,
}

func (i *Initiator) peqCallback(trans *tlm.Transaction, phase tlm.Phase) {
	key := transitionKey{inRequest: trans == i.requestInProgress, phase: phase}
	next, ok := transitions[key]
	if !ok {
		detail := "not legal for a transaction outside its request window"
		if key.inRequest {
			detail = "not legal for the transaction in its request window"
		}
		i.fatal(trans, phase, tlm.ErrIllegalPhase, detail)
	}

	next(i, trans)
}

func (i *Initiator) onEndRequest(trans *tlm.Transaction) {
	i.logger.Debug("END_REQ", "time", i.kernel.Now(), "txn", trans.ID())
	i.endRequest()
}

// onImplicitEndRequest handles BEGIN_RESP arriving before END_REQ, which ends the request window.
func (i *Initiator) onImplicitEndRequest(trans *tlm.Transaction) {
	i.endRequest()
	i.onBeginResponse(trans)
}

func (i *Initiator) onBeginResponse(trans *tlm.Transaction) {
	i.logger.Debug("BEGIN_RESP", "time", i.kernel.Now(), "txn", trans.ID(), "status", trans.ResponseStatus())
	i.check(trans)

	delay := i.cfg.endRespDelay()
	res, phase, _ := i.socket.NBTransportFW(trans, tlm.EndResp, delay)
	if res == tlm.Updated {
		i.fatal(trans, phase, tlm.ErrIllegalPhase, "END_RESP answered with UPDATED")
	}

	i.finish(trans)
}

// endRequest closes the request window and wakes a stalled request in the next scheduling step.
func (i *Initiator) endRequest() {
	i.requestInProgress = nil

	if trans := i.stalled; trans != nil {
		i.stalled = nil
		i.kernel.Schedule(sim.ZeroTime, func() { i.send(trans) })
	}
}

// check validates the outcome of a finished transaction.
func (i *Initiator) check(trans *tlm.Transaction) {
	if trans.ResponseStatus().IsIncomplete() {
		i.fatal(trans, tlm.BeginResp, tlm.ErrIncompleteResponse, "response without status")
	}

	var err error
	if trans.IsResponseError() {
		err = tlm.NewResponseError(i.name, i.kernel.Now(), trans)
	} else if i.cfg.responseCheck != nil {
		if cerr := i.cfg.responseCheck(trans); cerr != nil {
			err = fmt.Errorf("%w: %w", tlm.NewResponseError(i.name, i.kernel.Now(), trans), cerr)
		}
	}

	if err == nil {
		i.logger.Debug("checked", "time", i.kernel.Now(), "txn", trans.ID(), "command", trans.Command(),
			"address", trans.Address())
		return
	}

	i.metrics.incErrorCount()
	i.errs = append(i.errs, err)
	i.logger.Error("transaction returned with error", "time", i.kernel.Now(), "txn", trans.ID(), "error", err)

	if i.cfg.escalateErrors {
		sim.Halt(err)
	}
}

func (i *Initiator) finish(trans *tlm.Transaction) {
	trans.Release()
	i.outstanding--
	i.metrics.incCompletedCount()
	i.checkDone()
}

func (i *Initiator) checkDone() {
	if i.done || !i.exhausted || i.outstanding > 0 || i.stalled != nil || i.requestInProgress != nil {
		return
	}

	i.done = true
	i.logger.Info("all requests completed", "time", i.kernel.Now(),
		"issued", i.metrics.IssuedCount.Load(), "errors", len(i.errs))

	for _, h := range i.cfg.doneHandlers {
		h()
	}
}

func (i *Initiator) fatal(trans *tlm.Transaction, phase tlm.Phase, err error, detail string) {
	tlm.Fatal(i.logger, i.name, i.kernel.Now(), trans, phase, err, detail)
}
