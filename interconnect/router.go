package interconnect

import (
	"fmt"

	"github.com/arloliu/go-tlm/internal/queue"
	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/tlm"
)

// Router forwards transactions from N initiator-side ports to M target-side ports by address.
//
// BEGIN_REQ is decoded against the address map, the address is rewritten to be local to the
// selected target, and the route is kept until the transaction ends. Backward calls follow the
// recorded route back to the port the request came from.
//
// The router keeps the exclusion rules on both sides: requests for a busy outbound port and
// responses for a busy inbound port wait in per-port FIFOs.
type Router struct {
	name   string
	kernel *sim.Kernel
	cfg    *Config
	logger logger.Logger
	routes routeStore

	targetPorts    []*TargetPort
	initiatorPorts []*InitiatorPort

	metrics Metrics
}

// TargetPort is the inbound port i of a router, bound to an initiator or an upstream router.
type TargetPort struct {
	router *Router
	index  int
	socket *tlm.TargetSocket

	// at most one BEGIN_RESP..END_RESP window per inbound socket
	respInProgress *tlm.Transaction
	responses      *queue.FIFO[*tlm.Transaction]
}

var _ tlm.TargetPort = (*TargetPort)(nil)

// InitiatorPort is the outbound port j of a router, bound to a target or a downstream router.
type InitiatorPort struct {
	router *Router
	index  int
	socket *tlm.InitiatorSocket

	// at most one BEGIN_REQ..END_REQ window per outbound socket
	reqInProgress *tlm.Transaction
	requests      *queue.FIFO[pendingRequest]
}

// pendingRequest is a BEGIN_REQ waiting for its outbound port, due at the annotated time.
type pendingRequest struct {
	trans *tlm.Transaction
	due   sim.Time
}

var _ tlm.InitiatorPort = (*InitiatorPort)(nil)

// New creates a router with numInitiators inbound and numTargets outbound ports.
// The address map must assign one range to every outbound port.
func New(name string, kernel *sim.Kernel, numInitiators, numTargets int, opts ...Option) (*Router, error) {
	if numInitiators < 1 || numTargets < 1 {
		return nil, fmt.Errorf("%w: a router needs at least one port on each side", ErrInvalidOption)
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(numTargets); err != nil {
		return nil, err
	}

	r := &Router{
		name:   name,
		kernel: kernel,
		cfg:    cfg,
		logger: cfg.logger.With("participant", name),
	}
	if cfg.routingTable {
		r.routes = newTableStore()
	} else {
		r.routes = extensionStore{owner: r}
	}

	r.targetPorts = make([]*TargetPort, numInitiators)
	for i := range r.targetPorts {
		r.targetPorts[i] = &TargetPort{
			router:    r,
			index:     i,
			socket:    tlm.NewTargetSocket(fmt.Sprintf("%s.target_socket[%d]", name, i), kernel.Now, r.logger),
			responses: queue.NewFIFO[*tlm.Transaction](0),
		}
	}
	r.initiatorPorts = make([]*InitiatorPort, numTargets)
	for j := range r.initiatorPorts {
		r.initiatorPorts[j] = &InitiatorPort{
			router:   r,
			index:    j,
			socket:   tlm.NewInitiatorSocket(fmt.Sprintf("%s.initiator_socket[%d]", name, j), kernel.Now, r.logger),
			requests: queue.NewFIFO[pendingRequest](0),
		}
	}

	return r, nil
}

// Name returns the router name.
func (r *Router) Name() string { return r.name }

// Config returns the router configuration.
func (r *Router) Config() *Config { return r.cfg }

// Metrics returns the router metrics.
func (r *Router) Metrics() *Metrics { return &r.metrics }

// TargetPort returns inbound port i. It panics if i is out of range.
func (r *Router) TargetPort(i int) *TargetPort { return r.targetPorts[i] }

// InitiatorPort returns outbound port j. It panics if j is out of range.
func (r *Router) InitiatorPort(j int) *InitiatorPort { return r.initiatorPorts[j] }

// NumTargetPorts returns the number of inbound ports.
func (r *Router) NumTargetPorts() int { return len(r.targetPorts) }

// NumInitiatorPorts returns the number of outbound ports.
func (r *Router) NumInitiatorPorts() int { return len(r.initiatorPorts) }

// ActiveRoutes returns the number of transactions currently routed through r.
func (r *Router) ActiveRoutes() int { return int(r.metrics.ActiveRoutes.Load()) }

// decode returns the outbound port and the target-local address of a global address.
func (r *Router) decode(addr uint64) (int, uint64, bool) {
	for j, rg := range r.cfg.addressMap {
		if rg.Contains(addr) {
			return j, addr - rg.Base, true
		}
	}
	return 0, 0, false
}

func (r *Router) fatal(trans *tlm.Transaction, phase tlm.Phase, err error, detail string) {
	tlm.Fatal(r.logger, r.name, r.kernel.Now(), trans, phase, err, detail)
}

// TargetSocket implements tlm.TargetPort.
func (p *TargetPort) TargetSocket() *tlm.TargetSocket { return p.socket }

// Index returns the port index.
func (p *TargetPort) Index() int { return p.index }

// NBTransportFW implements tlm.ForwardTransport.
func (p *TargetPort) NBTransportFW(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	return p.router.nbTransportFW(p.index, trans, phase, delay)
}

// BTransport implements tlm.ForwardTransport.
func (p *TargetPort) BTransport(trans *tlm.Transaction, delay sim.Time) sim.Time {
	return p.router.bTransport(p.index, trans, delay)
}

// TransportDbg implements tlm.ForwardTransport.
func (p *TargetPort) TransportDbg(trans *tlm.Transaction) uint32 {
	return p.router.transportDbg(trans)
}

// GetDirectMemPtr implements tlm.ForwardTransport.
func (p *TargetPort) GetDirectMemPtr(trans *tlm.Transaction, dmi *tlm.DMI) bool {
	return p.router.getDirectMemPtr(trans, dmi)
}

// InitiatorSocket implements tlm.InitiatorPort.
func (p *InitiatorPort) InitiatorSocket() *tlm.InitiatorSocket { return p.socket }

// Index returns the port index.
func (p *InitiatorPort) Index() int { return p.index }

// NBTransportBW implements tlm.BackwardTransport.
func (p *InitiatorPort) NBTransportBW(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	return p.router.nbTransportBW(p.index, trans, phase, delay)
}

// InvalidateDirectMemPtr implements tlm.BackwardTransport.
func (p *InitiatorPort) InvalidateDirectMemPtr(start, end uint64) {
	p.router.invalidate(p.index, start, end)
}
