package tlm

import (
	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/sim"
)

// InitiatorPort is implemented by every participant that issues forward calls.
type InitiatorPort interface {
	BackwardTransport
	InitiatorSocket() *InitiatorSocket
}

// TargetPort is implemented by every participant that receives forward calls.
type TargetPort interface {
	ForwardTransport
	TargetSocket() *TargetSocket
}

// InitiatorSocket is the outbound endpoint of an initiator-side participant.
// Forward calls made through it reach the bound target port.
type InitiatorSocket struct {
	name   string
	clock  func() sim.Time
	logger logger.Logger
	peer   ForwardTransport
}

// NewInitiatorSocket creates an unbound initiator socket.
// clock may be nil; it only feeds the time reported by protocol errors.
func NewInitiatorSocket(name string, clock func() sim.Time, l logger.Logger) *InitiatorSocket {
	return &InitiatorSocket{name: name, clock: clock, logger: l}
}

// Name returns the socket name.
func (s *InitiatorSocket) Name() string { return s.name }

// IsBound returns if the socket has been bound.
func (s *InitiatorSocket) IsBound() bool { return s.peer != nil }

// NBTransportFW forwards to the bound target port.
func (s *InitiatorSocket) NBTransportFW(t *Transaction, phase Phase, delay sim.Time) (SyncResult, Phase, sim.Time) {
	s.mustBeBound(t, phase)
	return s.peer.NBTransportFW(t, phase, delay)
}

// BTransport forwards to the bound target port.
func (s *InitiatorSocket) BTransport(t *Transaction, delay sim.Time) sim.Time {
	s.mustBeBound(t, UninitializedPhase)
	return s.peer.BTransport(t, delay)
}

// TransportDbg forwards to the bound target port.
func (s *InitiatorSocket) TransportDbg(t *Transaction) uint32 {
	s.mustBeBound(t, UninitializedPhase)
	return s.peer.TransportDbg(t)
}

// GetDirectMemPtr forwards to the bound target port.
func (s *InitiatorSocket) GetDirectMemPtr(t *Transaction, dmi *DMI) bool {
	s.mustBeBound(t, UninitializedPhase)
	return s.peer.GetDirectMemPtr(t, dmi)
}

func (s *InitiatorSocket) mustBeBound(t *Transaction, phase Phase) {
	if s.peer == nil {
		Fatal(s.logger, s.name, now(s.clock), t, phase, ErrUnbound, "forward call")
	}
}

// TargetSocket is the inbound endpoint of a target-side participant.
// Backward calls made through it reach the bound initiator port.
type TargetSocket struct {
	name   string
	clock  func() sim.Time
	logger logger.Logger
	peer   BackwardTransport
}

// NewTargetSocket creates an unbound target socket.
// clock may be nil; it only feeds the time reported by protocol errors.
func NewTargetSocket(name string, clock func() sim.Time, l logger.Logger) *TargetSocket {
	return &TargetSocket{name: name, clock: clock, logger: l}
}

// Name returns the socket name.
func (s *TargetSocket) Name() string { return s.name }

// IsBound returns if the socket has been bound.
func (s *TargetSocket) IsBound() bool { return s.peer != nil }

// NBTransportBW forwards to the bound initiator port.
func (s *TargetSocket) NBTransportBW(t *Transaction, phase Phase, delay sim.Time) (SyncResult, Phase, sim.Time) {
	if s.peer == nil {
		Fatal(s.logger, s.name, now(s.clock), t, phase, ErrUnbound, "backward call")
	}
	return s.peer.NBTransportBW(t, phase, delay)
}

// InvalidateDirectMemPtr forwards to the bound initiator port.
func (s *TargetSocket) InvalidateDirectMemPtr(start, end uint64) {
	if s.peer == nil {
		Fatal(s.logger, s.name, now(s.clock), nil, UninitializedPhase, ErrUnbound, "dmi invalidation")
	}
	s.peer.InvalidateDirectMemPtr(start, end)
}

// Bind associates an initiator port with a target port, one to one.
func Bind(ip InitiatorPort, tp TargetPort) error {
	if ip == nil || tp == nil {
		return ErrNilPort
	}

	is, ts := ip.InitiatorSocket(), tp.TargetSocket()
	if is == nil || ts == nil {
		return ErrNilPort
	}
	if is.IsBound() || ts.IsBound() {
		return ErrAlreadyBound
	}

	is.peer = tp
	ts.peer = ip

	return nil
}

func now(clock func() sim.Time) sim.Time {
	if clock == nil {
		return sim.ZeroTime
	}
	return clock()
}
