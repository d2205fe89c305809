package interconnect

import (
	"fmt"

	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/tlm"
)

func (r *Router) nbTransportFW(in int, trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	switch phase {
	case tlm.BeginReq:
		return r.beginRequest(in, trans, delay)
	case tlm.EndResp:
		return r.endResponse(in, trans, delay)
	default:
		r.fatal(trans, phase, tlm.ErrIllegalPhase, "forward path")
		return tlm.Completed, phase, delay
	}
}

func (r *Router) beginRequest(in int, trans *tlm.Transaction, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	if _, ok := r.routes.load(trans); ok {
		r.fatal(trans, tlm.BeginReq, tlm.ErrIllegalPhase, "BEGIN_REQ for a transaction that is already routed")
	}

	global := trans.Address()
	out, local, ok := r.decode(global)
	if !ok {
		r.metrics.incUnmappedCount()
		trans.SetResponseStatus(tlm.AddressErrorResponse)
		r.logger.Warn("address not mapped", "time", r.kernel.Now(), "port", in, "txn", trans.ID(),
			"address", global)

		return tlm.Completed, tlm.BeginReq, delay
	}

	h := hop{inPort: in, outPort: out}
	trans.SetAddress(local)
	trans.Acquire()
	r.routes.store(trans, h)
	r.metrics.incRoutedCount()
	r.logger.Debug("route", "time", r.kernel.Now(), "txn", trans.ID(), "in", in, "out", out,
		"address", global, "local_address", local)

	port := r.initiatorPorts[out]
	if port.reqInProgress != nil || !port.requests.IsEmpty() {
		port.requests.Enqueue(pendingRequest{trans: trans, due: r.kernel.Now() + delay})
		r.metrics.incQueuedRequestCount()
		r.logger.Debug("request queued", "time", r.kernel.Now(), "txn", trans.ID(), "out", out,
			"queued", port.requests.Length())

		return tlm.Accepted, tlm.BeginReq, delay
	}

	return r.forwardRequest(h, trans, delay, true)
}

// forwardRequest sends BEGIN_REQ to the outbound port of h. When direct is false the
// initiator already got ACCEPTED, so synchronous answers of the target are turned into
// backward calls.
func (r *Router) forwardRequest(h hop, trans *tlm.Transaction, delay sim.Time, direct bool) (tlm.SyncResult, tlm.Phase, sim.Time) {
	port := r.initiatorPorts[h.outPort]
	port.reqInProgress = trans

	res, phase, delay := port.socket.NBTransportFW(trans, tlm.BeginReq, delay)
	switch res {
	case tlm.Accepted:
		return res, phase, delay

	case tlm.Updated:
		switch phase {
		case tlm.EndReq:
			r.endRequest(h.outPort, trans, delay)
			if direct {
				return res, phase, delay
			}
			if res, _, _ := r.targetPorts[h.inPort].socket.NBTransportBW(trans, tlm.EndReq, delay); res != tlm.Accepted {
				r.fatal(trans, tlm.EndReq, tlm.ErrIllegalPhase, "END_REQ answered with "+res.String())
			}

		case tlm.BeginResp:
			r.endRequest(h.outPort, trans, delay)
			if direct && r.targetPorts[h.inPort].responseIdle() {
				r.targetPorts[h.inPort].respInProgress = trans
				return res, phase, delay
			}
			r.beginResponse(h, trans, delay)

		default:
			r.fatal(trans, phase, tlm.ErrIllegalPhase, "BEGIN_REQ updated to "+phase.String())
		}

	case tlm.Completed:
		r.endRequest(h.outPort, trans, delay)
		if direct {
			r.closeRoute(trans)
			return res, phase, delay
		}
		h.completed = true
		r.routes.store(trans, h)
		r.beginResponse(h, trans, delay)
	}

	return tlm.Accepted, tlm.BeginReq, delay
}

// endRequest frees the request window of outbound port out when the END_REQ of trans takes
// effect, delay after now. Until then further requests stay queued.
func (r *Router) endRequest(out int, trans *tlm.Transaction, delay sim.Time) {
	if delay == sim.ZeroTime {
		r.freeRequest(out, trans)
		return
	}
	r.kernel.Schedule(delay, func() { r.freeRequest(out, trans) })
}

func (r *Router) freeRequest(out int, trans *tlm.Transaction) {
	port := r.initiatorPorts[out]
	// an earlier END_REQ, explicit or implicit, already closed the window
	if port.reqInProgress != trans {
		return
	}
	port.reqInProgress = nil

	if !port.requests.IsEmpty() {
		r.kernel.Schedule(sim.ZeroTime, func() { r.sendQueuedRequest(out) })
	}
}

func (r *Router) sendQueuedRequest(out int) {
	port := r.initiatorPorts[out]
	if port.reqInProgress != nil {
		return
	}
	p, ok := port.requests.Dequeue()
	if !ok {
		return
	}

	var delay sim.Time
	if now := r.kernel.Now(); p.due > now {
		delay = p.due - now
	}
	r.forwardRequest(r.lookup(p.trans, tlm.BeginReq), p.trans, delay, false)
}

func (r *Router) nbTransportBW(out int, trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	h := r.lookup(trans, phase)
	if h.outPort != out {
		r.fatal(trans, phase, tlm.ErrRoutingMismatch,
			fmt.Sprintf("backward call from port %d, request went to port %d", out, h.outPort))
	}
	r.metrics.incBackwardCount()

	port := r.initiatorPorts[out]
	switch phase {
	case tlm.EndReq:
		if port.reqInProgress != trans {
			r.fatal(trans, phase, tlm.ErrIllegalPhase, "END_REQ for a transaction outside its request window")
		}
		r.endRequest(out, trans, delay)

		return r.targetPorts[h.inPort].socket.NBTransportBW(trans, phase, delay)

	case tlm.BeginResp:
		if port.reqInProgress == trans {
			r.endRequest(out, trans, delay)
		}

		tp := r.targetPorts[h.inPort]
		if !tp.responseIdle() {
			r.queueResponse(tp, trans)
			return tlm.Accepted, phase, delay
		}

		return r.sendResponse(h, trans, delay, true)

	default:
		r.fatal(trans, phase, tlm.ErrIllegalPhase, "backward path")
		return tlm.Completed, phase, delay
	}
}

// beginResponse delivers BEGIN_RESP outside the call stack of the target.
func (r *Router) beginResponse(h hop, trans *tlm.Transaction, delay sim.Time) {
	tp := r.targetPorts[h.inPort]
	if !tp.responseIdle() {
		r.queueResponse(tp, trans)
		return
	}
	r.sendResponse(h, trans, delay, false)
}

func (r *Router) queueResponse(tp *TargetPort, trans *tlm.Transaction) {
	tp.responses.Enqueue(trans)
	r.metrics.incQueuedResponseCount()
	r.logger.Debug("response queued", "time", r.kernel.Now(), "txn", trans.ID(), "in", tp.index,
		"queued", tp.responses.Length())
}

// sendResponse sends BEGIN_RESP to the inbound port of h. When direct is false the target is
// not on the call stack, so END_RESP folded into the return value is forwarded to it.
func (r *Router) sendResponse(h hop, trans *tlm.Transaction, delay sim.Time, direct bool) (tlm.SyncResult, tlm.Phase, sim.Time) {
	tp := r.targetPorts[h.inPort]
	tp.respInProgress = trans

	res, phase, delay := tp.socket.NBTransportBW(trans, tlm.BeginResp, delay)
	if res == tlm.Completed || (res == tlm.Updated && phase == tlm.EndResp) {
		r.responseDone(h.inPort, trans, delay)
		if !direct && !h.completed {
			r.initiatorPorts[h.outPort].socket.NBTransportFW(trans, tlm.EndResp, delay)
		}
		r.closeRoute(trans)
	}

	return res, phase, delay
}

func (r *Router) endResponse(in int, trans *tlm.Transaction, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	h := r.lookup(trans, tlm.EndResp)
	if h.inPort != in {
		r.fatal(trans, tlm.EndResp, tlm.ErrRoutingMismatch,
			fmt.Sprintf("END_RESP on port %d, request came from port %d", in, h.inPort))
	}
	if r.targetPorts[in].respInProgress != trans {
		r.fatal(trans, tlm.EndResp, tlm.ErrIllegalPhase, "END_RESP without response in progress")
	}
	r.responseDone(in, trans, delay)

	if h.completed {
		r.closeRoute(trans)
		return tlm.Completed, tlm.EndResp, delay
	}

	res, phase, delay := r.initiatorPorts[h.outPort].socket.NBTransportFW(trans, tlm.EndResp, delay)
	r.closeRoute(trans)

	return res, phase, delay
}

// responseDone frees the response window of inbound port in when the END_RESP of trans takes
// effect, delay after now. Until then further responses stay queued.
func (r *Router) responseDone(in int, trans *tlm.Transaction, delay sim.Time) {
	if delay == sim.ZeroTime {
		r.freeResponse(in, trans)
		return
	}
	r.kernel.Schedule(delay, func() { r.freeResponse(in, trans) })
}

func (r *Router) freeResponse(in int, trans *tlm.Transaction) {
	tp := r.targetPorts[in]
	if tp.respInProgress != trans {
		return
	}
	tp.respInProgress = nil

	if !tp.responses.IsEmpty() {
		r.kernel.Schedule(sim.ZeroTime, func() { r.sendQueuedResponse(in) })
	}
}

func (r *Router) sendQueuedResponse(in int) {
	tp := r.targetPorts[in]
	if tp.respInProgress != nil {
		return
	}
	trans, ok := tp.responses.Dequeue()
	if !ok {
		return
	}
	r.sendResponse(r.lookup(trans, tlm.BeginResp), trans, sim.ZeroTime, false)
}

func (r *Router) lookup(trans *tlm.Transaction, phase tlm.Phase) hop {
	h, ok := r.routes.load(trans)
	if !ok {
		r.fatal(trans, phase, tlm.ErrRoutingMismatch, "no route recorded for transaction")
	}
	return h
}

func (r *Router) closeRoute(trans *tlm.Transaction) {
	r.routes.forget(trans)
	r.metrics.routeClosed()
	r.logger.Debug("route closed", "time", r.kernel.Now(), "txn", trans.ID())
	trans.Release()
}

func (p *TargetPort) responseIdle() bool {
	return p.respInProgress == nil && p.responses.IsEmpty()
}
