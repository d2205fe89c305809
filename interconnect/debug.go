package interconnect

import (
	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/tlm"
)

func (r *Router) bTransport(in int, trans *tlm.Transaction, delay sim.Time) sim.Time {
	out, local, ok := r.decode(trans.Address())
	if !ok {
		r.metrics.incUnmappedCount()
		trans.SetResponseStatus(tlm.AddressErrorResponse)
		r.logger.Warn("address not mapped", "time", r.kernel.Now(), "port", in, "address", trans.Address())

		return delay
	}

	trans.SetAddress(local)

	return r.initiatorPorts[out].socket.BTransport(trans, delay)
}

func (r *Router) transportDbg(trans *tlm.Transaction) uint32 {
	out, local, ok := r.decode(trans.Address())
	if !ok {
		return 0
	}

	trans.SetAddress(local)

	return r.initiatorPorts[out].socket.TransportDbg(trans)
}

// getDirectMemPtr forwards a DMI request and maps the granted range back into the global
// address space, clipped to the range of the target.
func (r *Router) getDirectMemPtr(trans *tlm.Transaction, dmi *tlm.DMI) bool {
	out, local, ok := r.decode(trans.Address())
	if !ok {
		dmi.Reset()
		return false
	}

	trans.SetAddress(local)
	dmi.Reset()
	granted := r.initiatorPorts[out].socket.GetDirectMemPtr(trans, dmi)

	rg := r.cfg.addressMap[out]
	if dmi.EndAddress > rg.Size-1 {
		if dmi.Memory != nil && dmi.StartAddress < rg.Size {
			keep := rg.Size - dmi.StartAddress
			if keep < uint64(len(dmi.Memory)) {
				dmi.Memory = dmi.Memory[:keep]
			}
		}
		dmi.EndAddress = rg.Size - 1
	}
	dmi.StartAddress += rg.Base
	dmi.EndAddress += rg.Base

	return granted
}

// invalidate maps an invalidation from target port out into the global address space and
// broadcasts it to every bound inbound port.
func (r *Router) invalidate(out int, start, end uint64) {
	rg := r.cfg.addressMap[out]
	if start > rg.Size-1 {
		return
	}
	end = min(end, rg.Size-1)

	r.logger.Debug("dmi invalidated", "time", r.kernel.Now(), "port", out,
		"start", start+rg.Base, "end", end+rg.Base)

	for _, p := range r.targetPorts {
		if p.socket.IsBound() {
			p.socket.InvalidateDirectMemPtr(start+rg.Base, end+rg.Base)
		}
	}
}
