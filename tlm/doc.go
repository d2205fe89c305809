// Package tlm defines the transaction object model and the transport interfaces of the
// approximately-timed request/response protocol.
//
// A Transaction is allocated from a Pool, passed by pointer through sockets and mutated in
// place by the participant that currently owns the phase. Participants retain it with Acquire
// and give it up with Release; the Pool reclaims it when the count reaches zero.
//
// Phases follow BEGIN_REQ, END_REQ, BEGIN_RESP, END_RESP. BEGIN_REQ and END_RESP travel on
// the forward path (NBTransportFW), END_REQ and BEGIN_RESP on the backward path
// (NBTransportBW). A non-blocking call returns a SyncResult:
//
//   - Accepted: the callee will answer later with a call in the opposite direction.
//   - Updated: the callee advanced the phase; the caller acts on the returned phase.
//   - Completed: the transaction is finished.
//
// Protocol violations are programming defects. They are reported with Fatal, which halts the
// running sim.Kernel with a *ProtocolError.
package tlm
