// Package initiator implements the requester state machine of the approximately-timed protocol.
//
// An Initiator pulls requests from a Generator, allocates pooled transactions for them and
// drives each one through BEGIN_REQ, END_REQ, BEGIN_RESP and END_RESP. Deliveries are
// dispatched through a transition table keyed by the delivered phase and by whether the
// transaction is the one in its request window.
//
// Error responses are logged, counted and collected by default; WithEscalateErrors turns them
// into a halt of the simulation.
package initiator
