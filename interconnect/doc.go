// Package interconnect provides an address-decoding router for approximately-timed transactions.
//
// A Router has numbered inbound ports (TargetPort) bound to initiators and numbered outbound
// ports (InitiatorPort) bound to targets. Routers can be chained; every router records its own
// hop, by default in an automatic transaction extension that travels with the transaction and
// vanishes when the transaction returns to its pool. WithRoutingTable keeps the hops in a side
// table instead.
//
// Accesses to unmapped addresses complete immediately with tlm.AddressErrorResponse.
package interconnect
