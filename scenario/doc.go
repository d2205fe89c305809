// Package scenario builds and runs simulations described in TOML.
//
// A scenario file lists initiators, targets, an optional router and whether a protocol checker
// watches every initiator link:
//
//	name = "two memories"
//	checker = true
//
//	[router]
//	address_space = 1024
//
//	[[initiator]]
//	count = 100
//	verify_reads = true
//
//	[[target]]
//	policy = "queued"
//	capacity = 2
//
//	[[target]]
//	policy = "skip-end-req"
//	latency = "rand(40ns)"
//
// Without a router, initiator i is bound to target i. Delays accept a fixed value such as
// "10ns" or a uniform random value such as "rand(40ns)" drawn from the scenario seed.
//
// Build creates the participants and binds them, Simulation.Run starts the initiators and
// returns a Report with the counters of every participant and the occupancy trace of every
// target.
package scenario
