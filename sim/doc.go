// Package sim provides the discrete-event scheduling primitives used by the transaction
// protocol engine: simulated time, a single-threaded event kernel and a fatal halt path.
//
// The kernel is intentionally small. It offers exactly the capabilities the protocol
// participants rely on:
//   - Schedule a callback at "now + delay".
//   - Deliver callbacks in non-decreasing time order, FIFO among callbacks due at the same time.
//   - Run to quiescence.
//
// Participants report protocol violations with Halt, which unwinds the running callback and
// makes Kernel.Run return the error.
package sim
