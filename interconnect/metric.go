package interconnect

import "sync/atomic"

// Metrics contains atomic counters of a router.
type Metrics struct {
	// RoutedCount indicates the number of BEGIN_REQ calls forwarded to a target port.
	RoutedCount atomic.Uint64
	// UnmappedCount indicates the number of accesses to an address outside the address map.
	UnmappedCount atomic.Uint64
	// BackwardCount indicates the number of backward calls received from target ports.
	BackwardCount atomic.Uint64
	// QueuedRequestCount indicates how many BEGIN_REQ calls waited for a busy target port.
	QueuedRequestCount atomic.Uint64
	// QueuedResponseCount indicates how many BEGIN_RESP calls waited for a busy initiator port.
	QueuedResponseCount atomic.Uint64
	// ActiveRoutes indicates the number of transactions currently holding a route.
	ActiveRoutes atomic.Int64
}

func (m *Metrics) incRoutedCount() {
	m.RoutedCount.Add(1)
	m.ActiveRoutes.Add(1)
}

func (m *Metrics) incUnmappedCount() {
	m.UnmappedCount.Add(1)
}

func (m *Metrics) incBackwardCount() {
	m.BackwardCount.Add(1)
}

func (m *Metrics) incQueuedRequestCount() {
	m.QueuedRequestCount.Add(1)
}

func (m *Metrics) incQueuedResponseCount() {
	m.QueuedResponseCount.Add(1)
}

func (m *Metrics) routeClosed() {
	m.ActiveRoutes.Add(-1)
}
