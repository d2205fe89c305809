package initiator

import "sync/atomic"

// Metrics contains atomic counters of an initiator.
type Metrics struct {
	// IssuedCount indicates the number of BEGIN_REQ calls made.
	IssuedCount atomic.Uint64
	// CompletedCount indicates the number of transactions released after completion.
	CompletedCount atomic.Uint64
	// ErrorCount indicates the number of error responses and failed response checks.
	ErrorCount atomic.Uint64
	// StallCount indicates how often a prepared request waited for END_REQ of its predecessor.
	StallCount atomic.Uint64
	// ShortcutCount indicates the number of transactions finished through a shortcut or early completion.
	ShortcutCount atomic.Uint64
	// Outstanding indicates the number of issued but not yet completed transactions.
	Outstanding atomic.Int64
}

func (m *Metrics) incIssuedCount() {
	m.IssuedCount.Add(1)
	m.Outstanding.Add(1)
}

func (m *Metrics) incCompletedCount() {
	m.CompletedCount.Add(1)
	m.Outstanding.Add(-1)
}

func (m *Metrics) incErrorCount() {
	m.ErrorCount.Add(1)
}

func (m *Metrics) incStallCount() {
	m.StallCount.Add(1)
}

func (m *Metrics) incShortcutCount() {
	m.ShortcutCount.Add(1)
}
