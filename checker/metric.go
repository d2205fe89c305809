package checker

import (
	"sync/atomic"

	"github.com/arloliu/go-tlm/tlm"
)

// Metrics contains atomic counters of a checker.
type Metrics struct {
	BeginReqCount  atomic.Uint64
	EndReqCount    atomic.Uint64
	BeginRespCount atomic.Uint64
	EndRespCount   atomic.Uint64
	// CompletedCount indicates the number of transactions that ended on a synchronous COMPLETED.
	CompletedCount atomic.Uint64
	// FinishedCount indicates the number of transactions seen from BEGIN_REQ to their end.
	FinishedCount atomic.Uint64
}

func (m *Metrics) observe(phase tlm.Phase) {
	switch phase {
	case tlm.BeginReq:
		m.BeginReqCount.Add(1)
	case tlm.EndReq:
		m.EndReqCount.Add(1)
	case tlm.BeginResp:
		m.BeginRespCount.Add(1)
	case tlm.EndResp:
		m.EndRespCount.Add(1)
	}
}

func (m *Metrics) incCompletedCount() {
	m.CompletedCount.Add(1)
}

func (m *Metrics) incFinishedCount() {
	m.FinishedCount.Add(1)
}
