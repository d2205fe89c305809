package scenario

import (
	"fmt"
	"strings"

	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/target"
	"github.com/arloliu/go-tlm/tlm"
)

// Report summarizes a run.
type Report struct {
	Name    string
	EndTime sim.Time
	Events  uint64
	// Err is the error that ended the run, or nil.
	Err error

	Initiators []InitiatorReport
	Targets    []TargetReport
	Checkers   []CheckerReport
	Router     *RouterReport

	// Outstanding is the number of transactions still handed out by all pools.
	Outstanding int
	// Reclaimed is the number of transactions returned to all pools.
	Reclaimed uint64
}

// InitiatorReport holds the counters of one initiator.
type InitiatorReport struct {
	Name      string
	Issued    uint64
	Completed uint64
	Errors    uint64
	Stalls    uint64
	Shortcuts uint64
	Done      bool
}

// TargetReport holds the counters of one target and its occupancy trace.
type TargetReport struct {
	Name           string
	Policy         target.Policy
	Capacity       int
	Requests       uint64
	Responses      uint64
	Backpressure   uint64
	ErrorResponses uint64
	Shortcuts      uint64
	PeakInFlight   int
	Occupancy      []OccupancySample
}

// RouterReport holds the counters of the router.
type RouterReport struct {
	Name            string
	Routed          uint64
	Unmapped        uint64
	Backward        uint64
	QueuedRequests  uint64
	QueuedResponses uint64
	ActiveRoutes    int
}

// CheckerReport holds the phases observed by one checker.
type CheckerReport struct {
	Name      string
	BeginReq  uint64
	EndReq    uint64
	BeginResp uint64
	EndResp   uint64
	Completed uint64
	Finished  uint64
	Open      int
}

func (s *Simulation) report(err error) *Report {
	r := &Report{
		Name:    s.Config.Name,
		EndTime: s.Kernel.Now(),
		Events:  s.Kernel.Executed(),
		Err:     err,
	}

	for _, ini := range s.Initiators {
		m := ini.Metrics()
		r.Initiators = append(r.Initiators, InitiatorReport{
			Name:      ini.Name(),
			Issued:    m.IssuedCount.Load(),
			Completed: m.CompletedCount.Load(),
			Errors:    m.ErrorCount.Load(),
			Stalls:    m.StallCount.Load(),
			Shortcuts: m.ShortcutCount.Load(),
			Done:      ini.Done(),
		})
	}

	for _, t := range s.Targets {
		m := t.Metrics()
		r.Targets = append(r.Targets, TargetReport{
			Name:           t.Name(),
			Policy:         t.Config().Policy(),
			Capacity:       t.Config().Capacity(),
			Requests:       m.RequestCount.Load(),
			Responses:      m.ResponseCount.Load(),
			Backpressure:   m.BackpressureCount.Load(),
			ErrorResponses: m.ErrorResponseCount.Load(),
			Shortcuts:      m.ShortcutCount.Load(),
			PeakInFlight:   int(m.PeakInFlight.Load()),
			Occupancy:      s.occupancy[t.Name()],
		})
	}

	for _, c := range s.Checkers {
		m := c.Metrics()
		r.Checkers = append(r.Checkers, CheckerReport{
			Name:      c.Name(),
			BeginReq:  c.Observed(tlm.BeginReq),
			EndReq:    c.Observed(tlm.EndReq),
			BeginResp: c.Observed(tlm.BeginResp),
			EndResp:   c.Observed(tlm.EndResp),
			Completed: m.CompletedCount.Load(),
			Finished:  m.FinishedCount.Load(),
			Open:      c.Open(),
		})
	}

	if s.Router != nil {
		m := s.Router.Metrics()
		r.Router = &RouterReport{
			Name:            s.Router.Name(),
			Routed:          m.RoutedCount.Load(),
			Unmapped:        m.UnmappedCount.Load(),
			Backward:        m.BackwardCount.Load(),
			QueuedRequests:  m.QueuedRequestCount.Load(),
			QueuedResponses: m.QueuedResponseCount.Load(),
			ActiveRoutes:    s.Router.ActiveRoutes(),
		}
	}

	for _, p := range s.pools {
		r.Outstanding += p.Outstanding()
		r.Reclaimed += p.Reclaimed()
	}

	return r
}

// String renders the report as a plain text summary.
func (r *Report) String() string {
	var sb strings.Builder

	status := "ok"
	if r.Err != nil {
		status = r.Err.Error()
	}
	fmt.Fprintf(&sb, "scenario %q: %s at %s after %d events\n", r.Name, status, r.EndTime, r.Events)

	for _, i := range r.Initiators {
		fmt.Fprintf(&sb, "  initiator %-16s issued=%d completed=%d errors=%d stalls=%d shortcuts=%d done=%t\n",
			i.Name, i.Issued, i.Completed, i.Errors, i.Stalls, i.Shortcuts, i.Done)
	}
	for _, t := range r.Targets {
		fmt.Fprintf(&sb, "  target    %-16s policy=%s requests=%d responses=%d backpressure=%d errors=%d shortcuts=%d peak=%s\n",
			t.Name, t.Policy, t.Requests, t.Responses, t.Backpressure, t.ErrorResponses, t.Shortcuts,
			target.BufferBar(t.PeakInFlight, t.Capacity))
	}
	if rt := r.Router; rt != nil {
		fmt.Fprintf(&sb, "  router    %-16s routed=%d unmapped=%d backward=%d queued_req=%d queued_resp=%d active=%d\n",
			rt.Name, rt.Routed, rt.Unmapped, rt.Backward, rt.QueuedRequests, rt.QueuedResponses, rt.ActiveRoutes)
	}
	for _, c := range r.Checkers {
		fmt.Fprintf(&sb, "  checker   %-16s begin_req=%d end_req=%d begin_resp=%d end_resp=%d completed=%d finished=%d open=%d\n",
			c.Name, c.BeginReq, c.EndReq, c.BeginResp, c.EndResp, c.Completed, c.Finished, c.Open)
	}
	fmt.Fprintf(&sb, "  pools     outstanding=%d reclaimed=%d\n", r.Outstanding, r.Reclaimed)

	return sb.String()
}
