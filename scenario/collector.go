package scenario

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/go-tlm/tlm"
)

const namespace = "tlm"

var (
	initiatorIssuedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "initiator", "issued_total"),
		"BEGIN_REQ calls made by the initiator.",
		[]string{"scenario", "initiator"}, nil,
	)
	initiatorCompletedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "initiator", "completed_total"),
		"Transactions completed and released by the initiator.",
		[]string{"scenario", "initiator"}, nil,
	)
	initiatorErrorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "initiator", "errors_total"),
		"Error responses and failed response checks.",
		[]string{"scenario", "initiator"}, nil,
	)
	initiatorStallsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "initiator", "stalls_total"),
		"Requests that waited for END_REQ of their predecessor.",
		[]string{"scenario", "initiator"}, nil,
	)
	initiatorOutstandingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "initiator", "outstanding"),
		"Issued but not yet completed transactions.",
		[]string{"scenario", "initiator"}, nil,
	)
	targetRequestsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "target", "requests_total"),
		"Requests admitted by the target.",
		[]string{"scenario", "target", "policy"}, nil,
	)
	targetBackpressureDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "target", "backpressure_total"),
		"Requests whose END_REQ was deferred by a full buffer.",
		[]string{"scenario", "target", "policy"}, nil,
	)
	targetShortcutsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "target", "shortcuts_total"),
		"Requests answered through a protocol shortcut.",
		[]string{"scenario", "target", "policy"}, nil,
	)
	targetInFlightDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "target", "in_flight"),
		"Transactions admitted by the target.",
		[]string{"scenario", "target", "policy"}, nil,
	)
	targetPeakDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "target", "peak_in_flight"),
		"Largest number of transactions admitted at once.",
		[]string{"scenario", "target", "policy"}, nil,
	)
	routerRoutedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "router", "routed_total"),
		"Requests routed to a target.",
		[]string{"scenario", "router"}, nil,
	)
	routerUnmappedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "router", "unmapped_total"),
		"Requests to an address outside the address map.",
		[]string{"scenario", "router"}, nil,
	)
	routerQueuedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "router", "queued_total"),
		"Requests and responses that waited for a busy port.",
		[]string{"scenario", "router", "direction"}, nil,
	)
	routerActiveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "router", "active_routes"),
		"Transactions currently holding a route.",
		[]string{"scenario", "router"}, nil,
	)
	checkerPhasesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "checker", "phases_total"),
		"Phases observed by the protocol checker.",
		[]string{"scenario", "checker", "phase"}, nil,
	)
	checkerFinishedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "checker", "finished_total"),
		"Transactions the checker saw from BEGIN_REQ to their end.",
		[]string{"scenario", "checker"}, nil,
	)
)

var checkedPhases = []tlm.Phase{tlm.BeginReq, tlm.EndReq, tlm.BeginResp, tlm.EndResp}

// Collector exports the counters of a Simulation as Prometheus metrics.
//
// Every value is read from atomic participant counters, so a registry may be gathered while
// the simulation runs.
type Collector struct {
	sim *Simulation
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector of s.
func NewCollector(s *Simulation) *Collector {
	return &Collector{sim: s}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		initiatorIssuedDesc, initiatorCompletedDesc, initiatorErrorsDesc, initiatorStallsDesc,
		initiatorOutstandingDesc,
		targetRequestsDesc, targetBackpressureDesc, targetShortcutsDesc, targetInFlightDesc, targetPeakDesc,
		routerRoutedDesc, routerUnmappedDesc, routerQueuedDesc, routerActiveDesc,
		checkerPhasesDesc, checkerFinishedDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.sim
	name := s.Config.Name

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}

	for _, ini := range s.Initiators {
		m := ini.Metrics()
		counter(initiatorIssuedDesc, m.IssuedCount.Load(), name, ini.Name())
		counter(initiatorCompletedDesc, m.CompletedCount.Load(), name, ini.Name())
		counter(initiatorErrorsDesc, m.ErrorCount.Load(), name, ini.Name())
		counter(initiatorStallsDesc, m.StallCount.Load(), name, ini.Name())
		gauge(initiatorOutstandingDesc, m.Outstanding.Load(), name, ini.Name())
	}

	for _, t := range s.Targets {
		m := t.Metrics()
		policy := t.Config().Policy().String()
		counter(targetRequestsDesc, m.RequestCount.Load(), name, t.Name(), policy)
		counter(targetBackpressureDesc, m.BackpressureCount.Load(), name, t.Name(), policy)
		counter(targetShortcutsDesc, m.ShortcutCount.Load(), name, t.Name(), policy)
		gauge(targetInFlightDesc, m.InFlight.Load(), name, t.Name(), policy)
		gauge(targetPeakDesc, m.PeakInFlight.Load(), name, t.Name(), policy)
	}

	if r := s.Router; r != nil {
		m := r.Metrics()
		counter(routerRoutedDesc, m.RoutedCount.Load(), name, r.Name())
		counter(routerUnmappedDesc, m.UnmappedCount.Load(), name, r.Name())
		counter(routerQueuedDesc, m.QueuedRequestCount.Load(), name, r.Name(), "request")
		counter(routerQueuedDesc, m.QueuedResponseCount.Load(), name, r.Name(), "response")
		gauge(routerActiveDesc, m.ActiveRoutes.Load(), name, r.Name())
	}

	for _, chk := range s.Checkers {
		for _, phase := range checkedPhases {
			counter(checkerPhasesDesc, chk.Observed(phase), name, chk.Name(), phase.String())
		}
		counter(checkerFinishedDesc, chk.Metrics().FinishedCount.Load(), name, chk.Name())
	}
}
