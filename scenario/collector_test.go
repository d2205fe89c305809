package scenario

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// gather returns the value of every sample of family name keyed by the label value at key.
func gather(t *testing.T, reg *prometheus.Registry, name, key string) map[string]float64 {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			values[labelValue(m, key)] = sampleValue(m)
		}
	}

	return values
}

func labelValue(m *dto.Metric, key string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == key {
			return lp.GetValue()
		}
	}

	return ""
}

func sampleValue(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}

	return m.GetGauge().GetValue()
}

func TestCollector(t *testing.T) {
	require := require.New(t)

	s := build(t, `
name = "exported"
checker = true

[router]

[[initiator]]
name = "cpu"
count = 30

[[initiator]]
name = "dma"
count = 10

[[target]]
name = "sram"
capacity = 1

[[target]]
name = "dram"
policy = "early-completion"
`)

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(NewCollector(s))

	before := gather(t, reg, "tlm_initiator_issued_total", "initiator")
	require.Equal(map[string]float64{"cpu": 0, "dma": 0}, before)

	report, err := s.Run(context.Background())
	require.NoError(err)

	issued := gather(t, reg, "tlm_initiator_issued_total", "initiator")
	require.Equal(map[string]float64{"cpu": 30, "dma": 10}, issued)

	outstanding := gather(t, reg, "tlm_initiator_outstanding", "initiator")
	require.Equal(map[string]float64{"cpu": 0, "dma": 0}, outstanding)

	requests := gather(t, reg, "tlm_target_requests_total", "target")
	require.InDelta(40, requests["sram"]+requests["dram"], 0)
	require.InDelta(float64(report.Targets[0].Requests), requests["sram"], 0)

	routed := gather(t, reg, "tlm_router_routed_total", "router")
	require.Equal(map[string]float64{"router": 40}, routed)

	queued := gather(t, reg, "tlm_router_queued_total", "direction")
	require.Len(queued, 2)

	phases := gather(t, reg, "tlm_checker_phases_total", "phase")
	require.Len(phases, 4)

	finished := gather(t, reg, "tlm_checker_finished_total", "checker")
	require.Equal(map[string]float64{"cpu.checker": 30, "dma.checker": 10}, finished)
}
