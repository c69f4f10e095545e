package cachering

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	viewChanges     *prometheus.CounterVec
	leavePlans      prometheus.Counter
	transferChoices *prometheus.CounterVec
	ringMembers     prometheus.Gauge
}

var _ prometheus.Collector = (*metrics)(nil)

func newMetrics() *metrics {
	var m metrics

	m.viewChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cachering_view_changes_total",
		Help: "Total number of membership views applied. kind will be one of: initial, join, leave, unchanged, rejected.",
	}, []string{"kind"})
	m.leavePlans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachering_leave_plans_total",
		Help: "Total number of leave plans computed.",
	})
	m.transferChoices = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cachering_transfer_decisions_total",
		Help: "Total number of local rebalance obligations. decision will be one of: receive, send, none.",
	}, []string{"decision"})
	m.ringMembers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cachering_ring_members",
		Help: "Current number of members in the placement ring.",
	})

	return &m
}

func (m *metrics) observeDecision(d Decision) {
	if d.Receive {
		m.transferChoices.WithLabelValues("receive").Inc()
	}
	if d.Send {
		m.transferChoices.WithLabelValues("send").Inc()
	}
	if !d.Receive && !d.Send {
		m.transferChoices.WithLabelValues("none").Inc()
	}
}

func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	m.viewChanges.Describe(ch)
	m.leavePlans.Describe(ch)
	m.transferChoices.Describe(ch)
	m.ringMembers.Describe(ch)
}

func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	m.viewChanges.Collect(ch)
	m.leavePlans.Collect(ch)
	m.transferChoices.Collect(ch)
	m.ringMembers.Collect(ch)
}
