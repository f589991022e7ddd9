// Package metrics exposes prometheus counters for the VTO pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	ProxiedCalls   *prometheus.CounterVec
	QuotaRejected  *prometheus.CounterVec
	UsageRecorded  prometheus.Counter
	RecordFailures prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProxiedCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vto_proxied_calls_total",
			Help: "Proxied VTO calls by endpoint and caller class.",
		}, []string{"endpoint", "caller"}),
		QuotaRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vto_quota_rejections_total",
			Help: "Requests rejected by the quota enforcer.",
		}, []string{"caller"}),
		UsageRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vto_usage_events_recorded_total",
			Help: "Usage events appended to the ledger.",
		}),
		RecordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vto_usage_record_failures_total",
			Help: "Best-effort usage recording failures.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ProxiedCalls, m.QuotaRejected, m.UsageRecorded, m.RecordFailures)
	}
	return m
}

func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// Module wires pipeline metrics against the default registry.
var Module = fx.Module("observability.metrics",
	fx.Provide(NewDefault),
)
