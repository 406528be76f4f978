package ssoapp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Verifications *prometheus.CounterVec
}

// NewMetrics registers the exchange counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Verifications: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_app_token_verifications_total",
			Help: "SSO exchanges and app session checks by outcome",
		}, []string{"app", "op", "result"}),
	}
}
