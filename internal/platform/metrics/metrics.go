package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the portal's Prometheus collectors.
type Metrics struct {
	TokensIssued   *prometheus.CounterVec
	IssueDenied    *prometheus.CounterVec
	Logins         *prometheus.CounterVec
	PasswordResets *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	TenantsCreated prometheus.Counter
	MembersInvited prometheus.Counter
	GateLookups    *prometheus.CounterVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors with reg; tests pass a private registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_sso_tokens_issued_total",
			Help: "SSO tokens minted, by app",
		}, []string{"app"}),
		IssueDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_sso_issue_denied_total",
			Help: "SSO issue requests refused, by reason",
		}, []string{"reason"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_logins_total",
			Help: "Portal login attempts, by result",
		}, []string{"result"}),
		PasswordResets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_password_resets_total",
			Help: "Password changes and recoveries, by flow",
		}, []string{"flow"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "keystone_portal_sessions_active",
			Help: "Portal sessions created minus sessions ended on this instance",
		}),
		TenantsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "keystone_tenants_created_total",
			Help: "Tenants created",
		}),
		MembersInvited: f.NewCounter(prometheus.CounterOpts{
			Name: "keystone_members_invited_total",
			Help: "Members added to tenants",
		}),
		GateLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_gate_lookups_total",
			Help: "Authorization gate app-access decisions, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncTokensIssued(app string)   { m.TokensIssued.WithLabelValues(app).Inc() }
func (m *Metrics) IncIssueDenied(reason string) { m.IssueDenied.WithLabelValues(reason).Inc() }
func (m *Metrics) IncLogin(result string)       { m.Logins.WithLabelValues(result).Inc() }
func (m *Metrics) IncPasswordReset(flow string) { m.PasswordResets.WithLabelValues(flow).Inc() }
func (m *Metrics) IncGateLookup(outcome string) { m.GateLookups.WithLabelValues(outcome).Inc() }
func (m *Metrics) IncTenantsCreated()           { m.TenantsCreated.Inc() }
func (m *Metrics) IncMembersInvited()           { m.MembersInvited.Inc() }
func (m *Metrics) SessionStarted()              { m.ActiveSessions.Inc() }
func (m *Metrics) SessionEnded()                { m.ActiveSessions.Dec() }
