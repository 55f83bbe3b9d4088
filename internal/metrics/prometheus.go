package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Code outcomes reported by CodeOutcome.
const (
	CodeIssued           = "issued"
	CodeRedeemed         = "redeemed"
	CodeNotFound         = "not_found"
	CodeExpired          = "expired"
	CodeRedirectMismatch = "redirect_mismatch"
	CodeClientMismatch   = "client_mismatch"
	CodeInvalidPKCE      = "invalid_pkce"
)

// Metrics holds the authorization server collectors. A nil *Metrics is valid
// and records nothing, so components can run without a registry.
type Metrics struct {
	TokensIssuedTotal      *prometheus.CounterVec
	GrantFailuresTotal     *prometheus.CounterVec
	AuthCodesTotal         *prometheus.CounterVec
	ClientAuthFailureTotal prometheus.Counter
	MetadataReloadsTotal   *prometheus.CounterVec
	MetadataEntriesGauge   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// It should be called once at application startup.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensIssuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_tokens_issued_total",
			Help: "Total number of tokens issued.",
		}, []string{"grant_type", "token_type"}),
		GrantFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_grant_failures_total",
			Help: "Total number of rejected token requests.",
		}, []string{"grant_type", "reason"}),
		AuthCodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_auth_codes_total",
			Help: "Authorization code lifecycle events by outcome.",
		}, []string{"outcome"}),
		ClientAuthFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_client_auth_failures_total",
			Help: "Total number of failed client authentications.",
		}),
		MetadataReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_metadata_reloads_total",
			Help: "Secured resource metadata reloads by result.",
		}, []string{"result"}),
		MetadataEntriesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authcore_metadata_entries",
			Help: "Number of secured resource entries in the active snapshot.",
		}),
	}

	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return m
	}

	for name, c := range map[string]prometheus.Collector{
		"TokensIssuedTotal":      m.TokensIssuedTotal,
		"GrantFailuresTotal":     m.GrantFailuresTotal,
		"AuthCodesTotal":         m.AuthCodesTotal,
		"ClientAuthFailureTotal": m.ClientAuthFailureTotal,
		"MetadataReloadsTotal":   m.MetadataReloadsTotal,
		"MetadataEntriesGauge":   m.MetadataEntriesGauge,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msgf("Failed to register %s metric", name)
		}
	}

	log.Info().Msg("Custom Prometheus metrics registered.")

	return m
}

func (m *Metrics) TokenIssued(grantType, tokenType string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(grantType, tokenType).Inc()
}

func (m *Metrics) GrantFailed(grantType, reason string) {
	if m == nil {
		return
	}
	m.GrantFailuresTotal.WithLabelValues(grantType, reason).Inc()
}

func (m *Metrics) CodeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.AuthCodesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ClientAuthFailed() {
	if m == nil {
		return
	}
	m.ClientAuthFailureTotal.Inc()
}

// MetadataReloaded records a reload attempt. entries is ignored when ok is false.
func (m *Metrics) MetadataReloaded(ok bool, entries int) {
	if m == nil {
		return
	}

	if !ok {
		m.MetadataReloadsTotal.WithLabelValues("failure").Inc()
		return
	}

	m.MetadataReloadsTotal.WithLabelValues("success").Inc()
	m.MetadataEntriesGauge.Set(float64(entries))
}
