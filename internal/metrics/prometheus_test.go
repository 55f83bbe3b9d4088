package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.pilab.hu/authcore/internal/metrics"
)

func TestMetrics_Record(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.TokenIssued("client_credentials", "access_token")
	m.TokenIssued("client_credentials", "access_token")
	m.GrantFailed("password", "invalid_grant")
	m.CodeOutcome(metrics.CodeRedeemed)
	m.ClientAuthFailed()
	m.MetadataReloaded(true, 7)
	m.MetadataReloaded(false, 0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("client_credentials", "access_token")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GrantFailuresTotal.WithLabelValues("password", "invalid_grant")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthCodesTotal.WithLabelValues(metrics.CodeRedeemed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ClientAuthFailureTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MetadataReloadsTotal.WithLabelValues("failure")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.MetadataEntriesGauge), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.TokenIssued("a", "b")
		m.GrantFailed("a", "b")
		m.CodeOutcome("c")
		m.ClientAuthFailed()
		m.MetadataReloaded(true, 1)
	})
}

func TestNew_DuplicateRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)

	assert.NotPanics(t, func() { metrics.New(reg) })
}
