package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SessionsStarted.Inc()
	m.TokenRefreshed(nil)
	m.TokenRefreshed(errors.New("boom"))
	m.TokenRefreshed(nil)

	if got := testutil.ToFloat64(m.SessionsStarted); got != 1 {
		t.Errorf("Expected 1 session, got %v", got)
	}
	if got := testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("ok")); got != 2 {
		t.Errorf("Expected 2 ok refreshes, got %v", got)
	}
	if got := testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed refresh, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected registered metric families")
	}
}

func TestNewMetricsSeparateRegistries(t *testing.T) {
	// Registering twice on one registry panics; separate registries must not.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
