package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounterVecLabels(t *testing.T) {
	before := testutil.ToFloat64(CommandsProcessed.WithLabelValues("/ban", "dispatched"))
	CommandsProcessed.WithLabelValues("/ban", "dispatched").Inc()
	after := testutil.ToFloat64(CommandsProcessed.WithLabelValues("/ban", "dispatched"))
	if after-before != 1 {
		t.Errorf("Expected counter to increase by 1, got %v", after-before)
	}
}

func TestGaugeSet(t *testing.T) {
	ActiveBans.Set(3)
	if got := testutil.ToFloat64(ActiveBans); got != 3 {
		t.Errorf("ActiveBans = %v, want 3", got)
	}
	ActiveBans.Set(0)
}
