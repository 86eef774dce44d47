package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	// promauto registers automatically, so we just verify they exist
	// by writing a value and collecting it.

	ProbesSent.Inc()
	AnnouncementsSent.WithLabelValues("bind").Inc()
	FramesReceived.WithLabelValues("conflict").Inc()
	IOErrors.WithLabelValues("send").Inc()
	SessionsRunning.Set(1)
	StateTransitions.WithLabelValues("PROBING").Inc()
	ConflictsDetected.WithLabelValues("RUNNING").Inc()
	RateLimitActivations.Inc()
	EventsPublished.WithLabelValues("acd.bind").Inc()
	EventBufferDrops.Inc()

	if got := testutil.ToFloat64(SessionsRunning); got != 1 {
		t.Errorf("SessionsRunning = %v, want 1", got)
	}
	if got := testutil.ToFloat64(EventBufferDrops); got != 1 {
		t.Errorf("EventBufferDrops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RateLimitActivations); got != 1 {
		t.Errorf("RateLimitActivations = %v, want 1", got)
	}
}

func TestMetricsNamespace(t *testing.T) {
	// All metrics should use the acd_ namespace.
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range mfs {
		name := mf.GetName()
		if strings.HasPrefix(name, "go_") ||
			strings.HasPrefix(name, "process_") ||
			strings.HasPrefix(name, "promhttp_") {
			continue
		}
		if !strings.HasPrefix(name, "acd_") {
			t.Errorf("metric %q does not have acd_ prefix", name)
		}
	}
}
