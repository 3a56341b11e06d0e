package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamkeep/internal/metrics"
)

func TestHandlerExposesMetrics(t *testing.T) {
	m := metrics.New()
	m.ObserveProbe("live")
	m.ObserveSessionEnded("low_power", "completed")
	m.ObserveMerge("merged", 2*time.Second)
	m.ObserveReplication("ftp", false)

	called := false
	srv := httptest.NewServer(m.Handler(func() {
		called = true
		m.SetGauges(2, 5, true)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	if !called {
		t.Fatal("expected gauges to refresh before scrape")
	}
	for _, want := range []string{
		"streamkeep_active_sessions 2",
		"streamkeep_queue_length 5",
		"streamkeep_monitor_running 1",
		`streamkeep_probes_total{result="live"} 1`,
		`streamkeep_sessions_ended_total{mode="low_power",outcome="completed"} 1`,
		`streamkeep_replications_total{result="failure",target="ftp"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}

func TestObserveMergeCountsOutcomes(t *testing.T) {
	m := metrics.New()
	m.ObserveMerge("merged", time.Second)
	m.ObserveMerge("failed", time.Second)
	m.ObserveMerge("failed", time.Second)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "streamkeep_merges_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					counts[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if counts["merged"] != 1 || counts["failed"] != 2 {
		t.Fatalf("unexpected merge counts %v", counts)
	}
}

func TestServerStartStop(t *testing.T) {
	m := metrics.New()
	var s metrics.Server
	if err := s.Start("127.0.0.1:0", m.Handler(nil)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("expected bound address")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("expected empty address after stop")
	}
}
