package monitor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"streamkeep/internal/capture"
	"streamkeep/internal/config"
	"streamkeep/internal/logging"
	"streamkeep/internal/monitor"
	"streamkeep/internal/recorder"
	"streamkeep/internal/sources"
	"streamkeep/internal/testsupport"
)

type stubLister struct {
	mu      sync.Mutex
	sources []sources.Source
	err     error
	panics  bool
	calls   atomic.Int32
}

func (l *stubLister) ListActive(context.Context) ([]sources.Source, error) {
	l.calls.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.panics {
		panic("registry corrupted")
	}
	return append([]sources.Source(nil), l.sources...), l.err
}

type stubProber struct {
	results map[string]capture.ProbeResult
	errs    map[string]error
}

func (p stubProber) Probe(_ context.Context, address string) (capture.ProbeResult, error) {
	if err, ok := p.errs[address]; ok {
		return capture.ProbeResult{}, err
	}
	return p.results[address], nil
}

type stubStarter struct {
	mu        sync.Mutex
	recording map[string]bool
	startErr  map[string]error
	started   []string
}

func newStubStarter() *stubStarter {
	return &stubStarter{recording: map[string]bool{}, startErr: map[string]error{}}
}

func (s *stubStarter) Start(_ context.Context, src sources.Source, _ *config.Config) (recorder.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startErr[src.Name]; err != nil {
		return recorder.SessionInfo{}, err
	}
	s.recording[src.Name] = true
	s.started = append(s.started, src.Name)
	return recorder.SessionInfo{ID: "sess-" + src.Name, Source: src.Name}, nil
}

func (s *stubStarter) IsRecording(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording[name]
}

func src(name string) sources.Source {
	return sources.Source{Name: name, Address: "addr-" + name, Active: true}
}

func TestTickStartsLiveSources(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lister := &stubLister{sources: []sources.Source{src("alpha"), src("beta"), src("gamma"), src("delta")}}
	prober := stubProber{
		results: map[string]capture.ProbeResult{
			"addr-alpha": {Live: true},
			"addr-beta":  {Live: false},
			"addr-delta": {Live: true},
		},
		errs: map[string]error{"addr-gamma": errors.New("probe timed out")},
	}
	starter := newStubStarter()
	starter.recording["delta"] = true

	var outcomes []monitor.ProbeOutcome
	m := monitor.New(lister, starter, func() *config.Config { return cfg }, logging.NewNop(),
		monitor.WithProber(prober),
		monitor.WithProbeObserver(func(o monitor.ProbeOutcome) { outcomes = append(outcomes, o) }),
	)

	result, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if result.Checked != 3 || result.Live != 1 || result.Started != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(starter.started) != 1 || starter.started[0] != "alpha" {
		t.Fatalf("started %v, want [alpha]", starter.started)
	}
	want := []monitor.ProbeOutcome{monitor.ProbeLive, monitor.ProbeOffline, monitor.ProbeError}
	if len(outcomes) != len(want) {
		t.Fatalf("outcomes %v, want %v", outcomes, want)
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("outcomes %v, want %v", outcomes, want)
		}
	}
}

func TestTickToleratesStartRejections(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lister := &stubLister{sources: []sources.Source{src("alpha"), src("beta"), src("gamma")}}
	prober := stubProber{results: map[string]capture.ProbeResult{
		"addr-alpha": {Live: true},
		"addr-beta":  {Live: true},
		"addr-gamma": {Live: true},
	}}
	starter := newStubStarter()
	starter.startErr["alpha"] = recorder.ErrAtCapacity
	starter.startErr["beta"] = recorder.ErrAlreadyRecording

	m := monitor.New(lister, starter, func() *config.Config { return cfg }, logging.NewNop(), monitor.WithProber(prober))
	result, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if result.Live != 3 || result.Started != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTickDisabledByConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Monitor.AutoCheckLive = false
	lister := &stubLister{sources: []sources.Source{src("alpha")}}
	m := monitor.New(lister, newStubStarter(), func() *config.Config { return cfg }, logging.NewNop(),
		monitor.WithProber(stubProber{}))

	result, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if result.Checked != 0 || lister.calls.Load() != 0 {
		t.Fatalf("disabled monitor should not read sources, got %+v", result)
	}
}

func TestTickRecoversPanic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lister := &stubLister{panics: true}
	m := monitor.New(lister, newStubStarter(), func() *config.Config { return cfg }, logging.NewNop(),
		monitor.WithProber(stubProber{}))

	if _, err := m.Tick(context.Background()); err == nil {
		t.Fatal("expected panic to surface as an error")
	}
}

func TestLoopBacksOffAfterFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lister := &stubLister{err: errors.New("database is locked")}
	m := monitor.New(lister, newStubStarter(), func() *config.Config { return cfg }, logging.NewNop(),
		monitor.WithProber(stubProber{}),
		monitor.WithIntervals(5*time.Millisecond, time.Hour),
	)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	m.Stop()

	if calls := lister.calls.Load(); calls != 1 {
		t.Fatalf("expected a single tick before the backoff, got %d", calls)
	}
}

func TestLoopKeepsPolling(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lister := &stubLister{}
	m := monitor.New(lister, newStubStarter(), func() *config.Config { return cfg }, logging.NewNop(),
		monitor.WithProber(stubProber{}),
		monitor.WithIntervals(5*time.Millisecond, time.Hour),
	)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Running() {
		t.Fatal("expected monitor running")
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for lister.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	if lister.calls.Load() < 3 {
		t.Fatalf("expected repeated ticks, got %d", lister.calls.Load())
	}
	if m.Running() {
		t.Fatal("expected monitor stopped")
	}
	m.Stop()
}
