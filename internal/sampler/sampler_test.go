package sampler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"vitals/internal/models"
)

type fakeSource struct {
	samples []models.Sample
	idx     int
	err     error
}

func (f *fakeSource) Collect(ctx context.Context) (models.Sample, error) {
	if f.err != nil {
		return models.Sample{}, f.err
	}
	s := f.samples[f.idx]
	if f.idx < len(f.samples)-1 {
		f.idx++
	}
	return s, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickComputesRatesFromCounterDeltas(t *testing.T) {
	src := &fakeSource{samples: []models.Sample{
		{NetTxTotal: 1000, NetRxTotal: 2000},
		{NetTxTotal: 1500, NetRxTotal: 2300},
		{NetTxTotal: 100, NetRxTotal: 50}, // counter reset
	}}
	s := New(src, time.Second, time.Second, nil, discardLogger())
	ctx := context.Background()

	first, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if first.NetTxRate != 0 || first.NetRxRate != 0 {
		t.Fatalf("first tick rates = %d/%d, want 0/0", first.NetTxRate, first.NetRxRate)
	}

	second, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if second.NetTxRate != 500 || second.NetRxRate != 300 {
		t.Fatalf("second tick rates = %d/%d, want 500/300", second.NetTxRate, second.NetRxRate)
	}

	third, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if third.NetTxRate != 0 || third.NetRxRate != 0 {
		t.Fatalf("reset tick rates = %d/%d, want 0/0", third.NetTxRate, third.NetRxRate)
	}
}

func TestTickTimestampNeverDecreases(t *testing.T) {
	src := &fakeSource{samples: []models.Sample{{}, {}}}
	s := New(src, time.Second, time.Second, nil, discardLogger())
	times := []time.Time{
		time.Date(2026, 8, 30, 12, 0, 10, 0, time.UTC),
		time.Date(2026, 8, 30, 12, 0, 5, 0, time.UTC), // clock stepped back
	}
	i := 0
	s.now = func() time.Time { t := times[i]; i++; return t }

	first, _ := s.Tick(context.Background())
	second, _ := s.Tick(context.Background())
	if second.TS.Before(first.TS) {
		t.Fatalf("timestamp went backwards: %s then %s", first.TS, second.TS)
	}
}

func TestTickPropagatesCollectError(t *testing.T) {
	src := &fakeSource{err: errors.New("proc unreadable")}
	s := New(src, time.Second, time.Second, nil, discardLogger())
	if _, err := s.Tick(context.Background()); err == nil {
		t.Fatal("want error from failing source")
	}
}

func TestTickInvokesOnSampleHook(t *testing.T) {
	src := &fakeSource{samples: []models.Sample{{CPUPercent: 42}}}
	var hooked atomic.Int64
	hook := func(ctx context.Context, smp *models.Sample) {
		if smp.CPUPercent != 42 {
			t.Errorf("hook cpu = %v, want 42", smp.CPUPercent)
		}
		hooked.Add(1)
	}
	s := New(src, time.Second, time.Second, hook, discardLogger())
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if hooked.Load() != 1 {
		t.Fatalf("hook calls = %d, want 1", hooked.Load())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	src := &fakeSource{samples: []models.Sample{{}}}
	s := New(src, time.Hour, time.Second, nil, discardLogger())

	if !s.Start() {
		t.Fatal("first start should succeed")
	}
	if s.Start() {
		t.Fatal("second start should be a no-op")
	}
	if !s.Snapshot().IsSampling {
		t.Fatal("snapshot should report sampling")
	}

	begin := time.Now()
	if !s.Stop() {
		t.Fatal("stop on a running sampler should succeed")
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("stop took %s, want interrupt of the interval wait", elapsed)
	}
	if s.Stop() {
		t.Fatal("second stop should be a no-op")
	}
	if s.Snapshot().IsSampling {
		t.Fatal("snapshot should report stopped")
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	src := &fakeSource{samples: []models.Sample{{}}}
	s := New(src, time.Second, time.Second, nil, discardLogger())

	if !s.Pause() {
		t.Fatal("first pause should apply")
	}
	if s.Pause() {
		t.Fatal("second pause should be a no-op")
	}
	if !s.Snapshot().IsPaused {
		t.Fatal("snapshot should report paused")
	}
	if !s.Resume() {
		t.Fatal("resume should apply")
	}
	if s.Resume() {
		t.Fatal("second resume should be a no-op")
	}
}

func TestPausedLoopSkipsTicks(t *testing.T) {
	var ticks atomic.Int64
	src := &fakeSource{samples: []models.Sample{{}}}
	hook := func(context.Context, *models.Sample) { ticks.Add(1) }
	s := New(src, 10*time.Millisecond, time.Second, hook, discardLogger())
	s.Pause()
	s.Start()
	defer s.Stop()

	time.Sleep(80 * time.Millisecond)
	if n := ticks.Load(); n != 0 {
		t.Fatalf("paused loop produced %d ticks, want 0", n)
	}

	s.Resume()
	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() == 0 {
		t.Fatal("resumed loop produced no ticks")
	}
}

func TestApplyControlSemantics(t *testing.T) {
	src := &fakeSource{samples: []models.Sample{{}}}
	s := New(src, 5*time.Second, time.Second, nil, discardLogger())

	res, err := s.Apply("pause", nil)
	if err != nil || res.Status != "applied" || !res.State.IsPaused {
		t.Fatalf("pause = %+v, %v", res, err)
	}
	res, err = s.Apply("pause", nil)
	if err != nil || res.Status != "noop" || !res.State.IsPaused {
		t.Fatalf("redundant pause = %+v, %v", res, err)
	}

	v := 2.5
	res, err = s.Apply("interval", &v)
	if err != nil || res.Status != "applied" {
		t.Fatalf("interval = %+v, %v", res, err)
	}
	if res.State.IntervalSeconds != 2.5 {
		t.Fatalf("interval seconds = %v, want 2.5", res.State.IntervalSeconds)
	}

	neg := -1.0
	if _, err := s.Apply("interval", &neg); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("negative interval err = %v, want ErrInvalidInterval", err)
	}
	if _, err := s.Apply("interval", nil); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("missing interval err = %v, want ErrInvalidInterval", err)
	}
	if got := s.Snapshot().IntervalSeconds; got != 2.5 {
		t.Fatalf("interval after rejected mutations = %v, want 2.5", got)
	}

	if _, err := s.Apply("explode", nil); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("unknown action err = %v, want ErrUnknownAction", err)
	}
}

func TestRestartResetsDeltaBaseline(t *testing.T) {
	src := &fakeSource{samples: []models.Sample{
		{NetTxTotal: 1000, NetRxTotal: 1000},
		{NetTxTotal: 2000, NetRxTotal: 2000},
	}}
	s := New(src, time.Hour, time.Second, nil, discardLogger())

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	s.Start()
	s.Stop()

	after, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if after.NetTxRate != 0 || after.NetRxRate != 0 {
		t.Fatalf("post-restart rates = %d/%d, want 0/0", after.NetTxRate, after.NetRxRate)
	}
}
