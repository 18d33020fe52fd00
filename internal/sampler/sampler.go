package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vitals/internal/collector"
	"vitals/internal/models"
)

var (
	ErrUnknownAction   = errors.New("unknown control action")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Result is the outcome of a control action: "applied" when the action changed
// state, "noop" when it was redundant. State is the post-action snapshot.
type Result struct {
	Status string               `json:"status"`
	State  models.RuntimeConfig `json:"state"`
}

// OnSample runs synchronously inside Tick, after the sample is built.
type OnSample func(ctx context.Context, s *models.Sample)

type Sampler struct {
	source   collector.Source
	onSample OnSample
	log      *slog.Logger
	now      func() time.Time
	stopWait time.Duration

	// mu guards the control state and the net-counter delta bookkeeping.
	mu       sync.Mutex
	running  bool
	paused   bool
	interval time.Duration
	lastTS   time.Time
	prevTx   int64
	prevRx   int64
	havePrev bool

	// lifeMu serializes Start/Stop so a join never overlaps a restart.
	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(source collector.Source, interval, stopWait time.Duration, onSample OnSample, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if stopWait <= 0 {
		stopWait = 10 * time.Second
	}
	return &Sampler{
		source:   source,
		onSample: onSample,
		log:      logger,
		now:      time.Now,
		stopWait: stopWait,
		interval: interval,
	}
}

// Start begins the sampling loop. Returns false when a loop is already active.
func (s *Sampler) Start() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.havePrev = false
	s.prevTx, s.prevRx = 0, 0
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.Info("sampler started", "interval", s.Snapshot().IntervalSeconds)
	return true
}

// Stop cancels the loop and joins it within the stop timeout. Returns false
// when no loop is active. The delta baseline is released so a later Start
// reports rate 0 on its first tick.
func (s *Sampler) Stop() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(s.stopWait):
		s.log.Warn("sampler loop did not stop in time", "timeout", s.stopWait)
	}

	s.mu.Lock()
	s.havePrev = false
	s.prevTx, s.prevRx = 0, 0
	s.mu.Unlock()
	s.log.Info("sampler stopped")
	return true
}

// Pause keeps the loop alive but skips ticks. Returns false when already paused.
func (s *Sampler) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return false
	}
	s.paused = true
	return true
}

func (s *Sampler) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return false
	}
	s.paused = false
	return true
}

// SetInterval takes effect on the tick following the current wait.
func (s *Sampler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w, got %s", ErrInvalidInterval, d)
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	return nil
}

func (s *Sampler) Snapshot() models.RuntimeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.RuntimeConfig{
		IsSampling:      s.running,
		IsPaused:        s.paused,
		IntervalSeconds: s.interval.Seconds(),
	}
}

// Apply executes one control action. Redundant transitions report "noop",
// never an error.
func (s *Sampler) Apply(action string, value *float64) (Result, error) {
	switch action {
	case "start":
		return s.result(s.Start()), nil
	case "stop":
		return s.result(s.Stop()), nil
	case "pause":
		return s.result(s.Pause()), nil
	case "resume":
		return s.result(s.Resume()), nil
	case "interval":
		if value == nil {
			return Result{}, fmt.Errorf("%w, no value given", ErrInvalidInterval)
		}
		d := time.Duration(*value * float64(time.Second))
		if err := s.SetInterval(d); err != nil {
			return Result{}, err
		}
		return Result{Status: "applied", State: s.Snapshot()}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

func (s *Sampler) result(changed bool) Result {
	status := "applied"
	if !changed {
		status = "noop"
	}
	return Result{Status: status, State: s.Snapshot()}
}

// Tick builds one sample from the source, stamps a non-decreasing timestamp,
// derives the net rates from the previous cumulative counters, then runs the
// OnSample hook before returning.
func (s *Sampler) Tick(ctx context.Context) (*models.Sample, error) {
	sample, err := s.source.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	s.mu.Lock()
	ts := s.now().UTC()
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastTS = ts
	sample.TS = ts
	if s.havePrev {
		sample.NetTxRate = counterDelta(sample.NetTxTotal, s.prevTx)
		sample.NetRxRate = counterDelta(sample.NetRxTotal, s.prevRx)
	}
	s.prevTx, s.prevRx = sample.NetTxTotal, sample.NetRxTotal
	s.havePrev = true
	s.mu.Unlock()

	if s.onSample != nil {
		s.onSample(ctx, &sample)
	}
	return &sample, nil
}

func (s *Sampler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(s.currentInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !s.isPaused() {
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("tick failed", "err", err)
			}
		}
		// interval re-read so a SetInterval applies on the next wait
		timer.Reset(s.currentInterval())
	}
}

func (s *Sampler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Sampler) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// counterDelta clamps to 0 when the cumulative counter went backwards
// (host counter reset), never reporting a negative rate.
func counterDelta(current, previous int64) int64 {
	if current < previous {
		return 0
	}
	return current - previous
}
