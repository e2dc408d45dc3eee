package polling

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the pause between the end of one pass and the start of
// the next.
const DefaultInterval = 30 * time.Second

// PassFunc runs one full pass.
type PassFunc func(ctx context.Context) (*PassResult, error)

// Status describes the last finished pass.
type Status struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Result    *PassResult   `json:"result,omitempty"`
}

// Scheduler runs passes on a fixed interval. The timer for the next pass
// is armed only after the previous pass returned, so passes never overlap.
type Scheduler struct {
	Interval time.Duration // defaults to DefaultInterval
	Pass     PassFunc
	Log      Logger
	// SkipInitial waits one interval before the first pass.
	SkipInitial bool

	mu      sync.RWMutex
	last    *Status
	running bool
	passes  int
}

// NewScheduler returns a scheduler that runs PollRepositories with cfg.
// Each pass gets a fresh run id.
func NewScheduler(interval time.Duration, cfg Config) *Scheduler {
	return &Scheduler{
		Interval: interval,
		Log:      cfg.Log,
		Pass: func(ctx context.Context) (*PassResult, error) {
			c := cfg
			c.RunID = ""
			return PollRepositories(ctx, c)
		},
	}
}

// Run blocks until ctx is cancelled. A pass in progress when that happens
// stops after its current repository.
func (s *Scheduler) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = nopLogger{}
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log.Infof("Starting scheduler (interval: %s)", interval)

	if !s.SkipInitial && ctx.Err() == nil {
		s.runOnce(ctx, log)
	}
	for {
		if ctx.Err() != nil {
			log.Infof("Scheduler stopped")
			return ctx.Err()
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
			if ctx.Err() == nil {
				s.runOnce(ctx, log)
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, log Logger) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	start := time.Now()
	res, err := s.Pass(ctx)
	st := &Status{StartedAt: start.UTC(), Duration: time.Since(start), Success: err == nil, Result: res}
	if err != nil {
		st.Error = err.Error()
		log.Errorf("Pass failed: %v", err)
	}

	s.mu.Lock()
	s.running = false
	s.passes++
	s.last = st
	s.mu.Unlock()
}

// Last returns a copy of the status of the last finished pass, or nil.
func (s *Scheduler) Last() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// Running reports whether a pass is in progress.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Passes returns the number of finished passes.
func (s *Scheduler) Passes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passes
}
