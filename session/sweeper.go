package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultSweepInterval is how often Sweeper.Run purges expired sessions
// when no interval is configured.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically removes expired sessions from a Store.
type Sweeper struct {
	store         Store
	maxInactivity time.Duration
	maxLifeTime   time.Duration
	interval      time.Duration
	schedule      string
	logger        *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the tick interval for Run.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.interval = d
	}
}

// WithSweepSchedule makes Run sweep on a cron expression instead of a fixed
// interval.
func WithSweepSchedule(expr string) SweeperOption {
	return func(s *Sweeper) {
		s.schedule = expr
	}
}

// ValidateSchedule reports whether expr is a cron expression Run accepts.
func ValidateSchedule(expr string) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q", expr)
	}
	return nil
}

// WithSweepLogger sets the logger used to report sweep failures.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// NewSweeper returns a Sweeper expiring sessions idle for maxInactivity or
// older than maxLifeTime.
func NewSweeper(store Store, maxInactivity, maxLifeTime time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:         store,
		maxInactivity: maxInactivity,
		maxLifeTime:   maxLifeTime,
		interval:      DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultSweepInterval
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return s
}

// SweepOnce runs a single cleanup pass.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	start := time.Now()
	if err := s.store.CleanUpExpiredSessions(ctx, s.maxInactivity, s.maxLifeTime); err != nil {
		return err
	}
	s.logger.Debug("expired sessions swept",
		slog.Duration("max_inactivity", s.maxInactivity),
		slog.Duration("max_lifetime", s.maxLifeTime),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// Run sweeps every interval, or on each cron tick when a schedule is set,
// until ctx is done. Failed passes are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	if s.schedule != "" {
		s.runScheduled(ctx)
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) runScheduled(ctx context.Context) {
	for {
		next, err := s.nextRun(time.Now())
		if err != nil {
			s.logger.Error("session sweep schedule unusable",
				slog.String("schedule", s.schedule),
				slog.String("error", err.Error()))
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.sweep(ctx)
		}
	}
}

// nextRun returns the first schedule tick strictly after ref.
func (s *Sweeper) nextRun(ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.schedule, ref, false)
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("session sweep failed", slog.String("error", err.Error()))
	}
}
