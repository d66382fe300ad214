package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// SweepFunc is one pass of the idle sweep.
type SweepFunc func(ctx context.Context) error

// Sweeper runs a SweepFunc on a fixed interval. A pass that overruns the
// interval delays the next one instead of overlapping it.
type Sweeper struct {
	sched   gocron.Scheduler
	timeout time.Duration
}

func NewSweeper(interval time.Duration, fn SweepFunc, log *slog.Logger) (*Sweeper, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	s := &Sweeper{sched: sched, timeout: interval}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := fn(ctx); err != nil {
				log.Error("sweep failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("idle-sweep"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.sched.Start()
}

func (s *Sweeper) Shutdown() error {
	return s.sched.Shutdown()
}
