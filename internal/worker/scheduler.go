package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wacrm/internal/observability"
)

// ErrRunInProgress is returned when a trigger arrives while a previous run
// is still draining.
var ErrRunInProgress = errors.New("pending-actions run already in progress")

// Scheduler ties the run guard to the runner. Every trigger path (timer tick
// or HTTP) goes through RunOnce so overlapping runs are impossible within
// this process.
type Scheduler struct {
	Guard  *Guard
	Runner *Runner
}

func (s *Scheduler) RunOnce(ctx context.Context, progress Progress) error {
	if !s.Guard.TryAcquire() {
		return ErrRunInProgress
	}
	defer s.Guard.Release()

	start := time.Now()
	err := s.Runner.Run(ctx, progress)
	if err != nil {
		observability.Runs.WithLabelValues("error").Inc()
		return err
	}
	observability.Runs.WithLabelValues("ok").Inc()
	slog.Info("pending actions run complete", "duration", time.Since(start))
	return nil
}

// Start drives RunOnce on a fixed interval until ctx is canceled. Ticks that
// land while a run is in flight are skipped.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.RunOnce(ctx, nil)
			switch {
			case errors.Is(err, ErrRunInProgress):
				slog.Info("skipping tick, previous run still active")
			case err != nil:
				slog.Error("pending actions run failed", "err", err)
			}
		}
	}
}
