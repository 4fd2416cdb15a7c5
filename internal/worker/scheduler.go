package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/trigger"
)

// Pass runs one full coordinator pass. *trigger.Coordinator satisfies it.
type Pass interface {
	Run(ctx context.Context) trigger.Result
}

// Scheduler runs the coordinator on a fixed interval inside the process.
// It is an alternative to the external HTTP trigger for deployments that
// have no cron of their own. Overlapping passes cannot happen: the next tick
// is only consumed after the current pass returns.
type Scheduler struct {
	pass     Pass
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(pass Pass, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{pass: pass, interval: interval, logger: logger}
}

// Run ticks every interval and runs one pass per tick.
// Stops cleanly when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	res := s.pass.Run(ctx)
	if !res.Success() {
		s.logger.Warn("scheduled pass finished with errors",
			zap.Any("counts", res.Counts), zap.Strings("errors", res.Errors))
		return
	}
	s.logger.Info("scheduled pass finished", zap.Any("counts", res.Counts))
}
