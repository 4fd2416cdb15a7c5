// Package trigger runs the aggregators: once per scheduled invocation through
// the Coordinator, and opportunistically from request paths through
// InlineChecks.
package trigger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Stage names, in execution order. They key both Result.Counts and the
// prefixes of Result.Errors.
const (
	StageChatUnread          = "chatUnread"
	StageModerationReminders = "moderationReminders"
	StageReturnReminders     = "returnReminders"
	StageReviewReminders     = "reviewReminders"
	StageAutoRejected        = "autoRejected"
)

// Runner is one aggregator pass. Every aggregator satisfies it.
type Runner interface {
	Run(ctx context.Context) (int, error)
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context) (int, error)

func (f RunnerFunc) Run(ctx context.Context) (int, error) { return f(ctx) }

// Stage binds a Runner to the name it reports under.
type Stage struct {
	Name   string
	Runner Runner
}

// Result is the outcome of one coordinator pass.
type Result struct {
	Counts map[string]int `json:"counts"`
	Errors []string       `json:"errors"`
}

// Success reports whether every stage finished without error.
func (r Result) Success() bool { return len(r.Errors) == 0 }

// StageHook observes each finished stage. Optional.
type StageHook func(stage string, count int, err error, took time.Duration)

// Coordinator runs a fixed list of stages sequentially. A stage that fails
// or panics is recorded and the next stage still runs.
type Coordinator struct {
	stages  []Stage
	onStage StageHook
	logger  *zap.Logger
}

func NewCoordinator(stages []Stage, onStage StageHook, logger *zap.Logger) *Coordinator {
	if onStage == nil {
		onStage = func(string, int, error, time.Duration) {}
	}
	return &Coordinator{stages: stages, onStage: onStage, logger: logger}
}

// Run never returns an error: stage failures are reported in Result.Errors
// as "<stage>: <error>".
func (c *Coordinator) Run(ctx context.Context) Result {
	res := Result{
		Counts: make(map[string]int, len(c.stages)),
		Errors: []string{},
	}

	for _, s := range c.stages {
		start := time.Now()
		n, err := c.runStage(ctx, s)
		took := time.Since(start)

		res.Counts[s.Name] = n
		c.onStage(s.Name, n, err, took)

		log := c.logger.With(zap.String("stage", s.Name), zap.Duration("took", took))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", s.Name, err))
			log.Error("stage failed", zap.Int("count", n), zap.Error(err))
			continue
		}
		log.Info("stage finished", zap.Int("count", n))
	}
	return res
}

func (c *Coordinator) runStage(ctx context.Context, s Stage) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			n, err = 0, fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Runner.Run(ctx)
}
