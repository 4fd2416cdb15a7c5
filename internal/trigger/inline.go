package trigger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Inline check names, also used as guard keys.
const (
	CheckChatBacklog = "chat_backlog"
	CheckModeration  = "moderation"
)

// Guard decides whether a named check may start now.
//
// A guard is load shedding only. It keeps request paths from running the
// same scan on every call; it is not what stops duplicate notifications.
// Two processes, or a process and the scheduled run, may pass their guards
// at the same moment and both run the aggregator. The claim store is what
// guarantees each (condition, recipient) is notified at most once.
type Guard interface {
	Allow(ctx context.Context, name string) bool
}

// LocalGuard admits each name at most once per window within this process.
// It forgets everything on restart.
type LocalGuard struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func NewLocalGuard(window time.Duration) *LocalGuard {
	return &LocalGuard{last: make(map[string]time.Time), window: window, now: time.Now}
}

// Allow records the attempt before returning true, so concurrent callers
// inside the same window get false.
func (g *LocalGuard) Allow(_ context.Context, name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.last[name]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[name] = now
	return true
}

// InlineHook observes every inline check attempt. Optional.
type InlineHook func(check string, ran bool)

// InlineChecks lets request handlers trigger the chat backlog and moderation
// scans without waiting for them. Calls return immediately; the scan runs in
// the background, detached from the caller's cancellation, bounded by
// timeout.
//
// Throttling here is purely an optimisation. Skipping a check only delays a
// notification until the next scheduled run, and running it twice is
// harmless because the aggregators claim before they dispatch.
type InlineChecks struct {
	chat       Runner
	moderation Runner
	local      Guard
	shared     Guard
	timeout    time.Duration
	onCheck    InlineHook
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewInlineChecks builds the inline trigger. local is consulted
// synchronously by the caller; shared, when non-nil, is consulted inside the
// background goroutine so a slow backend never delays the request.
func NewInlineChecks(
	chat, moderation Runner,
	local, shared Guard,
	timeout time.Duration,
	onCheck InlineHook,
	logger *zap.Logger,
) *InlineChecks {
	if onCheck == nil {
		onCheck = func(string, bool) {}
	}
	return &InlineChecks{
		chat: chat, moderation: moderation,
		local: local, shared: shared,
		timeout: timeout, onCheck: onCheck,
		logger: logger.With(zap.String("component", "inline_checks")),
	}
}

// ChatBacklog fires the unread chat scan. It never blocks on the scan,
// never panics and never returns an error.
func (ic *InlineChecks) ChatBacklog(ctx context.Context) {
	ic.fire(ctx, CheckChatBacklog, ic.chat)
}

// Moderation fires the moderation reminder scan.
func (ic *InlineChecks) Moderation(ctx context.Context) {
	ic.fire(ctx, CheckModeration, ic.moderation)
}

// Wait blocks until every scan started so far has returned.
func (ic *InlineChecks) Wait() {
	ic.wg.Wait()
}

func (ic *InlineChecks) fire(ctx context.Context, name string, r Runner) {
	if r == nil {
		return
	}
	if ic.local != nil && !ic.local.Allow(ctx, name) {
		ic.onCheck(name, false)
		return
	}

	ic.wg.Add(1)
	go func() {
		defer ic.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				ic.logger.Error("inline check panicked", zap.String("check", name), zap.Any("panic", p))
			}
		}()

		runCtx := context.WithoutCancel(ctx)
		if ic.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, ic.timeout)
			defer cancel()
		}

		if ic.shared != nil && !ic.shared.Allow(runCtx, name) {
			ic.onCheck(name, false)
			return
		}
		ic.onCheck(name, true)

		n, err := r.Run(runCtx)
		if err != nil {
			ic.logger.Warn("inline check failed", zap.String("check", name), zap.Error(err))
			return
		}
		if n > 0 {
			ic.logger.Info("inline check notified", zap.String("check", name), zap.Int("count", n))
		}
	}()
}
