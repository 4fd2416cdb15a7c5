package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/claims"
	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/repository"
)

type counter struct{ n atomic.Int32 }

func (c *counter) Run(context.Context) (int, error) {
	c.n.Add(1)
	return 0, nil
}

type denyGuard struct{}

func (denyGuard) Allow(context.Context, string) bool { return false }

func TestLocalGuard_WindowPerName(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	g := NewLocalGuard(5 * time.Minute)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, g.Allow(ctx, CheckChatBacklog))
	assert.False(t, g.Allow(ctx, CheckChatBacklog))
	assert.True(t, g.Allow(ctx, CheckModeration), "names are throttled independently")

	now = now.Add(4*time.Minute + 59*time.Second)
	assert.False(t, g.Allow(ctx, CheckChatBacklog))

	now = now.Add(time.Second)
	assert.True(t, g.Allow(ctx, CheckChatBacklog))
}

func TestInlineChecks_RapidCallsRunAtMostOnce(t *testing.T) {
	chat := &counter{}
	var ran, throttled atomic.Int32
	hook := func(_ string, ok bool) {
		if ok {
			ran.Add(1)
		} else {
			throttled.Add(1)
		}
	}
	ic := NewInlineChecks(chat, nil, NewLocalGuard(5*time.Minute), nil, time.Second, hook, zap.NewNop())

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ic.ChatBacklog(context.Background())
		}()
	}
	wg.Wait()
	ic.Wait()

	assert.Equal(t, int32(1), chat.n.Load())
	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, int32(99), throttled.Load())
}

// Two processes each pass their own local throttle. Both scans run, and the
// shared claim store still admits exactly one notification.
func TestInlineChecks_IndependentProcessesStillNotifyOnce(t *testing.T) {
	store := claims.NewStore(repository.NewMockClaimRepository(), claims.Hooks{})
	key := domain.ChatBacklogKey("user-1", "booking-1")

	var scans, wins atomic.Int32
	scan := RunnerFunc(func(ctx context.Context) (int, error) {
		scans.Add(1)
		ok, err := store.Claim(ctx, key)
		if err != nil {
			return 0, err
		}
		if ok {
			wins.Add(1)
			return 1, nil
		}
		return 0, nil
	})

	a := NewInlineChecks(scan, nil, NewLocalGuard(5*time.Minute), nil, time.Second, nil, zap.NewNop())
	b := NewInlineChecks(scan, nil, NewLocalGuard(5*time.Minute), nil, time.Second, nil, zap.NewNop())
	a.ChatBacklog(context.Background())
	b.ChatBacklog(context.Background())
	a.Wait()
	b.Wait()

	assert.Equal(t, int32(2), scans.Load())
	assert.Equal(t, int32(1), wins.Load())
}

func TestInlineChecks_PanicIsContained(t *testing.T) {
	boom := RunnerFunc(func(context.Context) (int, error) { panic("scan exploded") })
	ic := NewInlineChecks(nil, boom, NewLocalGuard(time.Minute), nil, time.Second, nil, zap.NewNop())

	assert.NotPanics(t, func() {
		ic.Moderation(context.Background())
		ic.Wait()
	})
}

func TestInlineChecks_OutlivesCallerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan error, 1)
	scan := RunnerFunc(func(runCtx context.Context) (int, error) {
		seen <- runCtx.Err()
		return 0, nil
	})
	ic := NewInlineChecks(scan, nil, NewLocalGuard(time.Minute), nil, time.Second, nil, zap.NewNop())

	cancel()
	ic.ChatBacklog(ctx)
	ic.Wait()

	require.Len(t, seen, 1)
	assert.NoError(t, <-seen)
}

func TestInlineChecks_SharedGuardCanSkip(t *testing.T) {
	chat := &counter{}
	var throttled atomic.Int32
	hook := func(_ string, ok bool) {
		if !ok {
			throttled.Add(1)
		}
	}
	ic := NewInlineChecks(chat, nil, NewLocalGuard(time.Minute), denyGuard{}, time.Second, hook, zap.NewNop())

	ic.ChatBacklog(context.Background())
	ic.Wait()

	assert.Zero(t, chat.n.Load())
	assert.Equal(t, int32(1), throttled.Load())
}
