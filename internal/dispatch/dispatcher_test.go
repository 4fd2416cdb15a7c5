package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/dispatch"
	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/provider"
	"github.com/notifyhub/rental-notifier/internal/ratelimiter"
	"github.com/notifyhub/rental-notifier/internal/repository"
)

type stubRenderer struct{}

func (stubRenderer) Render(ev domain.Event, ch domain.Channel) domain.Content {
	return domain.Content{Subject: string(ev.Kind), Text: string(ev.Kind) + "@" + string(ch)}
}

// recordingPush records attempted endpoints and fails the ones listed in gone.
type recordingPush struct {
	mu       sync.Mutex
	gone     map[string]bool
	attempts []string
}

func (p *recordingPush) Push(_ context.Context, sub domain.PushSubscription, _ domain.Content) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, sub.Endpoint)
	if p.gone[sub.Endpoint] {
		return domain.ErrSubscriptionGone
	}
	return nil
}

func (p *recordingPush) Attempts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.attempts...)
}

func okSender() provider.Sender {
	return provider.SenderFunc(func(context.Context, string, domain.Content) error { return nil })
}

func fullRecipient(id string) domain.Recipient {
	return domain.Recipient{
		ID:             id,
		Email:          id + "@example.com",
		TelegramChatID: "tg-" + id,
		VKID:           "vk-" + id,
		NotifyEmail:    true,
		NotifyTelegram: true,
		NotifyVK:       true,
		NotifyPush:     true,
		PushBookings:   true,
		PushChat:       true,
		PushModeration: true,
		PushReviews:    true,
		PushReminders:  true,
	}
}

func newDispatcher(repo *repository.MockRecipientRepository, cfg dispatch.Config, hooks dispatch.Hooks) *dispatch.Dispatcher {
	return dispatch.New(repo, stubRenderer{}, ratelimiter.New(0, nil), cfg, hooks, zap.NewNop())
}

func TestDispatch_ChannelIsolation(t *testing.T) {
	repo := repository.NewMockRecipientRepository()
	repo.PutRecipient(fullRecipient("u1"))
	repo.PutSubscription(domain.PushSubscription{ID: "s1", UserID: "u1", Endpoint: "https://push/1"})

	var mu sync.Mutex
	called := map[domain.Channel]string{}
	record := func(ch domain.Channel) provider.Sender {
		return provider.SenderFunc(func(_ context.Context, to string, _ domain.Content) error {
			mu.Lock()
			called[ch] = to
			mu.Unlock()
			return nil
		})
	}

	d := newDispatcher(repo, dispatch.Config{
		Senders: map[domain.Channel]provider.Sender{
			domain.ChannelEmail: provider.SenderFunc(func(context.Context, string, domain.Content) error {
				panic("smtp exploded")
			}),
			domain.ChannelTelegram: provider.SenderFunc(func(context.Context, string, domain.Content) error {
				return errors.New("telegram 502")
			}),
			domain.ChannelVK: record(domain.ChannelVK),
		},
		Push: &recordingPush{},
	}, dispatch.Hooks{})

	var result domain.DispatchResult
	require.NotPanics(t, func() {
		result = d.Dispatch(context.Background(), "u1", domain.Event{Kind: domain.EventBookingNew})
	})

	assert.False(t, result[domain.ChannelEmail])
	assert.False(t, result[domain.ChannelTelegram])
	assert.True(t, result[domain.ChannelVK])
	assert.True(t, result[domain.ChannelPush])
	assert.Equal(t, "vk-u1", called[domain.ChannelVK])
}

func TestDispatch_SlowChannelDoesNotDelayOthers(t *testing.T) {
	repo := repository.NewMockRecipientRepository()
	r := fullRecipient("u1")
	r.NotifyPush = false
	repo.PutRecipient(r)

	vkDone := make(chan time.Time, 1)
	release := make(chan struct{})
	d := newDispatcher(repo, dispatch.Config{
		Senders: map[domain.Channel]provider.Sender{
			domain.ChannelEmail: provider.SenderFunc(func(ctx context.Context, _ string, _ domain.Content) error {
				<-release
				return nil
			}),
			domain.ChannelTelegram: okSender(),
			domain.ChannelVK: provider.SenderFunc(func(context.Context, string, domain.Content) error {
				vkDone <- time.Now()
				return nil
			}),
		},
	}, dispatch.Hooks{})

	done := make(chan domain.DispatchResult)
	go func() { done <- d.Dispatch(context.Background(), "u1", domain.Event{Kind: domain.EventBookingNew}) }()

	select {
	case <-vkDone:
	case <-time.After(time.Second):
		t.Fatal("vk waited on the blocked email channel")
	}
	close(release)

	result := <-done
	assert.True(t, result[domain.ChannelEmail])
	assert.True(t, result[domain.ChannelVK])
}

func TestDispatch_UnknownRecipientReportsAllFalse(t *testing.T) {
	repo := repository.NewMockRecipientRepository()
	d := newDispatcher(repo, dispatch.Config{}, dispatch.Hooks{})

	result := d.Dispatch(context.Background(), "ghost", domain.Event{Kind: domain.EventChatUnread})
	assert.Len(t, result, len(domain.AllChannels))
	assert.False(t, result.Any())
}

func TestDispatch_LoadsRecipientOnce(t *testing.T) {
	repo := repository.NewMockRecipientRepository()
	repo.PutRecipient(fullRecipient("u1"))
	d := newDispatcher(repo, dispatch.Config{
		Senders: map[domain.Channel]provider.Sender{
			domain.ChannelEmail:    okSender(),
			domain.ChannelTelegram: okSender(),
			domain.ChannelVK:       okSender(),
		},
	}, dispatch.Hooks{})

	d.Dispatch(context.Background(), "u1", domain.Event{Kind: domain.EventBookingNew})
	assert.Equal(t, 1, repo.GetRecipientCalls)
}

func TestDispatch_UnconfiguredChannelIsFalse(t *testing.T) {
	repo := repository.NewMockRecipientRepository()
	repo.PutRecipient(fullRecipient("u1"))
	d := newDispatcher(repo, dispatch.Config{
		Senders: map[domain.Channel]provider.Sender{domain.ChannelEmail: okSender()},
	}, dispatch.Hooks{})

	result := d.Dispatch(context.Background(), "u1", domain.Event{Kind: domain.EventBookingNew})
	assert.True(t, result[domain.ChannelEmail])
	assert.False(t, result[domain.ChannelTelegram])
	assert.False(t, result[domain.ChannelVK])
	assert.False(t, result[domain.ChannelPush])
}

func TestDispatch_GoneSubscriptionIsPrunedAndNotRetried(t *testing.T) {
	repo := repository.NewMockRecipientRepository()
	r := fullRecipient("u1")
	r.NotifyEmail, r.NotifyTelegram, r.NotifyVK = false, false, false
	repo.PutRecipient(r)
	repo.PutSubscription(domain.PushSubscription{ID: "stale", UserID: "u1", Endpoint: "https://push/stale"})

	var pruned int
	push := &recordingPush{gone: map[string]bool{"https://push/stale": true}}
	d := newDispatcher(repo, dispatch.Config{Push: push}, dispatch.Hooks{OnPruned: func() { pruned++ }})

	first := d.Dispatch(context.Background(), "u1", domain.Event{Kind: domain.EventBookingConfirmed})
	assert.False(t, first[domain.ChannelPush], "the only subscription was gone")
	assert.False(t, repo.HasSubscription("stale"))
	assert.Equal(t, 1, pruned)

	d.Dispatch(context.Background(), "u1", domain.Event{Kind: domain.EventBookingConfirmed})
	assert.Equal(t, []string{"https://push/stale"}, push.Attempts(), "a pruned subscription is never retried")
}

// Push enabled, chat category off, one valid and one gone subscription.
func TestDispatch_PushCategoryGateAndSelfHealing(t *testing.T) {
	repo := repository.NewMockRecipientRepository()
	repo.PutRecipient(domain.Recipient{
		ID:           "u1",
		NotifyPush:   true,
		PushChat:     false,
		PushBookings: true,
	})
	repo.PutSubscription(domain.PushSubscription{ID: "good", UserID: "u1", Endpoint: "https://push/good"})
	repo.PutSubscription(domain.PushSubscription{ID: "gone", UserID: "u1", Endpoint: "https://push/gone"})

	push := &recordingPush{gone: map[string]bool{"https://push/gone": true}}
	d := newDispatcher(repo, dispatch.Config{Push: push}, dispatch.Hooks{})

	chat := d.Dispatch(context.Background(), "u1", domain.Event{Kind: domain.EventChatUnread})
	assert.False(t, chat[domain.ChannelPush])
	assert.Empty(t, push.Attempts(), "chat category is disabled")

	booking := d.Dispatch(context.Background(), "u1", domain.Event{Kind: domain.EventBookingNew})
	assert.True(t, booking[domain.ChannelPush], "one subscription succeeded")
	assert.ElementsMatch(t, []string{"https://push/good", "https://push/gone"}, push.Attempts())
	assert.True(t, repo.HasSubscription("good"))
	assert.False(t, repo.HasSubscription("gone"))
}

func TestDispatch_DeliveryHooks(t *testing.T) {
	repo := repository.NewMockRecipientRepository()
	r := fullRecipient("u1")
	r.NotifyPush = false
	repo.PutRecipient(r)

	var mu sync.Mutex
	outcomes := map[domain.Channel]bool{}
	d := newDispatcher(repo, dispatch.Config{
		Senders: map[domain.Channel]provider.Sender{
			domain.ChannelEmail:    okSender(),
			domain.ChannelTelegram: provider.SenderFunc(func(context.Context, string, domain.Content) error { return errors.New("down") }),
		},
	}, dispatch.Hooks{OnDelivered: func(ch domain.Channel, ok bool, _ time.Duration) {
		mu.Lock()
		outcomes[ch] = ok
		mu.Unlock()
	}})

	d.Dispatch(context.Background(), "u1", domain.Event{Kind: domain.EventBookingNew})
	assert.Equal(t, map[domain.Channel]bool{
		domain.ChannelEmail:    true,
		domain.ChannelTelegram: false,
		domain.ChannelVK:       false,
	}, outcomes)
}
