// Package dispatch fans one logical notification out to every eligible
// channel of one recipient.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/provider"
	"github.com/notifyhub/rental-notifier/internal/repository"
)

// Renderer produces channel content for an event. It must be pure.
type Renderer interface {
	Render(ev domain.Event, ch domain.Channel) domain.Content
}

// Limiter paces calls to a channel's provider.
type Limiter interface {
	Wait(ctx context.Context, ch domain.Channel) error
}

// Hooks carries metric callbacks. Nil fields are no-ops.
type Hooks struct {
	OnDelivered func(ch domain.Channel, ok bool, latency time.Duration)
	OnPruned    func()
}

// Config wires the adapters. Channels missing from Senders (and push when
// Push is nil) are treated as unconfigured and always report false.
type Config struct {
	Senders map[domain.Channel]provider.Sender
	Push    provider.PushSender
	// Timeout bounds one whole Dispatch call. Zero means no extra bound.
	Timeout time.Duration
}

// Dispatcher delivers events to recipients. It never returns an error and
// never panics; every failure becomes a false entry in the result.
type Dispatcher struct {
	recipients repository.RecipientRepository
	renderer   Renderer
	limiter    Limiter
	cfg        Config
	hooks      Hooks
	logger     *zap.Logger
}

func New(
	recipients repository.RecipientRepository,
	renderer Renderer,
	limiter Limiter,
	cfg Config,
	hooks Hooks,
	logger *zap.Logger,
) *Dispatcher {
	if hooks.OnDelivered == nil {
		hooks.OnDelivered = func(domain.Channel, bool, time.Duration) {}
	}
	if hooks.OnPruned == nil {
		hooks.OnPruned = func() {}
	}
	return &Dispatcher{
		recipients: recipients, renderer: renderer, limiter: limiter,
		cfg: cfg, hooks: hooks, logger: logger,
	}
}

// Dispatch loads the recipient once, then runs every eligible channel as an
// independent task. Tasks share no cancellation: one channel failing or
// stalling never cuts another short. The result has an entry for every
// channel; ineligible ones are false.
func (d *Dispatcher) Dispatch(ctx context.Context, recipientID string, ev domain.Event) domain.DispatchResult {
	result := make(domain.DispatchResult, len(domain.AllChannels))
	for _, ch := range domain.AllChannels {
		result[ch] = false
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	log := d.logger.With(zap.String("recipient_id", recipientID), zap.String("event", string(ev.Kind)))

	r, err := d.recipients.GetRecipient(ctx, recipientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("recipient not found")
		} else {
			log.Error("failed to load recipient", zap.Error(err))
		}
		return result
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, ch := range EligibleChannels(r, ev.Kind) {
		g.Go(func() error {
			ok := d.deliver(ctx, r, ch, ev, log.With(zap.String("channel", string(ch))))
			mu.Lock()
			result[ch] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.Info("dispatched",
		zap.Bool("email", result[domain.ChannelEmail]),
		zap.Bool("telegram", result[domain.ChannelTelegram]),
		zap.Bool("vk", result[domain.ChannelVK]),
		zap.Bool("push", result[domain.ChannelPush]),
	)
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, r *domain.Recipient, ch domain.Channel, ev domain.Event, log *zap.Logger) (ok bool) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.Error("channel task panicked", zap.Any("panic", p))
			ok = false
		}
		d.hooks.OnDelivered(ch, ok, time.Since(start))
	}()

	if ch == domain.ChannelPush {
		if d.cfg.Push == nil {
			log.Debug("skipping channel", zap.Error(domain.ErrChannelNotConfigured))
			return false
		}
		return d.pushAll(ctx, r.ID, ev, log)
	}

	sender, found := d.cfg.Senders[ch]
	if !found || sender == nil {
		log.Debug("skipping channel", zap.Error(domain.ErrChannelNotConfigured))
		return false
	}

	// Block here until the per-channel rate limiter grants a token.
	if err := d.limiter.Wait(ctx, ch); err != nil {
		log.Warn("rate limiter wait aborted", zap.Error(err))
		return false
	}

	if err := sender.Send(ctx, Identity(r, ch), d.renderer.Render(ev, ch)); err != nil {
		log.Warn("channel send failed", zap.Error(err))
		return false
	}
	return true
}

// pushAll delivers to every subscription concurrently. Subscriptions the push
// service reports gone are deleted on the spot; other failures are logged
// and dropped. Success means at least one device accepted the message.
func (d *Dispatcher) pushAll(ctx context.Context, userID string, ev domain.Event, log *zap.Logger) bool {
	subs, err := d.recipients.PushSubscriptions(ctx, userID)
	if err != nil {
		log.Error("failed to load push subscriptions", zap.Error(err))
		return false
	}
	if len(subs) == 0 {
		return false
	}

	content := d.renderer.Render(ev, domain.ChannelPush)

	var (
		delivered atomic.Int32
		g         errgroup.Group
	)
	for _, sub := range subs {
		g.Go(func() error {
			sl := log.With(zap.String("subscription_id", sub.ID))
			defer func() {
				if p := recover(); p != nil {
					sl.Error("push task panicked", zap.Any("panic", p))
				}
			}()

			if err := d.limiter.Wait(ctx, domain.ChannelPush); err != nil {
				sl.Warn("rate limiter wait aborted", zap.Error(err))
				return nil
			}

			err := d.cfg.Push.Push(ctx, sub, content)
			switch {
			case err == nil:
				delivered.Add(1)
			case errors.Is(err, domain.ErrSubscriptionGone):
				if derr := d.recipients.DeletePushSubscription(ctx, sub.ID); derr != nil {
					sl.Error("failed to delete gone push subscription", zap.Error(derr))
					return nil
				}
				d.hooks.OnPruned()
				sl.Info("deleted gone push subscription")
			default:
				sl.Warn("push delivery failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return delivered.Load() > 0
}

