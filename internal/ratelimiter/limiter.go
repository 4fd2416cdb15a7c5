package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// ChannelLimiters holds one token bucket limiter per delivery channel.
// Each limiter enforces a steady-state rate against the provider behind it
// (SMTP relay, Telegram Bot API, VK API, push services). Burst is set equal
// to the rate so no extra burst capacity is allowed beyond the configured
// per-second maximum.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates a ChannelLimiters with defaultRate tokens per second for every
// channel, overridden per channel by perChannel. A rate <= 0 disables
// limiting for that channel.
func New(defaultRate int, perChannel map[domain.Channel]int) *ChannelLimiters {
	cl := &ChannelLimiters{limiters: make(map[domain.Channel]*rate.Limiter, len(domain.AllChannels))}
	for _, ch := range domain.AllChannels {
		r := defaultRate
		if override, ok := perChannel[ch]; ok {
			r = override
		}
		if r <= 0 {
			cl.limiters[ch] = rate.NewLimiter(rate.Inf, 0)
			continue
		}
		cl.limiters[ch] = rate.NewLimiter(rate.Limit(r), r) // burst == rate
	}
	return cl
}

// Wait blocks until the channel's limiter grants a token.
// Called by the dispatcher immediately before handing a message to an adapter.
// Returns a non-nil error only if ctx is cancelled (or its deadline would be
// exceeded) while waiting. Unknown channels are never limited.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	l, ok := cl.limiters[ch]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
