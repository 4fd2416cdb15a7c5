package provider

import (
	"context"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// Sender abstracts delivery to one identity-addressed channel (email
// address, Telegram chat id, VK user id). A nil error means the provider
// accepted the message.
// Mocking this interface in tests gives full control over provider behaviour
// without making real network calls.
type Sender interface {
	Send(ctx context.Context, to string, c domain.Content) error
}

// PushSender delivers to a single browser/device subscription. When the push
// service reports the endpoint no longer exists (HTTP 404 / 410) the returned
// error wraps domain.ErrSubscriptionGone.
type PushSender interface {
	Push(ctx context.Context, sub domain.PushSubscription, c domain.Content) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to string, c domain.Content) error

func (f SenderFunc) Send(ctx context.Context, to string, c domain.Content) error { return f(ctx, to, c) }

// PushFunc adapts a function to PushSender.
type PushFunc func(ctx context.Context, sub domain.PushSubscription, c domain.Content) error

func (f PushFunc) Push(ctx context.Context, sub domain.PushSubscription, c domain.Content) error {
	return f(ctx, sub, c)
}
