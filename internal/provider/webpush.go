package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// pushPayload is what the service worker receives.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// WebPushConfig holds the VAPID identity used to sign push requests.
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subscriber string // mailto: or https: contact
	TTL        time.Duration
	Timeout    time.Duration
}

// WebPushSender delivers encrypted Web Push messages with VAPID auth.
type WebPushSender struct {
	cfg        WebPushConfig
	httpClient *http.Client
}

func NewWebPushSender(cfg WebPushConfig) *WebPushSender {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &WebPushSender{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Push sends one message to one subscription. 404 and 410 mean the browser
// unsubscribed; those are reported as domain.ErrSubscriptionGone.
func (p *WebPushSender) Push(ctx context.Context, sub domain.PushSubscription, c domain.Content) error {
	payload, err := json.Marshal(pushPayload{Title: c.Subject, Body: c.Text, URL: c.URL, Tag: c.Tag})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      p.httpClient,
		Subscriber:      p.cfg.Subscriber,
		VAPIDPublicKey:  p.cfg.PublicKey,
		VAPIDPrivateKey: p.cfg.PrivateKey,
		TTL:             int(p.cfg.TTL.Seconds()),
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", domain.ErrSubscriptionGone, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("unexpected push status: %d", resp.StatusCode)
	}
	return nil
}

// compile-time check that WebPushSender implements PushSender
var _ PushSender = (*WebPushSender)(nil)
