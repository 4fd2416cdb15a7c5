package aggregator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/claims"
	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/repository"
)

// Review types as stored on reviews.type.
const (
	ReviewByRenter = "renter_review"
	ReviewByOwner  = "owner_review"
)

// ReviewReminders asks each side of a completed booking to leave the review
// they still owe, once the booking has been completed for at least the
// configured delay.
type ReviewReminders struct {
	claims   *claims.Store
	state    repository.StateRepository
	notifier Notifier
	delay    time.Duration
	now      Clock
	logger   *zap.Logger
}

func NewReviewReminders(
	store *claims.Store,
	state repository.StateRepository,
	notifier Notifier,
	delay time.Duration,
	now Clock,
	logger *zap.Logger,
) *ReviewReminders {
	return &ReviewReminders{
		claims: store, state: state, notifier: notifier,
		delay: delay, now: now, logger: logger.With(zap.String("aggregator", "review_reminders")),
	}
}

// Run checks renter-authored and owner-authored reviews independently.
func (a *ReviewReminders) Run(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-a.delay)

	bookings, err := a.state.CompletedBookingsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("load completed bookings: %w", err)
	}

	var keys []domain.ClaimKey
	pending := make(map[domain.ClaimKey]notification)
	add := func(b domain.CompletedBooking, recipientID, reviewType string) {
		key := bookingKey(b.ID, domain.EventReviewReminder, recipientID)
		if _, dup := pending[key]; dup {
			return
		}
		keys = append(keys, key)
		pending[key] = notification{recipientID: recipientID, event: domain.Event{
			Kind: domain.EventReviewReminder,
			Data: map[string]any{
				"bookingId":  b.ID,
				"itemTitle":  b.ItemTitle,
				"reviewType": reviewType,
			},
		}}
	}
	for _, b := range bookings {
		if !b.HasRenterReview {
			add(b, b.RenterID, ReviewByRenter)
		}
		if !b.HasOwnerReview {
			add(b, b.OwnerID, ReviewByOwner)
		}
	}

	claimed, err := a.claims.ClaimBatch(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("claim review reminders: %w", err)
	}

	batch := make([]notification, 0, len(claimed))
	for _, k := range claimed {
		batch = append(batch, pending[k])
	}
	fanOut(ctx, a.notifier, a.logger, batch)

	if len(claimed) > 0 {
		a.logger.Info("sent review reminders", zap.Int("count", len(claimed)))
	}
	return len(claimed), nil
}
