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

// ReturnReminders notifies both sides of an active booking whose end date
// falls on tomorrow's calendar day in the configured location.
type ReturnReminders struct {
	claims   *claims.Store
	state    repository.StateRepository
	notifier Notifier
	loc      *time.Location
	now      Clock
	logger   *zap.Logger
}

func NewReturnReminders(
	store *claims.Store,
	state repository.StateRepository,
	notifier Notifier,
	loc *time.Location,
	now Clock,
	logger *zap.Logger,
) *ReturnReminders {
	if loc == nil {
		loc = time.UTC
	}
	return &ReturnReminders{
		claims: store, state: state, notifier: notifier,
		loc: loc, now: now, logger: logger.With(zap.String("aggregator", "return_reminders")),
	}
}

// Tomorrow returns the inclusive bounds of the calendar day after now in loc.
func Tomorrow(now time.Time, loc *time.Location) (from, to time.Time) {
	y, m, d := now.In(loc).AddDate(0, 0, 1).Date()
	from = time.Date(y, m, d, 0, 0, 0, 0, loc)
	to = from.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return from, to
}

// Run claims the renter and the owner of each booking separately, so one
// side's prior claim never suppresses the other's reminder.
func (a *ReturnReminders) Run(ctx context.Context) (int, error) {
	from, to := Tomorrow(a.now(), a.loc)

	bookings, err := a.state.ActiveBookingsEndingBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("load bookings ending tomorrow: %w", err)
	}

	keys := make([]domain.ClaimKey, 0, 2*len(bookings))
	pending := make(map[domain.ClaimKey]notification, 2*len(bookings))
	for _, b := range bookings {
		renter := bookingKey(b.ID, domain.EventRentalReturnReminder, b.RenterID)
		keys = append(keys, renter)
		pending[renter] = notification{recipientID: b.RenterID, event: domain.Event{
			Kind: domain.EventRentalReturnReminder,
			Data: map[string]any{
				"bookingId": b.ID,
				"itemTitle": b.ItemTitle,
				"endDate":   b.EndDate.In(a.loc).Format(time.DateOnly),
				"isOwner":   false,
			},
		}}

		owner := bookingKey(b.ID, domain.EventRentalReturnReminder, b.OwnerID)
		keys = append(keys, owner)
		pending[owner] = notification{recipientID: b.OwnerID, event: domain.Event{
			Kind: domain.EventRentalReturnReminder,
			Data: map[string]any{
				"bookingId":  b.ID,
				"itemTitle":  b.ItemTitle,
				"endDate":    b.EndDate.In(a.loc).Format(time.DateOnly),
				"isOwner":    true,
				"renterName": b.RenterName,
			},
		}}
	}

	claimed, err := a.claims.ClaimBatch(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("claim return reminders: %w", err)
	}

	batch := make([]notification, 0, len(claimed))
	for _, k := range claimed {
		batch = append(batch, pending[k])
	}
	fanOut(ctx, a.notifier, a.logger, batch)

	if len(claimed) > 0 {
		a.logger.Info("sent return reminders", zap.Int("count", len(claimed)))
	}
	return len(claimed), nil
}

func bookingKey(bookingID string, kind domain.EventKind, recipientID string) domain.ClaimKey {
	return domain.ClaimKey{
		ConditionType: domain.ConditionBooking,
		InstanceID:    bookingID,
		EventKind:     kind,
		RecipientID:   recipientID,
	}
}
