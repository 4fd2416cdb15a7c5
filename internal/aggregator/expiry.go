package aggregator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/claims"
	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/repository"
)

const (
	// ExpiredRejectionReason is stored on the booking row.
	ExpiredRejectionReason = "Approval wait time expired (24 hours)"
	// expiredNoticeReason is shown to the renter.
	expiredNoticeReason = "The owner did not respond within 24 hours"
)

// ApprovalExpiry cancels bookings whose owner missed the approval deadline
// and tells each renter. The status transition happens in one UPDATE, so a
// booking is returned to exactly one run; the renter notice is still claimed
// like every other send.
type ApprovalExpiry struct {
	claims   *claims.Store
	bookings repository.BookingExpirer
	notifier Notifier
	now      Clock
	logger   *zap.Logger
}

func NewApprovalExpiry(
	store *claims.Store,
	bookings repository.BookingExpirer,
	notifier Notifier,
	now Clock,
	logger *zap.Logger,
) *ApprovalExpiry {
	return &ApprovalExpiry{
		claims: store, bookings: bookings, notifier: notifier,
		now: now, logger: logger.With(zap.String("aggregator", "approval_expiry")),
	}
}

// Run returns the number of bookings it cancelled.
func (a *ApprovalExpiry) Run(ctx context.Context) (int, error) {
	expired, err := a.bookings.ExpirePendingApprovals(ctx, a.now(), ExpiredRejectionReason)
	if err != nil {
		return 0, fmt.Errorf("expire pending approvals: %w", err)
	}

	keys := make([]domain.ClaimKey, 0, len(expired))
	pending := make(map[domain.ClaimKey]notification, len(expired))
	for _, b := range expired {
		title := b.ItemTitle
		if title == "" {
			title = "Listing"
		}
		key := bookingKey(b.ID, domain.EventBookingRejected, b.RenterID)
		keys = append(keys, key)
		pending[key] = notification{recipientID: b.RenterID, event: domain.Event{
			Kind: domain.EventBookingRejected,
			Data: map[string]any{
				"bookingId": b.ID,
				"itemTitle": title,
				"reason":    expiredNoticeReason,
			},
		}}
	}

	claimed, err := a.claims.ClaimBatch(ctx, keys)
	if err != nil {
		return len(expired), fmt.Errorf("claim rejection notices: %w", err)
	}

	batch := make([]notification, 0, len(claimed))
	for _, k := range claimed {
		batch = append(batch, pending[k])
	}
	fanOut(ctx, a.notifier, a.logger, batch)

	if len(expired) > 0 {
		a.logger.Info("auto-rejected expired bookings", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}
