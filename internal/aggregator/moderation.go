package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/claims"
	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/repository"
)

// Moderation reminds every active reviewer about listings and identity
// verifications that have waited longer than the configured age. Each
// pending entity fans out to every reviewer.
type Moderation struct {
	claims   *claims.Store
	state    repository.StateRepository
	notifier Notifier
	age      time.Duration
	now      Clock
	logger   *zap.Logger
}

func NewModeration(
	store *claims.Store,
	state repository.StateRepository,
	notifier Notifier,
	age time.Duration,
	now Clock,
	logger *zap.Logger,
) *Moderation {
	return &Moderation{
		claims: store, state: state, notifier: notifier,
		age: age, now: now, logger: logger.With(zap.String("aggregator", "moderation")),
	}
}

// Run executes the listing pass and the verification pass. The passes are
// independent: a failure in one still lets the other run, and both errors
// are returned joined.
func (a *Moderation) Run(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-a.age)

	reviewers, err := a.state.Reviewers(ctx)
	if err != nil {
		return 0, fmt.Errorf("load reviewers: %w", err)
	}
	if len(reviewers) == 0 {
		return 0, nil
	}

	listings, listErr := a.listings(ctx, reviewers, cutoff)
	if listErr != nil {
		a.logger.Error("listing pass failed", zap.Error(listErr))
	}
	users, userErr := a.verifications(ctx, reviewers, cutoff)
	if userErr != nil {
		a.logger.Error("verification pass failed", zap.Error(userErr))
	}

	return listings + users, errors.Join(listErr, userErr)
}

func (a *Moderation) listings(ctx context.Context, reviewers []string, cutoff time.Time) (int, error) {
	pending, err := a.state.PendingListings(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listings: %w", err)
	}

	keys := make([]domain.ClaimKey, 0, len(pending)*len(reviewers))
	events := make(map[string]domain.Event, len(pending))
	for _, l := range pending {
		events[l.ID] = domain.Event{
			Kind: domain.EventModerationPendingItem,
			Data: map[string]any{"itemId": l.ID, "itemTitle": l.Title},
		}
		for _, reviewer := range reviewers {
			keys = append(keys, domain.ClaimKey{
				ConditionType: domain.ConditionListing,
				InstanceID:    l.ID,
				EventKind:     domain.EventModerationPendingItem,
				RecipientID:   reviewer,
			})
		}
	}

	n, err := a.claimAndNotify(ctx, keys, events)
	if err != nil {
		return 0, fmt.Errorf("listings: %w", err)
	}
	return n, nil
}

func (a *Moderation) verifications(ctx context.Context, reviewers []string, cutoff time.Time) (int, error) {
	pending, err := a.state.PendingVerifications(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("verifications: %w", err)
	}

	keys := make([]domain.ClaimKey, 0, len(pending)*len(reviewers))
	events := make(map[string]domain.Event, len(pending))
	for _, v := range pending {
		events[v.UserID] = domain.Event{
			Kind: domain.EventModerationPendingUser,
			Data: map[string]any{"userId": v.UserID, "userName": v.Name},
		}
		for _, reviewer := range reviewers {
			keys = append(keys, domain.ClaimKey{
				ConditionType: domain.ConditionVerification,
				InstanceID:    v.UserID,
				EventKind:     domain.ClaimVerificationReminder,
				RecipientID:   reviewer,
			})
		}
	}

	n, err := a.claimAndNotify(ctx, keys, events)
	if err != nil {
		return 0, fmt.Errorf("verifications: %w", err)
	}
	return n, nil
}

// claimAndNotify claims the cross product in one batch and dispatches one
// notification per newly claimed (entity, reviewer) slot.
func (a *Moderation) claimAndNotify(ctx context.Context, keys []domain.ClaimKey, events map[string]domain.Event) (int, error) {
	claimed, err := a.claims.ClaimBatch(ctx, keys)
	if err != nil {
		return 0, err
	}

	batch := make([]notification, 0, len(claimed))
	for _, k := range claimed {
		batch = append(batch, notification{recipientID: k.RecipientID, event: events[k.InstanceID]})
	}
	fanOut(ctx, a.notifier, a.logger, batch)

	if len(claimed) > 0 {
		a.logger.Info("notified reviewers", zap.Int("count", len(claimed)))
	}
	return len(claimed), nil
}
