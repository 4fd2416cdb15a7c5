package repository

import (
	"context"
	"time"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// ClaimRepository persists the claim ledger. Implementations must back the
// ledger with a real uniqueness constraint on the 4-tuple: every "already
// handled" decision goes through an insert that the store itself accepts or
// rejects atomically.
//
// The pgx implementation is in pg_claim_repo.go, the SQLite one in
// sqlite_claim_repo.go. Tests use a hand-written mock (mock_claim_repo.go).
type ClaimRepository interface {
	// Insert attempts an unconditional insert. It returns false, nil when the
	// key already exists.
	Insert(ctx context.Context, key domain.ClaimKey) (bool, error)
	// FindExisting returns the subset of keys that already have a claim, in a
	// single set-membership query.
	FindExisting(ctx context.Context, keys []domain.ClaimKey) ([]domain.ClaimKey, error)
	// InsertMany bulk-inserts keys, silently skipping duplicates, and returns
	// only the keys this call actually inserted.
	InsertMany(ctx context.Context, keys []domain.ClaimKey) ([]domain.ClaimKey, error)
	// Delete removes a claim. Deleting a missing claim is not an error.
	Delete(ctx context.Context, key domain.ClaimKey) error
	// ListByKind returns every live claim of one condition type and event kind.
	ListByKind(ctx context.Context, ct domain.ConditionType, kind domain.EventKind) ([]domain.Claim, error)
}

// RecipientRepository loads dispatch-time recipient data and maintains push
// subscriptions.
type RecipientRepository interface {
	// GetRecipient loads toggles and channel identities in one query.
	GetRecipient(ctx context.Context, userID string) (*domain.Recipient, error)
	PushSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	// DeletePushSubscription is idempotent: racing deliveries to the same
	// stale endpoint may both try to remove it.
	DeletePushSubscription(ctx context.Context, id string) error
}

// StateRepository is the read-only view of upstream marketplace state the
// detectors scan. Every method is one query regardless of input size.
type StateRepository interface {
	UnreadGroups(ctx context.Context, olderThan time.Time) ([]domain.UnreadGroup, error)
	Conversations(ctx context.Context, ids []string) (map[string]domain.Conversation, error)
	// StillUnread returns the pairs for which at least one unread message from
	// a sender other than the recipient remains.
	StillUnread(ctx context.Context, pairs []domain.ChatPair) (map[domain.ChatPair]bool, error)

	Reviewers(ctx context.Context) ([]string, error)
	PendingListings(ctx context.Context, olderThan time.Time) ([]domain.PendingListing, error)
	PendingVerifications(ctx context.Context, olderThan time.Time) ([]domain.PendingVerification, error)

	ActiveBookingsEndingBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error)
	CompletedBookingsBefore(ctx context.Context, cutoff time.Time) ([]domain.CompletedBooking, error)
}

// BookingExpirer is the auto-expiry collaborator: the only domain mutation
// performed on behalf of the engine.
type BookingExpirer interface {
	// ExpirePendingApprovals cancels bookings whose approval deadline passed
	// and returns the bookings it transitioned.
	ExpirePendingApprovals(ctx context.Context, now time.Time, reason string) ([]domain.Booking, error)
}
