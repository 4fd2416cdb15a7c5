package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

type pgStateRepository struct {
	pool *pgxpool.Pool
}

// NewPgStateRepository returns a StateRepository reading the marketplace
// tables (users, items, bookings, messages, reviews).
func NewPgStateRepository(pool *pgxpool.Pool) StateRepository {
	return &pgStateRepository{pool: pool}
}

func (r *pgStateRepository) UnreadGroups(ctx context.Context, olderThan time.Time) ([]domain.UnreadGroup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT booking_id, sender_id, COUNT(*)
		FROM messages
		WHERE NOT is_read AND created_at <= $1
		GROUP BY booking_id, sender_id`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("unread groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.UnreadGroup
	for rows.Next() {
		var g domain.UnreadGroup
		if err := rows.Scan(&g.ConversationID, &g.SenderID, &g.Count); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *pgStateRepository) Conversations(ctx context.Context, ids []string) (map[string]domain.Conversation, error) {
	result := make(map[string]domain.Conversation, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.renter_id, i.owner_id, i.title
		FROM bookings b
		JOIN items i ON i.id = b.item_id
		WHERE b.id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.RenterID, &c.OwnerID, &c.ItemTitle); err != nil {
			return nil, err
		}
		result[c.ID] = c
	}
	return result, rows.Err()
}

func (r *pgStateRepository) StillUnread(ctx context.Context, pairs []domain.ChatPair) (map[domain.ChatPair]bool, error) {
	result := make(map[domain.ChatPair]bool)
	if len(pairs) == 0 {
		return result, nil
	}

	recipients := make([]string, len(pairs))
	conversations := make([]string, len(pairs))
	for i, p := range pairs {
		recipients[i] = p.RecipientID
		conversations[i] = p.ConversationID
	}

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.recipient_id, p.conversation_id
		FROM unnest($1::text[], $2::text[]) AS p(recipient_id, conversation_id)
		WHERE EXISTS (
			SELECT 1 FROM messages m
			WHERE m.booking_id = p.conversation_id
			  AND m.sender_id <> p.recipient_id
			  AND NOT m.is_read
		)`, recipients, conversations)
	if err != nil {
		return nil, fmt.Errorf("still unread: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.ChatPair
		if err := rows.Scan(&p.RecipientID, &p.ConversationID); err != nil {
			return nil, err
		}
		result[p] = true
	}
	return result, rows.Err()
}

func (r *pgStateRepository) Reviewers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM users
		WHERE role IN ('admin', 'moderator') AND NOT is_blocked`)
	if err != nil {
		return nil, fmt.Errorf("list reviewers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgStateRepository) PendingListings(ctx context.Context, olderThan time.Time) ([]domain.PendingListing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, created_at FROM items
		WHERE status = 'pending' AND created_at <= $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("pending listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.PendingListing
	for rows.Next() {
		var l domain.PendingListing
		if err := rows.Scan(&l.ID, &l.Title, &l.CreatedAt); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (r *pgStateRepository) PendingVerifications(ctx context.Context, olderThan time.Time) ([]domain.PendingVerification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, COALESCE(name, ''), verification_submitted_at FROM users
		WHERE verification_status = 'pending'
		  AND verification_submitted_at IS NOT NULL
		  AND verification_submitted_at <= $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("pending verifications: %w", err)
	}
	defer rows.Close()

	var pending []domain.PendingVerification
	for rows.Next() {
		var v domain.PendingVerification
		if err := rows.Scan(&v.UserID, &v.Name, &v.SubmittedAt); err != nil {
			return nil, err
		}
		pending = append(pending, v)
	}
	return pending, rows.Err()
}

func (r *pgStateRepository) ActiveBookingsEndingBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.renter_id, COALESCE(u.name, ''), i.owner_id, i.title, b.end_date
		FROM bookings b
		JOIN items i ON i.id = b.item_id
		JOIN users u ON u.id = b.renter_id
		WHERE b.status = 'active'
		  AND b.end_date >= $1 AND b.end_date <= $2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings ending between: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.RenterID, &b.RenterName, &b.OwnerID, &b.ItemTitle, &b.EndDate); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *pgStateRepository) CompletedBookingsBefore(ctx context.Context, cutoff time.Time) ([]domain.CompletedBooking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.renter_id, i.owner_id, i.title, b.end_date, b.completed_at,
		       EXISTS (SELECT 1 FROM reviews r WHERE r.booking_id = b.id AND r.type = 'renter_review'),
		       EXISTS (SELECT 1 FROM reviews r WHERE r.booking_id = b.id AND r.type = 'owner_review')
		FROM bookings b
		JOIN items i ON i.id = b.item_id
		WHERE b.status = 'completed'
		  AND b.completed_at IS NOT NULL
		  AND b.completed_at <= $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("completed bookings: %w", err)
	}
	defer rows.Close()

	var bookings []domain.CompletedBooking
	for rows.Next() {
		var b domain.CompletedBooking
		if err := rows.Scan(&b.ID, &b.RenterID, &b.OwnerID, &b.ItemTitle, &b.EndDate, &b.CompletedAt,
			&b.HasRenterReview, &b.HasOwnerReview); err != nil {
			return nil, err
		}
		if b.HasRenterReview && b.HasOwnerReview {
			continue
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
