package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

type pgBookingExpirer struct {
	pool *pgxpool.Pool
}

// NewPgBookingExpirer returns a BookingExpirer backed by PostgreSQL.
func NewPgBookingExpirer(pool *pgxpool.Pool) BookingExpirer {
	return &pgBookingExpirer{pool: pool}
}

// ExpirePendingApprovals moves overdue pending_approval bookings to
// cancelled in a single statement. A row can only match the status filter
// once, so concurrent runs never return the same booking twice.
func (e *pgBookingExpirer) ExpirePendingApprovals(ctx context.Context, now time.Time, reason string) ([]domain.Booking, error) {
	rows, err := e.pool.Query(ctx, `
		UPDATE bookings b
		SET status = 'cancelled', rejection_reason = $2, rejected_at = $1
		FROM items i
		WHERE i.id = b.item_id
		  AND b.status = 'pending_approval'
		  AND b.approval_deadline <= $1
		RETURNING b.id, b.renter_id, i.owner_id, i.title, b.end_date`, now, reason)
	if err != nil {
		return nil, fmt.Errorf("expire pending approvals: %w", err)
	}
	defer rows.Close()

	var expired []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.RenterID, &b.OwnerID, &b.ItemTitle, &b.EndDate); err != nil {
			return nil, err
		}
		expired = append(expired, b)
	}
	return expired, rows.Err()
}
