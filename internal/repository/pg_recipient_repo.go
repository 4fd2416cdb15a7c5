package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

type pgRecipientRepository struct {
	pool *pgxpool.Pool
}

// NewPgRecipientRepository returns a RecipientRepository backed by PostgreSQL.
func NewPgRecipientRepository(pool *pgxpool.Pool) RecipientRepository {
	return &pgRecipientRepository{pool: pool}
}

func (r *pgRecipientRepository) GetRecipient(ctx context.Context, userID string) (*domain.Recipient, error) {
	var (
		rec                     domain.Recipient
		email, telegramID, vkID *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, telegram_chat_id, vk_id,
		       notify_email, notify_telegram, notify_vk, notify_push,
		       push_bookings, push_chat, push_moderation, push_reviews, push_reminders
		FROM users WHERE id = $1`, userID).Scan(
		&rec.ID, &email, &telegramID, &vkID,
		&rec.NotifyEmail, &rec.NotifyTelegram, &rec.NotifyVK, &rec.NotifyPush,
		&rec.PushBookings, &rec.PushChat, &rec.PushModeration, &rec.PushReviews, &rec.PushReminders,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}

	rec.Email = deref(email)
	rec.TelegramChatID = deref(telegramID)
	rec.VKID = deref(vkID)
	return &rec, nil
}

func (r *pgRecipientRepository) PushSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, user_id, endpoint, p256dh, auth
		FROM push_subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.PushSubscription
	for rows.Next() {
		var s domain.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *pgRecipientRepository) DeletePushSubscription(ctx context.Context, id string) error {
	// Zero rows affected means a concurrent delivery already removed it.
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
