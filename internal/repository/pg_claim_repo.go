package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

type pgClaimRepository struct {
	pool *pgxpool.Pool
}

// NewPgClaimRepository returns a ClaimRepository backed by PostgreSQL. The
// unique index uq_notification_claims_key (see migrations/) is what makes
// Insert and InsertMany safe across processes.
func NewPgClaimRepository(pool *pgxpool.Pool) ClaimRepository {
	return &pgClaimRepository{pool: pool}
}

func (r *pgClaimRepository) Insert(ctx context.Context, key domain.ClaimKey) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_claims
			(id, condition_type, instance_id, event_kind, recipient_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		uuid.New().String(), string(key.ConditionType), key.InstanceID,
		string(key.EventKind), key.RecipientID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert claim: %w", err)
	}
	return true, nil
}

func (r *pgClaimRepository) FindExisting(ctx context.Context, keys []domain.ClaimKey) ([]domain.ClaimKey, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cts, ids, kinds, recipients := splitKeys(keys)

	rows, err := r.pool.Query(ctx, `
		SELECT c.condition_type, c.instance_id, c.event_kind, c.recipient_id
		FROM notification_claims c
		JOIN unnest($1::text[], $2::text[], $3::text[], $4::text[])
			AS k(condition_type, instance_id, event_kind, recipient_id)
		  ON c.condition_type = k.condition_type
		 AND c.instance_id    = k.instance_id
		 AND c.event_kind     = k.event_kind
		 AND c.recipient_id   = k.recipient_id`,
		cts, ids, kinds, recipients)
	if err != nil {
		return nil, fmt.Errorf("find existing claims: %w", err)
	}
	defer rows.Close()
	return scanClaimKeys(rows)
}

func (r *pgClaimRepository) InsertMany(ctx context.Context, keys []domain.ClaimKey) ([]domain.ClaimKey, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cts, ids, kinds, recipients := splitKeys(keys)
	claimIDs := make([]string, len(keys))
	for i := range claimIDs {
		claimIDs[i] = uuid.New().String()
	}

	// ON CONFLICT DO NOTHING makes a race between two bulk inserts harmless:
	// the loser simply gets fewer rows back from RETURNING.
	rows, err := r.pool.Query(ctx, `
		INSERT INTO notification_claims
			(id, condition_type, instance_id, event_kind, recipient_id, created_at)
		SELECT k.id::uuid, k.condition_type, k.instance_id, k.event_kind, k.recipient_id, $6
		FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[])
			AS k(condition_type, instance_id, event_kind, recipient_id, id)
		ON CONFLICT (condition_type, instance_id, event_kind, recipient_id) DO NOTHING
		RETURNING condition_type, instance_id, event_kind, recipient_id`,
		cts, ids, kinds, recipients, claimIDs, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("bulk insert claims: %w", err)
	}
	defer rows.Close()
	return scanClaimKeys(rows)
}

func (r *pgClaimRepository) Delete(ctx context.Context, key domain.ClaimKey) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM notification_claims
		WHERE condition_type = $1 AND instance_id = $2
		  AND event_kind = $3 AND recipient_id = $4`,
		string(key.ConditionType), key.InstanceID, string(key.EventKind), key.RecipientID)
	if err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	return nil
}

func (r *pgClaimRepository) ListByKind(ctx context.Context, ct domain.ConditionType, kind domain.EventKind) ([]domain.Claim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, condition_type, instance_id, event_kind, recipient_id, created_at
		FROM notification_claims
		WHERE condition_type = $1 AND event_kind = $2`,
		string(ct), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		var c domain.Claim
		if err := rows.Scan(&c.ID, &c.ConditionType, &c.InstanceID, &c.EventKind, &c.RecipientID, &c.CreatedAt); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// ---- helpers ----

// isUniqueViolation reports whether err is Postgres SQLSTATE 23505. That is
// the expected outcome of claiming an already claimed slot.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// splitKeys turns keys into the parallel arrays unnest() expects.
func splitKeys(keys []domain.ClaimKey) (cts, ids, kinds, recipients []string) {
	cts = make([]string, len(keys))
	ids = make([]string, len(keys))
	kinds = make([]string, len(keys))
	recipients = make([]string, len(keys))
	for i, k := range keys {
		cts[i] = string(k.ConditionType)
		ids[i] = k.InstanceID
		kinds[i] = string(k.EventKind)
		recipients[i] = k.RecipientID
	}
	return
}

func scanClaimKeys(rows pgx.Rows) ([]domain.ClaimKey, error) {
	var keys []domain.ClaimKey
	for rows.Next() {
		var k domain.ClaimKey
		if err := rows.Scan(&k.ConditionType, &k.InstanceID, &k.EventKind, &k.RecipientID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
