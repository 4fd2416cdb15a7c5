package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// sqliteClaimSchema mirrors migrations/000001_create_notification_claims.
// Keep the two in sync.
const sqliteClaimSchema = `
CREATE TABLE IF NOT EXISTS notification_claims (
    id             TEXT PRIMARY KEY,
    condition_type TEXT NOT NULL,
    instance_id    TEXT NOT NULL,
    event_kind     TEXT NOT NULL,
    recipient_id   TEXT NOT NULL,
    created_at     INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_notification_claims_key
    ON notification_claims(condition_type, instance_id, event_kind, recipient_id);
`

// sqliteMaxKeysPerQuery keeps row-value IN lists well under SQLite's bound
// parameter limit (4 parameters per key).
const sqliteMaxKeysPerQuery = 500

type sqliteClaimRepository struct {
	db *sql.DB
}

// NewSQLiteClaimRepository returns a ClaimRepository backed by a SQLite
// database, creating the claim table if needed. It serves single-host
// deployments where every process shares one database file.
func NewSQLiteClaimRepository(ctx context.Context, db *sql.DB) (ClaimRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteClaimSchema); err != nil {
		return nil, fmt.Errorf("apply sqlite claim schema: %w", err)
	}
	return &sqliteClaimRepository{db: db}, nil
}

func (r *sqliteClaimRepository) Insert(ctx context.Context, key domain.ClaimKey) (bool, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_claims
			(id, condition_type, instance_id, event_kind, recipient_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), string(key.ConditionType), key.InstanceID,
		string(key.EventKind), key.RecipientID, time.Now().UTC().UnixNano(),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert claim: %w", err)
	}
	return true, nil
}

func (r *sqliteClaimRepository) FindExisting(ctx context.Context, keys []domain.ClaimKey) ([]domain.ClaimKey, error) {
	var existing []domain.ClaimKey
	for start := 0; start < len(keys); start += sqliteMaxKeysPerQuery {
		end := min(start+sqliteMaxKeysPerQuery, len(keys))
		chunk := keys[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*4)
		for i, k := range chunk {
			placeholders[i] = "(?, ?, ?, ?)"
			args = append(args, string(k.ConditionType), k.InstanceID, string(k.EventKind), k.RecipientID)
		}

		query := `
			SELECT condition_type, instance_id, event_kind, recipient_id
			FROM notification_claims
			WHERE (condition_type, instance_id, event_kind, recipient_id)
			   IN (VALUES ` + strings.Join(placeholders, ", ") + `)`

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("find existing claims: %w", err)
		}
		for rows.Next() {
			var k domain.ClaimKey
			if err := rows.Scan(&k.ConditionType, &k.InstanceID, &k.EventKind, &k.RecipientID); err != nil {
				rows.Close()
				return nil, err
			}
			existing = append(existing, k)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func (r *sqliteClaimRepository) InsertMany(ctx context.Context, keys []domain.ClaimKey) ([]domain.ClaimKey, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notification_claims
			(id, condition_type, instance_id, event_kind, recipient_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (condition_type, instance_id, event_kind, recipient_id) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixNano()
	var inserted []domain.ClaimKey
	for _, k := range keys {
		res, err := stmt.ExecContext(ctx, uuid.New().String(), string(k.ConditionType),
			k.InstanceID, string(k.EventKind), k.RecipientID, now)
		if err != nil {
			return nil, fmt.Errorf("bulk insert claim: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			inserted = append(inserted, k)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk insert: %w", err)
	}
	return inserted, nil
}

func (r *sqliteClaimRepository) Delete(ctx context.Context, key domain.ClaimKey) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM notification_claims
		WHERE condition_type = ? AND instance_id = ? AND event_kind = ? AND recipient_id = ?`,
		string(key.ConditionType), key.InstanceID, string(key.EventKind), key.RecipientID)
	if err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	return nil
}

func (r *sqliteClaimRepository) ListByKind(ctx context.Context, ct domain.ConditionType, kind domain.EventKind) ([]domain.Claim, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, condition_type, instance_id, event_kind, recipient_id, created_at
		FROM notification_claims
		WHERE condition_type = ? AND event_kind = ?`, string(ct), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		var (
			c       domain.Claim
			created int64
		)
		if err := rows.Scan(&c.ID, &c.ConditionType, &c.InstanceID, &c.EventKind, &c.RecipientID, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
