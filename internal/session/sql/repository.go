// Package sessionsql persists sessions in Postgres. Expiry is enforced
// on read; the housekeeping query in Sweep removes the rows for good.
package sessionsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authward/authward/internal/serviceerr"
	"github.com/authward/authward/internal/session"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ session.Repository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) Load(ctx context.Context, sessionID string) (session.Session, error) {
	var (
		s        session.Session
		identity []byte
	)

	if err := r.db.QueryRow(ctx, `SELECT id, identity, created_at, expiry
FROM sessions
WHERE id = $1
	AND expiry > now();`,
		sessionID,
	).Scan(&s.ID, &identity, &s.CreatedAt, &s.Expiry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, serviceerr.ErrNotFound
		}

		return session.Session{}, fmt.Errorf("selecting from sessions: %w", err)
	}

	if err := json.Unmarshal(identity, &s.Identity); err != nil {
		return session.Session{}, fmt.Errorf("unmarshaling identity: %w", err)
	}

	return s, nil
}

func (r *Repository) Store(ctx context.Context, s session.Session) error {
	identity, err := json.Marshal(s.Identity)
	if err != nil {
		return fmt.Errorf("marshaling identity: %w", err)
	}

	if _, err := r.db.Exec(ctx, `INSERT INTO sessions (id, subject, identity, created_at, expiry)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id)
	DO UPDATE SET (subject, identity, created_at, expiry) =
		(EXCLUDED.subject, EXCLUDED.identity, EXCLUDED.created_at, EXCLUDED.expiry);`,
		s.ID, s.Identity.Subject, identity, s.CreatedAt, s.Expiry,
	); err != nil {
		return fmt.Errorf("upserting into sessions: %w", err)
	}

	return nil
}

func (r *Repository) Invalidate(ctx context.Context, sessionID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1;`, sessionID); err != nil {
		return fmt.Errorf("deleting from sessions: %w", err)
	}

	return nil
}

// Sweep removes expired rows and reports how many were deleted.
func (r *Repository) Sweep(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expiry <= now();`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
