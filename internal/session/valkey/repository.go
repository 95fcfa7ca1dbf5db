// Package sessionvalkey persists sessions in Valkey. Entries carry a
// TTL matching the session expiry, so the store expires sessions on its
// own even if Invalidate is never called.
package sessionvalkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/authward/authward/internal/serviceerr"
	"github.com/authward/authward/internal/session"
)

type Repository struct {
	valkey valkey.Client
	prefix string
}

var _ session.Repository = (*Repository)(nil)

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		valkey: valkeyClient,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
}

func (r *Repository) Load(ctx context.Context, sessionID string) (session.Session, error) {
	bytes, err := r.valkey.Do(ctx, r.valkey.B().Get().Key(r.key(sessionID)).Build()).AsBytes()
	if err != nil {
		if valkeyErr, ok := valkey.IsValkeyErr(err); ok && valkeyErr.IsNil() {
			return session.Session{}, serviceerr.ErrNotFound
		}

		return session.Session{}, fmt.Errorf("executing get command: %w", err)
	}

	var s session.Session
	if err := json.Unmarshal(bytes, &s); err != nil {
		return session.Session{}, fmt.Errorf("unmarshaling session: %w", err)
	}

	return s, nil
}

func (r *Repository) Store(ctx context.Context, s session.Session) error {
	bytes, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	ttl := time.Until(s.Expiry)
	if ttl <= 0 {
		return fmt.Errorf("%w: session is already expired", serviceerr.ErrConflict)
	}

	cmd := r.valkey.B().Set().Key(r.key(s.ID)).Value(valkey.BinaryString(bytes)).Ex(ttl).Build()
	if err := r.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (r *Repository) Invalidate(ctx context.Context, sessionID string) error {
	if err := r.valkey.Do(ctx, r.valkey.B().Del().Key(r.key(sessionID)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (r *Repository) key(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, sessionID)
}
