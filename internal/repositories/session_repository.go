package repositories

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/logging"
)

// SessionValidator resolves a session token to a user id. An unknown or
// expired token yields "" with a nil error.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

type SessionRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db, now: time.Now}
}

// SessionID derives the stored session key from the cookie token.
func SessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *SessionRepo) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	id := SessionID(token)

	var row struct {
		UserID    string    `db:"user_id"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	err := r.db.GetContext(ctx, &row, `SELECT user_id, expires_at FROM session WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if !r.now().Before(row.ExpiresAt) {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM session WHERE id=$1`, id); err != nil {
			logging.Warn().Err(err).Msg("failed to delete expired session")
		}
		return "", nil
	}
	return row.UserID, nil
}
