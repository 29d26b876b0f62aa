package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
	GetDisplayName(ctx context.Context, userID string) (models.UserName, error)
}

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// TouchLastSeen records the moment the user's last connection went away.
func (r *UserRepo) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE "user" SET last_seen_at=$1 WHERE id=$2`, at, userID)
	return err
}

func (r *UserRepo) GetDisplayName(ctx context.Context, userID string) (models.UserName, error) {
	var name models.UserName
	err := r.db.GetContext(ctx, &name, `SELECT id, first_name, last_name FROM "user" WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserName{}, ErrUserNotFound
	}
	return name, err
}
