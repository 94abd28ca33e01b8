package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrUserNotFound = errors.New("user not found")

// UserRecord is a row of the user-directory replica.
type UserRecord struct {
	ID        string `db:"id" json:"id"`
	Username  string `db:"username" json:"username"`
	AvatarURL string `db:"avatar_url" json:"avatar_url"`
	Active    bool   `db:"active" json:"active"`
}

// UserDirectory resolves identities to user records.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (UserRecord, error)
}

// UserRepo is a sqlx implementation of UserDirectory.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches one directory record.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (UserRecord, error) {
	var rec UserRecord
	err := r.db.GetContext(ctx, &rec, `SELECT id, username, avatar_url, active FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	return rec, err
}
