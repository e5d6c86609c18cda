package users

import (
	"context"
	"database/sql"
	"errors"

	"supa-artistry/internal/auth"
	"supa-artistry/internal/db"
)

var ErrNotFound = errors.New("user not found")

// Repository reads account records for session responses.
type Repository struct {
	db *db.DB
}

func NewRepository(db *db.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the user by id or ErrNotFound.
func (r *Repository) Get(ctx context.Context, userID string) (*auth.User, error) {
	var (
		id           string
		email, phone sql.NullString
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, phone
		FROM users
		WHERE id = $1 AND status = 'active'
	`, userID).Scan(&id, &email, &phone)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &auth.User{
		ID:    id,
		Email: email.String,
		Phone: phone.String,
	}, nil
}
