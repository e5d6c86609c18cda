package resolver

import (
	"context"
	"database/sql"
	"errors"

	"supa-artistry/internal/auth"
	"supa-artistry/internal/db"

	"github.com/google/uuid"
)

var ErrNilIdentity = errors.New("identity is nil")

// DBResolver resolves identities using the database.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	identity *auth.Identity,
) (string, error) {

	if identity == nil {
		return "", ErrNilIdentity
	}

	// 1. Try identity lookup (provider + provider_user_id)
	var userID uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM identities
		WHERE provider = $1
		  AND provider_user_id = $2
	`,
		identity.Provider,
		identity.ProviderUserID,
	).Scan(&userID)

	if err == nil {
		return userID.String(), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	// 2. Try contact-based linking (existing user, new provider)
	err = r.findByContact(ctx, identity, &userID)
	if err == nil {
		if err := r.link(ctx, userID, identity); err != nil {
			return "", err
		}
		return userID.String(), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	// 3. Create new user
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, email_verified, phone, phone_verified)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`,
		nullable(identity.Email),
		identity.EmailVerified,
		nullable(identity.Phone),
		identity.Phone != "",
	).Scan(&userID)

	if err != nil {
		return "", err
	}

	// 4. Create identity mapping
	if err := r.link(ctx, userID, identity); err != nil {
		return "", err
	}

	return userID.String(), nil
}

// findByContact only links on verified contact data; an unverified
// provider email must never take over an existing account.
func (r *DBResolver) findByContact(ctx context.Context, identity *auth.Identity, userID *uuid.UUID) error {
	switch {
	case identity.Phone != "":
		return r.db.QueryRowContext(ctx, `
			SELECT id
			FROM users
			WHERE phone = $1
		`, identity.Phone).Scan(userID)
	case identity.Email != "" && identity.EmailVerified:
		return r.db.QueryRowContext(ctx, `
			SELECT id
			FROM users
			WHERE LOWER(email) = LOWER($1)
		`, identity.Email).Scan(userID)
	default:
		return sql.ErrNoRows
	}
}

func (r *DBResolver) link(ctx context.Context, userID uuid.UUID, identity *auth.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
	`,
		userID,
		identity.Provider,
		identity.ProviderUserID,
	)
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
