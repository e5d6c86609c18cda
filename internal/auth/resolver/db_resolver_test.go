package resolver

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"supa-artistry/internal/auth"
	"supa-artistry/internal/db"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const existingUser = "0d6f2b1e-64a4-4a8e-8b5c-2f1f4c3a9e10"

func newResolver(t *testing.T) (*DBResolver, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewDBResolver(&db.DB{DB: sqlDB}), mock
}

func TestResolveNil(t *testing.T) {
	r, _ := newResolver(t)
	_, err := r.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilIdentity)
}

func TestResolveKnownIdentity(t *testing.T) {
	r, mock := newResolver(t)

	mock.ExpectQuery("SELECT user_id").
		WithArgs("google", "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(existingUser))

	userID, err := r.Resolve(context.Background(), &auth.Identity{
		Provider:       "google",
		ProviderUserID: "sub-1",
		Email:          "ada@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, existingUser, userID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveLinksVerifiedEmail(t *testing.T) {
	r, mock := newResolver(t)

	mock.ExpectQuery("SELECT user_id").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("WHERE LOWER\\(email\\)").
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existingUser))
	mock.ExpectExec("INSERT INTO identities").
		WithArgs(sqlmock.AnyArg(), "keycloak", "kc-7").
		WillReturnResult(sqlmock.NewResult(1, 1))

	userID, err := r.Resolve(context.Background(), &auth.Identity{
		Provider:       "keycloak",
		ProviderUserID: "kc-7",
		Email:          "ada@example.com",
		EmailVerified:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, existingUser, userID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveUnverifiedEmailCreatesUser(t *testing.T) {
	r, mock := newResolver(t)

	mock.ExpectQuery("SELECT user_id").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existingUser))
	mock.ExpectExec("INSERT INTO identities").
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := r.Resolve(context.Background(), &auth.Identity{
		Provider:       "keycloak",
		ProviderUserID: "kc-8",
		Email:          "eve@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePhoneIdentity(t *testing.T) {
	r, mock := newResolver(t)

	mock.ExpectQuery("SELECT user_id").
		WithArgs(auth.ProviderPhone, "+14155550100").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("WHERE phone").
		WithArgs("+14155550100").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existingUser))
	mock.ExpectExec("INSERT INTO identities").
		WithArgs(sqlmock.AnyArg(), auth.ProviderPhone, "+14155550100").
		WillReturnResult(sqlmock.NewResult(1, 1))

	userID, err := r.Resolve(context.Background(), &auth.Identity{
		Provider:       auth.ProviderPhone,
		ProviderUserID: "+14155550100",
		Phone:          "+14155550100",
	})
	require.NoError(t, err)
	assert.Equal(t, existingUser, userID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePropagatesDBErrors(t *testing.T) {
	r, mock := newResolver(t)

	mock.ExpectQuery("SELECT user_id").WillReturnError(errors.New("connection reset"))

	_, err := r.Resolve(context.Background(), &auth.Identity{Provider: "google", ProviderUserID: "x"})
	assert.EqualError(t, err, "connection reset")
}
