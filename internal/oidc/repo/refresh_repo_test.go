package repo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*RefreshRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRefreshRepo(sqlx.NewDb(db, "postgres")), mock
}

func TestRefreshRepo_SaveAndGet(t *testing.T) {
	r, mock := newMockRepo(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO oidc_refresh_sessions")).
		WithArgs("h1", "42", "web", exp).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	s := &RefreshSession{TokenHash: "h1", UserID: "42", ClientID: "web", ExpiresAt: exp}
	require.NoError(t, r.Save(context.Background(), s))
	assert.EqualValues(t, 7, s.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM oidc_refresh_sessions WHERE token_hash = $1")).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "token_hash", "user_id", "client_id", "expires_at"}).
			AddRow(int64(7), "h1", "42", "web", exp))

	got, err := r.Get(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, "42", got.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRepo_GetMissing(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM oidc_refresh_sessions")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token_hash", "user_id", "client_id", "expires_at"}))

	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshRepo_Delete(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM oidc_refresh_sessions WHERE token_hash = $1")).
		WithArgs("h1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM oidc_refresh_sessions WHERE token_hash = $1")).
		WithArgs("h1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := r.Delete(context.Background(), "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Delete(context.Background(), "h1")
	require.NoError(t, err)
	assert.False(t, ok)
}
