package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/service-core/internal/user/entity"
)

var userCols = []string{
	"id", "email", "username", "provider_id", "avatar", "role", "password_hash", "status",
	"login_failed_attempts", "locked_until", "last_login_at", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(sqlx.NewDb(db, "postgres")), mock
}

func TestUserRepo_FindByEmail(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("1", "a@x.com", "alice", "", "", "user", "", "active", 0, nil, nil, now, now))

	u, err := r.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, entity.RoleUser, u.Role)
	assert.Empty(t, u.ProviderID)
	assert.Nil(t, u.LockedUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_FindByUsername_NotFound(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("Bob").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := r.FindByUsername(context.Background(), "Bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_Create(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("1", "new@x.com", "Bob_1", "p1", "", "user", "", "active").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := &entity.User{ID: "1", Email: "new@x.com", Username: "Bob_1", ProviderID: "p1"}
	require.NoError(t, r.Create(context.Background(), u))
	assert.Equal(t, entity.RoleUser, u.Role)
	assert.Equal(t, entity.StatusActive, u.Status)
	assert.Equal(t, now, u.CreatedAt)
}

func TestUserRepo_Create_UniqueViolations(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{"uq_users_email", ErrDuplicateEmail},
		{"uq_users_username", ErrDuplicateUsername},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			r, mock := newMockRepo(t)
			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tc.constraint})

			err := r.Create(context.Background(), &entity.User{ID: "1", Email: "a@x.com", Username: "a"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUserRepo_Save(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET username = $2")).
		WithArgs("1", "alice", "p1", "https://img/a.png").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	u := &entity.User{ID: "1", Username: "alice", ProviderID: "p1", Avatar: "https://img/a.png"}
	require.NoError(t, r.Save(context.Background(), u))
	assert.Equal(t, now, u.UpdatedAt)
}

func TestUserRepo_UpdateRole_NotFound(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2")).
		WithArgs("404", "admin").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.UpdateRole(context.Background(), "404", entity.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_LockIfThreshold(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'locked'")).
		WithArgs("1", 5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	locked, err := r.LockIfThreshold(context.Background(), "1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, locked)

	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'locked'")).
		WithArgs("1", 5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	locked, err = r.LockIfThreshold(context.Background(), "1", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestTranslate_PassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	assert.Equal(t, boom, translate(boom))

	err := translate(&pq.Error{Code: "23505", Constraint: "uq_other"})
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
	assert.Contains(t, err.Error(), "uq_other")
}
