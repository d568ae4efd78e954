package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/membership"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCols = []string{
	"id", "name", "email", "phone", "password_hash", "account_id", "role", "status",
	"email_verified", "created_at", "updated_at", "last_login_at",
}

var accountCols = []string{
	"id", "name", "owner_id", "members", "capacity", "plan", "status", "expires_at", "created_at",
	"updated_at", "version",
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(sqlx.NewDb(db, "pgx")), mock
}

func userRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).AddRow(
		"u-1", "Owner", "owner@example.com", "", "$argon2id$hash", "a-1", "owner", "active",
		true, now, now, nil,
	)
}

func TestCreateUserNormalizesEmail(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("insert into goshield_users").
		WithArgs("u-1", "Owner", "owner@example.com", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateUser(context.Background(), &goShield.User{
		ID:     "u-1",
		Name:   "Owner",
		Email:  "  Owner@Example.COM ",
		Status: goShield.UserActive,
	})
	require.NoError(t, err)
}

func TestCreateUserDuplicate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("insert into goshield_users").WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := s.CreateUser(context.Background(), &goShield.User{ID: "u-1", Email: "owner@example.com"})
	assert.ErrorIs(t, err, goShield.ErrUserExists)
}

func TestGetUser(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC().Truncate(time.Second)

	mock.ExpectQuery("from goshield_users where email").WithArgs("owner@example.com").WillReturnRows(userRow(now))
	u, err := s.GetUserByEmail(context.Background(), "OWNER@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, membership.RoleOwner, u.Role)
	assert.Equal(t, goShield.UserActive, u.Status)
	assert.True(t, u.EmailVerified)
	assert.Nil(t, u.LastLoginAt)

	mock.ExpectQuery("from goshield_users where id").WithArgs("missing").WillReturnRows(sqlmock.NewRows(userCols))
	_, err = s.GetUserByID(context.Background(), "missing")
	assert.ErrorIs(t, err, goShield.ErrUserNotFound)

	mock.ExpectQuery("from goshield_users where id").WithArgs("u-1").WillReturnError(errors.New("connection reset"))
	_, err = s.GetUserByID(context.Background(), "u-1")
	assert.ErrorIs(t, err, goShield.ErrStoreUnavailable)
}

func TestUpdateUserLocksRow(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC().Truncate(time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("from goshield_users where id = \\$1 for update").WithArgs("u-1").WillReturnRows(userRow(now))
	mock.ExpectExec("update goshield_users set").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := s.UpdateUser(context.Background(), "u-1", func(u *goShield.User) error {
		u.Status = goShield.UserInactive
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, goShield.UserInactive, u.Status)
}

func TestUpdateUserMutateErrorRollsBack(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC().Truncate(time.Second)
	stop := errors.New("stop")

	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("u-1").WillReturnRows(userRow(now))
	mock.ExpectRollback()

	_, err := s.UpdateUser(context.Background(), "u-1", func(*goShield.User) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestAccountRoundTrip(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC().Truncate(time.Second)
	members, err := json.Marshal([]membership.Member{{UserID: "u-1", Role: membership.RoleOwner, AddedAt: now}})
	require.NoError(t, err)

	mock.ExpectExec("insert into goshield_accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Create(context.Background(), &membership.Account{
		ID:       "a-1",
		OwnerID:  "u-1",
		Capacity: membership.Capacity,
		Members:  []membership.Member{{UserID: "u-1", Role: membership.RoleOwner, AddedAt: now}},
	}))

	mock.ExpectExec("insert into goshield_accounts").WillReturnError(&pgconn.PgError{Code: uniqueViolation})
	assert.ErrorIs(t, s.Create(context.Background(), &membership.Account{ID: "a-1"}), membership.ErrAccountExists)

	mock.ExpectQuery("from goshield_accounts where id").WithArgs("a-1").WillReturnRows(
		sqlmock.NewRows(accountCols).AddRow("a-1", "Acme", "u-1", members, 3, "basic", "trial", now, now, now, 4))
	acct, err := s.Get(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), acct.Version)
	require.Len(t, acct.Members, 1)
	assert.Equal(t, membership.RoleOwner, acct.Members[0].Role)

	mock.ExpectQuery("from goshield_accounts where id").WithArgs("nope").WillReturnRows(sqlmock.NewRows(accountCols))
	_, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, membership.ErrAccountNotFound)
}

func TestAccountUpdateBumpsVersion(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC().Truncate(time.Second)
	members, err := json.Marshal([]membership.Member{{UserID: "u-1", Role: membership.RoleOwner, AddedAt: now}})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("from goshield_accounts where id = \\$1 for update").WithArgs("a-1").WillReturnRows(
		sqlmock.NewRows(accountCols).AddRow("a-1", "Acme", "u-1", members, 3, "basic", "trial", now, now, now, 1))
	mock.ExpectExec("update goshield_accounts set").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	acct, err := s.Update(context.Background(), "a-1", func(a *membership.Account) error {
		a.Members = append(a.Members, membership.Member{UserID: "u-2", Role: membership.RoleAdmin, AddedAt: now})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), acct.Version)
	assert.Len(t, acct.Members, 2)
}

func TestAccountUpdateRejectionWritesNothing(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC().Truncate(time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("a-1").WillReturnRows(
		sqlmock.NewRows(accountCols).AddRow("a-1", "Acme", "u-1", []byte(`[]`), 3, "basic", "trial", now, now, now, 1))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), "a-1", func(*membership.Account) error {
		return membership.ErrCapacityExceeded
	})
	assert.ErrorIs(t, err, membership.ErrCapacityExceeded)
}

func TestMigrateRunsEveryStatement(t *testing.T) {
	s, mock := newMock(t)
	for range schema {
		mock.ExpectExec("create").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, s.Migrate(context.Background()))
}
