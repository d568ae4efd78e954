package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/membership"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const uniqueViolation = "23505"

var schema = []string{
	`create table if not exists goshield_users (
		id             text primary key,
		name           text not null,
		email          text not null unique,
		phone          text not null default '',
		password_hash  text not null,
		account_id     text not null default '',
		role           text not null default '',
		status         text not null,
		email_verified boolean not null default false,
		created_at     timestamptz not null,
		updated_at     timestamptz not null,
		last_login_at  timestamptz
	)`,
	`create index if not exists goshield_users_account_idx on goshield_users (account_id)`,
	`create table if not exists goshield_accounts (
		id         text primary key,
		name       text not null,
		owner_id   text not null,
		members    jsonb not null,
		capacity   integer not null,
		plan       text not null,
		status     text not null,
		expires_at timestamptz not null,
		created_at timestamptz not null,
		updated_at timestamptz not null,
		version    bigint not null default 0
	)`,
}

const userColumns = `id, name, email, phone, password_hash, account_id, role, status, email_verified,
	created_at, updated_at, last_login_at`

const accountColumns = `id, name, owner_id, members, capacity, plan, status, expires_at, created_at,
	updated_at, version`

// Store is a PostgreSQL-backed user and account store.
type Store struct {
	db *sqlx.DB
}

var (
	_ goShield.UserStore = (*Store)(nil)
	_ membership.Store   = (*Store)(nil)
)

// Open connects with the pgx driver and applies pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates the tables when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func userUnavailable(err error) error {
	return fmt.Errorf("%w: %v", goShield.ErrStoreUnavailable, err)
}

func accountUnavailable(err error) error {
	return fmt.Errorf("%w: %v", membership.ErrStoreUnavailable, err)
}

/*
====================================
USERS
====================================
*/

func (s *Store) CreateUser(ctx context.Context, u *goShield.User) error {
	stored := u.Clone()
	stored.Email = goShield.NormalizeEmail(stored.Email)

	_, err := s.db.NamedExecContext(ctx, `insert into goshield_users (`+userColumns+`)
		values (:id, :name, :email, :phone, :password_hash, :account_id, :role, :status, :email_verified,
			:created_at, :updated_at, :last_login_at)`, stored)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return goShield.ErrUserExists
	default:
		return userUnavailable(err)
	}
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*goShield.User, error) {
	return s.getUser(ctx, s.db, `select `+userColumns+` from goshield_users where id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*goShield.User, error) {
	return s.getUser(ctx, s.db, `select `+userColumns+` from goshield_users where email = $1`, goShield.NormalizeEmail(email))
}

func (s *Store) getUser(ctx context.Context, q sqlx.QueryerContext, query string, arg string) (*goShield.User, error) {
	var u goShield.User
	err := sqlx.GetContext(ctx, q, &u, query, arg)
	switch {
	case err == nil:
		return &u, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, goShield.ErrUserNotFound
	default:
		return nil, userUnavailable(err)
	}
}

func (s *Store) UpdateUser(ctx context.Context, id string, mutate func(*goShield.User) error) (*goShield.User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, userUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.getUser(ctx, tx, `select `+userColumns+` from goshield_users where id = $1 for update`, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(current); err != nil {
		return nil, err
	}
	current.ID = id
	current.Email = goShield.NormalizeEmail(current.Email)

	_, err = tx.NamedExecContext(ctx, `update goshield_users set
		name = :name, email = :email, phone = :phone, password_hash = :password_hash,
		account_id = :account_id, role = :role, status = :status, email_verified = :email_verified,
		updated_at = :updated_at, last_login_at = :last_login_at
		where id = :id`, current)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goShield.ErrUserExists
		}
		return nil, userUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, userUnavailable(err)
	}
	return current, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `delete from goshield_users where id = $1`, id); err != nil {
		return userUnavailable(err)
	}
	return nil
}

/*
====================================
ACCOUNTS
====================================
*/

type accountRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	OwnerID   string    `db:"owner_id"`
	Members   []byte    `db:"members"`
	Capacity  int       `db:"capacity"`
	Plan      string    `db:"plan"`
	Status    string    `db:"status"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	Version   int64     `db:"version"`
}

func toRow(a *membership.Account) (accountRow, error) {
	members := a.Members
	if members == nil {
		members = []membership.Member{}
	}
	raw, err := json.Marshal(members)
	if err != nil {
		return accountRow{}, err
	}
	return accountRow{
		ID:        a.ID,
		Name:      a.Name,
		OwnerID:   a.OwnerID,
		Members:   raw,
		Capacity:  a.Capacity,
		Plan:      string(a.Plan),
		Status:    string(a.Status),
		ExpiresAt: a.ExpiresAt,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		Version:   a.Version,
	}, nil
}

func (r accountRow) account() (*membership.Account, error) {
	a := &membership.Account{
		ID:        r.ID,
		Name:      r.Name,
		OwnerID:   r.OwnerID,
		Capacity:  r.Capacity,
		Plan:      membership.Plan(r.Plan),
		Status:    membership.Status(r.Status),
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Version:   r.Version,
	}
	if err := json.Unmarshal(r.Members, &a.Members); err != nil {
		return nil, fmt.Errorf("decode members of %s: %w", r.ID, err)
	}
	return a, nil
}

func (s *Store) Create(ctx context.Context, a *membership.Account) error {
	row, err := toRow(a)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `insert into goshield_accounts (`+accountColumns+`)
		values (:id, :name, :owner_id, :members, :capacity, :plan, :status, :expires_at, :created_at,
			:updated_at, :version)`, row)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return membership.ErrAccountExists
	default:
		return accountUnavailable(err)
	}
}

func (s *Store) Get(ctx context.Context, id string) (*membership.Account, error) {
	return s.getAccount(ctx, s.db, `select `+accountColumns+` from goshield_accounts where id = $1`, id)
}

func (s *Store) getAccount(ctx context.Context, q sqlx.QueryerContext, query, id string) (*membership.Account, error) {
	var row accountRow
	err := sqlx.GetContext(ctx, q, &row, query, id)
	switch {
	case err == nil:
		return row.account()
	case errors.Is(err, sql.ErrNoRows):
		return nil, membership.ErrAccountNotFound
	default:
		return nil, accountUnavailable(err)
	}
}

func (s *Store) Update(ctx context.Context, id string, mutate func(*membership.Account) error) (*membership.Account, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, accountUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.getAccount(ctx, tx, `select `+accountColumns+` from goshield_accounts where id = $1 for update`, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(current); err != nil {
		return nil, err
	}
	current.ID = id
	current.Version++

	row, err := toRow(current)
	if err != nil {
		return nil, err
	}
	_, err = tx.NamedExecContext(ctx, `update goshield_accounts set
		name = :name, owner_id = :owner_id, members = :members, capacity = :capacity, plan = :plan,
		status = :status, expires_at = :expires_at, updated_at = :updated_at, version = :version
		where id = :id`, row)
	if err != nil {
		return nil, accountUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, accountUnavailable(err)
	}
	return current, nil
}
