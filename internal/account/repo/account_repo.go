package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
)

var (
	// ErrDuplicateUsername is returned by Insert when the username is already taken.
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrDuplicateEmail is returned by Insert when another account has the email.
	ErrDuplicateEmail = errors.New("duplicate email")
)

// AccountRepo provides data access for the accounts table using sqlx.
// Queries are written with `?` placeholders and rebound for the driver in use.
type AccountRepo struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

// EnsureTable creates the accounts table if not exists (idempotent).
// The DDL is valid on both Postgres and SQLite.
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS accounts (
  id BIGINT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  password_algo TEXT NOT NULL DEFAULT '',
  mobile_number TEXT NOT NULL,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active',
  created_at BIGINT NOT NULL,
  password_updated_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_username_mobile ON accounts(username, mobile_number)`,
		// email is optional; only non-empty values must be unique
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email) WHERE email <> ''`,
	)
}

type accountRow struct {
	ID                int64  `db:"id"`
	Username          string `db:"username"`
	PasswordHash      string `db:"password_hash"`
	PasswordAlgo      string `db:"password_algo"`
	MobileNumber      string `db:"mobile_number"`
	FirstName         string `db:"first_name"`
	LastName          string `db:"last_name"`
	Email             string `db:"email"`
	Status            string `db:"status"`
	CreatedAt         int64  `db:"created_at"`
	PasswordUpdatedAt int64  `db:"password_updated_at"`
}

func (row accountRow) toEntity() *entity.Account {
	return &entity.Account{
		ID:                row.ID,
		Username:          row.Username,
		PasswordHash:      row.PasswordHash,
		PasswordAlgo:      row.PasswordAlgo,
		MobileNumber:      row.MobileNumber,
		FirstName:         row.FirstName,
		LastName:          row.LastName,
		Email:             row.Email,
		Status:            row.Status,
		CreatedAt:         database.FromMillis(row.CreatedAt),
		PasswordUpdatedAt: database.FromMillis(row.PasswordUpdatedAt),
	}
}

const selectAccount = `SELECT id, username, password_hash, password_algo, mobile_number,
	first_name, last_name, email, status, created_at, password_updated_at
  FROM accounts`

// Insert stores a new account. The caller assigns ID and timestamps.
// A username collision yields ErrDuplicateUsername and an email collision
// ErrDuplicateEmail; when both collide the username wins. The UNIQUE
// constraints decide races between concurrent registrations.
func (r *AccountRepo) Insert(ctx context.Context, a *entity.Account) error {
	q := `INSERT INTO accounts (id, username, password_hash, password_algo, mobile_number,
		first_name, last_name, email, status, created_at, password_updated_at)
		VALUES (:id, :username, :password_hash, :password_algo, :mobile_number,
		:first_name, :last_name, :email, :status, :created_at, :password_updated_at)`
	status := a.Status
	if status == "" {
		status = "active"
	}
	row := accountRow{
		ID:                a.ID,
		Username:          a.Username,
		PasswordHash:      a.PasswordHash,
		PasswordAlgo:      a.PasswordAlgo,
		MobileNumber:      a.MobileNumber,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		Email:             a.Email,
		Status:            status,
		CreatedAt:         database.ToMillis(a.CreatedAt),
		PasswordUpdatedAt: database.ToMillis(a.PasswordUpdatedAt),
	}
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		if database.IsUniqueViolation(err) {
			return r.duplicateKind(ctx, err, a.Username)
		}
		return err
	}
	a.Status = status
	return nil
}

func (r *AccountRepo) duplicateKind(ctx context.Context, err error, username string) error {
	if !database.IsUniqueViolationOn(err, "email") {
		return ErrDuplicateUsername
	}
	// the engine reports one constraint; check whether the username clashes too
	var n int
	if qerr := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM accounts WHERE username = ?`), username); qerr == nil && n > 0 {
		return ErrDuplicateUsername
	}
	return ErrDuplicateEmail
}

// FindByID fetches a full account row or sql.ErrNoRows.
func (r *AccountRepo) FindByID(ctx context.Context, id int64) (*entity.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE id = ?`, id)
}

// FindByUsername fetches by exact username or sql.ErrNoRows.
func (r *AccountRepo) FindByUsername(ctx context.Context, username string) (*entity.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE username = ?`, username)
}

// FindByUsernameAndMobile matches both fields in one query or returns sql.ErrNoRows.
func (r *AccountRepo) FindByUsernameAndMobile(ctx context.Context, username, mobile string) (*entity.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE username = ? AND mobile_number = ?`, username, mobile)
}

func (r *AccountRepo) getOne(ctx context.Context, q string, args ...any) (*entity.Account, error) {
	var row accountRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// UpdatePasswordHash replaces the stored hash. Returns false when no row matched.
func (r *AccountRepo) UpdatePasswordHash(ctx context.Context, id int64, hash, algo string, at time.Time) (bool, error) {
	const q = `UPDATE accounts SET password_hash = ?, password_algo = ?, password_updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), hash, algo, database.ToMillis(at), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
