package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/repository"
)

var userColumns = []string{
	"id",
	"username",
	"password_hash",
	"salt",
	"role",
	"is_active",
	"created_at",
	"last_login",
	"failed_login_attempts",
	"lockout_until",
}

// UserRepository implements port.UserStore using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// FindByUsername returns repository.ErrNotFound when no row matches.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.selectOne(ctx, squirrel.Eq{"username": username})
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.selectOne(ctx, squirrel.Eq{"id": id})
}

// Save inserts the user or overwrites every mutable column of an existing row.
func (r *UserRepository) Save(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert("users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Username,
			user.PasswordHash,
			user.Salt,
			string(user.Role),
			user.IsActive,
			user.CreatedAt,
			user.LastLogin,
			user.FailedLoginAttempts,
			user.LockoutUntil,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			salt = EXCLUDED.salt,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			last_login = EXCLUDED.last_login,
			failed_login_attempts = EXCLUDED.failed_login_attempts,
			lockout_until = EXCLUDED.lockout_until`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *UserRepository) selectOne(ctx context.Context, where squirrel.Sqlizer) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("users").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var (
		user         domain.User
		role         string
		lastLogin    *time.Time
		lockoutUntil *time.Time
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Salt,
		&role,
		&user.IsActive,
		&user.CreatedAt,
		&lastLogin,
		&user.FailedLoginAttempts,
		&lockoutUntil,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.Role = domain.Role(role)
	user.LastLogin = lastLogin
	user.LockoutUntil = lockoutUntil
	return &user, nil
}

var _ port.UserStore = (*UserRepository)(nil)
