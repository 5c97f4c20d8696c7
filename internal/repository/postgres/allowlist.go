package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/azniosman/vms/internal/core/port"
)

// AllowlistRepository persists the login IP allowlist.
type AllowlistRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewAllowlistRepository(exec pgExecutor) *AllowlistRepository {
	return &AllowlistRepository{exec: exec, builder: newBuilder()}
}

func (r *AllowlistRepository) Add(ctx context.Context, ip string) error {
	stmt, args, err := r.builder.Insert("ip_allowlist").
		Columns("ip_address").
		Values(ip).
		Suffix("ON CONFLICT (ip_address) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert allowlist sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert allowlist entry: %w", err)
	}
	return nil
}

func (r *AllowlistRepository) Remove(ctx context.Context, ip string) (bool, error) {
	stmt, args, err := r.builder.Delete("ip_allowlist").
		Where(squirrel.Eq{"ip_address": ip}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete allowlist sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete allowlist entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *AllowlistRepository) Contains(ctx context.Context, ip string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		Prefix("SELECT EXISTS (").
		From("ip_allowlist").
		Where(squirrel.Eq{"ip_address": ip}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build allowlist lookup sql: %w", err)
	}
	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("scan allowlist lookup: %w", err)
	}
	return exists, nil
}

func (r *AllowlistRepository) List(ctx context.Context) ([]string, error) {
	stmt, args, err := r.builder.Select("ip_address").
		From("ip_allowlist").
		OrderBy("ip_address").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list allowlist sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query allowlist: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("scan allowlist entry: %w", err)
		}
		out = append(out, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowlist: %w", err)
	}
	return out, nil
}

var _ port.IPAllowlistStore = (*AllowlistRepository)(nil)
