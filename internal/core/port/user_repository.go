package port

import (
	"context"

	"github.com/azniosman/vms/internal/core/domain"
)

// UserStore loads and saves operator accounts. Absent users surface as repository.ErrNotFound.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// Save upserts by user ID.
	Save(ctx context.Context, user domain.User) error
}
