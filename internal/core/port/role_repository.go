package port

import (
	"context"

	"github.com/arklim/social-platform-authz/internal/core/domain"
)

// RoleRepository handles role persistence. Implementations map a unique-code
// violation to repository.ErrConflict and absent rows to
// repository.ErrNotFound.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	// Update persists the role only when the stored revision equals
	// role.Revision and returns the role with the bumped revision.
	Update(ctx context.Context, role domain.Role) (*domain.Role, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByCode(ctx context.Context, code string) (*domain.Role, error)
	GetByCodes(ctx context.Context, codes []string) ([]domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
}
