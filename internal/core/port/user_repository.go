package port

import (
	"context"

	"github.com/arklim/social-platform-authz/internal/core/domain"
)

// UserAccessRepository exposes a user's direct permission grants and role
// assignments. The user aggregate itself lives with the identity service;
// this store owns only the authorization attachments.
type UserAccessRepository interface {
	ListGrants(ctx context.Context, userID string) ([]domain.UserPermissionGrant, error)
	AddGrant(ctx context.Context, grant domain.UserPermissionGrant) error
	RemoveGrant(ctx context.Context, userID, grantID string) error

	ListRoleAssignments(ctx context.Context, userID string) ([]domain.UserRoleAssignment, error)
	AddRoleAssignment(ctx context.Context, assignment domain.UserRoleAssignment) error
	RemoveRoleAssignment(ctx context.Context, userID, assignmentID string) error
	// ListAssignmentsByRoleCode reports holdings of a role across users,
	// used before role deletion.
	ListAssignmentsByRoleCode(ctx context.Context, roleCode string) ([]domain.UserRoleAssignment, error)
}
