package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/core/port"
	"github.com/arklim/social-platform-authz/internal/repository"
)

var (
	// ErrUnknownPermission indicates a grant referencing a path outside the catalog.
	ErrUnknownPermission = errors.New("unknown permission identifier")
	// ErrUnknownRoleCode indicates an assignment referencing a role that does not exist.
	ErrUnknownRoleCode = errors.New("unknown role code")
	// ErrGrantNotFound is returned when revoking a grant that does not exist.
	ErrGrantNotFound = errors.New("grant not found")
	// ErrAssignmentNotFound is returned when removing an unknown role assignment.
	ErrAssignmentNotFound = errors.New("role assignment not found")
	// ErrSubjectRequired indicates a missing user identifier.
	ErrSubjectRequired = errors.New("user id is required")
)

const defaultEffectiveTTL = 2 * time.Minute

// PermissionService resolves effective permissions and manages a user's
// direct grants and role assignments. The catalog is immutable process-wide
// state; everything else goes through the injected ports.
type PermissionService struct {
	catalog  *domain.Catalog
	roles    port.RoleRepository
	users    port.UserAccessRepository
	events   port.EventPublisher
	cache    port.EffectivePermissionCache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(catalog *domain.Catalog, roles port.RoleRepository, users port.UserAccessRepository, events port.EventPublisher) *PermissionService {
	return &PermissionService{
		catalog:  catalog,
		roles:    roles,
		users:    users,
		events:   events,
		cacheTTL: defaultEffectiveTTL,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithEffectiveCache attaches the per-subject directive cache.
func (s *PermissionService) WithEffectiveCache(cache port.EffectivePermissionCache, ttl time.Duration) *PermissionService {
	s.cache = cache
	if ttl > 0 {
		s.cacheTTL = ttl
	}
	return s
}

// WithLogger attaches a structured logger.
func (s *PermissionService) WithLogger(logger *zap.Logger) *PermissionService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock overrides the time source, primarily for tests.
func (s *PermissionService) WithClock(now func() time.Time) *PermissionService {
	if now != nil {
		s.now = now
	}
	return s
}

// Catalog exposes the immutable permission registry.
func (s *PermissionService) Catalog() *domain.Catalog {
	return s.catalog
}

// ResolveUserRoles pairs each of the user's role assignments with its role
// definition and that assignment's own parameter bindings. Assignments
// referencing roles that no longer exist are skipped with a warning.
func (s *PermissionService) ResolveUserRoles(ctx context.Context, userID string) ([]domain.UserRoleResolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assignments, err := s.users.ListRoleAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	codes := make([]string, 0, len(assignments))
	seen := make(map[string]struct{}, len(assignments))
	for _, assignment := range assignments {
		code := domain.NormalizeRoleCode(assignment.RoleCode)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	stored, err := s.roles.GetByCodes(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("batch get roles: %w", err)
	}

	byCode := make(map[string]domain.Role, len(stored))
	for _, role := range stored {
		byCode[role.Code] = role
	}
	for _, builtin := range domain.BuiltInRoles() {
		if _, ok := byCode[builtin.Code]; !ok {
			byCode[builtin.Code] = builtin
		}
	}

	resolutions := make([]domain.UserRoleResolution, 0, len(assignments))
	for _, assignment := range assignments {
		role, ok := byCode[domain.NormalizeRoleCode(assignment.RoleCode)]
		if !ok {
			s.logger.Warn("skipping assignment for unknown role",
				zap.String("user_id", userID),
				zap.String("role_code", assignment.RoleCode),
			)
			continue
		}
		resolutions = append(resolutions, domain.UserRoleResolution{
			Role:            role,
			ParameterValues: assignment.ParameterValues,
		})
	}
	return resolutions, nil
}

// EffectivePermissions computes the user's final directive set, consulting
// the cache first. A cache entry that fails to decode is dropped and
// recomputed rather than trusted.
func (s *PermissionService) EffectivePermissions(ctx context.Context, userID string) ([]domain.ScopeDirective, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrSubjectRequired
	}

	if s.cache != nil {
		if encoded, err := s.cache.Get(ctx, userID); err == nil {
			directives, decodeErr := domain.DecodeDirectives(encoded)
			if decodeErr == nil {
				return directives, nil
			}
			s.logger.Warn("dropping undecodable effective permission cache entry",
				zap.String("user_id", userID), zap.Error(decodeErr))
			_ = s.cache.Delete(ctx, userID)
		} else if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("effective permission cache read failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	grants, err := s.users.ListGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	resolutions, err := s.ResolveUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}

	directives := domain.BuildEffectivePermissions(grants, resolutions)

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, domain.EncodeDirectives(directives), s.cacheTTL); err != nil {
			s.logger.Warn("effective permission cache write failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	return directives, nil
}

// Check answers whether the user may exercise the permission with the given
// request parameter bindings.
func (s *PermissionService) Check(ctx context.Context, userID, permissionPath string, params map[string]string) (bool, error) {
	directives, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.catalog.Evaluate(directives, permissionPath, params), nil
}

// ListGrants returns the user's direct grants.
func (s *PermissionService) ListGrants(ctx context.Context, userID string) ([]domain.UserPermissionGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrSubjectRequired
	}
	grants, err := s.users.ListGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

// AddGrant attaches a direct allow or deny grant to the user.
func (s *PermissionService) AddGrant(ctx context.Context, actorID, userID, permissionPath string, isAllow bool, description *string) (*domain.UserPermissionGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrSubjectRequired
	}
	permissionPath = strings.TrimSpace(permissionPath)
	if !s.catalog.Recognizes(permissionPath) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, permissionPath)
	}

	grant := domain.UserPermissionGrant{
		ID:         uuid.NewString(),
		UserID:     userID,
		Permission: permissionPath,
		IsAllow:    isAllow,
		GrantedBy:  actorID,
		GrantedAt:  s.now(),
	}
	if description != nil {
		trimmed := strings.TrimSpace(*description)
		if trimmed != "" {
			grant.Description = &trimmed
		}
	}

	if err := s.users.AddGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("add grant: %w", err)
	}

	s.invalidateSubject(ctx, userID, actorID, "grant_added")
	return &grant, nil
}

// RemoveGrant revokes a direct grant.
func (s *PermissionService) RemoveGrant(ctx context.Context, actorID, userID, grantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.users.RemoveGrant(ctx, userID, grantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrGrantNotFound
		}
		return fmt.Errorf("remove grant: %w", err)
	}
	s.invalidateSubject(ctx, userID, actorID, "grant_removed")
	return nil
}

// ListRoleAssignments returns the user's role assignments.
func (s *PermissionService) ListRoleAssignments(ctx context.Context, userID string) ([]domain.UserRoleAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrSubjectRequired
	}
	assignments, err := s.users.ListRoleAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}
	return assignments, nil
}

// AssignRole attaches a role to the user with assignment-specific parameter
// bindings. The same code may be assigned repeatedly with different bindings.
func (s *PermissionService) AssignRole(ctx context.Context, actorID, userID, roleCode string, parameterValues map[string]string) (*domain.UserRoleAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrSubjectRequired
	}

	code := domain.NormalizeRoleCode(roleCode)
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", ErrUnknownRoleCode)
	}
	if !domain.IsReservedRoleCode(code) {
		if _, err := s.roles.GetByCode(ctx, code); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownRoleCode, code)
			}
			return nil, fmt.Errorf("get role by code: %w", err)
		}
	}

	assignment := domain.UserRoleAssignment{
		ID:              uuid.NewString(),
		UserID:          userID,
		RoleCode:        code,
		ParameterValues: parameterValues,
		AssignedBy:      actorID,
		AssignedAt:      s.now(),
	}
	if err := s.users.AddRoleAssignment(ctx, assignment); err != nil {
		return nil, fmt.Errorf("add role assignment: %w", err)
	}

	s.invalidateSubject(ctx, userID, actorID, "role_assigned")
	return &assignment, nil
}

// RemoveRoleAssignment detaches one role holding from the user.
func (s *PermissionService) RemoveRoleAssignment(ctx context.Context, actorID, userID, assignmentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.users.RemoveRoleAssignment(ctx, userID, assignmentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAssignmentNotFound
		}
		return fmt.Errorf("remove role assignment: %w", err)
	}
	s.invalidateSubject(ctx, userID, actorID, "role_unassigned")
	return nil
}

func (s *PermissionService) invalidateSubject(ctx context.Context, userID, actorID, change string) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.logger.Warn("effective permission cache invalidation failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	if s.events == nil {
		return
	}
	event := domain.SubjectAccessChangedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		Change:    change,
		Actor:     actorID,
		ChangedAt: s.now(),
	}
	if err := s.events.PublishSubjectAccessChanged(ctx, event); err != nil {
		s.logger.Warn("publish subject access changed event failed",
			zap.String("user_id", userID), zap.Error(err))
	}
}
