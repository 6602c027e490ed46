package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/core/port"
	"github.com/arklim/social-platform-authz/internal/repository"
)

var (
	// ErrRoleValidation indicates a malformed role descriptor.
	ErrRoleValidation = errors.New("invalid role descriptor")
	// ErrRoleCodeReserved indicates the code collides with a built-in role.
	ErrRoleCodeReserved = errors.New("role code is reserved")
	// ErrRoleCodeTaken indicates a role with the code already exists.
	ErrRoleCodeTaken = errors.New("role code already exists")
	// ErrRoleNotFound is returned for lookups and mutations of unknown roles.
	ErrRoleNotFound = errors.New("role not found")
	// ErrSystemRole indicates an attempt to mutate or delete a system role.
	ErrSystemRole = errors.New("system role cannot be modified")
	// ErrRevisionMismatch indicates a stale revision on a guarded write.
	ErrRevisionMismatch = errors.New("role revision mismatch")
)

// RoleDescriptor captures the payload for creating a role.
type RoleDescriptor struct {
	Code           string
	Name           string
	Description    *string
	IsSystem       bool
	ScopeTemplates []domain.ScopeTemplate
}

// RoleService manages the role aggregate. Permission checks happen in the
// transport layer; the service receives an already-authorized actor id for
// event attribution only.
type RoleService struct {
	catalog *domain.Catalog
	roles   port.RoleRepository
	users   port.UserAccessRepository
	events  port.EventPublisher
	logger  *zap.Logger
	now     func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(catalog *domain.Catalog, roles port.RoleRepository, users port.UserAccessRepository, events port.EventPublisher) *RoleService {
	return &RoleService{
		catalog: catalog,
		roles:   roles,
		users:   users,
		events:  events,
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger attaches a structured logger.
func (s *RoleService) WithLogger(logger *zap.Logger) *RoleService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock overrides the time source, primarily for tests.
func (s *RoleService) WithClock(now func() time.Time) *RoleService {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateRole provisions a new role. Reserved codes are rejected unless the
// descriptor marks the role as a system role; duplicate codes fail with
// ErrRoleCodeTaken whether detected up front or by the unique index.
func (s *RoleService) CreateRole(ctx context.Context, actorID string, descriptor RoleDescriptor) (*domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code := domain.NormalizeRoleCode(descriptor.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrRoleValidation)
	}
	name := strings.TrimSpace(descriptor.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrRoleValidation)
	}
	if err := s.validateTemplates(descriptor.ScopeTemplates); err != nil {
		return nil, err
	}

	if domain.IsReservedRoleCode(code) && !descriptor.IsSystem {
		return nil, ErrRoleCodeReserved
	}

	if existing, err := s.roles.GetByCode(ctx, code); err == nil && existing != nil {
		return nil, ErrRoleCodeTaken
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup role by code: %w", err)
	}

	role := domain.Role{
		ID:             uuid.NewString(),
		Code:           code,
		Name:           name,
		IsSystem:       descriptor.IsSystem,
		Revision:       1,
		ScopeTemplates: domain.DedupeScopeTemplates(descriptor.ScopeTemplates),
	}
	if descriptor.Description != nil {
		trimmed := strings.TrimSpace(*descriptor.Description)
		if trimmed != "" {
			role.Description = &trimmed
		}
	}

	if err := s.roles.Create(ctx, role); err != nil {
		// The unique index on lower(code) closes the check-then-create race.
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrRoleCodeTaken
		}
		return nil, fmt.Errorf("create role: %w", err)
	}

	s.publishRoleCreated(ctx, role, actorID)
	return &role, nil
}

// DeleteRole removes a role by id. Returns false when the role does not
// exist; system roles are never deletable.
func (s *RoleService) DeleteRole(ctx context.Context, actorID, roleID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	role, err := s.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return false, nil
		}
		return false, err
	}
	if role.IsSystem {
		return false, ErrSystemRole
	}

	if holders, err := s.users.ListAssignmentsByRoleCode(ctx, role.Code); err == nil && len(holders) > 0 {
		s.logger.Warn("deleting role that is still assigned",
			zap.String("role_code", role.Code),
			zap.Int("assignments", len(holders)),
		)
	}

	if err := s.roles.Delete(ctx, role.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete role: %w", err)
	}

	s.publishRoleDeleted(ctx, *role, actorID)
	return true, nil
}

// GetByCode resolves a role by its case-insensitive code. Built-in roles
// resolve even without a backing row.
func (s *RoleService) GetByCode(ctx context.Context, code string) (*domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized := domain.NormalizeRoleCode(code)
	if normalized == "" {
		return nil, fmt.Errorf("%w: code is required", ErrRoleValidation)
	}

	role, err := s.roles.GetByCode(ctx, normalized)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get role by code: %w", err)
	}

	for _, builtin := range domain.BuiltInRoles() {
		if builtin.Code == normalized {
			builtinCopy := builtin
			return &builtinCopy, nil
		}
	}
	return nil, ErrRoleNotFound
}

// GetByID resolves a role by identifier, including synthesized built-ins.
func (s *RoleService) GetByID(ctx context.Context, roleID string) (*domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrRoleValidation)
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get role by id: %w", err)
	}

	for _, builtin := range domain.BuiltInRoles() {
		if builtin.ID == roleID {
			builtinCopy := builtin
			return &builtinCopy, nil
		}
	}
	return nil, ErrRoleNotFound
}

// List returns every role ordered by code. Built-in roles are synthesized
// into the listing even when the store has no row for them.
func (s *RoleService) List(ctx context.Context) ([]domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	present := make(map[string]struct{}, len(stored))
	for _, role := range stored {
		present[role.Code] = struct{}{}
	}

	merged := append([]domain.Role(nil), stored...)
	for _, builtin := range domain.BuiltInRoles() {
		if _, ok := present[builtin.Code]; !ok {
			merged = append(merged, builtin)
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Code < merged[j].Code })
	return merged, nil
}

// ReplaceScopeTemplates atomically replaces the full template set of a role.
// The existing set is discarded, never merged. A non-zero expectedRevision
// guards against concurrent writers.
func (s *RoleService) ReplaceScopeTemplates(ctx context.Context, actorID, roleID string, templates []domain.ScopeTemplate, expectedRevision int64) (*domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validateTemplates(templates); err != nil {
		return nil, err
	}

	role, err := s.mutableRole(ctx, roleID, expectedRevision)
	if err != nil {
		return nil, err
	}

	role.ScopeTemplates = domain.DedupeScopeTemplates(templates)

	updated, err := s.roles.Update(ctx, *role)
	if err != nil {
		return nil, s.mapUpdateError(err)
	}

	s.publishRoleUpdated(ctx, *updated, actorID)
	return updated, nil
}

// UpdateMetadata updates display name and description only. Code and scope
// templates are untouched.
func (s *RoleService) UpdateMetadata(ctx context.Context, actorID, roleID, name string, description *string, expectedRevision int64) (*domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrRoleValidation)
	}

	role, err := s.mutableRole(ctx, roleID, expectedRevision)
	if err != nil {
		return nil, err
	}

	role.Name = name
	role.Description = nil
	if description != nil {
		trimmed := strings.TrimSpace(*description)
		if trimmed != "" {
			role.Description = &trimmed
		}
	}

	updated, err := s.roles.Update(ctx, *role)
	if err != nil {
		return nil, s.mapUpdateError(err)
	}

	s.publishRoleUpdated(ctx, *updated, actorID)
	return updated, nil
}

func (s *RoleService) mutableRole(ctx context.Context, roleID string, expectedRevision int64) (*domain.Role, error) {
	role, err := s.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, ErrSystemRole
	}
	if expectedRevision > 0 && role.Revision != expectedRevision {
		return nil, ErrRevisionMismatch
	}
	return role, nil
}

func (s *RoleService) mapUpdateError(err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return ErrRevisionMismatch
	case errors.Is(err, repository.ErrNotFound):
		return ErrRoleNotFound
	default:
		return fmt.Errorf("update role: %w", err)
	}
}

func (s *RoleService) validateTemplates(templates []domain.ScopeTemplate) error {
	for _, template := range templates {
		if template.Type != domain.DirectiveAllow && template.Type != domain.DirectiveDeny {
			return fmt.Errorf("%w: template type must be allow or deny", ErrRoleValidation)
		}
		if !s.catalog.Recognizes(template.Permission) {
			return fmt.Errorf("%w: unknown permission %q", ErrRoleValidation, template.Permission)
		}
	}
	return nil
}

func (s *RoleService) publishRoleCreated(ctx context.Context, role domain.Role, actorID string) {
	if s.events == nil {
		return
	}
	event := domain.RoleCreatedEvent{
		EventID:   uuid.NewString(),
		RoleID:    role.ID,
		RoleCode:  role.Code,
		Actor:     actorID,
		CreatedAt: s.now(),
	}
	if err := s.events.PublishRoleCreated(ctx, event); err != nil {
		s.logger.Warn("publish role created event failed", zap.String("role_code", role.Code), zap.Error(err))
	}
}

func (s *RoleService) publishRoleUpdated(ctx context.Context, role domain.Role, actorID string) {
	if s.events == nil {
		return
	}
	event := domain.RoleUpdatedEvent{
		EventID:   uuid.NewString(),
		RoleID:    role.ID,
		RoleCode:  role.Code,
		Revision:  role.Revision,
		Actor:     actorID,
		UpdatedAt: s.now(),
	}
	if err := s.events.PublishRoleUpdated(ctx, event); err != nil {
		s.logger.Warn("publish role updated event failed", zap.String("role_code", role.Code), zap.Error(err))
	}
}

func (s *RoleService) publishRoleDeleted(ctx context.Context, role domain.Role, actorID string) {
	if s.events == nil {
		return
	}
	event := domain.RoleDeletedEvent{
		EventID:   uuid.NewString(),
		RoleID:    role.ID,
		RoleCode:  role.Code,
		Actor:     actorID,
		DeletedAt: s.now(),
	}
	if err := s.events.PublishRoleDeleted(ctx, event); err != nil {
		s.logger.Warn("publish role deleted event failed", zap.String("role_code", role.Code), zap.Error(err))
	}
}
