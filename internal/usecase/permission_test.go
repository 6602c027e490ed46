package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/core/port"
	"github.com/arklim/social-platform-authz/internal/repository"
)

type effectiveCacheMock struct {
	entries map[string][]string
	getErr  error
	sets    int
	deletes int
}

func newEffectiveCacheMock() *effectiveCacheMock {
	return &effectiveCacheMock{entries: make(map[string][]string)}
}

func (m *effectiveCacheMock) Get(_ context.Context, userID string) ([]string, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	encoded, ok := m.entries[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return encoded, nil
}

func (m *effectiveCacheMock) Set(_ context.Context, userID string, encoded []string, _ time.Duration) error {
	m.sets++
	m.entries[userID] = encoded
	return nil
}

func (m *effectiveCacheMock) Delete(_ context.Context, userID string) error {
	m.deletes++
	delete(m.entries, userID)
	return nil
}

var _ port.EffectivePermissionCache = (*effectiveCacheMock)(nil)

func newPermissionService(t *testing.T) (*PermissionService, *roleRepoMock, *userAccessRepoMock, *eventPublisherMock, *effectiveCacheMock) {
	t.Helper()
	roles := newRoleRepoMock()
	users := newUserAccessRepoMock()
	events := &eventPublisherMock{}
	cache := newEffectiveCacheMock()
	svc := NewPermissionService(testCatalog(t), roles, users, events).
		WithEffectiveCache(cache, time.Minute).
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	return svc, roles, users, events, cache
}

func seedRole(t *testing.T, roles *roleRepoMock, role domain.Role) {
	t.Helper()
	if role.ID == "" {
		role.ID = "role-" + role.Code
	}
	if role.Revision == 0 {
		role.Revision = 1
	}
	if err := roles.Create(context.Background(), role); err != nil {
		t.Fatalf("seed role %s: %v", role.Code, err)
	}
}

func TestEffectivePermissionsDenyBeatsAllowAcrossRoles(t *testing.T) {
	svc, roles, users, _, _ := newPermissionService(t)
	ctx := context.Background()

	seedRole(t, roles, domain.Role{Code: "allower", ScopeTemplates: []domain.ScopeTemplate{
		{Type: domain.DirectiveAllow, Permission: domain.PermissionPortfolioAccounts,
			Parameters: map[string]string{"id": "5"}},
	}})
	seedRole(t, roles, domain.Role{Code: "denier", ScopeTemplates: []domain.ScopeTemplate{
		{Type: domain.DirectiveDeny, Permission: domain.PermissionPortfolioAccounts,
			Parameters: map[string]string{"id": "5"}},
	}})

	users.assignments["user-1"] = []domain.UserRoleAssignment{
		{ID: "a1", UserID: "user-1", RoleCode: "allower"},
		{ID: "a2", UserID: "user-1", RoleCode: "denier"},
	}

	allowed, err := svc.Check(ctx, "user-1", domain.PermissionPortfolioAccounts, map[string]string{"id": "5"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if allowed {
		t.Fatal("expected deny from one role to override allow from another")
	}
}

func TestEffectivePermissionsPerAssignmentBindings(t *testing.T) {
	svc, roles, users, _, _ := newPermissionService(t)
	ctx := context.Background()

	seedRole(t, roles, domain.Role{Code: "portfolio_manager", ScopeTemplates: []domain.ScopeTemplate{
		{Type: domain.DirectiveAllow, Permission: domain.PermissionPortfolioAccounts,
			Parameters: map[string]string{domain.ParamUserID: "{userId}"}},
	}})

	users.assignments["mgr-1"] = []domain.UserRoleAssignment{
		{ID: "a1", UserID: "mgr-1", RoleCode: "portfolio_manager", ParameterValues: map[string]string{"userId": "client-a"}},
		{ID: "a2", UserID: "mgr-1", RoleCode: "portfolio_manager", ParameterValues: map[string]string{"userId": "client-b"}},
	}

	directives, err := svc.EffectivePermissions(ctx, "mgr-1")
	if err != nil {
		t.Fatalf("effective permissions: %v", err)
	}

	want := []string{
		"+api:portfolio:accounts:list?userId=client-a",
		"+api:portfolio:accounts:list?userId=client-b",
	}
	if got := domain.EncodeDirectives(directives); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected one directive per assignment, got %v", got)
	}
}

func TestEffectivePermissionsBuiltInRoleWithoutBackingRow(t *testing.T) {
	svc, _, users, _, _ := newPermissionService(t)
	ctx := context.Background()

	users.assignments["user-2"] = []domain.UserRoleAssignment{
		{ID: "a1", UserID: "user-2", RoleCode: "user"},
	}

	allowed, err := svc.Check(ctx, "user-2", domain.PermissionFavoritesRead, nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !allowed {
		t.Fatal("expected built-in user role to grant favorites read")
	}

	allowed, err = svc.Check(ctx, "user-2", domain.PermissionRolesCreate, nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if allowed {
		t.Fatal("expected built-in user role not to grant role creation")
	}
}

func TestEffectivePermissionsUsesCache(t *testing.T) {
	svc, _, users, _, cache := newPermissionService(t)
	ctx := context.Background()

	users.grants["user-3"] = []domain.UserPermissionGrant{
		{ID: "g1", UserID: "user-3", Permission: domain.PermissionFavoritesRead, IsAllow: true},
	}

	if _, err := svc.EffectivePermissions(ctx, "user-3"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected cache write, got %d", cache.sets)
	}

	// A stale store no longer matters once the cache holds the entry.
	users.grants["user-3"] = nil
	directives, err := svc.EffectivePermissions(ctx, "user-3")
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if len(directives) != 1 {
		t.Fatalf("expected cached directive set, got %v", domain.EncodeDirectives(directives))
	}
}

func TestEffectivePermissionsDropsUndecodableCacheEntry(t *testing.T) {
	svc, _, users, _, cache := newPermissionService(t)
	ctx := context.Background()

	cache.entries["user-4"] = []string{"garbage-entry"}
	users.grants["user-4"] = []domain.UserPermissionGrant{
		{ID: "g1", UserID: "user-4", Permission: domain.PermissionFavoritesRead, IsAllow: true},
	}

	directives, err := svc.EffectivePermissions(ctx, "user-4")
	if err != nil {
		t.Fatalf("resolve with poisoned cache: %v", err)
	}
	if len(directives) != 1 || directives[0].Permission != domain.PermissionFavoritesRead {
		t.Fatalf("expected recomputed directives, got %v", domain.EncodeDirectives(directives))
	}
	if cache.deletes == 0 {
		t.Error("expected poisoned cache entry to be dropped")
	}
}

func TestAddGrantValidatesPermission(t *testing.T) {
	svc, _, _, _, _ := newPermissionService(t)

	if _, err := svc.AddGrant(context.Background(), "actor-1", "user-5", "api:bogus:path", true, nil); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

func TestAddGrantQualifierFormAccepted(t *testing.T) {
	svc, _, _, _, _ := newPermissionService(t)

	grant, err := svc.AddGrant(context.Background(), "actor-1", "user-5", domain.RootReadIdentifier, true, nil)
	if err != nil {
		t.Fatalf("expected qualifier-form grant to be accepted: %v", err)
	}
	if grant.Permission != domain.RootReadIdentifier {
		t.Errorf("unexpected grant permission %q", grant.Permission)
	}
}

func TestGrantMutationsInvalidateSubject(t *testing.T) {
	svc, _, _, events, cache := newPermissionService(t)
	ctx := context.Background()

	grant, err := svc.AddGrant(ctx, "actor-1", "user-6", domain.PermissionFavoritesRead, true, nil)
	if err != nil {
		t.Fatalf("add grant: %v", err)
	}
	if events.subjectChanged != 1 || events.lastSubject != "user-6" {
		t.Fatalf("expected subject changed event for user-6, got %d/%s", events.subjectChanged, events.lastSubject)
	}

	if err := svc.RemoveGrant(ctx, "actor-1", "user-6", grant.ID); err != nil {
		t.Fatalf("remove grant: %v", err)
	}
	if events.subjectChanged != 2 {
		t.Errorf("expected second subject changed event, got %d", events.subjectChanged)
	}
	if cache.deletes < 2 {
		t.Errorf("expected cache invalidation per mutation, got %d", cache.deletes)
	}
}

func TestRemoveGrantNotFound(t *testing.T) {
	svc, _, _, _, _ := newPermissionService(t)

	if err := svc.RemoveGrant(context.Background(), "actor-1", "user-7", "missing"); !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("expected ErrGrantNotFound, got %v", err)
	}
}

func TestAssignRoleUnknownCode(t *testing.T) {
	svc, _, _, _, _ := newPermissionService(t)

	if _, err := svc.AssignRole(context.Background(), "actor-1", "user-8", "ghost", nil); !errors.Is(err, ErrUnknownRoleCode) {
		t.Fatalf("expected ErrUnknownRoleCode, got %v", err)
	}
}

func TestAssignRoleBuiltInCode(t *testing.T) {
	svc, _, users, _, _ := newPermissionService(t)
	ctx := context.Background()

	assignment, err := svc.AssignRole(ctx, "actor-1", "user-9", "USER", nil)
	if err != nil {
		t.Fatalf("assign builtin role: %v", err)
	}
	if assignment.RoleCode != domain.SystemRoleUser {
		t.Errorf("expected normalized code, got %q", assignment.RoleCode)
	}
	if len(users.assignments["user-9"]) != 1 {
		t.Errorf("expected stored assignment")
	}
}

func TestRemoveRoleAssignmentNotFound(t *testing.T) {
	svc, _, _, _, _ := newPermissionService(t)

	if err := svc.RemoveRoleAssignment(context.Background(), "actor-1", "user-10", "missing"); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound, got %v", err)
	}
}

func TestResolveUserRolesSkipsUnknownRole(t *testing.T) {
	svc, roles, users, _, _ := newPermissionService(t)
	ctx := context.Background()

	seedRole(t, roles, domain.Role{Code: "known", ScopeTemplates: []domain.ScopeTemplate{
		{Type: domain.DirectiveAllow, Permission: domain.PermissionFavoritesRead},
	}})
	users.assignments["user-11"] = []domain.UserRoleAssignment{
		{ID: "a1", UserID: "user-11", RoleCode: "known"},
		{ID: "a2", UserID: "user-11", RoleCode: "vanished"},
	}

	resolutions, err := svc.ResolveUserRoles(ctx, "user-11")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolutions) != 1 || resolutions[0].Role.Code != "known" {
		t.Fatalf("expected only the known role to resolve, got %+v", resolutions)
	}
}
