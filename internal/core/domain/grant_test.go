package domain

import (
	"reflect"
	"testing"
)

func TestBuildEffectivePermissionsDenyWinsAcrossSources(t *testing.T) {
	denyRole := Role{
		Code: "restricted",
		ScopeTemplates: []ScopeTemplate{
			{Type: DirectiveDeny, Permission: PermissionPortfolioAccounts,
				Parameters: map[string]string{"id": "5"}},
		},
	}
	allowRole := Role{
		Code: "broad",
		ScopeTemplates: []ScopeTemplate{
			{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts,
				Parameters: map[string]string{"id": "5"}},
		},
	}

	effective := BuildEffectivePermissions(nil, []UserRoleResolution{
		{Role: allowRole},
		{Role: denyRole},
	})

	if len(effective) != 1 {
		t.Fatalf("expected the pair to collapse to one directive, got %v", EncodeDirectives(effective))
	}
	if !effective[0].IsDeny() {
		t.Fatalf("expected deny to win, got %s", effective[0].String())
	}
}

func TestBuildEffectivePermissionsDenyWinsRegardlessOfOrder(t *testing.T) {
	grant := UserPermissionGrant{Permission: PermissionFavoritesWrite, IsAllow: true}
	denyRole := Role{
		Code: "no-favorites",
		ScopeTemplates: []ScopeTemplate{
			{Type: DirectiveDeny, Permission: PermissionFavoritesWrite},
		},
	}

	effective := BuildEffectivePermissions([]UserPermissionGrant{grant}, []UserRoleResolution{{Role: denyRole}})

	if len(effective) != 1 || !effective[0].IsDeny() {
		t.Fatalf("expected direct allow to lose to role deny, got %v", EncodeDirectives(effective))
	}
}

func TestBuildEffectivePermissionsPerAssignmentBindings(t *testing.T) {
	role := Role{
		Code: "portfolio_manager",
		ScopeTemplates: []ScopeTemplate{
			{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts,
				Parameters: map[string]string{ParamUserID: "{userId}"}},
		},
	}

	effective := BuildEffectivePermissions(nil, []UserRoleResolution{
		{Role: role, ParameterValues: map[string]string{"userId": "user-1"}},
		{Role: role, ParameterValues: map[string]string{"userId": "user-2"}},
	})

	want := []string{
		"+api:portfolio:accounts:list?userId=user-1",
		"+api:portfolio:accounts:list?userId=user-2",
	}
	if !reflect.DeepEqual(EncodeDirectives(effective), want) {
		t.Fatalf("expected one directive per assignment binding, got %v", EncodeDirectives(effective))
	}
}

func TestBuildEffectivePermissionsDeterministicOrder(t *testing.T) {
	grants := []UserPermissionGrant{
		{Permission: PermissionFavoritesWrite, IsAllow: true},
		{Permission: PermissionFavoritesRead, IsAllow: true},
	}

	first := EncodeDirectives(BuildEffectivePermissions(grants, nil))
	second := EncodeDirectives(BuildEffectivePermissions(grants, nil))

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected stable output, got %v then %v", first, second)
	}
	if len(first) != 2 || first[0] >= first[1] {
		t.Fatalf("expected ascending canonical order, got %v", first)
	}
}

func TestDedupeScopeTemplatesKeepsPlaceholdersDistinct(t *testing.T) {
	templates := []ScopeTemplate{
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts,
			Parameters: map[string]string{ParamUserID: "{userId}"}},
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts,
			Parameters: map[string]string{ParamUserID: "user-123"}},
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts,
			Parameters: map[string]string{ParamUserID: "{userId}"}},
	}

	deduped := DedupeScopeTemplates(templates)

	if len(deduped) != 2 {
		t.Fatalf("expected placeholder and literal templates to stay distinct, got %d", len(deduped))
	}
}

func TestIsReservedRoleCode(t *testing.T) {
	for _, code := range []string{"admin", "ADMIN", " Admin ", "user"} {
		if !IsReservedRoleCode(code) {
			t.Errorf("expected %q to be reserved", code)
		}
	}
	if IsReservedRoleCode("analyst") {
		t.Error("expected analyst not to be reserved")
	}
}
