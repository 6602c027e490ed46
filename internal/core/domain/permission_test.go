package domain

import "testing"

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("build default catalog: %v", err)
	}
	return catalog
}

func TestNewCatalogRejectsDuplicatesAndStrayChildren(t *testing.T) {
	if _, err := NewCatalog(
		&Permission{Path: "api", Children: []*Permission{
			{Path: "api:a"},
			{Path: "api:a"},
		}},
	); err == nil {
		t.Error("expected duplicate path to be rejected")
	}

	if _, err := NewCatalog(
		&Permission{Path: "api", Children: []*Permission{
			{Path: "other:a"},
		}},
	); err == nil {
		t.Error("expected child outside parent hierarchy to be rejected")
	}
}

func TestCatalogCoversSubtree(t *testing.T) {
	catalog := mustCatalog(t)
	target, ok := catalog.Find(PermissionPortfolioAccounts)
	if !ok {
		t.Fatalf("catalog missing %s", PermissionPortfolioAccounts)
	}

	cases := []struct {
		directive string
		covers    bool
	}{
		{PermissionPortfolioAccounts, true},
		{"api:portfolio", true},
		{RootIdentifier, true},
		{"api:favorites", false},
		{PermissionFavoritesRead, false},
		{"api:portfolio:accountslist", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := catalog.Covers(tc.directive, target); got != tc.covers {
			t.Errorf("Covers(%q, %s) = %v, want %v", tc.directive, target.Path, got, tc.covers)
		}
	}
}

func TestCatalogCoversAccessQualifiers(t *testing.T) {
	catalog := mustCatalog(t)

	readTarget, _ := catalog.Find(PermissionFavoritesRead)
	writeTarget, _ := catalog.Find(PermissionFavoritesWrite)
	roleCreate, _ := catalog.Find(PermissionRolesCreate)

	if !catalog.Covers(RootReadIdentifier, readTarget) {
		t.Error("expected api:read to cover read-only leaves")
	}
	if catalog.Covers(RootReadIdentifier, writeTarget) {
		t.Error("expected api:read not to cover writable leaves")
	}
	if !catalog.Covers(RootWriteIdentifier, writeTarget) {
		t.Error("expected api:write to cover writable leaves")
	}
	if !catalog.Covers("api:iam:write", roleCreate) {
		t.Error("expected group write qualifier to cover writable descendants")
	}
	if catalog.Covers("api:portfolio:write", readTarget) {
		t.Error("expected qualifier on unrelated group not to cover")
	}
	if catalog.Covers("nosuch:read", readTarget) {
		t.Error("expected qualifier on unregistered base to cover nothing")
	}
}

func TestEvaluateAllowsOnSatisfiedParameters(t *testing.T) {
	catalog := mustCatalog(t)
	directives := []ScopeDirective{
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts,
			Parameters: map[string]*string{ParamUserID: strPtr("user-123")}},
	}

	if !catalog.Evaluate(directives, PermissionPortfolioAccounts, map[string]string{ParamUserID: "user-123"}) {
		t.Error("expected matching parameter binding to grant")
	}
	if catalog.Evaluate(directives, PermissionPortfolioAccounts, map[string]string{ParamUserID: "user-999"}) {
		t.Error("expected mismatched parameter binding to deny")
	}
	if catalog.Evaluate(directives, PermissionPortfolioAccounts, nil) {
		t.Error("expected absent request binding to deny")
	}
}

func TestEvaluateTreatsUnresolvedParameterAsDeny(t *testing.T) {
	catalog := mustCatalog(t)

	allowUnresolved := []ScopeDirective{
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts,
			Parameters: map[string]*string{ParamUserID: nil}},
	}
	if catalog.Evaluate(allowUnresolved, PermissionPortfolioAccounts, map[string]string{ParamUserID: "user-123"}) {
		t.Error("expected allow with unresolved parameter never to grant")
	}

	denyUnresolved := []ScopeDirective{
		{Type: DirectiveAllow, Permission: "api:portfolio"},
		{Type: DirectiveDeny, Permission: PermissionPortfolioAccounts,
			Parameters: map[string]*string{ParamUserID: nil}},
	}
	if catalog.Evaluate(denyUnresolved, PermissionPortfolioAccounts, map[string]string{ParamUserID: "user-123"}) {
		t.Error("expected deny with unresolved parameter to still deny")
	}
}

func TestEvaluateDenyConcreteParametersMustMatch(t *testing.T) {
	catalog := mustCatalog(t)

	// A deny scoped to another account does not fire even when its
	// remaining parameter is unresolved.
	mismatched := []ScopeDirective{
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccount,
			Parameters: map[string]*string{ParamUserID: strPtr("user-123"), ParamAccountID: strPtr("acc-1")}},
		{Type: DirectiveDeny, Permission: PermissionPortfolioAccount,
			Parameters: map[string]*string{ParamUserID: strPtr("user-999"), ParamAccountID: nil}},
	}
	request := map[string]string{ParamUserID: "user-123", ParamAccountID: "acc-1"}
	if !catalog.Evaluate(mismatched, PermissionPortfolioAccount, request) {
		t.Error("expected deny scoped to a different subject not to fire")
	}

	// With the concrete parameter matching, the unresolved one widens the
	// deny to every account of that subject.
	matching := []ScopeDirective{
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccount,
			Parameters: map[string]*string{ParamUserID: strPtr("user-123"), ParamAccountID: strPtr("acc-1")}},
		{Type: DirectiveDeny, Permission: PermissionPortfolioAccount,
			Parameters: map[string]*string{ParamUserID: strPtr("user-123"), ParamAccountID: nil}},
	}
	if catalog.Evaluate(matching, PermissionPortfolioAccount, request) {
		t.Error("expected deny with matching concrete parameter to fire")
	}
}

func TestEvaluateDenyBeatsAllow(t *testing.T) {
	catalog := mustCatalog(t)
	directives := []ScopeDirective{
		{Type: DirectiveAllow, Permission: RootIdentifier},
		{Type: DirectiveDeny, Permission: PermissionFavoritesWrite},
	}

	if catalog.Evaluate(directives, PermissionFavoritesWrite, nil) {
		t.Error("expected explicit deny to win over broad allow")
	}
	if !catalog.Evaluate(directives, PermissionFavoritesRead, nil) {
		t.Error("expected sibling permission to remain allowed")
	}
}

func TestEvaluateUnknownPermissionDenies(t *testing.T) {
	catalog := mustCatalog(t)
	directives := []ScopeDirective{{Type: DirectiveAllow, Permission: RootIdentifier}}

	if catalog.Evaluate(directives, "api:nope:missing", nil) {
		t.Error("expected unknown permission path to deny")
	}
}
