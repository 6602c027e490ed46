package domain

import (
	"errors"
	"reflect"
	"testing"
)

func strPtr(s string) *string {
	return &s
}

func TestScopeTemplateExpandLiteralAndPlaceholder(t *testing.T) {
	template := ScopeTemplate{
		Type:       DirectiveAllow,
		Permission: PermissionPortfolioAccounts,
		Parameters: map[string]string{
			ParamUserID:    "{userId}",
			ParamAccountID: "acct-7",
		},
	}

	directive := template.Expand(map[string]string{"userId": "user-123"})

	if directive.Type != DirectiveAllow {
		t.Fatalf("expected allow directive, got %s", directive.Type)
	}
	if got := directive.Parameters[ParamUserID]; got == nil || *got != "user-123" {
		t.Errorf("expected userId resolved to user-123, got %v", got)
	}
	if got := directive.Parameters[ParamAccountID]; got == nil || *got != "acct-7" {
		t.Errorf("expected literal acct-7 passed through, got %v", got)
	}
}

func TestScopeTemplateExpandMissingBindingYieldsNil(t *testing.T) {
	template := ScopeTemplate{
		Type:       DirectiveAllow,
		Permission: PermissionPortfolioAccounts,
		Parameters: map[string]string{ParamUserID: "{userId}"},
	}

	directive := template.Expand(nil)

	value, ok := directive.Parameters[ParamUserID]
	if !ok {
		t.Fatal("expected parameter entry to be present")
	}
	if value != nil {
		t.Fatalf("expected unresolved parameter to be nil, got %q", *value)
	}
}

func TestPlaceholderName(t *testing.T) {
	cases := []struct {
		value string
		name  string
		ok    bool
	}{
		{"{userId}", "userId", true},
		{"user-123", "", false},
		{"{}", "", false},
		{"{a{b}", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		name, ok := PlaceholderName(tc.value)
		if ok != tc.ok || name != tc.name {
			t.Errorf("PlaceholderName(%q) = (%q, %v), want (%q, %v)", tc.value, name, ok, tc.name, tc.ok)
		}
	}
}

func TestExpandToDirectivesIsIdempotentAndOrdered(t *testing.T) {
	templates := []ScopeTemplate{
		{Type: DirectiveDeny, Permission: PermissionFavoritesWrite},
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts, Parameters: map[string]string{ParamUserID: "{userId}"}},
		{Type: DirectiveAllow, Permission: PermissionFavoritesRead},
	}
	values := map[string]string{"userId": "user-123"}

	first := EncodeDirectives(ExpandToDirectives(templates, values))
	second := EncodeDirectives(ExpandToDirectives(templates, values))

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output across runs: %v vs %v", first, second)
	}

	for i := 1; i < len(first); i++ {
		if first[i-1] >= first[i] {
			t.Fatalf("expected strictly ascending ordinal order, got %v", first)
		}
	}
}

func TestExpandToDirectivesDeduplicates(t *testing.T) {
	templates := []ScopeTemplate{
		{Type: DirectiveAllow, Permission: PermissionFavoritesRead},
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts, Parameters: map[string]string{ParamUserID: "{userId}"}},
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts, Parameters: map[string]string{ParamUserID: "user-123"}},
	}

	directives := ExpandToDirectives(templates, map[string]string{"userId": "user-123"})

	if len(directives) != 2 {
		t.Fatalf("expected structurally identical expansions to collapse, got %d directives: %v",
			len(directives), EncodeDirectives(directives))
	}
}

func TestDirectiveStringRoundTrip(t *testing.T) {
	directives := []ScopeDirective{
		{Type: DirectiveAllow, Permission: PermissionFavoritesRead},
		{Type: DirectiveDeny, Permission: PermissionFavoritesWrite},
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts, Parameters: map[string]*string{
			ParamUserID: strPtr("user 1&2=3"),
		}},
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts, Parameters: map[string]*string{
			ParamUserID: nil,
		}},
		{Type: DirectiveAllow, Permission: PermissionPortfolioAccounts, Parameters: map[string]*string{
			ParamUserID: strPtr(""),
		}},
	}

	for _, directive := range directives {
		parsed, err := ParseDirective(directive.String())
		if err != nil {
			t.Fatalf("parse %q: %v", directive.String(), err)
		}
		if !parsed.Equal(directive) {
			t.Errorf("round trip mismatch: %q became %q", directive.String(), parsed.String())
		}
	}
}

func TestParseDirectiveRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"api:favorites:read",
		"*api:favorites:read",
		"+",
		"+?userId=1",
		"+api:favorites:read?",
		"+api:favorites:read?userId=1&userId=2",
		"+api:favorites:read?=v",
		"+api:favorites:read?userId=%zz",
		"+api:favor ites",
	}

	for _, encoded := range cases {
		if _, err := ParseDirective(encoded); !errors.Is(err, ErrMalformedDirective) {
			t.Errorf("ParseDirective(%q) expected ErrMalformedDirective, got %v", encoded, err)
		}
	}
}

func TestDecodeDirectivesNeverPartiallyGrants(t *testing.T) {
	encoded := []string{"+api:favorites:read", "bogus"}

	directives, err := DecodeDirectives(encoded)
	if !errors.Is(err, ErrMalformedDirective) {
		t.Fatalf("expected ErrMalformedDirective, got %v", err)
	}
	if directives != nil {
		t.Fatalf("expected no directives on malformed claim, got %v", directives)
	}
}

func TestNilAndEmptyParameterValuesStayDistinct(t *testing.T) {
	unresolved := ScopeDirective{Type: DirectiveAllow, Permission: PermissionFavoritesRead,
		Parameters: map[string]*string{ParamUserID: nil}}
	empty := ScopeDirective{Type: DirectiveAllow, Permission: PermissionFavoritesRead,
		Parameters: map[string]*string{ParamUserID: strPtr("")}}

	if unresolved.Equal(empty) {
		t.Fatal("expected nil and empty parameter values to encode differently")
	}
}
