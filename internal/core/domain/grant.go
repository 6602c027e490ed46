package domain

import (
	"sort"
	"time"
)

// UserPermissionGrant is a direct, non-role grant or explicit denial attached
// to a user.
type UserPermissionGrant struct {
	ID          string
	UserID      string
	Permission  string
	IsAllow     bool
	Description *string
	GrantedBy   string
	GrantedAt   time.Time
}

// Directive translates the grant into its parameter-free directive form.
func (g UserPermissionGrant) Directive() ScopeDirective {
	directiveType := DirectiveDeny
	if g.IsAllow {
		directiveType = DirectiveAllow
	}
	return ScopeDirective{Type: directiveType, Permission: g.Permission}
}

// UserRoleAssignment attaches a role code to a user together with the
// parameter bindings for that holding. The same code may be held multiple
// times with different bindings.
type UserRoleAssignment struct {
	ID              string
	UserID          string
	RoleCode        string
	ParameterValues map[string]string
	AssignedBy      string
	AssignedAt      time.Time
}

// UserRoleResolution pairs a resolved role definition with the bindings of
// one assignment. Computed per request, never persisted.
type UserRoleResolution struct {
	Role            Role
	ParameterValues map[string]string
}

// BuildEffectivePermissions combines direct grants with resolved role
// assignments into the final directive set. Each resolution expands against
// its own bindings, so one role code can yield different directives per
// assignment. An explicit deny beats an allow for the same
// (permission, parameters) pair regardless of source or ordering. Output is
// deduplicated and ordered by the canonical string form.
func BuildEffectivePermissions(grants []UserPermissionGrant, resolutions []UserRoleResolution) []ScopeDirective {
	bySubject := make(map[string]ScopeDirective)

	record := func(directive ScopeDirective) {
		key := directive.subjectKey()
		if existing, ok := bySubject[key]; ok && existing.IsDeny() {
			return
		}
		bySubject[key] = directive
	}

	for _, resolution := range resolutions {
		for _, directive := range ExpandToDirectives(resolution.Role.ScopeTemplates, resolution.ParameterValues) {
			record(directive)
		}
	}
	for _, grant := range grants {
		record(grant.Directive())
	}

	directives := make([]ScopeDirective, 0, len(bySubject))
	for _, directive := range bySubject {
		directives = append(directives, directive)
	}
	sort.Slice(directives, func(i, j int) bool {
		return directives[i].String() < directives[j].String()
	})
	return directives
}
