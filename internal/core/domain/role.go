package domain

import "strings"

// System-reserved role codes. They exist even on an empty store and cannot be
// claimed or deleted through the public API.
const (
	SystemRoleAdmin = "admin"
	SystemRoleUser  = "user"
)

// Role is a named bundle of scope templates. Code is the immutable,
// case-insensitive business key; Revision guards concurrent writes.
type Role struct {
	ID             string
	Code           string
	Name           string
	Description    *string
	IsSystem       bool
	Revision       int64
	ScopeTemplates []ScopeTemplate
}

// NormalizeRoleCode lowers and trims a role code for case-insensitive
// comparison and storage.
func NormalizeRoleCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// IsReservedRoleCode reports whether the code collides with a built-in role.
func IsReservedRoleCode(code string) bool {
	switch NormalizeRoleCode(code) {
	case SystemRoleAdmin, SystemRoleUser:
		return true
	default:
		return false
	}
}

// BuiltInRoles returns the static roles synthesized into every listing. The
// admin role covers the whole catalog; the user role reads everything and may
// modify its own favorites.
func BuiltInRoles() []Role {
	adminDesc := "Full access to every permission"
	userDesc := "Read access plus favorites management"
	return []Role{
		{
			ID:          "system-" + SystemRoleAdmin,
			Code:        SystemRoleAdmin,
			Name:        "Administrator",
			Description: &adminDesc,
			IsSystem:    true,
			ScopeTemplates: []ScopeTemplate{
				{Type: DirectiveAllow, Permission: RootIdentifier},
			},
		},
		{
			ID:          "system-" + SystemRoleUser,
			Code:        SystemRoleUser,
			Name:        "User",
			Description: &userDesc,
			IsSystem:    true,
			ScopeTemplates: []ScopeTemplate{
				{Type: DirectiveAllow, Permission: RootReadIdentifier},
				{Type: DirectiveAllow, Permission: PermissionFavoritesWrite},
			},
		},
	}
}

// DedupeScopeTemplates collapses structurally identical templates while
// preserving first-seen order. Templates with placeholders stay distinct from
// their expansions; deduplication here is template-level only.
func DedupeScopeTemplates(templates []ScopeTemplate) []ScopeTemplate {
	if len(templates) == 0 {
		return nil
	}
	out := make([]ScopeTemplate, 0, len(templates))
	for _, candidate := range templates {
		duplicate := false
		for _, kept := range out {
			if kept.Equal(candidate) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, candidate)
		}
	}
	return out
}
