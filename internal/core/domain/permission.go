package domain

import (
	"fmt"
	"strings"
)

// PathSeparator delimits segments of a hierarchical permission identifier.
const PathSeparator = ":"

// Access qualifier segments recognised on otherwise unregistered paths.
const (
	readQualifier  = "read"
	writeQualifier = "write"
)

// Well-known permission identifiers of the static catalog.
const (
	RootIdentifier      = "api"
	RootReadIdentifier  = "api:read"
	RootWriteIdentifier = "api:write"

	PermissionRolesList   = "api:iam:roles:list"
	PermissionRolesGet    = "api:iam:roles:get"
	PermissionRolesCreate = "api:iam:roles:create"
	PermissionRolesUpdate = "api:iam:roles:update"
	PermissionRolesDelete = "api:iam:roles:delete"

	PermissionGrantsList   = "api:iam:grants:list"
	PermissionGrantsGrant  = "api:iam:grants:grant"
	PermissionGrantsRevoke = "api:iam:grants:revoke"

	PermissionAssignmentsList   = "api:iam:assignments:list"
	PermissionAssignmentsAssign = "api:iam:assignments:assign"
	PermissionAssignmentsRemove = "api:iam:assignments:remove"

	PermissionCatalogList       = "api:iam:permissions:list"
	PermissionEffectiveRead     = "api:iam:permissions:effective"
	PermissionTokensIntrospect  = "api:iam:tokens:introspect"
	PermissionPortfolioAccounts = "api:portfolio:accounts:list"
	PermissionPortfolioAccount  = "api:portfolio:accounts:get"
	PermissionFavoritesRead     = "api:favorites:read"
	PermissionFavoritesWrite    = "api:favorites:write"
)

// Parameter names understood by parameterized catalog entries.
const (
	ParamUserID    = "userId"
	ParamAccountID = "accountId"
)

// Permission is a node in the static permission catalog. Group nodes carry
// children and cover their whole subtree when referenced by a directive.
type Permission struct {
	Path        string
	Name        string
	Description string
	IsRead      bool
	IsWrite     bool
	Parameters  []string
	Children    []*Permission
}

// IsGroup reports whether the node bundles child permissions.
func (p *Permission) IsGroup() bool {
	return len(p.Children) > 0
}

// Catalog is the immutable, process-wide registry of permission identifiers.
// It is constructed once at startup and injected; it never mutates afterwards.
type Catalog struct {
	roots  []*Permission
	byPath map[string]*Permission
}

// NewCatalog indexes the supplied permission trees. Every node must carry a
// non-empty path, and every child path must extend its parent path by one or
// more segments. Duplicate paths are rejected.
func NewCatalog(roots ...*Permission) (*Catalog, error) {
	c := &Catalog{roots: roots, byPath: make(map[string]*Permission)}
	for _, root := range roots {
		if err := c.index(root, ""); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) index(node *Permission, parentPath string) error {
	if node == nil {
		return fmt.Errorf("catalog: nil permission node")
	}
	path := strings.TrimSpace(node.Path)
	if path == "" {
		return fmt.Errorf("catalog: permission path is required")
	}
	if parentPath != "" && !strings.HasPrefix(path, parentPath+PathSeparator) {
		return fmt.Errorf("catalog: %s does not extend parent %s", path, parentPath)
	}
	if _, exists := c.byPath[path]; exists {
		return fmt.Errorf("catalog: duplicate permission path %s", path)
	}
	c.byPath[path] = node

	for _, child := range node.Children {
		if err := c.index(child, path); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the permission node registered under the given path.
func (c *Catalog) Find(path string) (*Permission, bool) {
	node, ok := c.byPath[strings.TrimSpace(path)]
	return node, ok
}

// List returns every registered node in pre-order.
func (c *Catalog) List() []*Permission {
	out := make([]*Permission, 0, len(c.byPath))
	var visit func(*Permission)
	visit = func(node *Permission) {
		out = append(out, node)
		for _, child := range node.Children {
			visit(child)
		}
	}
	for _, root := range c.roots {
		visit(root)
	}
	return out
}

// Roots returns the top-level permission trees.
func (c *Catalog) Roots() []*Permission {
	return c.roots
}

// Covers reports whether a directive referencing directivePath applies to the
// target permission.
//
// Two forms are understood. A registered path covers itself and, for group
// nodes, every descendant. An unregistered path whose final segment is "read"
// or "write" and whose remainder is a registered group (e.g. "api:read")
// covers the subtree filtered by the target's access flags: the read form
// matches read-only targets, the write form matches writable targets.
// Any other path covers nothing.
func (c *Catalog) Covers(directivePath string, target *Permission) bool {
	if target == nil {
		return false
	}
	directivePath = strings.TrimSpace(directivePath)
	if directivePath == "" {
		return false
	}

	if _, ok := c.byPath[directivePath]; ok {
		return isAncestorOrSelf(directivePath, target.Path)
	}

	base, qualifier, ok := splitAccessQualifier(directivePath)
	if !ok {
		return false
	}
	if _, registered := c.byPath[base]; !registered {
		return false
	}
	if !isAncestorOrSelf(base, target.Path) {
		return false
	}
	switch qualifier {
	case readQualifier:
		return target.IsRead && !target.IsWrite
	case writeQualifier:
		return target.IsWrite
	default:
		return false
	}
}

// Recognizes reports whether the path is a valid directive target: either a
// registered node or an access-qualifier form over a registered base.
func (c *Catalog) Recognizes(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}
	if _, ok := c.byPath[path]; ok {
		return true
	}
	base, _, ok := splitAccessQualifier(path)
	if !ok {
		return false
	}
	_, registered := c.byPath[base]
	return registered
}

func splitAccessQualifier(path string) (base, qualifier string, ok bool) {
	idx := strings.LastIndex(path, PathSeparator)
	if idx <= 0 {
		return "", "", false
	}
	qualifier = path[idx+1:]
	if qualifier != readQualifier && qualifier != writeQualifier {
		return "", "", false
	}
	return path[:idx], qualifier, true
}

func isAncestorOrSelf(ancestor, path string) bool {
	if ancestor == path {
		return true
	}
	return strings.HasPrefix(path, ancestor+PathSeparator)
}

// DefaultCatalog builds the catalog served by this deployment.
func DefaultCatalog() (*Catalog, error) {
	return NewCatalog(&Permission{
		Path:    RootIdentifier,
		Name:    "API",
		IsRead:  true,
		IsWrite: true,
		Children: []*Permission{
			{
				Path:    "api:iam",
				Name:    "Identity & Access Management",
				IsRead:  true,
				IsWrite: true,
				Children: []*Permission{
					{Path: PermissionRolesList, Name: "List roles", IsRead: true},
					{Path: PermissionRolesGet, Name: "Get role", IsRead: true},
					{Path: PermissionRolesCreate, Name: "Create role", IsWrite: true},
					{Path: PermissionRolesUpdate, Name: "Update role", IsWrite: true},
					{Path: PermissionRolesDelete, Name: "Delete role", IsWrite: true},
					{Path: PermissionGrantsList, Name: "List direct grants", IsRead: true, Parameters: []string{ParamUserID}},
					{Path: PermissionGrantsGrant, Name: "Grant permission", IsWrite: true, Parameters: []string{ParamUserID}},
					{Path: PermissionGrantsRevoke, Name: "Revoke grant", IsWrite: true, Parameters: []string{ParamUserID}},
					{Path: PermissionAssignmentsList, Name: "List role assignments", IsRead: true, Parameters: []string{ParamUserID}},
					{Path: PermissionAssignmentsAssign, Name: "Assign role", IsWrite: true, Parameters: []string{ParamUserID}},
					{Path: PermissionAssignmentsRemove, Name: "Remove role assignment", IsWrite: true, Parameters: []string{ParamUserID}},
					{Path: PermissionCatalogList, Name: "List permission catalog", IsRead: true},
					{Path: PermissionEffectiveRead, Name: "View effective permissions", IsRead: true, Parameters: []string{ParamUserID}},
					{Path: PermissionTokensIntrospect, Name: "Introspect tokens", IsRead: true},
				},
			},
			{
				Path:    "api:portfolio",
				Name:    "Portfolio",
				IsRead:  true,
				IsWrite: true,
				Children: []*Permission{
					{Path: PermissionPortfolioAccounts, Name: "List portfolio accounts", IsRead: true, Parameters: []string{ParamUserID}},
					{Path: PermissionPortfolioAccount, Name: "Get portfolio account", IsRead: true, Parameters: []string{ParamUserID, ParamAccountID}},
				},
			},
			{
				Path:    "api:favorites",
				Name:    "Favorites",
				IsRead:  true,
				IsWrite: true,
				Children: []*Permission{
					{Path: PermissionFavoritesRead, Name: "Read favorites", IsRead: true},
					{Path: PermissionFavoritesWrite, Name: "Modify favorites", IsWrite: true},
				},
			},
		},
	})
}
