package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authz/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// ScopeTemplatePayload is the wire form of a role scope template.
type ScopeTemplatePayload struct {
	Type       string            `json:"type" binding:"required"`
	Permission string            `json:"permission" binding:"required"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// RolePayload describes a role returned by the API.
type RolePayload struct {
	ID             string                 `json:"id"`
	Code           string                 `json:"code"`
	Name           string                 `json:"name"`
	Description    *string                `json:"description,omitempty"`
	IsSystem       bool                   `json:"isSystem"`
	Revision       int64                  `json:"revision"`
	ScopeTemplates []ScopeTemplatePayload `json:"scopeTemplates"`
}

// RoleCreateRequest defines the payload for role creation.
type RoleCreateRequest struct {
	Code           string                 `json:"code" binding:"required"`
	Name           string                 `json:"name" binding:"required"`
	Description    *string                `json:"description"`
	ScopeTemplates []ScopeTemplatePayload `json:"scopeTemplates"`
}

// RoleUpdateMetadataRequest carries mutable role metadata together with the
// expected revision for optimistic concurrency.
type RoleUpdateMetadataRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	Revision    int64   `json:"revision"`
}

// RoleReplaceTemplatesRequest fully replaces a role's scope templates.
type RoleReplaceTemplatesRequest struct {
	ScopeTemplates []ScopeTemplatePayload `json:"scopeTemplates"`
	Revision       int64                  `json:"revision"`
}

// RoleListResponse wraps role listings.
type RoleListResponse struct {
	Roles []RolePayload `json:"roles"`
}

// PermissionNodePayload describes one node of the permission catalog tree.
type PermissionNodePayload struct {
	Path        string                  `json:"path"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	IsRead      bool                    `json:"isRead"`
	IsWrite     bool                    `json:"isWrite"`
	Parameters  []string                `json:"parameters,omitempty"`
	Children    []PermissionNodePayload `json:"children,omitempty"`
}

// PermissionCatalogResponse wraps the full catalog tree.
type PermissionCatalogResponse struct {
	Permissions []PermissionNodePayload `json:"permissions"`
}

// GrantPayload describes a direct permission grant.
type GrantPayload struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Permission  string    `json:"permission"`
	IsAllow     bool      `json:"isAllow"`
	Description *string   `json:"description,omitempty"`
	GrantedBy   string    `json:"grantedBy"`
	GrantedAt   time.Time `json:"grantedAt"`
}

// GrantCreateRequest defines the payload for attaching a direct grant.
type GrantCreateRequest struct {
	Permission  string  `json:"permission" binding:"required"`
	IsAllow     *bool   `json:"isAllow" binding:"required"`
	Description *string `json:"description"`
}

// GrantListResponse wraps grant listings.
type GrantListResponse struct {
	Grants []GrantPayload `json:"grants"`
}

// AssignmentPayload describes a role assignment with its parameter bindings.
type AssignmentPayload struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	RoleCode        string            `json:"roleCode"`
	ParameterValues map[string]string `json:"parameterValues,omitempty"`
	AssignedBy      string            `json:"assignedBy"`
	AssignedAt      time.Time         `json:"assignedAt"`
}

// AssignmentCreateRequest defines the payload for assigning a role.
type AssignmentCreateRequest struct {
	RoleCode        string            `json:"roleCode" binding:"required"`
	ParameterValues map[string]string `json:"parameterValues"`
}

// AssignmentListResponse wraps assignment listings.
type AssignmentListResponse struct {
	Assignments []AssignmentPayload `json:"assignments"`
}

// EffectivePermissionsResponse carries the resolved directive set of a subject
// in canonical encoded form.
type EffectivePermissionsResponse struct {
	UserID     string   `json:"userId"`
	Directives []string `json:"directives"`
}

// PermissionCheckRequest asks whether a subject may act on a permission.
type PermissionCheckRequest struct {
	Permission string            `json:"permission" binding:"required"`
	Parameters map[string]string `json:"parameters"`
}

// PermissionCheckResponse reports the outcome of an authorization check.
type PermissionCheckResponse struct {
	UserID     string `json:"userId"`
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// TokenIssueRequest defines the payload for access token issuance.
type TokenIssueRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// TokenIssueResponse contains an issued access token.
type TokenIssueResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// TokenIntrospectRequest defines the payload for token introspection.
type TokenIntrospectRequest struct {
	Token string `json:"token" binding:"required"`
}

// TokenIntrospectResponse reports the claims of a valid token.
type TokenIntrospectResponse struct {
	Active     bool      `json:"active"`
	UserID     string    `json:"userId,omitempty"`
	Directives []string  `json:"directives,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}

// HealthResponse describes the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse aggregates dependency checks for the readiness endpoint.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// JWKSResponse documents the JWKS payload shape.
type JWKSResponse struct {
	Keys []map[string]string `json:"keys"`
}

func toRolePayload(role domain.Role) RolePayload {
	templates := make([]ScopeTemplatePayload, 0, len(role.ScopeTemplates))
	for _, template := range role.ScopeTemplates {
		templates = append(templates, ScopeTemplatePayload{
			Type:       string(template.Type),
			Permission: template.Permission,
			Parameters: template.Parameters,
		})
	}

	return RolePayload{
		ID:             role.ID,
		Code:           role.Code,
		Name:           role.Name,
		Description:    role.Description,
		IsSystem:       role.IsSystem,
		Revision:       role.Revision,
		ScopeTemplates: templates,
	}
}

func toGrantPayload(grant domain.UserPermissionGrant) GrantPayload {
	return GrantPayload{
		ID:          grant.ID,
		UserID:      grant.UserID,
		Permission:  grant.Permission,
		IsAllow:     grant.IsAllow,
		Description: grant.Description,
		GrantedBy:   grant.GrantedBy,
		GrantedAt:   grant.GrantedAt,
	}
}

func toAssignmentPayload(assignment domain.UserRoleAssignment) AssignmentPayload {
	return AssignmentPayload{
		ID:              assignment.ID,
		UserID:          assignment.UserID,
		RoleCode:        assignment.RoleCode,
		ParameterValues: assignment.ParameterValues,
		AssignedBy:      assignment.AssignedBy,
		AssignedAt:      assignment.AssignedAt,
	}
}

func toTemplates(payloads []ScopeTemplatePayload) []domain.ScopeTemplate {
	templates := make([]domain.ScopeTemplate, 0, len(payloads))
	for _, payload := range payloads {
		templates = append(templates, domain.ScopeTemplate{
			Type:       domain.DirectiveType(payload.Type),
			Permission: payload.Permission,
			Parameters: payload.Parameters,
		})
	}
	return templates
}

func toPermissionNode(node *domain.Permission) PermissionNodePayload {
	payload := PermissionNodePayload{
		Path:        node.Path,
		Name:        node.Name,
		Description: node.Description,
		IsRead:      node.IsRead,
		IsWrite:     node.IsWrite,
		Parameters:  node.Parameters,
	}
	for _, child := range node.Children {
		payload.Children = append(payload.Children, toPermissionNode(child))
	}
	return payload
}
