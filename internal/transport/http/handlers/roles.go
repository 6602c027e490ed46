package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/transport/http/middleware"
	"github.com/arklim/social-platform-authz/internal/usecase"
)

// RoleHandler exposes role administration endpoints.
type RoleHandler struct {
	roles *usecase.RoleService
}

// NewRoleHandler constructs a role handler.
func NewRoleHandler(roles *usecase.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// ListRoles godoc
// @Summary List roles
// @Description Returns every role, built-in roles included.
// @Tags Roles
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} RoleListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list roles"))
		return
	}

	payload := make([]RolePayload, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, toRolePayload(role))
	}

	c.JSON(http.StatusOK, RoleListResponse{Roles: payload})
}

// GetRole godoc
// @Summary Get a role by code
// @Description Returns a single role addressed by its case-insensitive code.
// @Tags Roles
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param code path string true "Role code"
// @Success 200 {object} RolePayload
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{code} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role code is required"))
		return
	}

	role, err := h.roles.GetByCode(c.Request.Context(), code)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to load role")
		return
	}

	c.JSON(http.StatusOK, toRolePayload(*role))
}

// CreateRole godoc
// @Summary Create a new role
// @Description Creates a role with an optional initial set of scope templates.
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body RoleCreateRequest true "Role create request"
// @Success 201 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || actorID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req RoleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	descriptor := usecase.RoleDescriptor{
		Code:           strings.TrimSpace(req.Code),
		Name:           strings.TrimSpace(req.Name),
		ScopeTemplates: toTemplates(req.ScopeTemplates),
	}
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed != "" {
			descCopy := trimmed
			descriptor.Description = &descCopy
		}
	}

	role, err := h.roles.CreateRole(c.Request.Context(), actorID, descriptor)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleValidation, Status: http.StatusBadRequest, Message: "invalid role descriptor"},
			{Err: usecase.ErrRoleCodeReserved, Status: http.StatusConflict, Message: "role code is reserved"},
			{Err: usecase.ErrRoleCodeTaken, Status: http.StatusConflict, Message: "role code already exists"},
		}, http.StatusInternalServerError, "failed to create role")
		return
	}

	c.JSON(http.StatusCreated, toRolePayload(*role))
}

// UpdateRoleMetadata godoc
// @Summary Update role name and description
// @Description Updates mutable role metadata. The role code never changes.
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param code path string true "Role code"
// @Param request body RoleUpdateMetadataRequest true "Metadata update request"
// @Success 200 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{code} [put]
func (h *RoleHandler) UpdateRoleMetadata(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || actorID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	role, ok := h.resolveRole(c)
	if !ok {
		return
	}

	var req RoleUpdateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid metadata payload"))
		return
	}

	updated, err := h.roles.UpdateMetadata(c.Request.Context(), actorID, role.ID, strings.TrimSpace(req.Name), req.Description, req.Revision)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleValidation, Status: http.StatusBadRequest, Message: "invalid metadata payload"},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrSystemRole, Status: http.StatusForbidden, Message: "system roles cannot be modified"},
			{Err: usecase.ErrRevisionMismatch, Status: http.StatusConflict, Message: "role was modified concurrently"},
		}, http.StatusInternalServerError, "failed to update role")
		return
	}

	c.JSON(http.StatusOK, toRolePayload(*updated))
}

// ReplaceScopeTemplates godoc
// @Summary Replace a role's scope templates
// @Description Replaces the full scope template set of a role; templates are never patched individually.
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param code path string true "Role code"
// @Param request body RoleReplaceTemplatesRequest true "Template replacement request"
// @Success 200 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{code}/scope-templates [put]
func (h *RoleHandler) ReplaceScopeTemplates(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || actorID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	role, ok := h.resolveRole(c)
	if !ok {
		return
	}

	var req RoleReplaceTemplatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid template payload"))
		return
	}

	updated, err := h.roles.ReplaceScopeTemplates(c.Request.Context(), actorID, role.ID, toTemplates(req.ScopeTemplates), req.Revision)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleValidation, Status: http.StatusBadRequest, Message: "invalid scope templates"},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrSystemRole, Status: http.StatusForbidden, Message: "system roles cannot be modified"},
			{Err: usecase.ErrRevisionMismatch, Status: http.StatusConflict, Message: "role was modified concurrently"},
		}, http.StatusInternalServerError, "failed to replace scope templates")
		return
	}

	c.JSON(http.StatusOK, toRolePayload(*updated))
}

// DeleteRole godoc
// @Summary Delete a role
// @Description Removes a role. Deleting an absent role is a no-op; system roles are refused.
// @Tags Roles
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param code path string true "Role code"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{code} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || actorID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role code is required"))
		return
	}

	role, err := h.roles.GetByCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, usecase.ErrRoleNotFound) {
			// Absent roles delete as a no-op.
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load role"))
		return
	}

	if _, err := h.roles.DeleteRole(c.Request.Context(), actorID, role.ID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSystemRole, Status: http.StatusForbidden, Message: "system roles cannot be deleted"},
		}, http.StatusInternalServerError, "failed to delete role")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *RoleHandler) resolveRole(c *gin.Context) (*domain.Role, bool) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role code is required"))
		return nil, false
	}

	role, err := h.roles.GetByCode(c.Request.Context(), code)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to load role")
		return nil, false
	}

	return role, true
}
