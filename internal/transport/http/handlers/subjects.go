package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/transport/http/middleware"
	"github.com/arklim/social-platform-authz/internal/usecase"
)

// SubjectHandler exposes per-subject access administration: direct grants,
// role assignments, and effective permission resolution.
type SubjectHandler struct {
	permissions *usecase.PermissionService
}

// NewSubjectHandler constructs a subject handler.
func NewSubjectHandler(permissions *usecase.PermissionService) *SubjectHandler {
	return &SubjectHandler{permissions: permissions}
}

func subjectID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("userId"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "userId is required"))
		return "", false
	}
	return id, true
}

// ListGrants godoc
// @Summary List direct permission grants
// @Tags Subjects
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param userId path string true "Subject identifier"
// @Success 200 {object} GrantListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subjects/{userId}/grants [get]
func (h *SubjectHandler) ListGrants(c *gin.Context) {
	userID, ok := subjectID(c)
	if !ok {
		return
	}

	grants, err := h.permissions.ListGrants(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list grants"))
		return
	}

	payload := make([]GrantPayload, 0, len(grants))
	for _, grant := range grants {
		payload = append(payload, toGrantPayload(grant))
	}

	c.JSON(http.StatusOK, GrantListResponse{Grants: payload})
}

// AddGrant godoc
// @Summary Attach a direct permission grant or denial
// @Tags Subjects
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param userId path string true "Subject identifier"
// @Param request body GrantCreateRequest true "Grant request"
// @Success 201 {object} GrantPayload
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subjects/{userId}/grants [post]
func (h *SubjectHandler) AddGrant(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || actorID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	userID, ok := subjectID(c)
	if !ok {
		return
	}

	var req GrantCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAllow == nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid grant payload"))
		return
	}

	grant, err := h.permissions.AddGrant(c.Request.Context(), actorID, userID, strings.TrimSpace(req.Permission), *req.IsAllow, req.Description)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUnknownPermission, Status: http.StatusBadRequest, Message: "unknown permission identifier"},
			{Err: usecase.ErrSubjectRequired, Status: http.StatusBadRequest, Message: "userId is required"},
		}, http.StatusInternalServerError, "failed to add grant")
		return
	}

	c.JSON(http.StatusCreated, toGrantPayload(*grant))
}

// RemoveGrant godoc
// @Summary Remove a direct permission grant
// @Tags Subjects
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param userId path string true "Subject identifier"
// @Param grantId path string true "Grant identifier"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subjects/{userId}/grants/{grantId} [delete]
func (h *SubjectHandler) RemoveGrant(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || actorID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	userID, ok := subjectID(c)
	if !ok {
		return
	}

	grantID := strings.TrimSpace(c.Param("grantId"))
	if grantID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "grantId is required"))
		return
	}

	if err := h.permissions.RemoveGrant(c.Request.Context(), actorID, userID, grantID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrGrantNotFound, Status: http.StatusNotFound, Message: "grant not found"},
		}, http.StatusInternalServerError, "failed to remove grant")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListAssignments godoc
// @Summary List role assignments
// @Tags Subjects
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param userId path string true "Subject identifier"
// @Success 200 {object} AssignmentListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subjects/{userId}/roles [get]
func (h *SubjectHandler) ListAssignments(c *gin.Context) {
	userID, ok := subjectID(c)
	if !ok {
		return
	}

	assignments, err := h.permissions.ListRoleAssignments(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list role assignments"))
		return
	}

	payload := make([]AssignmentPayload, 0, len(assignments))
	for _, assignment := range assignments {
		payload = append(payload, toAssignmentPayload(assignment))
	}

	c.JSON(http.StatusOK, AssignmentListResponse{Assignments: payload})
}

// AssignRole godoc
// @Summary Assign a role with parameter bindings
// @Description The same role may be held repeatedly with different bindings.
// @Tags Subjects
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param userId path string true "Subject identifier"
// @Param request body AssignmentCreateRequest true "Assignment request"
// @Success 201 {object} AssignmentPayload
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subjects/{userId}/roles [post]
func (h *SubjectHandler) AssignRole(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || actorID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	userID, ok := subjectID(c)
	if !ok {
		return
	}

	var req AssignmentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid assignment payload"))
		return
	}

	assignment, err := h.permissions.AssignRole(c.Request.Context(), actorID, userID, strings.TrimSpace(req.RoleCode), req.ParameterValues)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUnknownRoleCode, Status: http.StatusBadRequest, Message: "unknown role code"},
			{Err: usecase.ErrSubjectRequired, Status: http.StatusBadRequest, Message: "userId is required"},
		}, http.StatusInternalServerError, "failed to assign role")
		return
	}

	c.JSON(http.StatusCreated, toAssignmentPayload(*assignment))
}

// RemoveAssignment godoc
// @Summary Remove a role assignment
// @Tags Subjects
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param userId path string true "Subject identifier"
// @Param assignmentId path string true "Assignment identifier"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subjects/{userId}/roles/{assignmentId} [delete]
func (h *SubjectHandler) RemoveAssignment(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || actorID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	userID, ok := subjectID(c)
	if !ok {
		return
	}

	assignmentID := strings.TrimSpace(c.Param("assignmentId"))
	if assignmentID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "assignmentId is required"))
		return
	}

	if err := h.permissions.RemoveRoleAssignment(c.Request.Context(), actorID, userID, assignmentID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAssignmentNotFound, Status: http.StatusNotFound, Message: "role assignment not found"},
		}, http.StatusInternalServerError, "failed to remove role assignment")
		return
	}

	c.Status(http.StatusNoContent)
}

// EffectivePermissions godoc
// @Summary Resolve a subject's effective permissions
// @Description Combines direct grants with expanded role assignments; deny directives are listed alongside allows.
// @Tags Subjects
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param userId path string true "Subject identifier"
// @Success 200 {object} EffectivePermissionsResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subjects/{userId}/effective [get]
func (h *SubjectHandler) EffectivePermissions(c *gin.Context) {
	userID, ok := subjectID(c)
	if !ok {
		return
	}

	directives, err := h.permissions.EffectivePermissions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve effective permissions"))
		return
	}

	c.JSON(http.StatusOK, EffectivePermissionsResponse{
		UserID:     userID,
		Directives: domain.EncodeDirectives(directives),
	})
}

// CheckPermission godoc
// @Summary Check a subject against a permission
// @Description Evaluates the subject's effective directives against a permission path and parameters. Deny always wins.
// @Tags Subjects
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param userId path string true "Subject identifier"
// @Param request body PermissionCheckRequest true "Check request"
// @Success 200 {object} PermissionCheckResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subjects/{userId}/check [post]
func (h *SubjectHandler) CheckPermission(c *gin.Context) {
	userID, ok := subjectID(c)
	if !ok {
		return
	}

	var req PermissionCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid check payload"))
		return
	}

	allowed, err := h.permissions.Check(c.Request.Context(), userID, strings.TrimSpace(req.Permission), req.Parameters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to evaluate permission"))
		return
	}

	c.JSON(http.StatusOK, PermissionCheckResponse{
		UserID:     userID,
		Permission: strings.TrimSpace(req.Permission),
		Allowed:    allowed,
	})
}
