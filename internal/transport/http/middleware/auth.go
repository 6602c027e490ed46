package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/usecase"
)

// DirectivesKey names the context entry holding the caller's decoded scope
// directives.
const DirectivesKey = "directives"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth validates the Authorization header, decodes the permission
// claim, and stores the caller identity and directives in the request context.
func RequireAuth(tokens *usecase.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		if !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: must start with 'Bearer'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token"))
			return
		}

		claims, err := tokens.ParseAccessToken(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrExpiredAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "access token expired"))
			case errors.Is(err, usecase.ErrInvalidAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		directives, err := tokens.DirectivesFromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid access token"))
			return
		}

		// Store caller information in context
		c.Set(UserIDKey, claims.UserID)
		c.Set("claims", claims)
		c.Set(DirectivesKey, directives)

		// Update request context with user ID
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = claims.UserID
		}

		c.Next()
	}
}

// RequirePermission evaluates the caller's directives against a catalog
// permission. paramBindings maps catalog parameter names to route parameter
// names, so a directive scoped to a specific resource only matches requests
// for that resource.
func RequirePermission(catalog *domain.Catalog, permissionPath string, paramBindings map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		directivesVal, exists := c.Get(DirectivesKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		directives, ok := directivesVal.([]domain.ScopeDirective)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "invalid directives format"))
			return
		}

		var params map[string]string
		if len(paramBindings) > 0 {
			params = make(map[string]string, len(paramBindings))
			for name, routeParam := range paramBindings {
				params[name] = c.Param(routeParam)
			}
		}

		if !catalog.Evaluate(directives, permissionPath, params) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// AuthenticatedDirectives retrieves the decoded directives stored by
// RequireAuth (helper for handlers).
func AuthenticatedDirectives(c *gin.Context) ([]domain.ScopeDirective, bool) {
	directivesVal, exists := c.Get(DirectivesKey)
	if !exists {
		return nil, false
	}

	directives, ok := directivesVal.([]domain.ScopeDirective)
	return directives, ok
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}
