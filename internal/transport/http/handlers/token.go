package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authz/internal/usecase"
)

// TokenHandler exposes endpoints for access token issuance and introspection.
type TokenHandler struct {
	tokens *usecase.TokenService
}

// NewTokenHandler constructs a token handler.
func NewTokenHandler(tokens *usecase.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// IssueToken godoc
// @Summary Issue an access token
// @Description Resolves the subject's effective permissions and embeds them in a signed JWT.
// @Tags Tokens
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body TokenIssueRequest true "Issue request"
// @Success 200 {object} TokenIssueResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/tokens [post]
func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req TokenIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid token request"))
		return
	}

	signed, claims, err := h.tokens.IssueAccessToken(c.Request.Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSubjectRequired, Status: http.StatusBadRequest, Message: "userId is required"},
		}, http.StatusInternalServerError, "failed to issue access token")
		return
	}

	c.JSON(http.StatusOK, TokenIssueResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
	})
}

// IntrospectToken godoc
// @Summary Introspect an access token
// @Description Validates the token signature and decodes the embedded permission directives.
// @Tags Tokens
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body TokenIntrospectRequest true "Introspection request"
// @Success 200 {object} TokenIntrospectResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/tokens/introspect [post]
func (h *TokenHandler) IntrospectToken(c *gin.Context) {
	var req TokenIntrospectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid introspection request"))
		return
	}

	claims, err := h.tokens.ParseAccessToken(c.Request.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		// Invalid and expired tokens are simply inactive, not errors.
		c.JSON(http.StatusOK, TokenIntrospectResponse{Active: false})
		return
	}

	if _, err := h.tokens.DirectivesFromClaims(claims); err != nil {
		c.JSON(http.StatusOK, TokenIntrospectResponse{Active: false})
		return
	}

	response := TokenIntrospectResponse{
		Active:     true,
		UserID:     claims.UserID,
		Directives: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		response.ExpiresAt = claims.ExpiresAt.Time
	}

	c.JSON(http.StatusOK, response)
}
