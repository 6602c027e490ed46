package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authz/internal/core/domain"
)

// PermissionHandler exposes the static permission catalog.
type PermissionHandler struct {
	catalog *domain.Catalog
}

// NewPermissionHandler constructs a catalog handler.
func NewPermissionHandler(catalog *domain.Catalog) *PermissionHandler {
	return &PermissionHandler{catalog: catalog}
}

// ListCatalog godoc
// @Summary List the permission catalog
// @Description Returns the full permission hierarchy. The catalog is static and identical for every caller.
// @Tags Permissions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} PermissionCatalogResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/permissions [get]
func (h *PermissionHandler) ListCatalog(c *gin.Context) {
	roots := h.catalog.Roots()
	payload := make([]PermissionNodePayload, 0, len(roots))
	for _, root := range roots {
		payload = append(payload, toPermissionNode(root))
	}

	c.JSON(http.StatusOK, PermissionCatalogResponse{Permissions: payload})
}
