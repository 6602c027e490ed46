package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/infra/config"
	"github.com/arklim/social-platform-authz/internal/infra/security"
	"github.com/arklim/social-platform-authz/internal/transport/http/handlers"
	"github.com/arklim/social-platform-authz/internal/transport/http/middleware"
	"github.com/arklim/social-platform-authz/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Roles       *usecase.RoleService
	Permissions *usecase.PermissionService
	Tokens      *usecase.TokenService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config     *config.AppConfig
	Logger     *zap.Logger
	Services   ServiceSet
	JWTManager *security.JWTManager
	Catalog    *domain.Catalog
	Metrics    *middleware.HTTPMetrics
	Database   DatabaseChecker
	Cache      CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.JWTManager != nil {
		jwksHandler := handlers.NewJWKSHandler(deps.JWTManager)
		r.GET("/.well-known/jwks.json", jwksHandler.Keys)
	}

	api := r.Group("/api/v1")

	if deps.Services.Tokens != nil {
		tokenHandler := handlers.NewTokenHandler(deps.Services.Tokens)
		tokenGroup := api.Group("/tokens")
		tokenGroup.POST("/issue", tokenHandler.IssueToken)
		tokenGroup.POST("/introspect", tokenHandler.IntrospectToken)
	}

	if deps.Services.Tokens == nil || deps.Catalog == nil {
		return r
	}

	authenticated := api.Group("")
	authenticated.Use(middleware.RequireAuth(deps.Services.Tokens))

	guard := func(permission string, bindings map[string]string) gin.HandlerFunc {
		return middleware.RequirePermission(deps.Catalog, permission, bindings)
	}

	if deps.Services.Roles != nil {
		roleHandler := handlers.NewRoleHandler(deps.Services.Roles)
		roles := authenticated.Group("/roles")
		roles.GET("", guard(domain.PermissionRolesList, nil), roleHandler.ListRoles)
		roles.GET("/:code", guard(domain.PermissionRolesGet, nil), roleHandler.GetRole)
		roles.POST("", guard(domain.PermissionRolesCreate, nil), roleHandler.CreateRole)
		roles.PUT("/:code", guard(domain.PermissionRolesUpdate, nil), roleHandler.UpdateRoleMetadata)
		roles.PUT("/:code/scope-templates", guard(domain.PermissionRolesUpdate, nil), roleHandler.ReplaceScopeTemplates)
		roles.DELETE("/:code", guard(domain.PermissionRolesDelete, nil), roleHandler.DeleteRole)
	}

	if deps.Services.Permissions != nil {
		permissionHandler := handlers.NewPermissionHandler(deps.Catalog)
		authenticated.GET("/permissions", guard(domain.PermissionCatalogList, nil), permissionHandler.ListCatalog)

		subjectHandler := handlers.NewSubjectHandler(deps.Services.Permissions)
		subjects := authenticated.Group("/subjects/:userId")

		// Directives parameterized on userId apply only to the subject in
		// the path.
		selfBinding := map[string]string{domain.ParamUserID: "userId"}

		subjects.GET("/grants", guard(domain.PermissionGrantsList, selfBinding), subjectHandler.ListGrants)
		subjects.POST("/grants", guard(domain.PermissionGrantsGrant, selfBinding), subjectHandler.AddGrant)
		subjects.DELETE("/grants/:grantId", guard(domain.PermissionGrantsRevoke, selfBinding), subjectHandler.RemoveGrant)

		subjects.GET("/assignments", guard(domain.PermissionAssignmentsList, selfBinding), subjectHandler.ListAssignments)
		subjects.POST("/assignments", guard(domain.PermissionAssignmentsAssign, selfBinding), subjectHandler.AssignRole)
		subjects.DELETE("/assignments/:assignmentId", guard(domain.PermissionAssignmentsRemove, selfBinding), subjectHandler.RemoveAssignment)

		subjects.GET("/effective-permissions", guard(domain.PermissionEffectiveRead, selfBinding), subjectHandler.EffectivePermissions)
		subjects.POST("/check", guard(domain.PermissionEffectiveRead, selfBinding), subjectHandler.CheckPermission)
	}

	return r
}
