package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/infra/config"
	"github.com/arklim/social-platform-authz/internal/infra/security"
	"github.com/arklim/social-platform-authz/internal/usecase"
)

type staticKeyProvider struct {
	key *rsa.PrivateKey
	kid string
}

func (p *staticKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return p.key, nil
}

func (p *staticKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid != p.kid {
		return nil, security.ErrKeyNotFound
	}
	return &p.key.PublicKey, nil
}

func (p *staticKeyProvider) ActiveKeyID() string {
	return p.kid
}

type authFixture struct {
	tokens  *usecase.TokenService
	manager *security.JWTManager
	catalog *domain.Catalog
	kid     string
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	provider := &staticKeyProvider{key: key, kid: "test-key"}
	manager := security.NewJWTManager(provider)

	cfg := &config.AppConfig{
		App: config.AppSettings{Name: "authz-service"},
		JWT: config.JWTSettings{AccessTokenTTL: time.Minute},
	}

	tokens, err := usecase.NewTokenService(cfg, manager, provider, nil)
	if err != nil {
		t.Fatalf("init token service: %v", err)
	}

	catalog, err := domain.DefaultCatalog()
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}

	return &authFixture{tokens: tokens, manager: manager, catalog: catalog, kid: provider.kid}
}

func (f *authFixture) signToken(t *testing.T, userID string, permissions []string) string {
	t.Helper()

	claims, err := security.NewAccessTokenClaims(security.AccessTokenOptions{
		UserID:      userID,
		Subject:     userID,
		Permissions: permissions,
		Issuer:      "authz-service",
		Audience:    []string{"authz-service"},
		TTL:         time.Minute,
	})
	if err != nil {
		t.Fatalf("build claims: %v", err)
	}

	signed, err := f.manager.SignAccessToken(f.kid, claims)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRequireAuthStoresIdentityAndDirectives(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newAuthFixture(t)

	var gotUserID string
	var gotDirectives []domain.ScopeDirective

	router := gin.New()
	router.GET("/protected", RequireAuth(fixture.tokens), func(c *gin.Context) {
		gotUserID, _ = GetAuthenticatedUserID(c)
		gotDirectives, _ = AuthenticatedDirectives(c)
		c.Status(http.StatusOK)
	})

	token := fixture.signToken(t, "user-1", []string{"+api:iam:roles:list", "-api:iam:roles:delete"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotUserID != "user-1" {
		t.Fatalf("expected user-1, got %q", gotUserID)
	}
	if len(gotDirectives) != 2 {
		t.Fatalf("expected 2 directives, got %d", len(gotDirectives))
	}
}

func TestRequireAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newAuthFixture(t)

	router := gin.New()
	router.GET("/protected", RequireAuth(fixture.tokens), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", rr.Code)
			}
		})
	}
}

func TestRequireAuthRejectsMalformedPermissionClaim(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newAuthFixture(t)

	router := gin.New()
	router.GET("/protected", RequireAuth(fixture.tokens), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	token := fixture.signToken(t, "user-1", []string{"+api:iam:roles:list", "no-sign-prefix"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestRequirePermissionEnforcesCatalogDecision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newAuthFixture(t)

	router := gin.New()
	router.GET("/roles",
		RequireAuth(fixture.tokens),
		RequirePermission(fixture.catalog, domain.PermissionRolesList, nil),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	allowed := fixture.signToken(t, "user-1", []string{"+api:iam:roles:list"})
	denied := fixture.signToken(t, "user-2", []string{"+api:iam:grants:list"})

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.Header.Set("Authorization", "Bearer "+allowed)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for holder, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.Header.Set("Authorization", "Bearer "+denied)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for non-holder, got %d", rr.Code)
	}
}

func TestRequirePermissionBindsRouteParameters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fixture := newAuthFixture(t)

	bindings := map[string]string{domain.ParamUserID: "userId"}

	router := gin.New()
	router.GET("/subjects/:userId/grants",
		RequireAuth(fixture.tokens),
		RequirePermission(fixture.catalog, domain.PermissionGrantsList, bindings),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	token := fixture.signToken(t, "user-1", []string{"+api:iam:grants:list?userId=user-1"})

	req := httptest.NewRequest(http.MethodGet, "/subjects/user-1/grants", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for own subject, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/subjects/user-2/grants", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for other subject, got %d", rr.Code)
	}
}
