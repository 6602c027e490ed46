package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/infra/config"
	"github.com/arklim/social-platform-authz/internal/infra/security"
)

var (
	// ErrInvalidAccessToken indicates a token that failed validation, including
	// a malformed permission claim. Such tokens grant nothing.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates a token past its expiry.
	ErrExpiredAccessToken = errors.New("access token expired")
)

// TokenService owns the shape of permission claims. Signing and key handling
// delegate to the JWT manager; the effective directive set comes from the
// permission service.
type TokenService struct {
	cfg         *config.AppConfig
	jwtManager  *security.JWTManager
	keyProvider security.KeyProvider
	signingKID  string
	permissions *PermissionService
}

// NewTokenService constructs a TokenService. The signing kid is resolved from
// the key provider when it exposes one.
func NewTokenService(cfg *config.AppConfig, jwtManager *security.JWTManager, keyProvider security.KeyProvider, permissions *PermissionService) (*TokenService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if jwtManager == nil {
		return nil, fmt.Errorf("jwt manager is required")
	}

	kid := "v1"
	if active, ok := keyProvider.(interface{ ActiveKeyID() string }); ok {
		if candidate := strings.TrimSpace(active.ActiveKeyID()); candidate != "" {
			kid = candidate
		}
	}

	return &TokenService{
		cfg:         cfg,
		jwtManager:  jwtManager,
		keyProvider: keyProvider,
		signingKID:  kid,
		permissions: permissions,
	}, nil
}

// IssueAccessToken resolves the user's effective permissions and embeds them
// as the prm claim of a signed RS256 access token.
func (s *TokenService) IssueAccessToken(ctx context.Context, userID string) (string, *security.AccessTokenClaims, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil, ErrSubjectRequired
	}

	directives, err := s.permissions.EffectivePermissions(ctx, userID)
	if err != nil {
		return "", nil, fmt.Errorf("resolve effective permissions: %w", err)
	}

	ttl := s.cfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	claims, err := security.NewAccessTokenClaims(security.AccessTokenOptions{
		UserID:      userID,
		Subject:     userID,
		Permissions: domain.EncodeDirectives(directives),
		Issuer:      s.cfg.App.Name,
		Audience:    []string{s.cfg.App.Name},
		TTL:         ttl,
	})
	if err != nil {
		return "", nil, fmt.Errorf("build access token claims: %w", err)
	}

	signed, err := s.jwtManager.SignAccessToken(s.signingKID, claims)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// ParseAccessToken validates the JWT and returns its claims.
func (s *TokenService) ParseAccessToken(ctx context.Context, token string) (*security.AccessTokenClaims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidAccessToken
	}

	claims := &security.AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid header not found")
		}

		return s.jwtManager.GetVerificationKey(kid)
	}, jwt.WithIssuer(s.cfg.App.Name), jwt.WithAudience(s.cfg.App.Name))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

// DirectivesFromClaims decodes the prm claim back into scope directives.
// A malformed or truncated claim fails the whole decode so authorization can
// never be partially granted from a damaged token.
func (s *TokenService) DirectivesFromClaims(claims *security.AccessTokenClaims) ([]domain.ScopeDirective, error) {
	if claims == nil {
		return nil, ErrInvalidAccessToken
	}
	directives, err := domain.DecodeDirectives(claims.Permissions)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err)
	}
	return directives, nil
}
