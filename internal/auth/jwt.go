// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/templates/storefront-billing/internal/config"
	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/middleware"
)

const (
	jwksRefreshInterval = 15 * time.Minute
	clockSkew           = 30 * time.Second
)

// Verifier validates access tokens minted by the external identity
// provider. Keys come from a JWKS endpoint, or from a shared HS256
// secret when no endpoint is configured.
type Verifier struct {
	jwksURL  string
	secret   []byte
	issuer   string
	audience string

	mu        sync.Mutex
	keySet    jwk.Set
	fetchedAt time.Time
	now       func() time.Time
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{
		jwksURL:  strings.TrimSpace(cfg.JWKSURL),
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
}

func (v *Verifier) Configured() bool {
	return v.jwksURL != "" || len(v.secret) > 0
}

func (v *Verifier) VerifyAccessToken(
	ctx context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	keyOpt, err := v.keyOption(ctx)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParseOption{
		keyOpt,
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(clockSkew),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenInvalid,
		)
	}

	var email string
	//nolint:errcheck // email is optional
	_ = token.Get("email", &email)

	return &middleware.AccessTokenClaims{
		UserID: subject,
		Email:  email,
		Role:   roleClaim(token),
	}, nil
}

// roleClaim prefers app_metadata.role over the top-level role claim.
func roleClaim(token jwt.Token) string {
	var appMeta map[string]any
	if err := token.Get("app_metadata", &appMeta); err == nil {
		if role, ok := appMeta["role"].(string); ok && role != "" {
			return role
		}
	}

	var role string
	if err := token.Get("role", &role); err == nil {
		return role
	}
	return ""
}

func (v *Verifier) keyOption(ctx context.Context) (jwt.ParseOption, error) {
	if v.jwksURL == "" {
		if len(v.secret) == 0 {
			return nil, fmt.Errorf(
				"verify token: no verification key configured: %w",
				core.ErrTokenInvalid,
			)
		}
		return jwt.WithKey(jwa.HS256(), v.secret), nil
	}

	set, err := v.keys(ctx)
	if err != nil {
		return nil, err
	}
	return jwt.WithKeySet(set), nil
}

func (v *Verifier) keys(ctx context.Context) (jwk.Set, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keySet != nil && v.now().Sub(v.fetchedAt) < jwksRefreshInterval {
		return v.keySet, nil
	}

	set, err := jwk.Fetch(ctx, v.jwksURL)
	if err != nil {
		if v.keySet != nil {
			return v.keySet, nil
		}
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}

	v.keySet = set
	v.fetchedAt = v.now()
	return set, nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}
