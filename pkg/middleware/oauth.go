package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"shortener/pkg/logging"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
)

type contextKey string

const (
	subKey     contextKey = "sub"
	emailKey   contextKey = "email"
	scopeKey   contextKey = "scope"
	ownerIDKey contextKey = "owner_id"
)

type OAuthConfig struct {
	IssuerURL string
	Audience  string
}

// OAuthMiddleware authenticates bearer tokens issued by the identity
// provider and puts the caller's owner ID into the request context.
type OAuthMiddleware struct {
	verifier *oidc.IDTokenVerifier
	audience string
	logger   *logging.Logger
}

type AuthClaims struct {
	Sub    string   `json:"sub"`
	Email  string   `json:"email"`
	Scope  string   `json:"scope"`
	Groups []string `json:"groups,omitempty"`
}

func NewOAuthMiddleware(ctx context.Context, config OAuthConfig, logger *logging.Logger) (*OAuthMiddleware, error) {
	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: config.Audience,
	})
	return newOAuthMiddleware(verifier, config.Audience, logger), nil
}

func newOAuthMiddleware(verifier *oidc.IDTokenVerifier, audience string, logger *logging.Logger) *OAuthMiddleware {
	if logger == nil {
		logger = logging.Discard()
	}
	return &OAuthMiddleware{verifier: verifier, audience: audience, logger: logger}
}

func (m *OAuthMiddleware) Authenticate(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := m.verifier.Verify(r.Context(), tokenString)
			if err != nil {
				m.logger.Warn(r.Context(), "token verification failed", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			var claims AuthClaims
			if err := token.Claims(&claims); err != nil {
				http.Error(w, "failed to extract claims", http.StatusUnauthorized)
				return
			}

			if !hasAudience(token.Audience, m.audience) {
				http.Error(w, "invalid audience", http.StatusUnauthorized)
				return
			}

			if !hasScopes(claims.Scope, requiredScopes) {
				m.logger.LogAuthEvent(r.Context(), "insufficient_scope", claims.Sub, false)
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}

			ownerID, err := uuid.Parse(claims.Sub)
			if err != nil {
				m.logger.LogAuthEvent(r.Context(), "invalid_subject", claims.Sub, false)
				http.Error(w, "token subject is not a valid owner id", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, subKey, claims.Sub)
			ctx = context.WithValue(ctx, emailKey, claims.Email)
			ctx = context.WithValue(ctx, scopeKey, claims.Scope)
			ctx = WithOwnerID(ctx, ownerID)
			m.logger.LogAuthEvent(ctx, "authenticated", claims.Sub, true)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TrustedOwnerHeader reads the owner ID from a header set by an
// authenticating gateway in front of the service. It must only be used
// when that gateway strips the header from client requests.
func TrustedOwnerHeader(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(header)))
			if err != nil || ownerID == uuid.Nil {
				http.Error(w, "missing or invalid owner identity", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
		})
	}
}

func hasAudience(audiences []string, expected string) bool {
	if expected == "" {
		return true
	}
	for _, a := range audiences {
		if a == expected {
			return true
		}
	}
	return false
}

func hasScopes(tokenScopes string, requiredScopes []string) bool {
	scopeMap := make(map[string]bool)
	for _, s := range strings.Fields(tokenScopes) {
		scopeMap[s] = true
	}

	for _, required := range requiredScopes {
		if !scopeMap[required] {
			return false
		}
	}
	return true
}

// WithOwnerID returns a copy of ctx carrying the authenticated owner.
func WithOwnerID(ctx context.Context, ownerID uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

func GetSubFromContext(ctx context.Context) string {
	if sub, ok := ctx.Value(subKey).(string); ok {
		return sub
	}
	return ""
}

func GetEmailFromContext(ctx context.Context) string {
	if email, ok := ctx.Value(emailKey).(string); ok {
		return email
	}
	return ""
}

func GetScopeFromContext(ctx context.Context) string {
	if scope, ok := ctx.Value(scopeKey).(string); ok {
		return scope
	}
	return ""
}

func GetOwnerIDFromContext(ctx context.Context) uuid.UUID {
	if ownerID, ok := ctx.Value(ownerIDKey).(uuid.UUID); ok {
		return ownerID
	}
	return uuid.Nil
}
