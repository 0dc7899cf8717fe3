package middleware

import (
	"net/http"
	"strings"

	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/services/session"
	"github.com/upb/academic-records/utils"
	"go.uber.org/zap"
)

// AuthTokenHeader carries the opaque session token issued at sign-in
const AuthTokenHeader = "X-Auth-Token"

// SessionResolver maps a session token to its principal
type SessionResolver interface {
	Resolve(token string) (authz.Principal, bool)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	resolver SessionResolver
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(resolver SessionResolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		logger:   logger,
	}
}

// Authenticate attaches the principal behind X-Auth-Token to the request
// context. Requests without a valid token continue anonymously; this
// middleware never writes a response.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := TokenFromRequest(r)
		if token == "" {
			m.logger.Debug("anonymous request",
				zap.String("request_id", requestID))
			next.ServeHTTP(w, r)
			return
		}

		principal, ok := m.resolver.Resolve(token)
		if !ok {
			m.logger.Debug("unknown session token, continuing anonymously",
				zap.String("request_id", requestID),
				zap.String("token_fp", session.Fingerprint(token)))
			next.ServeHTTP(w, r)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("email", principal.Email),
			zap.String("role", principal.Role.String()))

		next.ServeHTTP(w, r.WithContext(authz.WithPrincipal(ctx, principal)))
	})
}

// RequireAuthenticated rejects requests without a principal with 401.
// Mount it after Authenticate.
func (m *AuthMiddleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authz.PrincipalFromContext(r.Context()); !ok {
			m.logger.Info("authentication required",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest returns the trimmed X-Auth-Token header value
func TokenFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(AuthTokenHeader))
}
