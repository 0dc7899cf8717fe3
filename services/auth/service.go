// Package auth orchestrates sign-in: it verifies a Google credential, resolves
// the user behind it and issues an opaque session token.
package auth

import (
	"context"

	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/google"
	"github.com/upb/academic-records/internal/observability"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/services"
	"github.com/upb/academic-records/services/audit"
	"github.com/upb/academic-records/services/session"
	"go.uber.org/zap"
)

// IdentityVerifier checks an external identity credential.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*google.Identity, error)
}

// UserResolver maps a verified identity to a stored user.
type UserResolver interface {
	ResolveOrCreate(ctx context.Context, email, subjectID, displayName string) (*models.User, error)
}

// Auditor receives sign-in events
type Auditor interface {
	LogLogin(ctx context.Context, user *models.User)
	LogLoginFailed(ctx context.Context, reason string)
	LogLogout(ctx context.Context, actor audit.Actor, sessions int)
}

// LoginResult is returned to the client after a successful sign-in.
type LoginResult struct {
	Token       string      `json:"token"`
	Username    string      `json:"username"`
	DisplayName string      `json:"displayName"`
	Email       string      `json:"email"`
	Role        models.Role `json:"role"`
}

// Service handles login, logout and session resolution.
type Service struct {
	verifier IdentityVerifier
	users    UserResolver
	sessions *session.Store
	auditor  Auditor
	metrics  observability.Metrics
	logger   *zap.Logger
}

// NewService creates a sign-in service. auditor and metrics may be nil.
func NewService(verifier IdentityVerifier, users UserResolver, sessions *session.Store, auditor Auditor, metrics observability.Metrics, logger *zap.Logger) *Service {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		verifier: verifier,
		users:    users,
		sessions: sessions,
		auditor:  auditor,
		metrics:  metrics,
		logger:   logger,
	}
}

// Login exchanges a Google ID token for a session token.
func (s *Service) Login(ctx context.Context, credential string) (*LoginResult, error) {
	logger := observability.RequestLogger(ctx, s.logger)

	identity, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		logger.Info("sign-in rejected", zap.Error(err))
		s.metrics.RecordLogin(observability.LoginRejected)
		if s.auditor != nil {
			s.auditor.LogLoginFailed(ctx, services.GetErrorMessage(err))
		}
		if !services.IsInvalidCredentialError(err) {
			err = services.InvalidCredential("identity verification failed", err)
		}
		return nil, err
	}

	user, err := s.users.ResolveOrCreate(ctx, identity.Email, identity.Subject, identity.Name)
	if err != nil {
		logger.Error("failed to resolve user", zap.String("email", identity.Email), zap.Error(err))
		s.metrics.RecordLogin(observability.LoginError)
		return nil, err
	}

	role := models.ParseRole(user.Role.String())
	token, err := s.sessions.Issue(user.Email, role)
	if err != nil {
		logger.Error("failed to issue session", zap.String("email", user.Email), zap.Error(err))
		s.metrics.RecordLogin(observability.LoginError)
		return nil, services.WrapInternal("failed to issue session", err)
	}

	s.metrics.RecordLogin(observability.LoginSuccess)
	if s.auditor != nil {
		s.auditor.LogLogin(ctx, user)
	}

	logger.Info("user signed in",
		zap.String("email", user.Email),
		zap.String("role", role.String()),
		zap.String("token_fp", session.Fingerprint(token)))

	displayName := identity.Name
	if displayName == "" {
		displayName = user.Username
	}

	return &LoginResult{
		Token:       token,
		Username:    user.Username,
		DisplayName: displayName,
		Email:       user.Email,
		Role:        role,
	}, nil
}

// Logout revokes token and reports whether a session was removed.
func (s *Service) Logout(ctx context.Context, token string) bool {
	sess, found := s.sessions.Resolve(token)
	removed := s.sessions.Revoke(token)
	if !removed {
		return false
	}

	s.metrics.RecordLogout(1)
	if s.auditor != nil && found {
		s.auditor.LogLogout(ctx, audit.Actor{Email: sess.Email, Role: sess.Role}, 1)
	}
	observability.RequestLogger(ctx, s.logger).Info("session revoked",
		zap.String("token_fp", session.Fingerprint(token)))
	return true
}

// LogoutAll revokes every session held by the principal's email.
func (s *Service) LogoutAll(ctx context.Context, p authz.Principal) int {
	n := s.sessions.RevokeAllForEmail(p.Email)
	if n == 0 {
		return 0
	}

	s.metrics.RecordLogout(n)
	if s.auditor != nil {
		s.auditor.LogLogout(ctx, audit.Actor{Email: p.Email, Role: p.Role}, n)
	}
	observability.RequestLogger(ctx, s.logger).Info("all sessions revoked",
		zap.String("email", p.Email),
		zap.Int("sessions", n))
	return n
}

// Resolve maps a session token to the principal that owns it.
func (s *Service) Resolve(token string) (authz.Principal, bool) {
	sess, ok := s.sessions.Resolve(token)
	if !ok {
		return authz.Principal{}, false
	}
	return authz.Principal{Email: sess.Email, Role: sess.Role, Token: token}, true
}

// ActiveSessions returns the number of live sessions
func (s *Service) ActiveSessions() int {
	return s.sessions.Len()
}
