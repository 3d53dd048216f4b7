package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Skotchmaster/usergate/internal/domain"
	"github.com/Skotchmaster/usergate/internal/logging"
	"github.com/Skotchmaster/usergate/internal/models"
	"github.com/Skotchmaster/usergate/internal/tokens"
)

const DefaultLookupTimeout = 2 * time.Second

type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	SetRole(ctx context.Context, id uint, role domain.Role) error
}

type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) bool
}

type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// SessionManager drives the token lifecycle:
// issued on Login, checked on Authenticate, revoked on Logout.
type SessionManager struct {
	Users         UserStore
	Hasher        Hasher
	Codec         *tokens.Codec
	Revocations   Revoker
	Events        Publisher
	TTL           time.Duration
	LookupTimeout time.Duration
	Now           func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func (m *SessionManager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *SessionManager) lookupTimeout() time.Duration {
	if m.LookupTimeout <= 0 {
		return DefaultLookupTimeout
	}
	return m.LookupTimeout
}

// Login checks the credentials and issues a token. Unknown usernames and
// wrong passwords yield the same ErrInvalidCredentials.
func (m *SessionManager) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if username == "" || password == "" {
		l.Warn("login_failed", "reason", "empty credentials")
		return nil, ErrInvalidCredentials
	}

	user, err := m.Users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.burnVerify(password)
			l.Warn("login_failed", "reason", "invalid username or password")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "reason", "user store", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	if !m.Hasher.Verify(password, user.PasswordHash) {
		l.Warn("login_failed", "reason", "invalid username or password")
		return nil, ErrInvalidCredentials
	}

	token, claims, err := m.Codec.Issue(user.Username, m.TTL)
	if err != nil {
		l.Error("login_failed", "reason", "cannot issue token", "error", err)
		return nil, err
	}

	publish(ctx, m.Events, user.Username, map[string]any{
		"type":     "user_logged_in",
		"userID":   user.ID,
		"username": user.Username,
	})
	l.Info("login_successful", "jti", claims.JTI)

	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}

// burnVerify spends the same time on a missing user as on a wrong
// password.
func (m *SessionManager) burnVerify(password string) {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = m.Hasher.Hash("usergate-missing-user")
	})
	if m.dummyHash != "" {
		m.Hasher.Verify(password, m.dummyHash)
	}
}

// Authenticate resolves a bearer token to a principal. The role is read
// from the store on every call, so role changes apply on the next request.
func (m *SessionManager) Authenticate(ctx context.Context, raw string) (*domain.Principal, error) {
	l := logging.FromContext(ctx).With("svc", "auth.authenticate")

	claims, err := m.Codec.Decode(raw)
	if err != nil {
		l.Debug("authenticate_failed", "reason", "decode", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	if m.Revocations.IsRevoked(ctx, claims.JTI) {
		l.Debug("authenticate_failed", "reason", "revoked", "jti", claims.JTI)
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrRevoked)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, m.lookupTimeout())
	defer cancel()

	user, err := m.Users.FindByUsername(lookupCtx, claims.Subject)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		l.Debug("authenticate_failed", "reason", "user gone", "subject", claims.Subject)
		return nil, fmt.Errorf("%w: user %q not found", ErrUnauthenticated, claims.Subject)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(lookupCtx.Err(), context.DeadlineExceeded):
		l.Error("authenticate_failed", "reason", "user lookup timeout", "error", err)
		return nil, fmt.Errorf("%w: user lookup timed out", ErrUnauthenticated)
	default:
		l.Error("authenticate_failed", "reason", "user store", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	// The subject is a username, which can be freed by a rename or a delete
	// and taken by another account afterwards.
	if claims.IssuedAt.Before(user.TokensValidFrom()) {
		l.Warn("authenticate_failed", "reason", "token predates identity", "subject", claims.Subject, "user_id", user.ID)
		return nil, fmt.Errorf("%w: token issued before the account took this username", ErrUnauthenticated)
	}

	p := user.Principal()
	return &p, nil
}

// Logout revokes the token for the rest of its lifetime. Expired tokens are
// acknowledged without touching the store. A revocation backend outage is
// logged and acknowledged as well, in line with the fail-open check.
func (m *SessionManager) Logout(ctx context.Context, raw string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	claims, err := m.Codec.DecodeAllowExpired(raw)
	if err != nil {
		l.Warn("logout_failed", "reason", "decode", "error", err)
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	ttl := claims.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		l.Info("logout_expired_token", "jti", claims.JTI)
		return nil
	}

	if err := m.Revocations.Revoke(ctx, claims.JTI, ttl); err != nil {
		l.Error("logout_revoke_failed", "policy", "fail_open", "jti", claims.JTI, "error", err)
		return nil
	}

	publish(ctx, m.Events, claims.Subject, map[string]any{
		"type":     "user_logged_out",
		"username": claims.Subject,
	})
	l.Info("successful_logout", "jti", claims.JTI, "ttl_seconds", int64(ttl.Seconds()))
	return nil
}
