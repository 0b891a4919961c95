package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rolechat/internal/model"
	"rolechat/internal/pkg/jwtutil"
	"rolechat/internal/roles"
)

var ErrUnauthenticated = errors.New("authentication required")

// SessionStore persists server-side sessions. Get returns (nil, nil) when the
// session does not exist.
type SessionStore interface {
	Save(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	UpdateRole(ctx context.Context, id, role string) error
	Delete(ctx context.Context, id string) error
}

type SessionService struct {
	auth     *AuthService
	store    SessionStore
	registry *roles.Registry
	secret   string
	ttl      time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

type LoginResult struct {
	Token   string
	Session *model.Session
	User    *model.User
}

func NewSessionService(
	auth *AuthService,
	store SessionStore,
	registry *roles.Registry,
	secret string,
	ttl time.Duration,
	log logrus.FieldLogger,
) *SessionService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionService{
		auth:     auth,
		store:    store,
		registry: registry,
		secret:   secret,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

func (s *SessionService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.auth.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Role:      roles.DefaultKey,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session failed: %w", err)
	}

	token, err := jwtutil.GenerateToken(s.secret, session.ExpiresAt, session.ID, user.ID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "session_id": session.ID}).Info("user logged in")
	return &LoginResult{Token: token, Session: session, User: user}, nil
}

// Authenticate resolves a signed token to its live server-side session.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := jwtutil.ParseToken(s.secret, token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	session, err := s.store.Get(ctx, claims.SessionID())
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != claims.UserID {
		return nil, ErrUnauthenticated
	}
	if session.Expired(s.now()) {
		if err := s.store.Delete(ctx, session.ID); err != nil {
			s.log.WithError(err).WithField("session_id", session.ID).Warn("delete expired session failed")
		}
		return nil, ErrUnauthenticated
	}
	return session, nil
}

func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrUnauthenticated
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	s.log.WithField("session_id", sessionID).Info("session closed")
	return nil
}

// SetRole switches the session persona. Unknown keys leave the session
// unchanged and return the current role.
func (s *SessionService) SetRole(ctx context.Context, session *model.Session, key string) (string, error) {
	if session == nil {
		return "", ErrUnauthenticated
	}
	key = strings.TrimSpace(key)
	if !s.registry.Has(key) || key == session.Role {
		return session.Role, nil
	}
	if err := s.store.UpdateRole(ctx, session.ID, key); err != nil {
		return session.Role, fmt.Errorf("update session role failed: %w", err)
	}
	session.Role = key
	return key, nil
}
