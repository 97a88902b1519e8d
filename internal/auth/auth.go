package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fitness-planner/internal/planservice"
	"fitness-planner/internal/profile"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// Claims are the parts of a session token the client cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token has an expiry that lies before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Inspect reads the claims of a JWT session token without verifying its
// signature. The service is the only party that can verify it.
func Inspect(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, fmt.Errorf("failed to parse session token: %w", err)
	}

	var out Claims
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// Authenticator issues sessions.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (planservice.Session, error)
	Signup(ctx context.Context, name, email, password string) (planservice.Session, error)
}

// Service keeps the session token next to the profile.
type Service struct {
	client Authenticator
	store  *profile.Store
	now    func() time.Time
}

// NewService creates a new auth Service.
func NewService(client Authenticator, store *profile.Store) *Service {
	return &Service{client: client, store: store, now: time.Now}
}

// Login authenticates and stores the session, the email and the account name.
func (s *Service) Login(ctx context.Context, email, password string) (planservice.Session, error) {
	email = strings.TrimSpace(email)
	session, err := s.client.Login(ctx, email, password)
	if err != nil {
		return planservice.Session{}, err
	}
	return session, s.remember(ctx, email, session)
}

// Signup creates the account and stores its session.
func (s *Service) Signup(ctx context.Context, name, email, password string) (planservice.Session, error) {
	email = strings.TrimSpace(email)
	session, err := s.client.Signup(ctx, name, email, password)
	if err != nil {
		return planservice.Session{}, err
	}
	if session.Name == "" {
		session.Name = name
	}
	return session, s.remember(ctx, email, session)
}

// Logout forgets the session token. The profile and email are kept.
func (s *Service) Logout(ctx context.Context) error {
	return s.store.ClearSession(ctx)
}

// Token returns the stored token, or "" when there is none or it has expired.
func (s *Service) Token() string {
	return tokenFrom(s.store, s.now)
}

// TokenSource returns a planservice.TokenSource backed by store.
func TokenSource(store *profile.Store) planservice.TokenSource {
	return func() string {
		return tokenFrom(store, time.Now)
	}
}

func (s *Service) remember(ctx context.Context, email string, session planservice.Session) error {
	u := profile.Partial{
		Email: &email,
		Token: &session.Token,
	}
	if session.Name != "" {
		u.Name = &session.Name
	}
	if err := s.store.Set(ctx, u); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	log.WithField("email", email).Info("session stored")
	return nil
}

func tokenFrom(store *profile.Store, now func() time.Time) string {
	token := store.Get().Token
	if token == "" {
		return ""
	}

	claims, err := Inspect(token)
	if err != nil {
		// Not a JWT; the service treats it as opaque.
		return token
	}
	if claims.Expired(now()) {
		log.WithField("expired_at", claims.ExpiresAt).Warn("session token expired, sending request without it")
		return ""
	}
	return token
}
