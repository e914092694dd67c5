// Package auth registers drivers and hosts and maps bearer tokens to accounts.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	domainauth "carshare/internal/domain/auth"
	"carshare/internal/domain/shared/apperr"
	domainuser "carshare/internal/domain/user"
)

const (
	MinPasswordLength = 8
	defaultSessionTTL = 24 * time.Hour
)

var (
	ErrInvalidCredentials = apperr.New(apperr.ErrUnauthorized, "auth: invalid credentials")
	ErrPasswordTooShort   = apperr.New(apperr.ErrInvalidInput, "auth: password must be at least 8 characters")
	ErrSessionExpired     = apperr.New(apperr.ErrUnauthorized, "auth: session expired")
	errNotWired           = errors.New("auth: service is missing a dependency")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenGenerator interface {
	NewToken() (string, error)
}

// Service owns accounts and opaque bearer sessions. Every account can book as a
// driver; AsHost adds the host role up front, otherwise it is granted on the first
// vehicle listing.
type Service struct {
	Users      domainuser.Repository
	Sessions   domainauth.SessionStore
	Passwords  PasswordHasher
	Tokens     TokenGenerator
	SessionTTL time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

type RegisterParams struct {
	Email    string
	Name     string
	Phone    string
	Password string
	AsHost   bool
}

type LoginParams struct {
	Email    string
	Password string
}

type AuthResult struct {
	User  *domainuser.User
	Token string
}

type ResolveResult struct {
	User    *domainuser.User
	Session *domainauth.Session
}

func (s *Service) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	email := domainuser.NormalizeEmail(params.Email)
	if email == "" {
		return nil, domainuser.ErrEmailRequired
	}
	if utf8.RuneCountInString(params.Password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	taken, err := s.emailTaken(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domainuser.ErrEmailAlreadyUsed
	}
	hash, err := s.Passwords.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	account, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           domainuser.ID(uuid.NewString()),
		Email:        email,
		Name:         params.Name,
		Phone:        params.Phone,
		PasswordHash: hash,
		Roles:        signupRoles(params.AsHost),
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Users.Save(ctx, account); err != nil {
		return nil, err
	}
	s.logger().Info("account registered", "user_id", account.ID, "host", params.AsHost)
	return s.openSession(ctx, account)
}

// Login never reveals whether the email exists.
func (s *Service) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	account, err := s.verify(ctx, params.Email, params.Password)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, account)
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if token = strings.TrimSpace(token); token == "" {
		return nil
	}
	return s.Sessions.Delete(ctx, domainauth.Token(token))
}

// ResolveToken returns the live account behind token. Expired sessions and sessions
// whose account is gone are removed on the way out.
func (s *Service) ResolveToken(ctx context.Context, token string) (*ResolveResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if token = strings.TrimSpace(token); token == "" {
		return nil, domainauth.ErrTokenRequired
	}
	session, err := s.Sessions.Get(ctx, domainauth.Token(token))
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		s.revoke(ctx, session.Token)
		return nil, ErrSessionExpired
	}
	account, err := s.Users.ByID(ctx, session.UserID)
	switch {
	case errors.Is(err, domainuser.ErrNotFound):
		s.revoke(ctx, session.Token)
		return nil, domainauth.ErrSessionNotFound
	case err != nil:
		return nil, err
	}
	return &ResolveResult{User: account, Session: session}, nil
}

func (s *Service) verify(ctx context.Context, rawEmail, password string) (*domainuser.User, error) {
	email := domainuser.NormalizeEmail(rawEmail)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	account, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, domainuser.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if s.Passwords.Compare(account.PasswordHash, password) != nil {
		s.logger().Debug("password mismatch", "user_id", account.ID)
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func (s *Service) emailTaken(ctx context.Context, email string) (bool, error) {
	existing, err := s.Users.ByEmail(ctx, email)
	if errors.Is(err, domainuser.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

func (s *Service) openSession(ctx context.Context, account *domainuser.User) (*AuthResult, error) {
	raw, err := s.Tokens.NewToken()
	if err != nil {
		return nil, err
	}
	ttl := s.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	session, err := domainauth.NewSession(domainauth.CreateSessionParams{
		Token:  domainauth.Token(raw),
		UserID: account.ID,
		Roles:  append([]domainuser.Role(nil), account.Roles...),
		TTL:    ttl,
		Now:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	s.logger().Info("session opened", "user_id", account.ID, "expires_at", session.ExpiresAt)
	return &AuthResult{User: account, Token: raw}, nil
}

func (s *Service) revoke(ctx context.Context, token domainauth.Token) {
	if err := s.Sessions.Delete(ctx, token); err != nil {
		s.logger().Warn("session revoke failed", "error", err)
	}
}

func signupRoles(asHost bool) []domainuser.Role {
	if asHost {
		return []domainuser.Role{domainuser.RoleDriver, domainuser.RoleHost}
	}
	return []domainuser.Role{domainuser.RoleDriver}
}

func (s *Service) ready() error {
	if s.Users == nil || s.Sessions == nil || s.Passwords == nil || s.Tokens == nil {
		return errNotWired
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
