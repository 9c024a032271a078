package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vintrack/cellar/internal/core/domain"
	"github.com/vintrack/cellar/internal/port"
)

const resetPurpose = "password_reset"

type Capability string

const (
	CapStockMutate  Capability = "stock:mutate"
	CapUserManage   Capability = "users:manage"
	CapAuditReadAll Capability = "audit:read_all"
)

var roleCapabilities = map[domain.Role]map[Capability]bool{
	domain.RoleAdmin: {
		CapStockMutate:  true,
		CapUserManage:   true,
		CapAuditReadAll: true,
	},
	domain.RoleUser: {
		CapStockMutate: true,
	},
}

// AuthConfig carries the process-wide token settings, injected at
// construction rather than read from globals.
type AuthConfig struct {
	SigningKey  []byte
	TokenTTL    time.Duration // session lifetime, default 24h
	RememberTTL time.Duration // session lifetime with "remember me", default 7 days
	ResetTTL    time.Duration // reset token lifetime, default 1h
}

func (c AuthConfig) withDefaults() AuthConfig {
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.RememberTTL == 0 {
		c.RememberTTL = 7 * 24 * time.Hour
	}
	if c.ResetTTL == 0 {
		c.ResetTTL = time.Hour
	}
	return c
}

type AuthService struct {
	users port.UserRepository
	audit port.AuditRepository
	cache port.CacheRepository
	cfg   AuthConfig
}

func NewAuthService(users port.UserRepository, audit port.AuditRepository, cache port.CacheRepository, cfg AuthConfig) *AuthService {
	return &AuthService{users: users, audit: audit, cache: cache, cfg: cfg.withDefaults()}
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

// tokenClaims covers both session and reset tokens; Purpose is empty for
// sessions, so a reset token can never be replayed as a credential.
type tokenClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose,omitempty"`
}

func (s *AuthService) Login(ctx context.Context, email, password string, remember bool, ip string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		// Same failure as a wrong password so the two are indistinguishable.
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}

	ttl := s.cfg.TokenTTL
	if remember {
		ttl = s.cfg.RememberTTL
	}
	expiresAt := time.Now().Add(ttl)
	token, err := s.signToken(strconv.FormatInt(user.ID, 10), "", "", expiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	if err := s.recordUserAction(ctx, user, domain.ActionLogin, ip); err != nil {
		return nil, err
	}

	return &Session{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

// Validate is a pure check over the presented token plus one read of the
// actor's current state.
func (s *AuthService) Validate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.parseToken(token)
	if err != nil || claims.Purpose != "" {
		return nil, domain.ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	return user, nil
}

// Refresh mints a fresh session for an already-validated actor.
func (s *AuthService) Refresh(ctx context.Context, user *domain.User) (*Session, error) {
	expiresAt := time.Now().Add(s.cfg.TokenTTL)
	token, err := s.signToken(strconv.FormatInt(user.ID, 10), "", "", expiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

// Authorize resolves a capability check against the role table.
func (s *AuthService) Authorize(user *domain.User, cap Capability) bool {
	return roleCapabilities[user.Role][cap]
}

func (s *AuthService) Logout(ctx context.Context, user *domain.User, ip string) error {
	return s.recordUserAction(ctx, user, domain.ActionLogout, ip)
}

func (s *AuthService) ChangePassword(ctx context.Context, user *domain.User, oldPassword, newPassword string) error {
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return domain.ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return s.recordUserAction(ctx, user, domain.ActionPasswordChange, "")
}

// IssueResetToken mints a short-lived single-use token for the account, or
// returns "" when no account matches. Both cases succeed, so account
// existence is never disclosed to the caller.
func (s *AuthService) IssueResetToken(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}

	token, err := s.signToken(user.Email, resetPurpose, uuid.NewString(), time.Now().Add(s.cfg.ResetTTL))
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return token, nil
}

func (s *AuthService) ConsumeResetToken(ctx context.Context, token, newPassword string) error {
	claims, err := s.parseToken(token)
	if err != nil || claims.Purpose != resetPurpose || claims.ID == "" {
		return domain.ErrInvalidToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	ok, err := s.cache.MarkResetTokenUsed(ctx, claims.ID, s.cfg.ResetTTL)
	if err != nil {
		return fmt.Errorf("mark reset token: %w", err)
	}
	if !ok {
		return domain.ErrInvalidToken
	}

	user, err := s.users.GetUserByEmail(ctx, claims.Subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return s.recordUserAction(ctx, user, domain.ActionPasswordChange, "")
}

func (s *AuthService) signToken(subject, purpose, jti string, expiresAt time.Time) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        jti,
		},
		Purpose: purpose,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
}

func (s *AuthService) parseToken(token string) (*tokenClaims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return s.cfg.SigningKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

func (s *AuthService) recordUserAction(ctx context.Context, user *domain.User, action domain.ActionType, ip string) error {
	details, err := json.Marshal(map[string]string{"email": user.Email})
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	if _, err := s.audit.AppendAudit(ctx, domain.AuditLog{
		UserID:     user.ID,
		ActionType: action,
		EntityType: "user",
		EntityID:   user.ID,
		Details:    string(details),
		IPAddress:  ip,
	}); err != nil {
		return fmt.Errorf("record %s: %w", action, err)
	}
	return nil
}

func validatePassword(p string) error {
	if len(p) < 6 {
		return &domain.ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	return nil
}
