package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const defaultRefreshTokenTTL = 30 * 24 * time.Hour

// UserStore is the persistence contract for user records.
type UserStore interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) (User, error)
	SetUserDisabled(ctx context.Context, id string, disabled bool) (User, error)
	DeleteUser(ctx context.Context, id string) error
	UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) (bool, error)
	ListUsers(ctx context.Context, query ListUsersQuery) (UserPage, error)
	CountUserStats(ctx context.Context) (UserStats, error)
}

// SessionStore is the refresh-token ledger contract. It is the only
// component holding session state; redemption must be atomic so that two
// concurrent redemptions of one secret yield exactly one success.
type SessionStore interface {
	CreateRefreshToken(ctx context.Context, userID, secret string, expiresAt time.Time) error
	RedeemRefreshToken(ctx context.Context, secret, newSecret string, newExpiresAt time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, secret string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// Mailer delivers outbound mail; retries and bounces are its problem.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, text, html string) error
}

// Service orchestrates the credential store, token issuer, refresh-token
// ledger and mailer behind the register/login/refresh/logout/reset flows
// and the administrative user lifecycle.
type Service struct {
	users      UserStore
	sessions   SessionStore
	hasher     *PasswordHasher
	tokens     *TokenIssuer
	mailer     Mailer
	refreshTTL time.Duration
	frontendURL string
}

func NewService(users UserStore, sessions SessionStore, hasher *PasswordHasher, tokens *TokenIssuer, mailer Mailer) *Service {
	return &Service{
		users:       users,
		sessions:    sessions,
		hasher:      hasher,
		tokens:      tokens,
		mailer:      mailer,
		refreshTTL:  defaultRefreshTokenTTL,
		frontendURL: "http://localhost:3000",
	}
}

func (s *Service) WithRefreshTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.refreshTTL = ttl
	}
	return s
}

// WithFrontendURL sets the base URL reset links point at.
func (s *Service) WithFrontendURL(base string) *Service {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base != "" {
		s.frontendURL = base
	}
	return s
}

func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		Email:        email,
		PasswordHash: hash,
		Name:         nameFromEmail(email),
		Type:         UserTypeClient,
	}

	return s.users.CreateUser(ctx, user)
}

// CreateUser is the administrative variant of Register with explicit
// name, avatar, role and disabled flag.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		Email:        input.Email,
		PasswordHash: hash,
		Name:         nameFromEmail(input.Email),
		Avatar:       input.Avatar,
		Type:         UserTypeClient,
	}
	if input.Name != nil && *input.Name != "" {
		user.Name = *input.Name
	}
	if input.Type != nil && input.Type.Valid() {
		user.Type = *input.Type
	}
	if input.Disabled != nil {
		user.Disabled = *input.Disabled
	}

	return s.users.CreateUser(ctx, user)
}

// Login verifies credentials and, on success, issues an access token and
// a fresh ledger-backed refresh token. Bad email, bad password and a
// disabled account are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Tokens{}, ErrInvalidCredentials
		}
		return Tokens{}, err
	}

	if user.Disabled {
		return Tokens{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return Tokens{}, ErrInvalidCredentials
	}

	access, err := s.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return Tokens{}, err
	}

	secret, err := newRefreshSecret()
	if err != nil {
		return Tokens{}, err
	}
	expiresAt := time.Now().UTC().Add(s.refreshTTL)
	if err := s.sessions.CreateRefreshToken(ctx, user.ID, secret, expiresAt); err != nil {
		return Tokens{}, err
	}

	return Tokens{AccessToken: access, RefreshToken: secret}, nil
}

// Refresh redeems a refresh secret for a new token pair. The old record
// is consumed and replaced atomically by the ledger; the caller never
// holds two live secrets from one redemption.
func (s *Service) Refresh(ctx context.Context, secret string) (Tokens, error) {
	newSecret, err := newRefreshSecret()
	if err != nil {
		return Tokens{}, err
	}

	newExpiresAt := time.Now().UTC().Add(s.refreshTTL)
	userID, err := s.sessions.RedeemRefreshToken(ctx, secret, newSecret, newExpiresAt)
	if err != nil {
		return Tokens{}, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Tokens{}, ErrInvalidSession
		}
		return Tokens{}, err
	}
	if user.Disabled {
		// Compensating cleanup: a disabled user should own no tokens,
		// including the one rotation just minted.
		if err := s.sessions.RevokeAllRefreshTokens(ctx, user.ID); err != nil {
			return Tokens{}, err
		}
		return Tokens{}, ErrInvalidSession
	}

	access, err := s.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{AccessToken: access, RefreshToken: newSecret}, nil
}

// Logout deletes the refresh record if it exists and reports success
// either way.
func (s *Service) Logout(ctx context.Context, secret string) error {
	return s.sessions.RevokeRefreshToken(ctx, secret)
}

// RequestPasswordReset reports success whether or not the email belongs
// to an account; only the side effect differs. The reset link is valid
// for the codec's reset-token window.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, err := s.tokens.IssueResetToken(user.Email)
	if err != nil {
		return err
	}

	resetLink := s.frontendURL + "/auth/reset-password?token=" + url.QueryEscape(token)
	text, html := resetPasswordEmail(resetLink)

	if err := s.mailer.SendMail(ctx, user.Email, "Reset your password", text, html); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	return nil
}

// ResetPassword redeems a reset token and stores the re-hashed password.
// If the account vanished between issuance and redemption the operation
// silently no-ops.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := s.tokens.VerifyResetToken(token)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.users.UpdatePasswordByEmail(ctx, email, hash); err != nil {
		return err
	}

	return nil
}

func (s *Service) SendWelcome(ctx context.Context, email string) error {
	return s.mailer.SendMail(ctx, email,
		"Welcome to Online Vina",
		"This is a test email to verify SMTP configuration.",
		"<p>This is a <strong>test email</strong> to verify SMTP configuration.</p>",
	)
}

// SetUserDisabled flips the disabled flag; disabling revokes every
// session the user owns before the call returns.
func (s *Service) SetUserDisabled(ctx context.Context, id string, disabled bool) (User, error) {
	return s.users.SetUserDisabled(ctx, id, disabled)
}

// DeleteUser removes the account together with its refresh tokens.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.users.DeleteUser(ctx, id)
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, id string, patch UserPatch) (User, error) {
	if patch.Type != nil && !patch.Type.Valid() {
		return User{}, fmt.Errorf("invalid user type %q", *patch.Type)
	}
	return s.users.UpdateUser(ctx, id, patch)
}

func (s *Service) ListUsers(ctx context.Context, query ListUsersQuery) (UserPage, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 {
		query.PageSize = 20
	}
	if query.PageSize > 200 {
		query.PageSize = 200
	}
	return s.users.ListUsers(ctx, query)
}

func (s *Service) UserStats(ctx context.Context) (UserStats, error) {
	return s.users.CountUserStats(ctx)
}

func nameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

// newRefreshSecret returns a 256-bit random secret, hex encoded.
func newRefreshSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func resetPasswordEmail(resetLink string) (text, html string) {
	text = "Click the link to reset your password (valid 12h): " + resetLink
	html = `<!doctype html>
<html>
  <body style="margin:0;padding:24px;background:#0b1220;color:#e6eaf2;font-family:system-ui,sans-serif">
    <div style="max-width:560px;margin:0 auto;background:#0f172a;border:1px solid #1f2a44;border-radius:14px;padding:28px">
      <h1 style="margin:0 0 12px;font-size:20px;color:#f3f6fc">Reset your password</h1>
      <p style="margin:0 0 14px;font-size:14px;color:#c9d3e0">We received a request to reset the password for your account.</p>
      <p style="margin:0 0 14px;font-size:14px;color:#c9d3e0">This link will be valid for 12 hours. If you did not request a password reset, you can safely ignore this email.</p>
      <p style="text-align:center;margin:26px 0">
        <a href="` + resetLink + `" target="_blank" rel="noopener" style="display:inline-block;background:#5b8cff;color:#0b1220;font-weight:700;padding:12px 18px;border-radius:12px;text-decoration:none">Reset password</a>
      </p>
      <p style="font-size:12px;color:#9aa6bd">Or copy and paste this link into your browser:</p>
      <p style="font-size:12px;color:#9aa6bd"><a href="` + resetLink + `" style="color:#4f8cff">` + resetLink + `</a></p>
    </div>
  </body>
</html>`
	return text, html
}
