package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTokenTTL = 12 * time.Hour
	// Reset tokens reuse the access-token signer and lifetime on purpose:
	// one symmetric secret, one validity window.
	defaultResetTokenTTL = 12 * time.Hour

	tokenTypeAccess = "access"
	tokenTypeReset  = "reset"
)

// TokenIssuer mints the two stateless token kinds: short-lived access
// tokens carrying subject identity, and password-reset tokens binding an
// email address. Both are HS256 JWTs signed with the secret injected at
// construction time.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
	resetTTL  time.Duration
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		accessTTL: defaultAccessTokenTTL,
		resetTTL:  defaultResetTokenTTL,
	}
}

func (i *TokenIssuer) WithTTLs(accessTTL, resetTTL time.Duration) *TokenIssuer {
	if accessTTL > 0 {
		i.accessTTL = accessTTL
	}
	if resetTTL > 0 {
		i.resetTTL = resetTTL
	}
	return i
}

// AccessClaims is the verified claim set of a bearer access token.
type AccessClaims struct {
	UserID string
	Email  string
}

func (i *TokenIssuer) IssueAccessToken(userID, email string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(i.accessTTL).Unix(),
		"typ":   tokenTypeAccess,
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return encoded, nil
}

// VerifyAccessToken checks signature, expiry and token type. It is the
// contract the request-authorization middleware relies on.
func (i *TokenIssuer) VerifyAccessToken(token string) (AccessClaims, error) {
	claims, err := i.parse(token, tokenTypeAccess)
	if err != nil {
		return AccessClaims{}, err
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" {
		return AccessClaims{}, fmt.Errorf("access token missing subject")
	}

	return AccessClaims{UserID: sub, Email: email}, nil
}

func (i *TokenIssuer) IssueResetToken(email string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(i.resetTTL).Unix(),
		"typ":   tokenTypeReset,
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}

	return encoded, nil
}

// VerifyResetToken returns the email a reset token was issued for.
// Signature and expiry are always verified; a token that fails either
// check yields ErrInvalidResetToken.
func (i *TokenIssuer) VerifyResetToken(token string) (string, error) {
	claims, err := i.parse(token, tokenTypeReset)
	if err != nil {
		return "", ErrInvalidResetToken
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return "", ErrInvalidResetToken
	}

	return email, nil
}

func (i *TokenIssuer) parse(token, wantType string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if tokenType, _ := claims["typ"].(string); tokenType != wantType {
		return nil, fmt.Errorf("unexpected token type %q", tokenType)
	}

	return claims, nil
}
