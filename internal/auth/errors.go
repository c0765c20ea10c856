package auth

import "errors"

var (
	// ErrEmailTaken is returned when registering or updating to an email
	// that another account already owns.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials covers bad email, bad password and disabled
	// accounts. Login never reveals which of the three it was.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidSession means the presented refresh token has no ledger
	// record: never issued, already used, or already revoked.
	ErrInvalidSession = errors.New("invalid refresh token")

	// ErrSessionExpired means the refresh token existed but its validity
	// window has passed. The record is deleted as a side effect, so a
	// retry with the same secret yields ErrInvalidSession.
	ErrSessionExpired = errors.New("refresh token expired")

	// ErrInvalidResetToken is returned when a password-reset token fails
	// signature or expiry verification.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	ErrUserNotFound = errors.New("user not found")
)
