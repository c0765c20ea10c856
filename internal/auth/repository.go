package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Repository is the Postgres store behind the orchestrator: user records
// plus the refresh-token ledger. The ledger persists only a SHA-256 hash
// of each secret, so a dump of the table yields nothing redeemable.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

const userColumns = `id, email, password_hash, name, avatar, user_type, disabled, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Avatar,
		&user.Type, &user.Disabled, &user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}

func (r *Repository) CreateUser(ctx context.Context, input User) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	input.ID = id.String()
	input.CreatedAt = now
	input.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, avatar, user_type, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, input.ID, input.Email, input.PasswordHash, input.Name, input.Avatar, input.Type, input.Disabled, now)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return input, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}

	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}

	return user, nil
}

// UpdateUser applies a partial update. Disabling through the patch wipes
// the user's refresh tokens in the same transaction, matching
// SetUserDisabled: there is no path that leaves a disabled user with a
// live session.
func (r *Repository) UpdateUser(ctx context.Context, id string, patch UserPatch) (User, error) {
	assignments := []string{"updated_at = $2"}
	args := []any{id, time.Now().UTC()}

	appendSet := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Email != nil {
		appendSet("email", *patch.Email)
	}
	if patch.Name != nil {
		appendSet("name", *patch.Name)
	}
	if patch.Avatar != nil {
		appendSet("avatar", *patch.Avatar)
	}
	if patch.Type != nil {
		appendSet("user_type", *patch.Type)
	}
	if patch.Disabled != nil {
		appendSet("disabled", *patch.Disabled)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx, `
		UPDATE users SET `+strings.Join(assignments, ", ")+`
		WHERE id = $1
		RETURNING `+userColumns+`
	`, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}

	if patch.Disabled != nil && *patch.Disabled {
		if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, id); err != nil {
			return User{}, fmt.Errorf("revoke refresh tokens on disable: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit update tx: %w", err)
	}

	return user, nil
}

// SetUserDisabled flips the disabled flag and, when disabling, revokes
// every refresh token the user owns in the same transaction. A disabled
// account never retains a usable session, even across a crash between
// the two statements.
func (r *Repository) SetUserDisabled(ctx context.Context, id string, disabled bool) (User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin disable tx: %w", err)
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx, `
		UPDATE users SET disabled = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id, disabled, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("update user disabled flag: %w", err)
	}

	if disabled {
		if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, id); err != nil {
			return User{}, fmt.Errorf("revoke refresh tokens on disable: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit disable tx: %w", err)
	}

	return user, nil
}

// DeleteUser removes the user and all owned refresh tokens atomically.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("revoke refresh tokens on delete: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}

	return nil
}

func (r *Repository) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE email = $1
	`, email, passwordHash, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update password: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update password rows affected: %w", err)
	}

	return affected > 0, nil
}

func (r *Repository) ListUsers(ctx context.Context, query ListUsersQuery) (UserPage, error) {
	conditions := []string{"TRUE"}
	args := []any{}

	if query.Q != "" {
		args = append(args, "%"+query.Q+"%")
		conditions = append(conditions, fmt.Sprintf("(u.name ILIKE $%d OR u.email ILIKE $%d)", len(args), len(args)))
	}
	if query.Active != nil {
		args = append(args, !*query.Active)
		conditions = append(conditions, fmt.Sprintf("u.disabled = $%d", len(args)))
	}
	if query.Type != "" {
		args = append(args, query.Type)
		conditions = append(conditions, fmt.Sprintf("u.user_type = $%d", len(args)))
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users u WHERE `+where, args...).Scan(&total); err != nil {
		return UserPage{}, fmt.Errorf("count users: %w", err)
	}

	args = append(args, query.PageSize, (query.Page-1)*query.PageSize)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT u.id, u.email, u.name, u.avatar, u.user_type, u.disabled, u.created_at, u.updated_at,
			(SELECT MAX(rt.created_at) FROM refresh_tokens rt WHERE rt.user_id = u.id) AS last_login_at
		FROM users u
		WHERE %s
		ORDER BY u.email ASC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return UserPage{}, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	items := make([]UserListItem, 0)
	for rows.Next() {
		var item UserListItem
		var lastLogin sql.NullTime
		if err := rows.Scan(
			&item.ID, &item.Email, &item.Name, &item.Avatar,
			&item.Type, &item.Disabled, &item.CreatedAt, &item.UpdatedAt, &lastLogin,
		); err != nil {
			return UserPage{}, fmt.Errorf("scan user row: %w", err)
		}
		if lastLogin.Valid {
			value := lastLogin.Time.UTC()
			item.LastLoginAt = &value
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return UserPage{}, fmt.Errorf("iterate users: %w", err)
	}

	return UserPage{
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
		Results:  items,
	}, nil
}

func (r *Repository) CountUserStats(ctx context.Context) (UserStats, error) {
	var stats UserStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT disabled),
			COUNT(*) FILTER (WHERE user_type = 'admin'),
			COUNT(*) FILTER (WHERE disabled)
		FROM users
	`).Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.AdminUsers, &stats.DisabledUsers)
	if err != nil {
		return UserStats{}, fmt.Errorf("count user stats: %w", err)
	}

	return stats, nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, userID, secret string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), userID, hashSecret(secret), expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// RedeemRefreshToken consumes a refresh secret and rotates it in a single
// transaction. The DELETE ... RETURNING is the serialization point: of two
// concurrent redemptions of the same secret, exactly one deletes the row;
// the other observes zero rows and fails with ErrInvalidSession.
//
// An expired record is deleted on observation and reported as
// ErrSessionExpired; any later redemption of the same secret therefore
// fails with ErrInvalidSession.
func (r *Repository) RedeemRefreshToken(ctx context.Context, secret, newSecret string, newExpiresAt time.Time) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin redeem tx: %w", err)
	}
	defer tx.Rollback()

	var userID string
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
		RETURNING user_id, expires_at
	`, hashSecret(secret)).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidSession
		}
		return "", fmt.Errorf("consume refresh token: %w", err)
	}

	if time.Now().UTC().After(expiresAt.UTC()) {
		// Keep the deletion: lazy reaping of the expired record.
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("commit expired token reap: %w", err)
		}
		return "", ErrSessionExpired
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate rotated token id: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), userID, hashSecret(newSecret), newExpiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert rotated refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit redeem tx: %w", err)
	}

	return userID, nil
}

// RevokeRefreshToken deletes the record if present. Deleting an unknown
// secret is not an error, so callers cannot probe token validity.
func (r *Repository) RevokeRefreshToken(ctx context.Context, secret string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE token_hash = $1
	`, hashSecret(secret))
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}

	return nil
}

// CountRefreshTokens reports the number of live ledger records for a user.
func (r *Repository) CountRefreshTokens(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count refresh tokens: %w", err)
	}

	return count, nil
}
