package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func userRows(user User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "name", "avatar", "user_type", "disabled", "created_at", "updated_at",
	}).AddRow(
		user.ID, user.Email, user.PasswordHash, user.Name, user.Avatar,
		string(user.Type), user.Disabled, user.CreatedAt, user.UpdatedAt,
	)
}

func TestRepositoryCreateUser(t *testing.T) {
	t.Run("assigns id and timestamps", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), "a@x.com", "hash", "a", nil, "client", false, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		user, err := repo.CreateUser(context.Background(), User{
			Email:        "a@x.com",
			PasswordHash: "hash",
			Name:         "a",
			Type:         UserTypeClient,
		})

		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.False(t, user.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email maps to ErrEmailTaken", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

		_, err := repo.CreateUser(context.Background(), User{Email: "a@x.com", Type: UserTypeClient})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestRepositoryGetUser(t *testing.T) {
	t.Run("unknown email maps to ErrUserNotFound", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("nobody@x.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetUserByEmail(context.Background(), "nobody@x.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("found user scans all columns", func(t *testing.T) {
		now := time.Now().UTC()
		stored := User{
			ID: "u1", Email: "a@x.com", PasswordHash: "hash", Name: "a",
			Type: UserTypeAdmin, Disabled: false, CreatedAt: now, UpdatedAt: now,
		}

		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
			WithArgs("u1").
			WillReturnRows(userRows(stored))

		user, err := repo.GetUserByID(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, stored, user)
	})
}

func TestRepositoryUpdateUser(t *testing.T) {
	now := time.Now().UTC()

	t.Run("disabling via patch revokes tokens in the same transaction", func(t *testing.T) {
		disabled := true
		stored := User{ID: "u1", Email: "a@x.com", Disabled: true, Type: UserTypeClient, CreatedAt: now, UpdatedAt: now}

		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET").
			WillReturnRows(userRows(stored))
		mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id").
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		user, err := repo.UpdateUser(context.Background(), "u1", UserPatch{Disabled: &disabled})
		require.NoError(t, err)
		assert.True(t, user.Disabled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("re-enabling via patch leaves the ledger alone", func(t *testing.T) {
		enabled := false
		stored := User{ID: "u1", Email: "a@x.com", Type: UserTypeClient, CreatedAt: now, UpdatedAt: now}

		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET").
			WillReturnRows(userRows(stored))
		mock.ExpectCommit()

		user, err := repo.UpdateUser(context.Background(), "u1", UserPatch{Disabled: &enabled})
		require.NoError(t, err)
		assert.False(t, user.Disabled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("name-only patch never touches the ledger", func(t *testing.T) {
		name := "New Name"
		stored := User{ID: "u1", Email: "a@x.com", Name: name, Type: UserTypeClient, CreatedAt: now, UpdatedAt: now}

		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET").
			WillReturnRows(userRows(stored))
		mock.ExpectCommit()

		_, err := repo.UpdateUser(context.Background(), "u1", UserPatch{Name: &name})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id maps to ErrUserNotFound", func(t *testing.T) {
		name := "whoever"
		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := repo.UpdateUser(context.Background(), "missing", UserPatch{Name: &name})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestRepositorySetUserDisabled(t *testing.T) {
	now := time.Now().UTC()
	stored := User{ID: "u1", Email: "a@x.com", Disabled: true, Type: UserTypeClient, CreatedAt: now, UpdatedAt: now}

	t.Run("disabling revokes tokens in the same transaction", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET disabled").
			WithArgs("u1", true, sqlmock.AnyArg()).
			WillReturnRows(userRows(stored))
		mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id").
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		user, err := repo.SetUserDisabled(context.Background(), "u1", true)
		require.NoError(t, err)
		assert.True(t, user.Disabled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("enabling leaves the ledger alone", func(t *testing.T) {
		enabled := stored
		enabled.Disabled = false

		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET disabled").
			WithArgs("u1", false, sqlmock.AnyArg()).
			WillReturnRows(userRows(enabled))
		mock.ExpectCommit()

		user, err := repo.SetUserDisabled(context.Background(), "u1", false)
		require.NoError(t, err)
		assert.False(t, user.Disabled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id maps to ErrUserNotFound", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET disabled").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := repo.SetUserDisabled(context.Background(), "missing", true)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestRepositoryDeleteUser(t *testing.T) {
	t.Run("removes tokens and the user atomically", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id").
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM users WHERE id").
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.DeleteUser(context.Background(), "u1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id maps to ErrUserNotFound", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id").
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM users WHERE id").
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.DeleteUser(context.Background(), "missing"), ErrUserNotFound)
	})
}

func TestRepositoryUpdatePasswordByEmail(t *testing.T) {
	t.Run("reports whether a row changed", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec("UPDATE users SET password_hash").
			WithArgs("a@x.com", "newhash", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		changed, err := repo.UpdatePasswordByEmail(context.Background(), "a@x.com", "newhash")
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("unknown email reports no change", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec("UPDATE users SET password_hash").
			WillReturnResult(sqlmock.NewResult(0, 0))

		changed, err := repo.UpdatePasswordByEmail(context.Background(), "gone@x.com", "newhash")
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestRepositoryRefreshTokens(t *testing.T) {
	t.Run("create stores a hash, not the secret", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		expiresAt := time.Now().UTC().Add(time.Hour)
		mock.ExpectExec("INSERT INTO refresh_tokens").
			WithArgs(sqlmock.AnyArg(), "u1", hashSecret("plain-secret"), expiresAt, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.CreateRefreshToken(context.Background(), "u1", "plain-secret", expiresAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redeem of unknown secret fails with ErrInvalidSession", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery("DELETE FROM refresh_tokens").
			WithArgs(hashSecret("bogus")).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}))
		mock.ExpectRollback()

		_, err := repo.RedeemRefreshToken(context.Background(), "bogus", "next", time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("redeem of expired secret reaps the record and commits", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectBegin()
		mock.ExpectQuery("DELETE FROM refresh_tokens").
			WithArgs(hashSecret("stale")).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).
				AddRow("u1", time.Now().UTC().Add(-time.Minute)))
		mock.ExpectCommit()

		_, err := repo.RedeemRefreshToken(context.Background(), "stale", "next", time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redeem rotates the record in one transaction", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		newExpiresAt := time.Now().UTC().Add(time.Hour)
		mock.ExpectBegin()
		mock.ExpectQuery("DELETE FROM refresh_tokens").
			WithArgs(hashSecret("current")).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).
				AddRow("u1", time.Now().UTC().Add(time.Minute)))
		mock.ExpectExec("INSERT INTO refresh_tokens").
			WithArgs(sqlmock.AnyArg(), "u1", hashSecret("next"), newExpiresAt, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		userID, err := repo.RedeemRefreshToken(context.Background(), "current", "next", newExpiresAt)
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revoke of unknown secret succeeds", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec("DELETE FROM refresh_tokens WHERE token_hash").
			WithArgs(hashSecret("unknown")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, repo.RevokeRefreshToken(context.Background(), "unknown"))
	})

	t.Run("revoke all clears the ledger for the user", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id").
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectQuery("SELECT COUNT(.+) FROM refresh_tokens WHERE user_id").
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		require.NoError(t, repo.RevokeAllRefreshTokens(context.Background(), "u1"))

		count, err := repo.CountRefreshTokens(context.Background(), "u1")
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestRepositoryListUsers(t *testing.T) {
	t.Run("filters and paginates", func(t *testing.T) {
		now := time.Now().UTC()
		lastLogin := now.Add(-time.Hour)

		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT COUNT(.+) FROM users u WHERE").
			WithArgs("%vina%", false).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("SELECT u.id, u.email").
			WithArgs("%vina%", false, 20, 0).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "email", "name", "avatar", "user_type", "disabled", "created_at", "updated_at", "last_login_at",
			}).AddRow("u1", "a@x.com", "a", "", "client", false, now, now, lastLogin))

		active := true
		page, err := repo.ListUsers(context.Background(), ListUsersQuery{
			Q: "vina", Active: &active, Page: 1, PageSize: 20,
		})

		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		require.Len(t, page.Results, 1)
		require.NotNil(t, page.Results[0].LastLoginAt)
		assert.Equal(t, lastLogin, page.Results[0].LastLoginAt.UTC())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("users without sessions have no last login", func(t *testing.T) {
		now := time.Now().UTC()

		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT COUNT(.+) FROM users u WHERE").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("SELECT u.id, u.email").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "email", "name", "avatar", "user_type", "disabled", "created_at", "updated_at", "last_login_at",
			}).AddRow("u1", "a@x.com", "a", "", "client", false, now, now, nil))

		page, err := repo.ListUsers(context.Background(), ListUsersQuery{Page: 1, PageSize: 20})
		require.NoError(t, err)
		require.Len(t, page.Results, 1)
		assert.Nil(t, page.Results[0].LastLoginAt)
	})
}

func TestRepositoryCountUserStats(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("SELECT(.+)FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"total", "active", "admins", "disabled"}).
			AddRow(10, 7, 2, 3))

	stats, err := repo.CountUserStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UserStats{TotalUsers: 10, ActiveUsers: 7, AdminUsers: 2, DisabledUsers: 3}, stats)
}
