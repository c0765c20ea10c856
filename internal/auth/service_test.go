package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) CreateUser(ctx context.Context, user User) (User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(User), args.Error(1)
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}

func (m *mockUserStore) UpdateUser(ctx context.Context, id string, patch UserPatch) (User, error) {
	args := m.Called(ctx, id, patch)
	return args.Get(0).(User), args.Error(1)
}

func (m *mockUserStore) SetUserDisabled(ctx context.Context, id string, disabled bool) (User, error) {
	args := m.Called(ctx, id, disabled)
	return args.Get(0).(User), args.Error(1)
}

func (m *mockUserStore) DeleteUser(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUserStore) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) (bool, error) {
	args := m.Called(ctx, email, passwordHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) ListUsers(ctx context.Context, query ListUsersQuery) (UserPage, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(UserPage), args.Error(1)
}

func (m *mockUserStore) CountUserStats(ctx context.Context) (UserStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(UserStats), args.Error(1)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) CreateRefreshToken(ctx context.Context, userID, secret string, expiresAt time.Time) error {
	return m.Called(ctx, userID, secret, expiresAt).Error(0)
}

func (m *mockSessionStore) RedeemRefreshToken(ctx context.Context, secret, newSecret string, newExpiresAt time.Time) (string, error) {
	args := m.Called(ctx, secret, newSecret, newExpiresAt)
	return args.String(0), args.Error(1)
}

func (m *mockSessionStore) RevokeRefreshToken(ctx context.Context, secret string) error {
	return m.Called(ctx, secret).Error(0)
}

func (m *mockSessionStore) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendMail(ctx context.Context, to, subject, text, html string) error {
	return m.Called(ctx, to, subject, text, html).Error(0)
}

func newTestService(users *mockUserStore, sessions SessionStore, mailer *mockMailer) *Service {
	return NewService(users, sessions, NewPasswordHasher(4), NewTokenIssuer("test-secret"), mailer).
		WithFrontendURL("https://shop.example.com")
}

func hashedPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := NewPasswordHasher(4).Hash(plain)
	require.NoError(t, err)
	return hash
}

func TestServiceRegister(t *testing.T) {
	t.Run("creates client user with name derived from email", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("CreateUser", mock.Anything, mock.MatchedBy(func(u User) bool {
			return u.Email == "a@x.com" && u.Name == "a" && u.Type == UserTypeClient && !u.Disabled
		})).Return(User{ID: "u1", Email: "a@x.com"}, nil).Once()

		service := newTestService(users, new(mockSessionStore), new(mockMailer))
		user, err := service.Register(context.Background(), "a@x.com", "secret1")

		require.NoError(t, err)
		assert.Equal(t, "u1", user.ID)
		users.AssertExpectations(t)
	})

	t.Run("stores a verifiable hash, never the plaintext", func(t *testing.T) {
		users := new(mockUserStore)
		var stored User
		users.On("CreateUser", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			stored = args.Get(1).(User)
		}).Return(User{}, nil).Once()

		service := newTestService(users, new(mockSessionStore), new(mockMailer))
		_, err := service.Register(context.Background(), "a@x.com", "secret1")

		require.NoError(t, err)
		assert.NotEqual(t, "secret1", stored.PasswordHash)
		assert.True(t, NewPasswordHasher(4).Verify("secret1", stored.PasswordHash))
	})

	t.Run("duplicate email fails with ErrEmailTaken", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("CreateUser", mock.Anything, mock.Anything).Return(User{}, ErrEmailTaken).Once()

		service := newTestService(users, new(mockSessionStore), new(mockMailer))
		_, err := service.Register(context.Background(), "a@x.com", "secret1")

		assert.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestServiceLogin(t *testing.T) {
	activeUser := User{
		ID:           "u1",
		Email:        "a@x.com",
		PasswordHash: hashedPassword(t, "secret1"),
		Type:         UserTypeClient,
	}

	t.Run("success issues access and refresh pair", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("GetUserByEmail", mock.Anything, "a@x.com").Return(activeUser, nil).Once()

		sessions := new(mockSessionStore)
		var issuedSecret string
		sessions.On("CreateRefreshToken", mock.Anything, "u1", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { issuedSecret = args.String(2) }).
			Return(nil).Once()

		service := newTestService(users, sessions, new(mockMailer))
		tokens, err := service.Login(context.Background(), "a@x.com", "secret1")

		require.NoError(t, err)
		assert.NotEmpty(t, tokens.AccessToken)
		assert.Equal(t, issuedSecret, tokens.RefreshToken)
		assert.Len(t, tokens.RefreshToken, 64) // 256-bit secret, hex encoded

		claims, err := NewTokenIssuer("test-secret").VerifyAccessToken(tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		sessions.AssertExpectations(t)
	})

	t.Run("unknown email fails with invalid credentials", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("GetUserByEmail", mock.Anything, "nobody@x.com").Return(User{}, ErrUserNotFound).Once()

		sessions := new(mockSessionStore)
		service := newTestService(users, sessions, new(mockMailer))
		_, err := service.Login(context.Background(), "nobody@x.com", "secret1")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		sessions.AssertNotCalled(t, "CreateRefreshToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("wrong password fails with invalid credentials", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("GetUserByEmail", mock.Anything, "a@x.com").Return(activeUser, nil).Once()

		service := newTestService(users, new(mockSessionStore), new(mockMailer))
		_, err := service.Login(context.Background(), "a@x.com", "wrong")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("disabled account fails identically and creates no session", func(t *testing.T) {
		disabled := activeUser
		disabled.Disabled = true

		users := new(mockUserStore)
		users.On("GetUserByEmail", mock.Anything, "a@x.com").Return(disabled, nil).Once()

		sessions := new(mockSessionStore)
		service := newTestService(users, sessions, new(mockMailer))
		_, err := service.Login(context.Background(), "a@x.com", "secret1")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		sessions.AssertNotCalled(t, "CreateRefreshToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestServiceRefresh(t *testing.T) {
	activeUser := User{ID: "u1", Email: "a@x.com", Type: UserTypeClient}

	t.Run("rotates the secret and issues a new pair", func(t *testing.T) {
		sessions := new(mockSessionStore)
		var rotatedSecret string
		sessions.On("RedeemRefreshToken", mock.Anything, "old-secret", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { rotatedSecret = args.String(2) }).
			Return("u1", nil).Once()

		users := new(mockUserStore)
		users.On("GetUserByID", mock.Anything, "u1").Return(activeUser, nil).Once()

		service := newTestService(users, sessions, new(mockMailer))
		tokens, err := service.Refresh(context.Background(), "old-secret")

		require.NoError(t, err)
		assert.Equal(t, rotatedSecret, tokens.RefreshToken)
		assert.NotEqual(t, "old-secret", tokens.RefreshToken)
		assert.NotEmpty(t, tokens.AccessToken)
	})

	t.Run("unknown secret fails with ErrInvalidSession", func(t *testing.T) {
		sessions := new(mockSessionStore)
		sessions.On("RedeemRefreshToken", mock.Anything, "bogus", mock.Anything, mock.Anything).
			Return("", ErrInvalidSession).Once()

		service := newTestService(new(mockUserStore), sessions, new(mockMailer))
		_, err := service.Refresh(context.Background(), "bogus")

		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("expired secret fails with ErrSessionExpired", func(t *testing.T) {
		sessions := new(mockSessionStore)
		sessions.On("RedeemRefreshToken", mock.Anything, "stale", mock.Anything, mock.Anything).
			Return("", ErrSessionExpired).Once()

		service := newTestService(new(mockUserStore), sessions, new(mockMailer))
		_, err := service.Refresh(context.Background(), "stale")

		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("disabled owner triggers compensating revocation", func(t *testing.T) {
		disabled := activeUser
		disabled.Disabled = true

		sessions := new(mockSessionStore)
		sessions.On("RedeemRefreshToken", mock.Anything, "old-secret", mock.Anything, mock.Anything).
			Return("u1", nil).Once()
		sessions.On("RevokeAllRefreshTokens", mock.Anything, "u1").Return(nil).Once()

		users := new(mockUserStore)
		users.On("GetUserByID", mock.Anything, "u1").Return(disabled, nil).Once()

		service := newTestService(users, sessions, new(mockMailer))
		_, err := service.Refresh(context.Background(), "old-secret")

		assert.ErrorIs(t, err, ErrInvalidSession)
		sessions.AssertExpectations(t)
	})

	t.Run("vanished owner fails with ErrInvalidSession", func(t *testing.T) {
		sessions := new(mockSessionStore)
		sessions.On("RedeemRefreshToken", mock.Anything, "old-secret", mock.Anything, mock.Anything).
			Return("u1", nil).Once()

		users := new(mockUserStore)
		users.On("GetUserByID", mock.Anything, "u1").Return(User{}, ErrUserNotFound).Once()

		service := newTestService(users, sessions, new(mockMailer))
		_, err := service.Refresh(context.Background(), "old-secret")

		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}

// memorySessionLedger is a mutex-guarded SessionStore with the same
// redeem-exactly-once contract as the SQL ledger.
type memorySessionLedger struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMemorySessionLedger() *memorySessionLedger {
	return &memorySessionLedger{tokens: make(map[string]string)}
}

func (l *memorySessionLedger) CreateRefreshToken(ctx context.Context, userID, secret string, expiresAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[secret] = userID
	return nil
}

func (l *memorySessionLedger) RedeemRefreshToken(ctx context.Context, secret, newSecret string, newExpiresAt time.Time) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	userID, ok := l.tokens[secret]
	if !ok {
		return "", ErrInvalidSession
	}
	delete(l.tokens, secret)
	l.tokens[newSecret] = userID
	return userID, nil
}

func (l *memorySessionLedger) RevokeRefreshToken(ctx context.Context, secret string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tokens, secret)
	return nil
}

func (l *memorySessionLedger) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for secret, owner := range l.tokens {
		if owner == userID {
			delete(l.tokens, secret)
		}
	}
	return nil
}

func (l *memorySessionLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tokens)
}

func TestServiceRefreshConcurrent(t *testing.T) {
	t.Run("two redemptions of one secret yield one success and one invalid session", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("GetUserByID", mock.Anything, "u1").
			Return(User{ID: "u1", Email: "a@x.com", Type: UserTypeClient}, nil)

		ledger := newMemorySessionLedger()
		require.NoError(t, ledger.CreateRefreshToken(context.Background(), "u1", "contested-secret", time.Now().Add(time.Hour)))

		service := newTestService(users, ledger, new(mockMailer))

		type outcome struct {
			tokens Tokens
			err    error
		}
		results := make(chan outcome, 2)
		for i := 0; i < 2; i++ {
			go func() {
				tokens, err := service.Refresh(context.Background(), "contested-secret")
				results <- outcome{tokens: tokens, err: err}
			}()
		}

		var successes, invalid int
		for i := 0; i < 2; i++ {
			result := <-results
			switch {
			case result.err == nil:
				successes++
				assert.NotEmpty(t, result.tokens.AccessToken)
				assert.NotEqual(t, "contested-secret", result.tokens.RefreshToken)
			case errors.Is(result.err, ErrInvalidSession):
				invalid++
			default:
				t.Fatalf("unexpected error: %v", result.err)
			}
		}

		assert.Equal(t, 1, successes)
		assert.Equal(t, 1, invalid)
		assert.Equal(t, 1, ledger.size())
	})
}

func TestServiceLogout(t *testing.T) {
	t.Run("revokes the secret and reports success", func(t *testing.T) {
		sessions := new(mockSessionStore)
		sessions.On("RevokeRefreshToken", mock.Anything, "some-secret").Return(nil).Once()

		service := newTestService(new(mockUserStore), sessions, new(mockMailer))
		assert.NoError(t, service.Logout(context.Background(), "some-secret"))
		sessions.AssertExpectations(t)
	})
}

func TestServicePasswordReset(t *testing.T) {
	knownUser := User{ID: "u1", Email: "known@x.com", Type: UserTypeClient}

	t.Run("known email sends a reset link", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("GetUserByEmail", mock.Anything, "known@x.com").Return(knownUser, nil).Once()

		mailer := new(mockMailer)
		mailer.On("SendMail", mock.Anything, "known@x.com", "Reset your password",
			mock.MatchedBy(func(text string) bool {
				return strings.Contains(text, "https://shop.example.com/auth/reset-password?token=")
			}), mock.Anything).Return(nil).Once()

		service := newTestService(users, new(mockSessionStore), mailer)
		err := service.RequestPasswordReset(context.Background(), "known@x.com")

		require.NoError(t, err)
		mailer.AssertExpectations(t)
	})

	t.Run("unknown email reports the same success without sending", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("GetUserByEmail", mock.Anything, "unknown@x.com").Return(User{}, ErrUserNotFound).Once()

		mailer := new(mockMailer)
		service := newTestService(users, new(mockSessionStore), mailer)
		err := service.RequestPasswordReset(context.Background(), "unknown@x.com")

		require.NoError(t, err)
		mailer.AssertNotCalled(t, "SendMail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("valid token stores a re-hashed password", func(t *testing.T) {
		token, err := NewTokenIssuer("test-secret").IssueResetToken("known@x.com")
		require.NoError(t, err)

		users := new(mockUserStore)
		users.On("UpdatePasswordByEmail", mock.Anything, "known@x.com", mock.MatchedBy(func(hash string) bool {
			return NewPasswordHasher(4).Verify("newsecret", hash)
		})).Return(true, nil).Once()

		service := newTestService(users, new(mockSessionStore), new(mockMailer))
		require.NoError(t, service.ResetPassword(context.Background(), token, "newsecret"))
		users.AssertExpectations(t)
	})

	t.Run("forged token fails with ErrInvalidResetToken", func(t *testing.T) {
		token, err := NewTokenIssuer("attacker-secret").IssueResetToken("known@x.com")
		require.NoError(t, err)

		users := new(mockUserStore)
		service := newTestService(users, new(mockSessionStore), new(mockMailer))
		err = service.ResetPassword(context.Background(), token, "newsecret")

		assert.ErrorIs(t, err, ErrInvalidResetToken)
		users.AssertNotCalled(t, "UpdatePasswordByEmail", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("vanished account no-ops silently", func(t *testing.T) {
		token, err := NewTokenIssuer("test-secret").IssueResetToken("gone@x.com")
		require.NoError(t, err)

		users := new(mockUserStore)
		users.On("UpdatePasswordByEmail", mock.Anything, "gone@x.com", mock.Anything).Return(false, nil).Once()

		service := newTestService(users, new(mockSessionStore), new(mockMailer))
		assert.NoError(t, service.ResetPassword(context.Background(), token, "newsecret"))
	})
}

func TestServiceUserLifecycle(t *testing.T) {
	t.Run("create user honors explicit fields", func(t *testing.T) {
		name := "Vina Admin"
		userType := UserTypeAdmin
		disabled := true

		users := new(mockUserStore)
		users.On("CreateUser", mock.Anything, mock.MatchedBy(func(u User) bool {
			return u.Name == name && u.Type == UserTypeAdmin && u.Disabled
		})).Return(User{ID: "u2"}, nil).Once()

		service := newTestService(users, new(mockSessionStore), new(mockMailer))
		_, err := service.CreateUser(context.Background(), CreateUserInput{
			Email:    "admin@x.com",
			Password: "secret1",
			Name:     &name,
			Type:     &userType,
			Disabled: &disabled,
		})

		require.NoError(t, err)
		users.AssertExpectations(t)
	})

	t.Run("update rejects unknown role", func(t *testing.T) {
		badType := UserType("superuser")
		service := newTestService(new(mockUserStore), new(mockSessionStore), new(mockMailer))
		_, err := service.UpdateUser(context.Background(), "u1", UserPatch{Type: &badType})
		assert.Error(t, err)
	})

	t.Run("list clamps pagination", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("ListUsers", mock.Anything, ListUsersQuery{Page: 1, PageSize: 200}).
			Return(UserPage{Page: 1, PageSize: 200}, nil).Once()

		service := newTestService(users, new(mockSessionStore), new(mockMailer))
		_, err := service.ListUsers(context.Background(), ListUsersQuery{Page: -3, PageSize: 10000})

		require.NoError(t, err)
		users.AssertExpectations(t)
	})
}
