package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/keepintouch/backend/services/jwt"
	"github.com/keepintouch/backend/services/passwordreset"
	"github.com/keepintouch/backend/services/refreshtoken"
	"github.com/keepintouch/backend/services/user"
	"github.com/keepintouch/backend/testutils"
)

type mockMailSender struct {
	sendErr   error
	sentTo    []string
	resetURLs []string
}

func (m *mockMailSender) SendPasswordReset(to, firstName, resetURL string, expiry time.Duration) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sentTo = append(m.sentTo, to)
	m.resetURLs = append(m.resetURLs, resetURL)
	return nil
}

type testEnv struct {
	auth    *Service
	users   *user.Service
	refresh *refreshtoken.Service
	resets  *passwordreset.Service
	mail    *mockMailSender
	db      *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	db := testutils.SetupTestDB(t,
		&user.User{},
		&refreshtoken.RefreshToken{},
		&passwordreset.PasswordResetToken{},
	)
	cfg := testutils.GetTestConfig()

	users := user.NewService(db, cfg, nil)
	tokens := jwt.NewService(cfg, nil)
	refresh := refreshtoken.NewService(db, cfg, nil)
	resets := passwordreset.NewService(db, cfg, nil)

	authService := NewService(cfg, users, tokens, refresh, resets, nil)
	sender := &mockMailSender{}
	authService.SetMailSender(sender)

	return &testEnv{
		auth:    authService,
		users:   users,
		refresh: refresh,
		resets:  resets,
		mail:    sender,
		db:      db,
	}
}

func registerAlice(t *testing.T, env *testEnv) *AuthResult {
	result, err := env.auth.Register(RegisterData{
		Username: testutils.TestUsers.Alice.Username,
		Name:     testutils.TestUsers.Alice.Name,
		Email:    testutils.TestUsers.Alice.Email,
		Password: testutils.TestUsers.Alice.Password,
	}, "Chrome on Windows")
	require.NoError(t, err)
	return result
}

func TestService_Register(t *testing.T) {
	t.Run("returns profile and a working token pair", func(t *testing.T) {
		env := newTestEnv(t)

		result := registerAlice(t, env)

		assert.Equal(t, "alice", result.User.Username)
		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.NotEqual(t, result.AccessToken, result.RefreshToken)

		u, err := env.auth.ValidateAccessToken(result.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, u.ID)

		sessions, err := env.auth.GetUserSessions(u.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "Chrome on Windows", sessions[0].DeviceInfo)
	})

	t.Run("duplicate username", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		_, err := env.auth.Register(RegisterData{
			Username: "alice",
			Name:     "Other",
			Email:    "other@example.com",
			Password: "password123",
		}, "")
		testutils.AssertErrorType(t, user.ErrUsernameTaken, err)
	})

	t.Run("username conflict reported before email conflict", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		_, err := env.auth.Register(RegisterData{
			Username: "alice",
			Name:     "Full Collision",
			Email:    "alice@example.com",
			Password: "password123",
		}, "")
		testutils.AssertErrorType(t, user.ErrUsernameTaken, err)
	})
}

func TestService_Login(t *testing.T) {
	t.Run("by username", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		result, err := env.auth.Login("alice", testutils.TestUsers.Alice.Password, "Safari on macOS")
		require.NoError(t, err)
		assert.Equal(t, "alice", result.User.Username)
		assert.NotEmpty(t, result.AccessToken)
	})

	t.Run("by email regardless of case", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		result, err := env.auth.Login("ALICE@Example.COM", testutils.TestUsers.Alice.Password, "")
		require.NoError(t, err)
		assert.Equal(t, "alice", result.User.Username)
	})

	t.Run("unknown identifier message", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		_, err := env.auth.Login("nobody", "whatever", "")
		require.Error(t, err)
		assert.Equal(t, "Invalid credentials or account is inactive", err.Error())
	})

	t.Run("wrong password message", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		_, err := env.auth.Login("alice", "wrong-password", "")
		require.Error(t, err)
		assert.Equal(t, "Invalid credentials", err.Error())
	})

	t.Run("each login adds a session", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		_, err := env.auth.Login("alice", testutils.TestUsers.Alice.Password, "Safari on macOS")
		require.NoError(t, err)
		_, err = env.auth.Login("alice", testutils.TestUsers.Alice.Password, "Firefox on Linux")
		require.NoError(t, err)

		sessions, err := env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		assert.Len(t, sessions, 3)
	})
}

func TestService_Refresh(t *testing.T) {
	t.Run("rotates the pair and kills the old token", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		tokens, err := env.auth.Refresh(result.RefreshToken, "")
		require.NoError(t, err)
		assert.NotEmpty(t, tokens.AccessToken)
		assert.NotEqual(t, result.RefreshToken, tokens.RefreshToken)

		// replaying the consumed token must fail
		_, err = env.auth.Refresh(result.RefreshToken, "")
		require.Error(t, err)
		assert.Equal(t, refreshtoken.ErrTokenInvalid.Error(), err.Error())

		// the replacement still works
		_, err = env.auth.Refresh(tokens.RefreshToken, "")
		require.NoError(t, err)
	})

	t.Run("session count stays stable across rotation", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		_, err := env.auth.Refresh(result.RefreshToken, "")
		require.NoError(t, err)

		sessions, err := env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("carries forward device info when none supplied", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		_, err := env.auth.Refresh(result.RefreshToken, "")
		require.NoError(t, err)

		sessions, err := env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "Chrome on Windows", sessions[0].DeviceInfo)
	})

	t.Run("access token rejected", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		_, err := env.auth.Refresh(result.AccessToken, "")
		require.Error(t, err)
		assert.Equal(t, "Invalid token", err.Error())
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.auth.Refresh("not-a-token", "")
		require.Error(t, err)
		assert.Equal(t, "Invalid token", err.Error())
	})

	t.Run("valid signature but absent from ledger", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)
		env.auth.Logout(result.User.ID, result.RefreshToken, false)

		_, err := env.auth.Refresh(result.RefreshToken, "")
		require.Error(t, err)
		assert.Equal(t, "Invalid or expired refresh token", err.Error())
	})

	t.Run("deleted user rejected", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)
		require.NoError(t, env.users.Delete(result.User.ID))

		_, err := env.auth.Refresh(result.RefreshToken, "")
		require.Error(t, err)
		assert.Equal(t, "User not found", err.Error())
	})
}

func TestService_Logout(t *testing.T) {
	t.Run("revokes the presented session only", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)
		second, err := env.auth.Login("alice", testutils.TestUsers.Alice.Password, "Safari on macOS")
		require.NoError(t, err)

		env.auth.Logout(result.User.ID, result.RefreshToken, false)

		sessions, err := env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)

		_, err = env.auth.Refresh(second.RefreshToken, "")
		require.NoError(t, err)
	})

	t.Run("all devices", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)
		_, err := env.auth.Login("alice", testutils.TestUsers.Alice.Password, "")
		require.NoError(t, err)

		env.auth.Logout(result.User.ID, "", true)

		sessions, err := env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})

	t.Run("never fails", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		env.auth.Logout(result.User.ID, "no-such-token", false)
		env.auth.Logout(result.User.ID, result.RefreshToken, false)
		env.auth.Logout(result.User.ID, result.RefreshToken, false)
		env.auth.Logout(result.User.ID, "", false)
	})
}

func TestService_ForgotPassword(t *testing.T) {
	t.Run("sends reset email with token link", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		require.NoError(t, env.auth.ForgotPassword("alice@example.com"))

		require.Len(t, env.mail.sentTo, 1)
		assert.Equal(t, "alice@example.com", env.mail.sentTo[0])
		assert.Contains(t, env.mail.resetURLs[0], "/reset-password?token=")
	})

	t.Run("unknown email behaves identically", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		require.NoError(t, env.auth.ForgotPassword("stranger@example.com"))
		assert.Empty(t, env.mail.sentTo)
	})

	t.Run("delivery failure is swallowed", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)
		env.mail.sendErr = errors.New("smtp unreachable")

		require.NoError(t, env.auth.ForgotPassword("alice@example.com"))
	})

	t.Run("issuing a new token invalidates the previous one", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		require.NoError(t, env.auth.ForgotPassword("alice@example.com"))
		require.NoError(t, env.auth.ForgotPassword("alice@example.com"))
		require.Len(t, env.mail.resetURLs, 2)

		firstToken := tokenFromURL(t, env.mail.resetURLs[0])
		secondToken := tokenFromURL(t, env.mail.resetURLs[1])

		err := env.auth.ResetPassword(firstToken, "newpassword456")
		require.Error(t, err)

		require.NoError(t, env.auth.ResetPassword(secondToken, "newpassword456"))
	})
}

func TestService_ResetPassword(t *testing.T) {
	t.Run("replaces password and revokes every session", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)
		_, err := env.auth.Login("alice", testutils.TestUsers.Alice.Password, "")
		require.NoError(t, err)

		require.NoError(t, env.auth.ForgotPassword("alice@example.com"))
		token := tokenFromURL(t, env.mail.resetURLs[0])

		require.NoError(t, env.auth.ResetPassword(token, "newpassword456"))

		sessions, err := env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		assert.Empty(t, sessions)

		_, err = env.auth.Login("alice", testutils.TestUsers.Alice.Password, "")
		require.Error(t, err)
		_, err = env.auth.Login("alice", "newpassword456", "")
		require.NoError(t, err)
	})

	t.Run("token is single use", func(t *testing.T) {
		env := newTestEnv(t)
		registerAlice(t, env)

		require.NoError(t, env.auth.ForgotPassword("alice@example.com"))
		token := tokenFromURL(t, env.mail.resetURLs[0])

		require.NoError(t, env.auth.ResetPassword(token, "newpassword456"))

		err := env.auth.ResetPassword(token, "anotherpassword789")
		require.Error(t, err)
		assert.Equal(t, passwordreset.ErrTokenInvalid.Error(), err.Error())
	})

	t.Run("invalid token", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.auth.ResetPassword(strings.Repeat("0", 64), "newpassword456")
		testutils.AssertErrorType(t, passwordreset.ErrTokenInvalid, err)
	})
}

func TestService_UpdatePassword(t *testing.T) {
	t.Run("existing sessions survive", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		err := env.auth.UpdatePassword(result.User.ID, testutils.TestUsers.Alice.Password, "newpassword456")
		require.NoError(t, err)

		sessions, err := env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)

		_, err = env.auth.Refresh(result.RefreshToken, "")
		require.NoError(t, err)

		_, err = env.auth.Login("alice", "newpassword456", "")
		require.NoError(t, err)
	})

	t.Run("wrong current password", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		err := env.auth.UpdatePassword(result.User.ID, "wrong", "newpassword456")
		testutils.AssertErrorType(t, user.ErrCurrentPasswordIncorrect, err)
	})
}

func TestService_RevokeSession(t *testing.T) {
	t.Run("revokes an owned session", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		sessions, err := env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 1)

		res := env.auth.RevokeSession(result.User.ID, sessions[0].TokenID)
		assert.True(t, res.Success)
		assert.Equal(t, "Session revoked successfully", res.Message)

		sessions, err = env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})

	t.Run("unknown session", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		res := env.auth.RevokeSession(result.User.ID, 9999)
		assert.False(t, res.Success)
		assert.Equal(t, "Session not found", res.Message)
	})

	t.Run("cannot revoke another user's session", func(t *testing.T) {
		env := newTestEnv(t)
		alice := registerAlice(t, env)
		bob, err := env.auth.Register(RegisterData{
			Username: testutils.TestUsers.Bob.Username,
			Name:     testutils.TestUsers.Bob.Name,
			Email:    testutils.TestUsers.Bob.Email,
			Password: testutils.TestUsers.Bob.Password,
		}, "")
		require.NoError(t, err)

		bobSessions, err := env.auth.GetUserSessions(bob.User.ID)
		require.NoError(t, err)
		require.Len(t, bobSessions, 1)

		res := env.auth.RevokeSession(alice.User.ID, bobSessions[0].TokenID)
		assert.False(t, res.Success)
		assert.Equal(t, "Session not found", res.Message)

		bobSessions, err = env.auth.GetUserSessions(bob.User.ID)
		require.NoError(t, err)
		assert.Len(t, bobSessions, 1)
	})

	t.Run("revoked session's refresh token stops working", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		laptop, err := env.auth.Login("alice", testutils.TestUsers.Alice.Password, "Firefox on Linux")
		require.NoError(t, err)
		_, err = env.auth.Login("alice", testutils.TestUsers.Alice.Password, "Safari on iOS")
		require.NoError(t, err)

		sessions, err := env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 3)

		var laptopSession *refreshtoken.Session
		for i := range sessions {
			if sessions[i].DeviceInfo == "Firefox on Linux" {
				laptopSession = &sessions[i]
			}
		}
		require.NotNil(t, laptopSession)

		res := env.auth.RevokeSession(result.User.ID, laptopSession.TokenID)
		require.True(t, res.Success)

		sessions, err = env.auth.GetUserSessions(result.User.ID)
		require.NoError(t, err)
		assert.Len(t, sessions, 2)

		_, err = env.auth.Refresh(laptop.RefreshToken, "")
		require.Error(t, err)
		assert.Equal(t, "Invalid or expired refresh token", err.Error())
	})
}

func TestService_ValidateAccessToken(t *testing.T) {
	t.Run("refresh token rejected", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)

		_, err := env.auth.ValidateAccessToken(result.RefreshToken)
		require.Error(t, err)
		assert.Equal(t, "Invalid token", err.Error())
	})

	t.Run("deleted user", func(t *testing.T) {
		env := newTestEnv(t)
		result := registerAlice(t, env)
		require.NoError(t, env.users.Delete(result.User.ID))

		_, err := env.auth.ValidateAccessToken(result.AccessToken)
		testutils.AssertErrorType(t, ErrUserNotFound, err)
	})
}

func tokenFromURL(t *testing.T, resetURL string) string {
	t.Helper()
	idx := strings.Index(resetURL, "token=")
	require.GreaterOrEqual(t, idx, 0)
	return resetURL[idx+len("token="):]
}
