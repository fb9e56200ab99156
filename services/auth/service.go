package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keepintouch/backend/apperror"
	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/services/jwt"
	"github.com/keepintouch/backend/services/logging"
	"github.com/keepintouch/backend/services/passwordreset"
	"github.com/keepintouch/backend/services/refreshtoken"
	"github.com/keepintouch/backend/services/user"
)

var (
	ErrAccountNotFound  = apperror.Unauthorized("Invalid credentials or account is inactive")
	ErrBadPassword      = apperror.Unauthorized("Invalid credentials")
	ErrInvalidTokenType = apperror.Unauthorized("Invalid token type")
	ErrTokenExpired     = apperror.Unauthorized("Token has expired")
	ErrTokenInvalid     = apperror.Unauthorized("Invalid token")
	ErrUserNotFound     = apperror.Unauthorized("User not found")
)

// MailSender is the outbound-email capability the reset flow needs.
type MailSender interface {
	SendPasswordReset(to, firstName, resetURL string, expiry time.Duration) error
}

type RegisterData struct {
	Username string
	Name     string
	Email    string
	Password string
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
}

type AuthResult struct {
	User user.PublicProfile
	Tokens
}

type RevocationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Service composes the token codec, both ledgers and the user store into the
// register/login/refresh/reset flows, and owns every cross-cutting invariant:
// refresh rotation, mass revocation on password reset, and the single active
// reset token per user.
type Service struct {
	config        *config.Config
	users         *user.Service
	tokens        *jwt.Service
	refreshTokens *refreshtoken.Service
	resetTokens   *passwordreset.Service
	mailSender    MailSender
	logger        *logging.Service
}

func NewService(
	cfg *config.Config,
	users *user.Service,
	tokens *jwt.Service,
	refreshTokens *refreshtoken.Service,
	resetTokens *passwordreset.Service,
	logger *logging.Service,
) *Service {
	return &Service{
		config:        cfg,
		users:         users,
		tokens:        tokens,
		refreshTokens: refreshTokens,
		resetTokens:   resetTokens,
		logger:        logger,
	}
}

func (s *Service) SetMailSender(sender MailSender) {
	s.mailSender = sender
}

// Register creates the account and immediately logs the new user in.
func (s *Service) Register(data RegisterData, deviceInfo string) (*AuthResult, error) {
	newUser, err := s.users.Create(user.CreateUserData{
		Username: data.Username,
		Name:     data.Name,
		Email:    data.Email,
		Password: data.Password,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(newUser.ID, deviceInfo)
	if err != nil {
		return nil, err
	}

	_ = s.users.UpdateLastSeen(newUser.ID)

	if s.logger != nil {
		s.logger.Info("user registered and logged in",
			zap.Uint("user_id", newUser.ID),
			zap.String("username", newUser.Username),
			zap.String("device_info", deviceInfo))
	}

	return &AuthResult{User: newUser.PublicProfile(), Tokens: *tokens}, nil
}

// Login authenticates by username or email. The unknown-identifier and
// wrong-password messages differ on purpose: the reference behavior exposes
// that distinction and callers assert on the exact texts.
func (s *Service) Login(identifier, password, deviceInfo string) (*AuthResult, error) {
	u, err := s.users.FindByUsernameOrEmail(identifier)
	if err != nil {
		return nil, err
	}
	if u == nil {
		if s.logger != nil {
			s.logger.Warn("login failed: unknown identifier", zap.String("identifier", identifier))
		}
		return nil, ErrAccountNotFound
	}

	if !s.users.VerifyPassword(u, password) {
		if s.logger != nil {
			s.logger.Warn("login failed: password mismatch", zap.Uint("user_id", u.ID))
		}
		return nil, ErrBadPassword
	}

	tokens, err := s.issueTokens(u.ID, deviceInfo)
	if err != nil {
		return nil, err
	}

	_ = s.users.UpdateLastSeen(u.ID)

	if s.logger != nil {
		s.logger.Info("user logged in",
			zap.Uint("user_id", u.ID),
			zap.String("username", u.Username),
			zap.String("device_info", deviceInfo))
	}

	return &AuthResult{User: u.PublicProfile(), Tokens: *tokens}, nil
}

// Refresh rotates a refresh token: it mints a new access/refresh pair, stores
// the new ledger record and revokes the old one. The two writes are
// sequential, not transactional; a crash in between can briefly leave both
// tokens valid, matching the reference behavior. With no crash the end state
// is always old-revoked, new-valid.
func (s *Service) Refresh(rawRefreshToken, deviceInfo string) (*Tokens, error) {
	if _, err := s.tokens.Verify(rawRefreshToken, jwt.TokenTypeRefresh); err != nil {
		return nil, mapTokenError(err)
	}

	record, err := s.refreshTokens.Validate(rawRefreshToken)
	if err != nil {
		return nil, err
	}

	exists, err := s.users.Exists(record.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if s.logger != nil {
			s.logger.Warn("refresh rejected: user no longer exists", zap.Uint("user_id", record.UserID))
		}
		return nil, ErrUserNotFound
	}

	if deviceInfo == "" {
		deviceInfo = record.DeviceInfo
	}

	tokens, err := s.issueTokens(record.UserID, deviceInfo)
	if err != nil {
		return nil, err
	}

	if err := s.refreshTokens.RevokeRecord(record); err != nil {
		return nil, err
	}

	_ = s.users.UpdateLastSeen(record.UserID)

	if s.logger != nil {
		s.logger.Info("refresh token rotated",
			zap.Uint("user_id", record.UserID),
			zap.Uint("old_token_id", record.ID))
	}

	return tokens, nil
}

// Logout never fails the caller: the client must always be able to discard
// its local tokens, so revocation problems are logged and swallowed.
func (s *Service) Logout(userID uint, rawRefreshToken string, logoutAllDevices bool) {
	switch {
	case logoutAllDevices:
		count, err := s.refreshTokens.RevokeAllForUser(userID)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("error during logout", zap.Error(err), zap.Uint("user_id", userID))
			}
			return
		}
		if s.logger != nil {
			s.logger.Info("user logged out from all devices",
				zap.Uint("user_id", userID),
				zap.Int64("revoked_tokens", count))
		}
	case rawRefreshToken != "":
		s.refreshTokens.Revoke(rawRefreshToken)
		if s.logger != nil {
			s.logger.Info("user logged out", zap.Uint("user_id", userID))
		}
	default:
		if s.logger != nil {
			s.logger.Info("logout initiated without refresh token", zap.Uint("user_id", userID))
		}
	}
}

// ForgotPassword looks identical to the caller whether or not the email
// belongs to an account, and whether or not delivery worked. Only storage
// failures propagate.
func (s *Service) ForgotPassword(email string) error {
	u, err := s.users.FindByUsernameOrEmail(email)
	if err != nil {
		return err
	}

	if u == nil {
		if s.logger != nil {
			s.logger.Warn("password reset requested for non-existent email", zap.String("email", email))
		}
		return nil
	}

	rawToken, record, err := s.resetTokens.Create(u.ID)
	if err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.config.App.FrontendURL, rawToken)

	if err := s.sendResetEmail(u, resetURL); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to send password reset email",
				zap.Error(err),
				zap.Uint("user_id", u.ID),
				zap.String("email", u.Email))

			if !s.config.IsProduction() {
				s.logger.Info("password reset token for development",
					zap.Uint("user_id", u.ID),
					zap.String("token", rawToken))
			}
		}
		return nil
	}

	if s.logger != nil {
		s.logger.Info("password reset email sent",
			zap.Uint("user_id", u.ID),
			zap.Uint("token_id", record.ID))
	}
	return nil
}

// ResetPassword consumes a reset token, replaces the password without a
// current-password check, and revokes every session the user holds.
func (s *Service) ResetPassword(rawToken, newPassword string) error {
	record, err := s.resetTokens.Validate(rawToken)
	if err != nil {
		return err
	}

	if err := s.users.SetPassword(record.UserID, newPassword); err != nil {
		return err
	}

	if err := s.resetTokens.MarkUsed(record); err != nil {
		return err
	}

	if _, err := s.refreshTokens.RevokeAllForUser(record.UserID); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("password reset completed",
			zap.Uint("user_id", record.UserID),
			zap.Uint("token_id", record.ID))
	}
	return nil
}

// UpdatePassword is the authenticated change. Unlike ResetPassword it leaves
// existing sessions untouched; only the reset flow mass-revokes.
func (s *Service) UpdatePassword(userID uint, currentPassword, newPassword string) error {
	return s.users.UpdatePassword(userID, currentPassword, newPassword)
}

func (s *Service) GetUserSessions(userID uint) ([]refreshtoken.Session, error) {
	return s.refreshTokens.ListActiveForUser(userID)
}

// RevokeSession revokes one of the caller's sessions. A missing or foreign
// token id is reported in the result, never as an error.
func (s *Service) RevokeSession(userID, tokenID uint) RevocationResult {
	if s.logger != nil {
		s.logger.Info("session revocation requested",
			zap.Uint("user_id", userID),
			zap.Uint("token_id", tokenID))
	}

	count, err := s.refreshTokens.RevokeByIDForUser(userID, tokenID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to revoke session",
				zap.Error(err),
				zap.Uint("user_id", userID),
				zap.Uint("token_id", tokenID))
		}
		return RevocationResult{Success: false, Message: "Failed to revoke session"}
	}

	if count == 0 {
		if s.logger != nil {
			s.logger.Warn("session not found for revocation",
				zap.Uint("user_id", userID),
				zap.Uint("token_id", tokenID))
		}
		return RevocationResult{Success: false, Message: "Session not found"}
	}

	return RevocationResult{Success: true, Message: "Session revoked successfully"}
}

// RevokeOtherSessions keeps one session alive and revokes the rest.
func (s *Service) RevokeOtherSessions(userID, keepTokenID uint) (int64, error) {
	return s.refreshTokens.RevokeAllExceptOne(userID, keepTokenID)
}

// ValidateAccessToken is the per-request primitive behind the auth
// middleware: signature, expiry, type and user existence all checked.
func (s *Service) ValidateAccessToken(rawToken string) (*user.User, error) {
	claims, err := s.tokens.Verify(rawToken, jwt.TokenTypeAccess)
	if err != nil {
		return nil, mapTokenError(err)
	}

	u, err := s.users.FindByID(claims.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	return u, nil
}

func (s *Service) issueTokens(userID uint, deviceInfo string) (*Tokens, error) {
	accessToken, err := s.tokens.GenerateAccessToken(userID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.GenerateRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.refreshTokens.Store(userID, refreshToken, deviceInfo); err != nil {
		return nil, err
	}

	return &Tokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *Service) sendResetEmail(u *user.User, resetURL string) error {
	if s.mailSender == nil {
		return errors.New("mail sender is not configured")
	}

	firstName := u.Name
	if idx := strings.IndexByte(firstName, ' '); idx > 0 {
		firstName = firstName[:idx]
	}

	return s.mailSender.SendPasswordReset(u.Email, firstName, resetURL, s.config.PasswordReset.Expiry)
}

// mapTokenError collapses codec failures into the 401s the boundary exposes,
// never leaking the JWT library's own error values.
func mapTokenError(err error) *apperror.Error {
	switch {
	case errors.Is(err, jwt.ErrExpiredToken):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrInvalidTokenType):
		return ErrInvalidTokenType
	default:
		return ErrTokenInvalid
	}
}
