package passwordreset

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/keepintouch/backend/apperror"
	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/services/logging"
)

var (
	ErrTokenRequired = apperror.BadRequest("Password reset token is required")
	ErrTokenInvalid  = apperror.BadRequest("Invalid or expired password reset token")
)

type Service struct {
	db          *gorm.DB
	config      *config.Config
	logger      *logging.Service
	stopCleanup chan struct{}
}

func NewService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	if cfg.PasswordReset.BcryptCost < bcrypt.MinCost || cfg.PasswordReset.BcryptCost > bcrypt.MaxCost {
		cfg.PasswordReset.BcryptCost = 12
	}
	if cfg.PasswordReset.TokenLength <= 0 {
		cfg.PasswordReset.TokenLength = 32
	}

	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// Create issues a new reset token for the user, invalidating any unused ones
// first so at most one token is ever live per user. The raw token is returned
// exactly once; only its bcrypt digest is stored.
func (s *Service) Create(userID uint) (string, *PasswordResetToken, error) {
	result := s.db.Model(&PasswordResetToken{}).
		Where("user_id = ? AND is_used = ?", userID, false).
		Update("is_used", true)
	if result.Error != nil {
		return "", nil, fmt.Errorf("failed to invalidate prior reset tokens: %w", result.Error)
	}
	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Debug("invalidated prior password reset tokens",
			zap.Uint("user_id", userID),
			zap.Int64("count", result.RowsAffected))
	}

	rawToken, err := s.generateToken()
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to generate password reset token", zap.Error(err), zap.Uint("user_id", userID))
		}
		return "", nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawToken), s.config.PasswordReset.BcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash password reset token: %w", err)
	}

	record := PasswordResetToken{
		UserID:    userID,
		TokenHash: string(hash),
		ExpiresAt: time.Now().Add(s.config.PasswordReset.Expiry),
	}

	if err := s.db.Create(&record).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to store password reset token", zap.Error(err), zap.Uint("user_id", userID))
		}
		return "", nil, fmt.Errorf("failed to store password reset token: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("password reset token created",
			zap.Uint("user_id", userID),
			zap.Uint("token_id", record.ID),
			zap.Time("expires_at", record.ExpiresAt))
	}

	return rawToken, &record, nil
}

// Validate resolves a raw token to its record by scanning unused, unexpired
// records and bcrypt-comparing each. Failures are 400-class: the caller is
// unauthenticated by definition, so this is input validation, not auth.
func (s *Service) Validate(rawToken string) (*PasswordResetToken, error) {
	if rawToken == "" {
		return nil, ErrTokenRequired
	}

	var candidates []PasswordResetToken
	err := s.db.
		Where("is_used = ? AND expires_at > ?", false, time.Now()).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load password reset tokens: %w", err)
	}

	for i := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].TokenHash), []byte(rawToken)) == nil {
			if !candidates[i].IsValid() {
				return nil, ErrTokenInvalid
			}

			if s.logger != nil {
				s.logger.Info("password reset token validated",
					zap.Uint("user_id", candidates[i].UserID),
					zap.Uint("token_id", candidates[i].ID))
			}
			return &candidates[i], nil
		}
	}

	if s.logger != nil {
		s.logger.Warn("password reset token validation failed: no matching record")
	}
	return nil, ErrTokenInvalid
}

// MarkUsed consumes a token. Marking an already-used record again is a no-op.
func (s *Service) MarkUsed(record *PasswordResetToken) error {
	if record.IsUsed {
		return nil
	}

	err := s.db.Model(&PasswordResetToken{}).
		Where("id = ?", record.ID).
		Update("is_used", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark password reset token as used: %w", err)
	}
	record.IsUsed = true

	if s.logger != nil {
		s.logger.Info("password reset token marked as used",
			zap.Uint("user_id", record.UserID),
			zap.Uint("token_id", record.ID))
	}
	return nil
}

// CleanupExpired hard-deletes used or expired rows.
func (s *Service) CleanupExpired() (int64, error) {
	result := s.db.
		Where("is_used = ? OR expires_at < ?", true, time.Now()).
		Delete(&PasswordResetToken{})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to cleanup password reset tokens", zap.Error(result.Error))
		}
		return 0, fmt.Errorf("failed to cleanup password reset tokens: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("cleaned up password reset tokens", zap.Int64("deleted_count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// GetStats reports independent counts; the predicates are allowed to overlap.
func (s *Service) GetStats() (*Stats, error) {
	now := time.Now()
	stats := &Stats{}

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.Total, s.db.Model(&PasswordResetToken{})},
		{&stats.Active, s.db.Model(&PasswordResetToken{}).Where("is_used = ? AND expires_at > ?", false, now)},
		{&stats.Expired, s.db.Model(&PasswordResetToken{}).Where("expires_at <= ?", now)},
		{&stats.Used, s.db.Model(&PasswordResetToken{}).Where("is_used = ?", true)},
	}

	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count password reset tokens: %w", err)
		}
	}
	return stats, nil
}

func (s *Service) StartCleanupWorker() {
	s.stopCleanup = make(chan struct{})

	go func(stop <-chan struct{}) {
		ticker := time.NewTicker(s.config.PasswordReset.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.CleanupExpired(); err != nil && s.logger != nil {
					s.logger.Error("password reset cleanup worker failed", zap.Error(err))
				}
			case <-stop:
				return
			}
		}
	}(s.stopCleanup)

	if s.logger != nil {
		s.logger.Info("started password reset cleanup worker",
			zap.Duration("interval", s.config.PasswordReset.CleanupInterval))
	}
}

// StopCleanupWorker ends the background cleanup loop. Safe to call when the
// worker was never started.
func (s *Service) StopCleanupWorker() {
	if s.stopCleanup != nil {
		close(s.stopCleanup)
		s.stopCleanup = nil
	}
}

func (s *Service) generateToken() (string, error) {
	bytes := make([]byte, s.config.PasswordReset.TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
