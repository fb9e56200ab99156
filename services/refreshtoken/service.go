package refreshtoken

import (
	"crypto/sha256"
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
	ErrTokenRequired = apperror.Unauthorized("Refresh token is required")
	ErrTokenInvalid  = apperror.Unauthorized("Invalid or expired refresh token")
)

type Service struct {
	db          *gorm.DB
	config      *config.Config
	logger      *logging.Service
	stopCleanup chan struct{}
}

func NewService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	if cfg.RefreshToken.BcryptCost < bcrypt.MinCost || cfg.RefreshToken.BcryptCost > bcrypt.MaxCost {
		cfg.RefreshToken.BcryptCost = 12
	}

	if logger != nil {
		logger.Info("initializing refresh token ledger",
			zap.Duration("token_expiry", cfg.JWT.RefreshExpiry),
			zap.Int("bcrypt_cost", cfg.RefreshToken.BcryptCost),
			zap.Duration("cleanup_interval", cfg.RefreshToken.CleanupInterval))
	}

	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// Store records an issued refresh token. Only a salted bcrypt digest of the
// token is persisted.
func (s *Service) Store(userID uint, rawToken, deviceInfo string) (*RefreshToken, error) {
	hash, err := s.hashToken(rawToken)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to hash refresh token", zap.Error(err), zap.Uint("user_id", userID))
		}
		return nil, fmt.Errorf("failed to hash refresh token: %w", err)
	}

	record := RefreshToken{
		UserID:     userID,
		TokenHash:  hash,
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(s.config.JWT.RefreshExpiry),
	}

	if err := s.db.Create(&record).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to store refresh token", zap.Error(err), zap.Uint("user_id", userID))
		}
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("refresh token stored",
			zap.Uint("user_id", userID),
			zap.Uint("token_id", record.ID),
			zap.Time("expires_at", record.ExpiresAt),
			zap.String("device_info", deviceInfo))
	}

	return &record, nil
}

// Validate finds the ledger record matching a raw token. Hashes are salted
// per record, so there is no lookup column to index on: every live record is
// loaded and compared until one matches. Two concurrent calls with the same
// token can both succeed before either caller revokes the record; that race
// is inherent to scan-then-mutate and is left as is.
func (s *Service) Validate(rawToken string) (*RefreshToken, error) {
	if rawToken == "" {
		return nil, ErrTokenRequired
	}

	var candidates []RefreshToken
	err := s.db.
		Where("is_revoked = ? AND expires_at > ?", false, time.Now()).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh tokens: %w", err)
	}

	digest := preDigest(rawToken)
	for i := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].TokenHash), digest) == nil {
			if !candidates[i].IsValid() {
				return nil, ErrTokenInvalid
			}

			if s.logger != nil {
				s.logger.Info("refresh token validated",
					zap.Uint("user_id", candidates[i].UserID),
					zap.Uint("token_id", candidates[i].ID))
			}
			return &candidates[i], nil
		}
	}

	if s.logger != nil {
		s.logger.Warn("refresh token validation failed: no matching record")
	}
	return nil, ErrTokenInvalid
}

// Revoke flips the record matching rawToken. An unknown or already-revoked
// token is treated as revoked: logout must always appear to succeed.
func (s *Service) Revoke(rawToken string) {
	record, err := s.Validate(rawToken)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("attempted to revoke invalid refresh token", zap.Error(err))
		}
		return
	}

	if err := s.revokeRecord(record); err != nil && s.logger != nil {
		s.logger.Warn("failed to revoke refresh token",
			zap.Error(err),
			zap.Uint("token_id", record.ID))
	}
}

// RevokeRecord marks a previously validated record revoked.
func (s *Service) RevokeRecord(record *RefreshToken) error {
	return s.revokeRecord(record)
}

func (s *Service) revokeRecord(record *RefreshToken) error {
	err := s.db.Model(&RefreshToken{}).
		Where("id = ?", record.ID).
		Update("is_revoked", true).Error
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	record.IsRevoked = true

	if s.logger != nil {
		s.logger.Info("refresh token revoked",
			zap.Uint("user_id", record.UserID),
			zap.Uint("token_id", record.ID))
	}
	return nil
}

// RevokeAllForUser flips every live record of one user and reports how many
// it touched. Zero matches is not an error.
func (s *Service) RevokeAllForUser(userID uint) (int64, error) {
	result := s.db.Model(&RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revoke user refresh tokens: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("all user refresh tokens revoked",
			zap.Uint("user_id", userID),
			zap.Int64("revoked_count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// RevokeAllExceptOne flips every live record of the user but the one to keep.
func (s *Service) RevokeAllExceptOne(userID, keepTokenID uint) (int64, error) {
	result := s.db.Model(&RefreshToken{}).
		Where("user_id = ? AND id <> ? AND is_revoked = ?", userID, keepTokenID, false).
		Update("is_revoked", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revoke other refresh tokens: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("other user refresh tokens revoked",
			zap.Uint("user_id", userID),
			zap.Uint("kept_token_id", keepTokenID),
			zap.Int64("revoked_count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// RevokeByIDForUser flips a single record, scoped to its owner so one user
// cannot revoke another user's session.
func (s *Service) RevokeByIDForUser(userID, tokenID uint) (int64, error) {
	result := s.db.Model(&RefreshToken{}).
		Where("id = ? AND user_id = ? AND is_revoked = ?", tokenID, userID, false).
		Update("is_revoked", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("refresh token revoked by id",
			zap.Uint("user_id", userID),
			zap.Uint("token_id", tokenID),
			zap.Int64("revoked_count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// ListActiveForUser returns the user's live sessions, newest first.
func (s *Service) ListActiveForUser(userID uint) ([]Session, error) {
	var records []RefreshToken
	err := s.db.
		Where("user_id = ? AND is_revoked = ? AND expires_at > ?", userID, false, time.Now()).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active refresh tokens: %w", err)
	}

	sessions := make([]Session, 0, len(records))
	for i := range records {
		sessions = append(sessions, Session{
			TokenID:    records[i].ID,
			DeviceInfo: records[i].DeviceInfo,
			CreatedAt:  records[i].CreatedAt,
			ExpiresAt:  records[i].ExpiresAt,
		})
	}
	return sessions, nil
}

// CleanupExpired hard-deletes revoked or expired rows. Garbage collection
// only; validity never depends on it.
func (s *Service) CleanupExpired() (int64, error) {
	result := s.db.
		Where("is_revoked = ? OR expires_at < ?", true, time.Now()).
		Delete(&RefreshToken{})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to cleanup refresh tokens", zap.Error(result.Error))
		}
		return 0, fmt.Errorf("failed to cleanup refresh tokens: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("cleaned up refresh tokens", zap.Int64("deleted_count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// GetStats reports counts for monitoring. The predicates overlap (a revoked
// token may also be expired), so the numbers are independent counts rather
// than a partition.
func (s *Service) GetStats() (*Stats, error) {
	now := time.Now()
	stats := &Stats{}

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.Total, s.db.Model(&RefreshToken{})},
		{&stats.Active, s.db.Model(&RefreshToken{}).Where("is_revoked = ? AND expires_at > ?", false, now)},
		{&stats.Expired, s.db.Model(&RefreshToken{}).Where("expires_at <= ?", now)},
		{&stats.Revoked, s.db.Model(&RefreshToken{}).Where("is_revoked = ?", true)},
	}

	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count refresh tokens: %w", err)
		}
	}
	return stats, nil
}

func (s *Service) StartCleanupWorker() {
	s.stopCleanup = make(chan struct{})

	go func(stop <-chan struct{}) {
		ticker := time.NewTicker(s.config.RefreshToken.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.CleanupExpired(); err != nil && s.logger != nil {
					s.logger.Error("refresh token cleanup worker failed", zap.Error(err))
				}
			case <-stop:
				return
			}
		}
	}(s.stopCleanup)

	if s.logger != nil {
		s.logger.Info("started refresh token cleanup worker",
			zap.Duration("interval", s.config.RefreshToken.CleanupInterval))
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

// hashToken produces the at-rest digest: bcrypt over the hex SHA-256 of the
// raw token. Raw refresh tokens are JWTs longer than bcrypt's 72-byte input
// limit, so they are pre-digested; the bcrypt layer keeps the per-record salt
// and the deliberately slow compare.
func (s *Service) hashToken(rawToken string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(preDigest(rawToken), s.config.RefreshToken.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func preDigest(rawToken string) []byte {
	digest := sha256.Sum256([]byte(rawToken))
	return []byte(hex.EncodeToString(digest[:]))
}
