package user

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/keepintouch/backend/apperror"
	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/services/logging"
)

var (
	ErrUsernameTaken            = apperror.Conflict("Username already taken")
	ErrEmailTaken               = apperror.Conflict("Email already registered")
	ErrUserNotFound             = apperror.NotFound("User not found")
	ErrCurrentPasswordIncorrect = apperror.Unauthorized("Current password is incorrect")
)

type CreateUserData struct {
	Username string
	Name     string
	Email    string
	Password string
}

type UpdateProfileData struct {
	Name     string
	Username string
}

type Service struct {
	db     *gorm.DB
	config *config.Config
	logger *logging.Service
}

func NewService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		cfg.Auth.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// Create inserts a new user with a hashed password. When both the username and
// the email collide with existing users, the username conflict wins.
func (s *Service) Create(data CreateUserData) (*User, error) {
	username := strings.TrimSpace(data.Username)
	email := strings.ToLower(strings.TrimSpace(data.Email))

	// Checked separately so the username conflict wins even when the
	// colliding username and email belong to two different users.
	var usernameCount int64
	if err := s.db.Model(&User{}).Where("username = ?", username).Count(&usernameCount).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing users: %w", err)
	}
	if usernameCount > 0 {
		return nil, ErrUsernameTaken
	}

	var emailCount int64
	if err := s.db.Model(&User{}).Where("email = ?", email).Count(&emailCount).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing users: %w", err)
	}
	if emailCount > 0 {
		return nil, ErrEmailTaken
	}

	if len(data.Password) < s.config.Auth.MinPasswordLength {
		return nil, apperror.BadRequest(
			fmt.Sprintf("Password must be at least %d characters long", s.config.Auth.MinPasswordLength))
	}

	hash, err := s.hashPassword(data.Password)
	if err != nil {
		return nil, err
	}

	newUser := User{
		Username: username,
		Name:     strings.TrimSpace(data.Name),
		Email:    email,
		Password: hash,
		Role:     RoleUser,
		LastSeen: time.Now(),
	}

	if err := s.db.Create(&newUser).Error; err != nil {
		// A concurrent insert can slip past the pre-checks and trip the
		// unique index instead.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			var count int64
			if s.db.Model(&User{}).Where("username = ?", username).Count(&count).Error == nil && count > 0 {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}
		if s.logger != nil {
			s.logger.Error("failed to create user", zap.Error(err), zap.String("username", username))
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("user created",
			zap.Uint("user_id", newUser.ID),
			zap.String("username", newUser.Username),
			zap.String("email", newUser.Email))
	}

	return &newUser, nil
}

// FindByUsernameOrEmail resolves a login identifier. Usernames match exactly;
// emails match case-insensitively because they are stored lowercased.
func (s *Service) FindByUsernameOrEmail(identifier string) (*User, error) {
	var u User
	err := s.db.Where("username = ? OR email = ?", identifier, strings.ToLower(identifier)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &u, nil
}

func (s *Service) FindByID(userID uint) (*User, error) {
	var u User
	err := s.db.First(&u, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &u, nil
}

func (s *Service) Exists(userID uint) (bool, error) {
	var count int64
	if err := s.db.Model(&User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return count > 0, nil
}

// VerifyPassword compares a candidate password against the stored hash.
func (s *Service) VerifyPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// UpdatePassword is the authenticated password change: the current password
// must verify first. It does not touch refresh tokens.
func (s *Service) UpdatePassword(userID uint, currentPassword, newPassword string) error {
	u, err := s.FindByID(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}

	if !s.VerifyPassword(u, currentPassword) {
		if s.logger != nil {
			s.logger.Warn("password update rejected: current password mismatch",
				zap.Uint("user_id", userID))
		}
		return ErrCurrentPasswordIncorrect
	}

	return s.SetPassword(userID, newPassword)
}

// SetPassword replaces the stored hash without verifying the current password.
// Only the reset-password flow may use it directly.
func (s *Service) SetPassword(userID uint, newPassword string) error {
	if len(newPassword) < s.config.Auth.MinPasswordLength {
		return apperror.BadRequest(
			fmt.Sprintf("Password must be at least %d characters long", s.config.Auth.MinPasswordLength))
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	result := s.db.Model(&User{}).Where("id = ?", userID).Update("password", hash)
	if result.Error != nil {
		return fmt.Errorf("failed to update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	if s.logger != nil {
		s.logger.Info("password updated", zap.Uint("user_id", userID))
	}
	return nil
}

func (s *Service) UpdateLastSeen(userID uint) error {
	err := s.db.Model(&User{}).Where("id = ?", userID).Update("last_seen", time.Now()).Error
	if err != nil && s.logger != nil {
		s.logger.Warn("failed to update last seen", zap.Error(err), zap.Uint("user_id", userID))
	}
	return err
}

// UpdateProfile changes name and/or username. A username move onto another
// user's name is a conflict.
func (s *Service) UpdateProfile(userID uint, data UpdateProfileData) (*User, error) {
	updates := map[string]any{}

	if data.Username != "" {
		var count int64
		err := s.db.Model(&User{}).
			Where("username = ? AND id <> ?", data.Username, userID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check username availability: %w", err)
		}
		if count > 0 {
			return nil, ErrUsernameTaken
		}
		updates["username"] = data.Username
	}
	if data.Name != "" {
		updates["name"] = data.Name
	}

	if len(updates) > 0 {
		result := s.db.Model(&User{}).Where("id = ?", userID).Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update profile: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}

	u, err := s.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	if s.logger != nil {
		s.logger.Info("user profile updated",
			zap.Uint("user_id", userID),
			zap.Int("updated_fields", len(updates)))
	}
	return u, nil
}

// Delete removes the account permanently.
func (s *Service) Delete(userID uint) error {
	result := s.db.Delete(&User{}, userID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	if s.logger != nil {
		s.logger.Info("user account deleted", zap.Uint("user_id", userID))
	}
	return nil
}

func (s *Service) GetByIDs(userIDs []uint) ([]User, error) {
	var users []User
	if len(userIDs) == 0 {
		return users, nil
	}
	if err := s.db.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

// List pages through all accounts, newest first.
func (s *Service) List(limit, offset int) ([]User, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.Model(&User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []User
	err := s.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// Search matches username or name, case-insensitively, excluding the caller.
func (s *Service) Search(term string, excludeUserID uint, limit int) ([]PublicProfile, error) {
	if limit <= 0 {
		limit = 10
	}

	pattern := "%" + strings.ToLower(term) + "%"
	var users []User
	err := s.db.
		Where("(LOWER(username) LIKE ? OR LOWER(name) LIKE ?) AND id <> ?", pattern, pattern, excludeUserID).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	profiles := make([]PublicProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].PublicProfile())
	}
	return profiles, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.Auth.BcryptCost)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("password hashing failed", zap.Error(err))
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
