package passwordreset

import (
	"time"
)

// PasswordResetToken is single-use and scoped to one user. TokenHash is a
// bcrypt digest of the raw token, which is only ever handed to the user via
// email. At most one unused record exists per user at a time.
type PasswordResetToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;index:idx_password_reset_tokens_user_used"`
	TokenHash string    `json:"-" gorm:"size:60;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	IsUsed    bool      `json:"is_used" gorm:"default:false;index:idx_password_reset_tokens_user_used"`
	CreatedAt time.Time `json:"created_at"`
}

func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}

func (t *PasswordResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *PasswordResetToken) IsValid() bool {
	return !t.IsUsed && !t.IsExpired()
}

type Stats struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Expired int64 `json:"expired"`
	Used    int64 `json:"used"`
}
