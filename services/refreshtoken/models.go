package refreshtoken

import (
	"time"

	"github.com/mileusna/useragent"
)

// RefreshToken tracks one issued refresh token. TokenHash is a bcrypt digest,
// never the raw token; a record is valid while it is neither revoked nor past
// its expiry. One user may hold several valid records at once, one per device.
type RefreshToken struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uint      `json:"user_id" gorm:"not null;index:idx_refresh_tokens_user_revoked"`
	TokenHash  string    `json:"-" gorm:"size:60;not null"`
	DeviceInfo string    `json:"device_info" gorm:"size:255"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"not null;index"`
	IsRevoked  bool      `json:"is_revoked" gorm:"default:false;index:idx_refresh_tokens_user_revoked"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *RefreshToken) IsValid() bool {
	return !t.IsRevoked && !t.IsExpired()
}

// Session is the caller-facing projection of an active record.
type Session struct {
	TokenID    uint      `json:"tokenId"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type Stats struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Expired int64 `json:"expired"`
	Revoked int64 `json:"revoked"`
}

// DeviceLabel condenses a User-Agent header into a short human-readable
// description for session listings.
func DeviceLabel(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.Parse(userAgentString)
	if ua.Name == "" {
		return userAgentString
	}

	label := ua.Name
	if ua.OS != "" {
		label += " on " + ua.OS
	}
	return label
}
