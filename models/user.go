// models/user.go
package models

import "time"

// User is keyed by wallet address. The Twitter fields stay nil until the
// OAuth dance completes; the token columns are secrets and never serialized.
type User struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	WalletAddress       string    `gorm:"size:42;uniqueIndex;not null" json:"wallet_address"`
	TwitterUsername     *string   `gorm:"size:50;uniqueIndex" json:"twitter_username,omitempty"`
	TwitterID           *string   `gorm:"size:50;uniqueIndex" json:"twitter_id,omitempty"`
	TwitterAccessToken  *string   `gorm:"type:text" json:"-"`
	TwitterRefreshToken *string   `gorm:"type:text" json:"-"`
	Bones               int       `gorm:"default:0;not null" json:"bones"`
	Rank                int       `gorm:"default:0;not null" json:"rank"`
	ReferralCode        *string   `gorm:"size:4;uniqueIndex" json:"referral_code,omitempty"`
	ReferredBy          *uint     `gorm:"index" json:"referred_by,omitempty"`
	Referrer            *User     `gorm:"foreignKey:ReferredBy" json:"-"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TwitterLinked reports whether the user has completed the OAuth dance.
func (u *User) TwitterLinked() bool {
	return u.TwitterUsername != nil && *u.TwitterUsername != ""
}
