// models/referral.go
package models

import "time"

// ReferralReward records the bonus credited to a referrer when a wallet
// registers with their code. One row per referred user.
type ReferralReward struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ReferrerID     uint      `gorm:"index;not null" json:"referrer_id"`
	ReferredUserID uint      `gorm:"index;not null" json:"referred_user_id"`
	BonesAwarded   int       `gorm:"default:100" json:"bones_awarded"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
