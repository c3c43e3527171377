// models/invite.go
package models

import "time"

// Invite is one row of the admin CSV import — historical invite data from
// the previous campaign platform, keyed by that platform's user id.
type Invite struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	ExternalUserID         string     `gorm:"size:100;uniqueIndex;not null" json:"external_user_id"`
	SignupWalletAddress    *string    `gorm:"size:80" json:"signup_wallet_address,omitempty"`
	UserName               *string    `gorm:"size:120" json:"user_name,omitempty"`
	InvitedByUsername      *string    `gorm:"size:120" json:"invited_by_username,omitempty"`
	InvitedBySignupAddress *string    `gorm:"size:80" json:"invited_by_signup_address,omitempty"`
	CreatedAt              *time.Time `json:"created_at,omitempty"`
}
