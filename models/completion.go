// models/completion.go
package models

import "time"

// VerificationStatus of a completion attempt.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusFailed   = "failed"
)

// TaskCompletion is one verification attempt for a (user, task, day) tuple.
// The ledger holds at most one row per tuple: a failed or pending row is
// deleted and replaced when the user retries, a verified row is immutable
// for the day. The calendar day is derived from CompletedAt, not stored.
//
// Bones crediting is NOT done by the application: a database trigger adds
// BonesEarned to users.bones when a verified row is inserted.
type TaskCompletion struct {
	ID                 uint                   `gorm:"primaryKey" json:"id"`
	UserID             uint                   `gorm:"index;not null" json:"user_id"`
	TaskID             uint                   `gorm:"index;not null" json:"task_id"`
	CompletedAt        time.Time              `gorm:"autoCreateTime;index" json:"completed_at"`
	VerificationStatus string                 `gorm:"size:20;default:'pending'" json:"verification_status"`
	VerificationData   map[string]interface{} `gorm:"serializer:json" json:"verification_data"`
	BonesEarned        int                    `gorm:"default:0" json:"bones_earned"`

	User User `gorm:"foreignKey:UserID" json:"-"`
	Task Task `gorm:"foreignKey:TaskID" json:"-"`
}
