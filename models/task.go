// models/task.go
package models

import "time"

// TaskType enumerates the social actions a task can ask for.
type TaskType string

const (
	TaskTypeLike       TaskType = "like"
	TaskTypeRepost     TaskType = "repost"
	TaskTypeFollow     TaskType = "follow"
	TaskTypePublishTag TaskType = "publish_tag"
	TaskTypeComment    TaskType = "comment"
)

// RecurrenceType governs when a task is offered.
type RecurrenceType string

const (
	// RecurrenceSingleDay: offered only on ScheduledDate.
	RecurrenceSingleDay RecurrenceType = "single_day"
	// RecurrenceDailyRepeat: offered every day, completable once per day.
	RecurrenceDailyRepeat RecurrenceType = "daily_repeat"
	// RecurrenceOnceUntilDone: offered every day until first verified
	// completion, then never again for that user.
	RecurrenceOnceUntilDone RecurrenceType = "once_until_done"
)

// TaskData is the type-specific payload. TweetID accepts a bare numeric id
// or a status URL; Username accepts @handle, bare handle or a profile URL.
// Normalization happens at verification time, not on write.
type TaskData struct {
	TweetID  string `json:"tweetId,omitempty"`
	Username string `json:"username,omitempty"`
	Hashtag  string `json:"hashtag,omitempty"`
}

// Task is an admin-defined unit of engagement work.
type Task struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	ShortDescription string         `gorm:"type:text" json:"short_description"`
	ImageURL         string         `gorm:"size:500" json:"image_url"`
	TaskType         TaskType       `gorm:"size:50;not null" json:"task_type"`
	TaskData         TaskData       `gorm:"serializer:json" json:"task_data"`
	BonesReward      int            `gorm:"default:10;not null" json:"bones_reward"`
	IsRecurrent      bool           `gorm:"default:false" json:"is_recurrent"`
	RecurrenceType   RecurrenceType `gorm:"size:20;default:'single_day'" json:"recurrence_type"`
	ScheduledDate    *time.Time     `gorm:"type:date" json:"scheduled_date,omitempty"`
	IsActive         bool           `gorm:"default:true" json:"is_active"`
	CreatedBy        string         `gorm:"size:42;not null" json:"created_by"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidTaskType reports whether t is one of the known task types.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeLike, TaskTypeRepost, TaskTypeFollow, TaskTypePublishTag, TaskTypeComment:
		return true
	}
	return false
}

// ValidRecurrenceType reports whether r is one of the known recurrence types.
func ValidRecurrenceType(r RecurrenceType) bool {
	switch r {
	case RecurrenceSingleDay, RecurrenceDailyRepeat, RecurrenceOnceUntilDone:
		return true
	}
	return false
}
