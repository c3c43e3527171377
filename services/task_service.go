// services/task_service.go
package services

import (
	"errors"
	"log"
	"time"

	"bones-api/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TaskService struct {
	DB *gorm.DB
}

func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{DB: db}
}

// DailyTaskView is what the client sees for one offered task, with the
// user's completion state for today folded in.
type DailyTaskView struct {
	ID                 uint                  `json:"id"`
	Title              string                `json:"title"`
	ShortDescription   string                `json:"short_description"`
	ImageURL           string                `json:"image_url"`
	TaskType           models.TaskType       `json:"task_type"`
	TaskData           models.TaskData       `json:"task_data"`
	BonesReward        int                   `json:"bones_reward"`
	RecurrenceType     models.RecurrenceType `json:"recurrence_type"`
	IsCompleted        bool                  `json:"is_completed"`
	VerificationStatus *string               `json:"verification_status,omitempty"`
	BonesEarned        int                   `json:"bones_earned"`
}

// DayRange returns the [start, end) window of the calendar day containing t,
// in t's location. The service runs day logic in UTC.
func DayRange(t time.Time) (time.Time, time.Time) {
	year, month, day := t.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// ListDaily handles GET /api/tasks/daily?wallet=
func (s *TaskService) ListDaily(c *fiber.Ctx) error {
	wallet := c.Query("wallet")
	if wallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Wallet address required"})
	}

	var user models.User
	if err := s.DB.Where("wallet_address = ?", wallet).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		log.Printf("DB Error fetching user for daily tasks: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch tasks"})
	}

	views, err := s.TasksForToday(user.ID, time.Now().UTC())
	if err != nil {
		log.Printf("DB Error listing daily tasks: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch tasks"})
	}

	return c.JSON(fiber.Map{"tasks": views})
}

// TasksForToday applies the eligibility policy for the calendar day
// containing now: active tasks whose recurrence admits today, minus
// once_until_done tasks the user has ever completed, with today's attempt
// (if any) folded into each view.
func (s *TaskService) TasksForToday(userID uint, now time.Time) ([]DailyTaskView, error) {
	dayStart, dayEnd := DayRange(now)

	var tasks []models.Task
	if err := s.DB.
		Where("is_active = ?", true).
		Where("(recurrence_type = ? AND scheduled_date >= ? AND scheduled_date < ?) OR recurrence_type IN ?",
			models.RecurrenceSingleDay, dayStart, dayEnd,
			[]models.RecurrenceType{models.RecurrenceDailyRepeat, models.RecurrenceOnceUntilDone}).
		Order("created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}

	var todays []models.TaskCompletion
	if err := s.DB.
		Where("user_id = ? AND completed_at >= ? AND completed_at < ?", userID, dayStart, dayEnd).
		Find(&todays).Error; err != nil {
		return nil, err
	}

	var verifiedTaskIDs []uint
	if err := s.DB.Model(&models.TaskCompletion{}).
		Where("user_id = ? AND verification_status = ?", userID, models.StatusVerified).
		Distinct().
		Pluck("task_id", &verifiedTaskIDs).Error; err != nil {
		return nil, err
	}
	everVerified := make(map[uint]bool, len(verifiedTaskIDs))
	for _, id := range verifiedTaskIDs {
		everVerified[id] = true
	}

	return EligibleToday(tasks, todays, everVerified), nil
}

// EligibleToday is the pure post-filter and view assembly. once_until_done
// tasks disappear for good after the first verified completion, on any day;
// single_day and daily_repeat reflect only today's attempt, so a
// daily_repeat task completed yesterday is offered fresh today.
func EligibleToday(tasks []models.Task, todays []models.TaskCompletion, everVerified map[uint]bool) []DailyTaskView {
	byTask := make(map[uint]models.TaskCompletion, len(todays))
	for _, completion := range todays {
		byTask[completion.TaskID] = completion
	}

	views := make([]DailyTaskView, 0, len(tasks))
	for _, task := range tasks {
		if task.RecurrenceType == models.RecurrenceOnceUntilDone && everVerified[task.ID] {
			continue
		}

		view := DailyTaskView{
			ID:               task.ID,
			Title:            task.Title,
			ShortDescription: task.ShortDescription,
			ImageURL:         task.ImageURL,
			TaskType:         task.TaskType,
			TaskData:         task.TaskData,
			BonesReward:      task.BonesReward,
			RecurrenceType:   task.RecurrenceType,
		}
		if completion, ok := byTask[task.ID]; ok {
			status := completion.VerificationStatus
			view.IsCompleted = true
			view.VerificationStatus = &status
			view.BonesEarned = completion.BonesEarned
		}
		views = append(views, view)
	}
	return views
}
