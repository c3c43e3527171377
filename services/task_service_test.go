package services

import (
	"testing"
	"time"

	"bones-api/models"

	"gorm.io/gorm"
)

func seedTask(t *testing.T, db *gorm.DB, task models.Task) models.Task {
	t.Helper()
	if task.BonesReward == 0 {
		task.BonesReward = 10
	}
	task.IsActive = true
	task.CreatedBy = "0xadmin"
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func TestTasksForTodayRecurrence(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "0xwallet1", "token")
	service := NewTaskService(db)

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	scheduledToday := seedTask(t, db, models.Task{
		Title: "Like today", TaskType: models.TaskTypeLike,
		RecurrenceType: models.RecurrenceSingleDay, ScheduledDate: &today,
	})
	seedTask(t, db, models.Task{
		Title: "Like yesterday", TaskType: models.TaskTypeLike,
		RecurrenceType: models.RecurrenceSingleDay, ScheduledDate: &yesterday,
	})
	daily := seedTask(t, db, models.Task{
		Title: "Daily repost", TaskType: models.TaskTypeRepost,
		RecurrenceType: models.RecurrenceDailyRepeat,
	})
	once := seedTask(t, db, models.Task{
		Title: "Follow us", TaskType: models.TaskTypeFollow,
		RecurrenceType: models.RecurrenceOnceUntilDone,
	})

	inactive := models.Task{
		Title: "Disabled", TaskType: models.TaskTypeLike,
		RecurrenceType: models.RecurrenceDailyRepeat,
		BonesReward:    10, CreatedBy: "0xadmin",
	}
	if err := db.Create(&inactive).Error; err != nil {
		t.Fatalf("seed inactive task: %v", err)
	}
	if err := db.Model(&inactive).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate task: %v", err)
	}

	views, err := service.TasksForToday(user.ID, now)
	if err != nil {
		t.Fatalf("TasksForToday: %v", err)
	}

	got := map[uint]bool{}
	for _, v := range views {
		got[v.ID] = true
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 tasks, got %d: %+v", len(views), views)
	}
	for _, want := range []models.Task{scheduledToday, daily, once} {
		if !got[want.ID] {
			t.Errorf("expected task %q in today's list", want.Title)
		}
	}
}

func TestTasksForTodayOnceUntilDoneHiddenForever(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "0xwallet2", "token")
	service := NewTaskService(db)

	once := seedTask(t, db, models.Task{
		Title: "Follow us", TaskType: models.TaskTypeFollow,
		RecurrenceType: models.RecurrenceOnceUntilDone,
	})
	daily := seedTask(t, db, models.Task{
		Title: "Daily like", TaskType: models.TaskTypeLike,
		RecurrenceType: models.RecurrenceDailyRepeat,
	})

	// Both verified yesterday.
	yesterday := time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)
	for _, task := range []models.Task{once, daily} {
		completion := models.TaskCompletion{
			UserID: user.ID, TaskID: task.ID,
			CompletedAt:        yesterday,
			VerificationStatus: models.StatusVerified,
			BonesEarned:        task.BonesReward,
		}
		if err := db.Create(&completion).Error; err != nil {
			t.Fatalf("seed completion: %v", err)
		}
	}

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	views, err := service.TasksForToday(user.ID, now)
	if err != nil {
		t.Fatalf("TasksForToday: %v", err)
	}

	if len(views) != 1 {
		t.Fatalf("expected only the daily task, got %d views", len(views))
	}
	if views[0].ID != daily.ID {
		t.Fatalf("expected daily task %d, got %d", daily.ID, views[0].ID)
	}
	// Yesterday's completion must not mark today's offering as done.
	if views[0].IsCompleted {
		t.Error("daily task should be offered fresh today")
	}
}

func TestTasksForTodayFoldsTodaysAttempt(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "0xwallet3", "token")
	service := NewTaskService(db)

	task := seedTask(t, db, models.Task{
		Title: "Daily like", TaskType: models.TaskTypeLike,
		RecurrenceType: models.RecurrenceDailyRepeat,
	})

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	completion := models.TaskCompletion{
		UserID: user.ID, TaskID: task.ID,
		CompletedAt:        now.Add(-time.Hour),
		VerificationStatus: models.StatusFailed,
	}
	if err := db.Create(&completion).Error; err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	views, err := service.TasksForToday(user.ID, now)
	if err != nil {
		t.Fatalf("TasksForToday: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	view := views[0]
	if !view.IsCompleted {
		t.Error("expected today's attempt folded in")
	}
	if view.VerificationStatus == nil || *view.VerificationStatus != models.StatusFailed {
		t.Errorf("expected failed status, got %v", view.VerificationStatus)
	}
	if view.BonesEarned != 0 {
		t.Errorf("failed attempt must carry no bones, got %d", view.BonesEarned)
	}

	// Listing is read-only: a second call returns the same thing.
	again, err := service.TasksForToday(user.ID, now)
	if err != nil {
		t.Fatalf("TasksForToday second call: %v", err)
	}
	if len(again) != 1 || again[0].ID != view.ID || !again[0].IsCompleted {
		t.Errorf("second listing diverged: %+v", again)
	}
}

func TestDayRange(t *testing.T) {
	at := time.Date(2025, 6, 15, 23, 59, 59, 0, time.UTC)
	start, end := DayRange(at)
	if !start.Equal(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected day start: %v", start)
	}
	if !end.Equal(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected day end: %v", end)
	}
}
