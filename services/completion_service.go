// services/completion_service.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"bones-api/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ErrAlreadyCompleted marks the one expected conflict of the verify flow: a
// verified attempt already exists for (user, task, today).
var ErrAlreadyCompleted = errors.New("task already completed today")

// CompletionService owns the ledger transition rule: at most one attempt row
// per (user, task, day), verified rows immutable for the day, failed rows
// deleted and replaced on retry. The one-row rule is enforced by a unique
// index over (user_id, task_id, day of completed_at), installed in main's
// migrations, so concurrent attempts cannot both insert.
type CompletionService struct {
	DB       *gorm.DB
	Verifier *VerificationService
}

func NewCompletionService(db *gorm.DB, verifier *VerificationService) *CompletionService {
	return &CompletionService{DB: db, Verifier: verifier}
}

// VerifyTask handles POST /api/tasks/verify {taskId, walletAddress}
func (s *CompletionService) VerifyTask(c *fiber.Ctx) error {
	var req struct {
		TaskID        uint   `json:"taskId"`
		WalletAddress string `json:"walletAddress"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TaskID == 0 || req.WalletAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing required fields"})
	}

	var user models.User
	if err := s.DB.Where("wallet_address = ?", req.WalletAddress).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		log.Printf("DB Error fetching user for verify: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify task"})
	}

	var task models.Task
	if err := s.DB.First(&task, req.TaskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Task not found"})
		}
		log.Printf("DB Error fetching task for verify: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify task"})
	}

	result, attempt, err := s.RecordAttempt(c.Context(), &task, &user, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Task already completed today"})
		}
		log.Printf("DB Error recording completion attempt: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify task"})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"verified":    result.Verified,
		"bonesEarned": attempt.BonesEarned,
		"message":     result.Message,
	})
}

// RecordAttempt runs one verification attempt for (user, task) on the
// calendar day containing now and writes the outcome to the ledger.
//
// The bones credit itself is applied by the database trigger reacting to the
// inserted verified row — this procedure never touches users.bones.
func (s *CompletionService) RecordAttempt(ctx context.Context, task *models.Task, user *models.User, now time.Time) (VerifyResult, *models.TaskCompletion, error) {
	dayStart, dayEnd := DayRange(now)

	// Cheap pre-check before spending Twitter API calls.
	if verified, err := s.verifiedToday(s.DB, user.ID, task.ID, dayStart, dayEnd); err != nil {
		return VerifyResult{}, nil, err
	} else if verified {
		return VerifyResult{}, nil, ErrAlreadyCompleted
	}

	result := s.Verifier.Verify(ctx, task, user)

	attempt := &models.TaskCompletion{
		UserID:           user.ID,
		TaskID:           task.ID,
		CompletedAt:      now,
		VerificationData: result.Data,
	}
	if result.Verified {
		attempt.VerificationStatus = models.StatusVerified
		attempt.BonesEarned = task.BonesReward
	} else {
		attempt.VerificationStatus = models.StatusFailed
		attempt.BonesEarned = 0
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Re-check inside the transaction: catches a concurrent attempt that
		// committed a verified row after the pre-check above.
		if verified, err := s.verifiedToday(tx, user.ID, task.ID, dayStart, dayEnd); err != nil {
			return err
		} else if verified {
			return ErrAlreadyCompleted
		}

		// Retry path: drop the previous failed/pending attempt for today.
		// Verified rows are explicitly excluded — a verified row committed by
		// a concurrent attempt that this transaction's re-check could not see
		// must survive, or the credit trigger would fire a second time.
		if err := tx.
			Where("user_id = ? AND task_id = ? AND completed_at >= ? AND completed_at < ? AND verification_status <> ?",
				user.ID, task.ID, dayStart, dayEnd, models.StatusVerified).
			Delete(&models.TaskCompletion{}).Error; err != nil {
			return err
		}

		return tx.Create(attempt).Error
	})
	if err != nil {
		// The unique (user, task, day) index is the last line of defense: two
		// attempts racing past both checks cannot both insert. The loser's
		// constraint violation is the same expected conflict as the re-check.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return VerifyResult{}, nil, ErrAlreadyCompleted
		}
		return VerifyResult{}, nil, err
	}

	return result, attempt, nil
}

func (s *CompletionService) verifiedToday(db *gorm.DB, userID, taskID uint, dayStart, dayEnd time.Time) (bool, error) {
	var count int64
	err := db.Model(&models.TaskCompletion{}).
		Where("user_id = ? AND task_id = ? AND verification_status = ? AND completed_at >= ? AND completed_at < ?",
			userID, taskID, models.StatusVerified, dayStart, dayEnd).
		Count(&count).Error
	return count > 0, err
}
