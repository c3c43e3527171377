// services/user_service.go
package services

import (
	"errors"
	"log"
	"strconv"
	"time"

	"bones-api/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// Stats handles GET /api/user/stats?wallet=
func (s *UserService) Stats(c *fiber.Ctx) error {
	wallet := c.Query("wallet")
	if wallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Wallet address required"})
	}

	var user models.User
	if err := s.DB.Where("wallet_address = ?", wallet).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		log.Printf("DB Error fetching user stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}

	var totals struct {
		Completed int64
		Earned    int64
	}
	if err := s.DB.Model(&models.TaskCompletion{}).
		Select("COUNT(*) AS completed, COALESCE(SUM(bones_earned), 0) AS earned").
		Where("user_id = ?", user.ID).
		Scan(&totals).Error; err != nil {
		log.Printf("DB Error aggregating completions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}

	now := time.Now().UTC()
	weekly, err := s.bonesEarnedSince(user.ID, now.AddDate(0, 0, -7))
	if err != nil {
		log.Printf("DB Error aggregating weekly bones: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}
	monthly, err := s.bonesEarnedSince(user.ID, now.AddDate(0, 0, -30))
	if err != nil {
		log.Printf("DB Error aggregating monthly bones: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}

	var totalTasks int64
	if err := s.DB.Model(&models.Task{}).Where("is_active = ?", true).Count(&totalTasks).Error; err != nil {
		log.Printf("DB Error counting tasks: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}

	var referrals int64
	if err := s.DB.Model(&models.User{}).Where("referred_by = ?", user.ID).Count(&referrals).Error; err != nil {
		log.Printf("DB Error counting referrals: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}

	completionRate := 0
	if totalTasks > 0 {
		completionRate = int(float64(totals.Completed) / float64(totalTasks) * 100)
	}

	return c.JSON(fiber.Map{"stats": fiber.Map{
		"totalBones":     user.Bones,
		"rank":           user.Rank,
		"tasksCompleted": totals.Completed,
		"totalTasks":     totalTasks,
		"referrals":      referrals,
		"joinDate":       user.CreatedAt.UTC().Format(time.RFC3339),
		"weeklyBones":    weekly,
		"monthlyBones":   monthly,
		"completionRate": completionRate,
	}})
}

// TwitterStatus handles GET /api/user/twitter-status?wallet=
func (s *UserService) TwitterStatus(c *fiber.Ctx) error {
	wallet := c.Query("wallet")
	if wallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Wallet address required"})
	}

	var user models.User
	if err := s.DB.Where("wallet_address = ?", wallet).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"connected": false, "message": "User not found"})
		}
		log.Printf("DB Error checking twitter status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to check status"})
	}

	// Pre-referral-era rows may lack a code; backfill from the wallet.
	if user.ReferralCode == nil || *user.ReferralCode == "" {
		code := walletDerivedReferralCode(wallet)
		if err := s.DB.Model(&user).Update("referral_code", code).Error; err != nil {
			log.Printf("DB Error backfilling referral code: %v", err)
		} else {
			user.ReferralCode = &code
		}
	}

	return c.JSON(fiber.Map{
		"connected":    user.TwitterLinked(),
		"username":     user.TwitterUsername,
		"bones":        user.Bones,
		"rank":         user.Rank,
		"referralCode": user.ReferralCode,
	})
}

// Leaderboard handles GET /api/leaderboard?limit=&offset=
// Only Twitter-linked users compete. Ordering is bones desc, then earliest
// join first, matching the rank worker's ROW_NUMBER ordering.
func (s *UserService) Leaderboard(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	var users []models.User
	if err := s.DB.
		Where("twitter_username IS NOT NULL").
		Order("bones DESC").Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&users).Error; err != nil {
		log.Printf("DB Error fetching leaderboard: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch leaderboard"})
	}

	var totalCount int64
	if err := s.DB.Model(&models.User{}).Where("twitter_username IS NOT NULL").Count(&totalCount).Error; err != nil {
		log.Printf("DB Error counting leaderboard: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch leaderboard"})
	}

	type entry struct {
		Rank          int       `json:"rank"`
		Username      *string   `json:"username"`
		WalletAddress string    `json:"wallet_address"`
		Bones         int       `json:"bones"`
		JoinDate      time.Time `json:"join_date"`
	}
	rows := make([]entry, len(users))
	for i, u := range users {
		rows[i] = entry{
			Rank:          offset + i + 1,
			Username:      u.TwitterUsername,
			WalletAddress: u.WalletAddress,
			Bones:         u.Bones,
			JoinDate:      u.CreatedAt,
		}
	}

	return c.JSON(fiber.Map{
		"leaderboard": rows,
		"totalCount":  totalCount,
		"hasMore":     int64(offset+limit) < totalCount,
	})
}

func (s *UserService) bonesEarnedSince(userID uint, since time.Time) (int64, error) {
	var earned int64
	err := s.DB.Model(&models.TaskCompletion{}).
		Where("user_id = ? AND completed_at >= ?", userID, since).
		Select("COALESCE(SUM(bones_earned), 0)").
		Scan(&earned).Error
	return earned, err
}
