package services

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"bones-api/config"
	"bones-api/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := database.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.TaskCompletion{},
		&models.ReferralReward{},
		&models.Invite{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Same ledger constraint as production, where main installs the postgres
	// spelling: one completion row per (user, task, day).
	if err := database.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_task_completions_user_task_day
			ON task_completions (user_id, task_id, date(completed_at))`,
	).Error; err != nil {
		t.Fatalf("create completion day index: %v", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("open sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return database
}

// newTestTwitter points a TwitterClient at a local fake of the Twitter v2
// API. The returned config uses the fake for both the API and the token
// endpoint.
func newTestTwitter(t *testing.T, db *gorm.DB, handler http.Handler) *TwitterClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		TwitterClientID:   "test-client",
		TwitterAPIBaseURL: server.URL,
		PublicBaseURL:     "http://localhost:3000",
		AdminReferralCode: "1EMM",
		ReferralBonus:     100,
	}
	return NewTwitterClient(db, cfg)
}

func seedUser(t *testing.T, db *gorm.DB, wallet, accessToken string) *models.User {
	t.Helper()

	user := &models.User{WalletAddress: wallet}
	if accessToken != "" {
		user.TwitterAccessToken = &accessToken
		username := "user_" + wallet
		user.TwitterUsername = &username
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func strPtr(s string) *string { return &s }
