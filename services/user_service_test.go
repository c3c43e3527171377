package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bones-api/models"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func newUserFixture(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	service := NewUserService(db)

	app := fiber.New()
	app.Get("/api/user/stats", service.Stats)
	app.Get("/api/user/twitter-status", service.TwitterStatus)
	app.Get("/api/leaderboard", service.Leaderboard)
	return app, db
}

func getJSON(t *testing.T, app *fiber.App, path string, out interface{}) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestLeaderboardOrderingAndPaging(t *testing.T) {
	app, db := newUserFixture(t)

	// Six linked users with distinct scores, one unlinked straggler.
	for i := 1; i <= 6; i++ {
		user := seedUser(t, db, fmt.Sprintf("0xlb%d", i), "token")
		if err := db.Model(user).Update("bones", i*10).Error; err != nil {
			t.Fatalf("set bones: %v", err)
		}
	}
	seedUser(t, db, "0xunlinked", "")

	var body struct {
		Leaderboard []struct {
			Rank          int    `json:"rank"`
			WalletAddress string `json:"wallet_address"`
			Bones         int    `json:"bones"`
		} `json:"leaderboard"`
		TotalCount int64 `json:"totalCount"`
		HasMore    bool  `json:"hasMore"`
	}
	if status := getJSON(t, app, "/api/leaderboard?limit=3", &body); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	if body.TotalCount != 6 {
		t.Errorf("unlinked users must not count, got total %d", body.TotalCount)
	}
	if len(body.Leaderboard) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(body.Leaderboard))
	}
	if body.Leaderboard[0].Bones != 60 || body.Leaderboard[0].Rank != 1 {
		t.Errorf("unexpected top entry: %+v", body.Leaderboard[0])
	}
	if !body.HasMore {
		t.Error("expected more pages")
	}

	// Second page continues the rank sequence.
	var page2 struct {
		Leaderboard []struct {
			Rank  int `json:"rank"`
			Bones int `json:"bones"`
		} `json:"leaderboard"`
		HasMore bool `json:"hasMore"`
	}
	if status := getJSON(t, app, "/api/leaderboard?limit=3&offset=3", &page2); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(page2.Leaderboard) != 3 || page2.Leaderboard[0].Rank != 4 {
		t.Fatalf("unexpected second page: %+v", page2.Leaderboard)
	}
	if page2.HasMore {
		t.Error("no third page expected")
	}
}

func TestLeaderboardClampsBadParams(t *testing.T) {
	app, _ := newUserFixture(t)

	var body struct {
		Leaderboard []interface{} `json:"leaderboard"`
	}
	if status := getJSON(t, app, "/api/leaderboard?limit=9999&offset=-5", &body); status != http.StatusOK {
		t.Fatalf("expected 200 with clamped params, got %d", status)
	}
}

func TestTwitterStatusUnknownWallet(t *testing.T) {
	app, _ := newUserFixture(t)

	var body struct {
		Connected bool `json:"connected"`
	}
	status := getJSON(t, app, "/api/user/twitter-status?wallet=0xghost", &body)
	if status != http.StatusOK {
		t.Fatalf("unknown wallet must answer 200, got %d", status)
	}
	if body.Connected {
		t.Error("unknown wallet cannot be connected")
	}
}

func TestTwitterStatusBackfillsReferralCode(t *testing.T) {
	app, db := newUserFixture(t)
	user := seedUser(t, db, "0xABCD99", "token")

	var body struct {
		Connected    bool    `json:"connected"`
		ReferralCode *string `json:"referralCode"`
	}
	if status := getJSON(t, app, "/api/user/twitter-status?wallet=0xABCD99", &body); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !body.Connected {
		t.Error("expected connected user")
	}
	if body.ReferralCode == nil || *body.ReferralCode != "ABCD" {
		t.Errorf("expected wallet-derived code ABCD, got %v", body.ReferralCode)
	}

	var stored models.User
	if err := db.First(&stored, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.ReferralCode == nil || *stored.ReferralCode != "ABCD" {
		t.Errorf("backfill not persisted: %v", stored.ReferralCode)
	}
}

func TestUserStats(t *testing.T) {
	app, db := newUserFixture(t)
	user := seedUser(t, db, "0xstats", "token")

	task := seedTask(t, db, models.Task{
		Title: "Daily like", TaskType: models.TaskTypeLike,
		RecurrenceType: models.RecurrenceDailyRepeat, BonesReward: 10,
	})
	completion := models.TaskCompletion{
		UserID: user.ID, TaskID: task.ID,
		VerificationStatus: models.StatusVerified, BonesEarned: 10,
	}
	if err := db.Create(&completion).Error; err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	referred := seedUser(t, db, "0xreferred", "")
	if err := db.Model(referred).Update("referred_by", user.ID).Error; err != nil {
		t.Fatalf("link referral: %v", err)
	}

	var body struct {
		Stats struct {
			TasksCompleted int64 `json:"tasksCompleted"`
			TotalTasks     int64 `json:"totalTasks"`
			Referrals      int64 `json:"referrals"`
			WeeklyBones    int64 `json:"weeklyBones"`
			CompletionRate int   `json:"completionRate"`
		} `json:"stats"`
	}
	if status := getJSON(t, app, "/api/user/stats?wallet=0xstats", &body); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body.Stats.TasksCompleted != 1 {
		t.Errorf("expected 1 completion, got %d", body.Stats.TasksCompleted)
	}
	if body.Stats.TotalTasks != 1 {
		t.Errorf("expected 1 active task, got %d", body.Stats.TotalTasks)
	}
	if body.Stats.Referrals != 1 {
		t.Errorf("expected 1 referral, got %d", body.Stats.Referrals)
	}
	if body.Stats.WeeklyBones != 10 {
		t.Errorf("expected 10 weekly bones, got %d", body.Stats.WeeklyBones)
	}
	if body.Stats.CompletionRate != 100 {
		t.Errorf("expected 100%% completion rate, got %d", body.Stats.CompletionRate)
	}
}

func TestUserStatsUnknownWallet(t *testing.T) {
	app, _ := newUserFixture(t)
	if status := getJSON(t, app, "/api/user/stats?wallet=0xghost", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}
