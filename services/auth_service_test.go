package services

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"bones-api/config"
	"bones-api/models"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func newAuthFixture(t *testing.T) (*fiber.App, *AuthService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	cfg := &config.Config{
		TwitterClientID:    "test-client",
		PublicBaseURL:      "http://localhost:3000",
		AdminReferralCode:  "1EMM",
		ReferralBonus:      100,
		TwitterAuthBaseURL: "https://twitter.com",
	}
	service := NewAuthService(db, cfg, NewTwitterClient(db, cfg))

	app := fiber.New()
	app.Get("/api/auth/twitter", service.TwitterRedirect)
	app.Post("/api/auth/wallet/register", service.RegisterWallet)
	return app, service, db
}

func postRegister(t *testing.T, app *fiber.App, wallet, code string) *http.Response {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"walletAddress": wallet,
		"referralCode":  code,
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/wallet/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestRegisterWalletWithBootstrapCode(t *testing.T) {
	app, _, db := newAuthFixture(t)

	resp := postRegister(t, app, "0xfounder", "1emm")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var user models.User
	if err := db.Where("wallet_address = ?", "0xfounder").First(&user).Error; err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if user.ReferredBy != nil {
		t.Errorf("bootstrap signup must have no referrer, got %v", *user.ReferredBy)
	}
	if user.ReferralCode == nil || len(*user.ReferralCode) != 4 {
		t.Errorf("expected a 4-char referral code, got %v", user.ReferralCode)
	}

	var rewards int64
	if err := db.Model(&models.ReferralReward{}).Count(&rewards).Error; err != nil {
		t.Fatalf("count rewards: %v", err)
	}
	if rewards != 0 {
		t.Errorf("bootstrap signup must not mint a referral reward, found %d", rewards)
	}
}

func TestRegisterWalletCreditsReferrer(t *testing.T) {
	app, _, db := newAuthFixture(t)

	referrer := seedUser(t, db, "0xreferrer", "")
	if err := db.Model(referrer).Update("referral_code", "AB12").Error; err != nil {
		t.Fatalf("seed referral code: %v", err)
	}

	// Codes match case-insensitively.
	resp := postRegister(t, app, "0xnewbie", "ab12")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var newbie models.User
	if err := db.Where("wallet_address = ?", "0xnewbie").First(&newbie).Error; err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if newbie.ReferredBy == nil || *newbie.ReferredBy != referrer.ID {
		t.Errorf("expected referrer link, got %v", newbie.ReferredBy)
	}

	var updated models.User
	if err := db.First(&updated, referrer.ID).Error; err != nil {
		t.Fatalf("reload referrer: %v", err)
	}
	if updated.Bones != 100 {
		t.Errorf("expected referrer credited 100 bones, got %d", updated.Bones)
	}

	var reward models.ReferralReward
	if err := db.Where("referrer_id = ? AND referred_user_id = ?", referrer.ID, newbie.ID).
		First(&reward).Error; err != nil {
		t.Fatalf("reward row missing: %v", err)
	}
	if reward.BonesAwarded != 100 {
		t.Errorf("expected reward of 100, got %d", reward.BonesAwarded)
	}
}

func TestRegisterWalletUnknownCode(t *testing.T) {
	app, _, db := newAuthFixture(t)

	resp := postRegister(t, app, "0xnobody", "ZZZZ")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", resp.StatusCode)
	}

	var users int64
	if err := db.Model(&models.User{}).Count(&users).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if users != 0 {
		t.Errorf("rejected registration must not create a user, found %d", users)
	}
}

func TestRegisterWalletDuplicate(t *testing.T) {
	app, _, _ := newAuthFixture(t)

	if resp := postRegister(t, app, "0xdupe", "1EMM"); resp.StatusCode != http.StatusOK {
		t.Fatalf("first registration failed: %d", resp.StatusCode)
	}
	if resp := postRegister(t, app, "0xdupe", "1EMM"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate wallet, got %d", resp.StatusCode)
	}
}

func TestRegisterWalletRejectsBadPayload(t *testing.T) {
	app, _, _ := newAuthFixture(t)

	cases := []struct {
		name   string
		wallet string
		code   string
	}{
		{"missing wallet", "", "1EMM"},
		{"short code", "0xwallet", "1EM"},
		{"long code", "0xwallet", "1EMMM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if resp := postRegister(t, app, tc.wallet, tc.code); resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestTwitterRedirectStartsPKCEFlow(t *testing.T) {
	app, _, _ := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/twitter?wallet=0xlinker", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}

	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	q := location.Query()
	if q.Get("code_challenge") == "" || q.Get("code_challenge_method") != "S256" {
		t.Errorf("expected S256 challenge, got %q/%q", q.Get("code_challenge"), q.Get("code_challenge_method"))
	}
	if q.Get("state") != "0xlinker" {
		t.Errorf("state must carry the wallet, got %q", q.Get("state"))
	}
	if !strings.Contains(q.Get("scope"), "offline.access") {
		t.Errorf("scope must request a refresh token, got %q", q.Get("scope"))
	}

	cookies := resp.Header.Values("Set-Cookie")
	var sawVerifier, sawState bool
	for _, cookie := range cookies {
		if strings.HasPrefix(cookie, "tw_cv=") {
			sawVerifier = true
		}
		if strings.HasPrefix(cookie, "tw_state=") {
			sawState = true
		}
	}
	if !sawVerifier || !sawState {
		t.Errorf("expected PKCE cookies, got %v", cookies)
	}
}

func TestTwitterRedirectRequiresWallet(t *testing.T) {
	app, _, _ := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/twitter", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWalletDerivedReferralCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0xABCD1234", "ABCD"},
		{"ABCD1234", "ABCD"},
		{"0xAB", "AB"},
	}
	for _, tc := range cases {
		if got := walletDerivedReferralCode(tc.in); got != tc.want {
			t.Errorf("walletDerivedReferralCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGenerateUniqueReferralCodeAvoidsCollisions(t *testing.T) {
	_, service, db := newAuthFixture(t)

	taken := seedUser(t, db, "0xtaken", "")
	if err := db.Model(taken).Update("referral_code", "0042").Error; err != nil {
		t.Fatalf("seed code: %v", err)
	}

	for i := 0; i < 5; i++ {
		code := service.generateUniqueReferralCode()
		if len(code) != 4 {
			t.Fatalf("expected 4-char code, got %q", code)
		}
		if code == "0042" {
			t.Fatal("generated a taken code")
		}
	}
}
