// services/auth_service.go
package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	mrand "math/rand"
	"net/url"
	"strings"

	"bones-api/config"
	"bones-api/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	pkceCookieVerifier = "tw_cv"
	pkceCookieState    = "tw_state"
	pkceCookieMaxAge   = 600 // seconds

	twitterOAuthScope = "tweet.read users.read follows.read like.read offline.access"

	referralCodeAttempts = 20
	referralCodeFallback = "0000"
)

type AuthService struct {
	DB      *gorm.DB
	Config  *config.Config
	Twitter *TwitterClient
}

func NewAuthService(db *gorm.DB, cfg *config.Config, twitter *TwitterClient) *AuthService {
	return &AuthService{DB: db, Config: cfg, Twitter: twitter}
}

// TwitterRedirect handles GET /api/auth/twitter?wallet=
// Starts the PKCE authorization-code flow; the verifier and state live in
// short-lived httpOnly cookies until the callback.
func (s *AuthService) TwitterRedirect(c *fiber.Ctx) error {
	wallet := c.Query("wallet")
	if wallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Wallet address required"})
	}

	verifierBytes := make([]byte, 64)
	if _, err := rand.Read(verifierBytes); err != nil {
		log.Printf("Failed to generate PKCE verifier: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Authentication failed"})
	}
	codeVerifier := base64.RawURLEncoding.EncodeToString(verifierBytes)
	digest := sha256.Sum256([]byte(codeVerifier))
	codeChallenge := base64.RawURLEncoding.EncodeToString(digest[:])

	// State ties the callback to the wallet being linked.
	state := wallet

	authorize, err := url.Parse(s.Config.TwitterAuthBaseURL + "/i/oauth2/authorize")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Authentication failed"})
	}
	q := authorize.Query()
	q.Set("response_type", "code")
	q.Set("client_id", s.Config.TwitterClientID)
	q.Set("redirect_uri", s.callbackURL())
	q.Set("scope", twitterOAuthScope)
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	authorize.RawQuery = q.Encode()

	secure := strings.HasPrefix(s.Config.PublicBaseURL, "https://")
	c.Cookie(&fiber.Cookie{Name: pkceCookieVerifier, Value: codeVerifier, MaxAge: pkceCookieMaxAge, HTTPOnly: true, Secure: secure, SameSite: "Lax", Path: "/"})
	c.Cookie(&fiber.Cookie{Name: pkceCookieState, Value: state, MaxAge: pkceCookieMaxAge, HTTPOnly: true, Secure: secure, SameSite: "Lax", Path: "/"})

	return c.Redirect(authorize.String(), fiber.StatusFound)
}

// TwitterCallback handles GET /api/auth/twitter/callback?code=&state=
// Every failure redirects back to the frontend with an error flag; success
// stores the token pair and profile on the wallet's user row.
func (s *AuthService) TwitterCallback(c *fiber.Ctx) error {
	if c.Query("error") != "" {
		return s.frontendRedirect(c, "error", "twitter_auth_failed")
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return s.frontendRedirect(c, "error", "missing_params")
	}

	storedState := c.Cookies(pkceCookieState)
	codeVerifier := c.Cookies(pkceCookieVerifier)
	if storedState == "" || codeVerifier == "" || storedState != state {
		return s.frontendRedirect(c, "error", "invalid_state")
	}

	pair, err := s.Twitter.ExchangeCode(c.Context(), code, codeVerifier, s.callbackURL())
	if err != nil {
		log.Printf("Twitter token exchange failed: %v", err)
		return s.frontendRedirect(c, "error", "token_exchange_failed")
	}

	profile, err := s.Twitter.FetchProfile(c.Context(), pair.AccessToken)
	if err != nil {
		log.Printf("Twitter profile fetch failed: %v", err)
		return s.frontendRedirect(c, "error", "twitter_connection_failed")
	}

	// One Twitter account, one wallet.
	var bound models.User
	err = s.DB.Where("twitter_id = ?", profile.ID).First(&bound).Error
	if err == nil && bound.WalletAddress != state {
		return s.frontendRedirect(c, "error", "twitter_already_connected")
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("DB Error checking twitter binding: %v", err)
		return s.frontendRedirect(c, "error", "twitter_connection_failed")
	}

	updates := map[string]interface{}{
		"twitter_username":      profile.Username,
		"twitter_id":            profile.ID,
		"twitter_access_token":  pair.AccessToken,
		"twitter_refresh_token": pair.RefreshToken,
	}

	var existing models.User
	err = s.DB.Where("wallet_address = ?", state).First(&existing).Error
	switch {
	case err == nil:
		if err := s.DB.Model(&existing).Updates(updates).Error; err != nil {
			log.Printf("DB Error updating twitter link: %v", err)
			return s.frontendRedirect(c, "error", "twitter_connection_failed")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		refCode := walletDerivedReferralCode(state)
		user := models.User{
			WalletAddress:       state,
			TwitterUsername:     &profile.Username,
			TwitterID:           &profile.ID,
			TwitterAccessToken:  &pair.AccessToken,
			TwitterRefreshToken: &pair.RefreshToken,
			ReferralCode:        &refCode,
		}
		if err := s.DB.Create(&user).Error; err != nil {
			log.Printf("DB Error creating user from twitter callback: %v", err)
			return s.frontendRedirect(c, "error", "twitter_connection_failed")
		}
	default:
		log.Printf("DB Error fetching wallet user: %v", err)
		return s.frontendRedirect(c, "error", "twitter_connection_failed")
	}

	c.ClearCookie(pkceCookieVerifier, pkceCookieState)
	return s.frontendRedirect(c, "twitter_connected", "true")
}

// RegisterWallet handles POST /api/auth/wallet/register
// {walletAddress, referralCode}. The code must belong to an existing user
// (case-insensitive) or equal the configured bootstrap code.
func (s *AuthService) RegisterWallet(c *fiber.Ctx) error {
	var req struct {
		WalletAddress string `json:"walletAddress"`
		ReferralCode  string `json:"referralCode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payload"})
	}
	if req.WalletAddress == "" || len(req.ReferralCode) != 4 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payload"})
	}

	normalized := strings.ToUpper(req.ReferralCode)
	isBootstrap := normalized == s.Config.AdminReferralCode

	var referrer models.User
	referrerErr := s.DB.Where("UPPER(referral_code) = ?", normalized).First(&referrer).Error
	if referrerErr != nil {
		if !errors.Is(referrerErr, gorm.ErrRecordNotFound) {
			log.Printf("DB Error resolving referral code: %v", referrerErr)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Registration failed"})
		}
		if !isBootstrap {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Referral code not found"})
		}
	}

	var existing models.User
	if err := s.DB.Where("wallet_address = ?", req.WalletAddress).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Wallet already registered"})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("DB Error checking wallet: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Registration failed"})
	}

	code := s.generateUniqueReferralCode()
	newUser := models.User{
		WalletAddress: req.WalletAddress,
		ReferralCode:  &code,
	}
	if !isBootstrap {
		newUser.ReferredBy = &referrer.ID
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&newUser).Error; err != nil {
			return err
		}
		if isBootstrap {
			return nil
		}
		reward := models.ReferralReward{
			ReferrerID:     referrer.ID,
			ReferredUserID: newUser.ID,
			BonesAwarded:   s.Config.ReferralBonus,
		}
		if err := tx.Create(&reward).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", referrer.ID).
			Update("bones", gorm.Expr("bones + ?", s.Config.ReferralBonus)).Error
	})
	if err != nil {
		log.Printf("DB Error registering wallet: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Registration failed"})
	}

	return c.JSON(fiber.Map{"success": true, "userId": newUser.ID, "referralCode": code})
}

// generateUniqueReferralCode samples the 4-digit space until an unused code
// turns up, with a bounded retry count and a deterministic fallback.
func (s *AuthService) generateUniqueReferralCode() string {
	for i := 0; i < referralCodeAttempts; i++ {
		candidate := fmt.Sprintf("%04d", mrand.Intn(10000))
		var count int64
		if err := s.DB.Model(&models.User{}).Where("referral_code = ?", candidate).Count(&count).Error; err != nil {
			continue
		}
		if count == 0 {
			return candidate
		}
	}
	return referralCodeFallback
}

func (s *AuthService) callbackURL() string {
	return s.Config.PublicBaseURL + "/api/auth/twitter/callback"
}

func (s *AuthService) frontendRedirect(c *fiber.Ctx, key, value string) error {
	target, err := url.Parse(s.Config.PublicBaseURL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Bad PUBLIC_BASE_URL"})
	}
	q := target.Query()
	q.Set(key, value)
	target.RawQuery = q.Encode()
	return c.Redirect(target.String(), fiber.StatusFound)
}

// walletDerivedReferralCode is the pre-referral-era backfill rule: the first
// four characters of the wallet address with any 0x prefix stripped.
func walletDerivedReferralCode(wallet string) string {
	code := strings.TrimPrefix(wallet, "0x")
	if len(code) > 4 {
		code = code[:4]
	}
	return code
}
