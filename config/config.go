// config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
)

// Config carries every deployment-specific value the service needs. It is
// built once in main and handed to the components that use it, so nothing
// reads the environment ad hoc after startup.
type Config struct {
	Port           string
	DatabaseURL    string
	AllowedOrigins string
	PublicBaseURL  string

	// Admin wallet allowlist (lowercased). ADMIN_WALLET plus the
	// comma-separated ADMIN_WALLETS are merged.
	AdminWallets []string

	// Referral gating
	AdminReferralCode string
	ReferralBonus     int

	// Twitter OAuth2 app. ClientSecret is optional — only confidential
	// clients have one, and its presence switches the token endpoint calls
	// to Basic auth.
	TwitterClientID     string
	TwitterClientSecret string
	TwitterAPIBaseURL   string
	TwitterAuthBaseURL  string

	// R2 object storage for task images
	CloudflareAccountID string
	R2AccessKeyID       string
	R2AccessKeySecret   string
	R2Bucket            string
	CDNBaseURL          string
}

// Load reads the environment into a Config. Only DATABASE_URL and
// TWITTER_CLIENT_ID are hard requirements; everything else has a default or
// degrades a single feature.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "5300"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		AllowedOrigins:      getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		PublicBaseURL:       getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		AdminReferralCode:   strings.ToUpper(getEnv("ADMIN_REFERRAL_CODE", "1EMM")),
		ReferralBonus:       100,
		TwitterClientID:     os.Getenv("TWITTER_CLIENT_ID"),
		TwitterClientSecret: os.Getenv("TWITTER_CLIENT_SECRET"),
		TwitterAPIBaseURL:   getEnv("TWITTER_API_BASE_URL", "https://api.twitter.com"),
		TwitterAuthBaseURL:  getEnv("TWITTER_AUTH_BASE_URL", "https://twitter.com"),
		CloudflareAccountID: os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:       os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret:   os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:            os.Getenv("R2_BUCKET_NAME"),
		CDNBaseURL:          os.Getenv("CDN_BASE_URL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.TwitterClientID == "" {
		return nil, fmt.Errorf("TWITTER_CLIENT_ID environment variable not set")
	}

	seen := map[string]bool{}
	if w := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_WALLET"))); w != "" {
		seen[w] = true
		cfg.AdminWallets = append(cfg.AdminWallets, w)
	}
	for _, w := range strings.Split(os.Getenv("ADMIN_WALLETS"), ",") {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && !seen[w] {
			seen[w] = true
			cfg.AdminWallets = append(cfg.AdminWallets, w)
		}
	}

	return cfg, nil
}

// IsAdminWallet reports whether the given wallet is on the admin allowlist.
// Comparison is case-insensitive.
func (c *Config) IsAdminWallet(wallet string) bool {
	if wallet == "" {
		return false
	}
	wallet = strings.ToLower(wallet)
	for _, admin := range c.AdminWallets {
		if wallet == admin {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
