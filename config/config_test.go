package config

import "testing"

func TestLoadRequiresCoreSettings(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TWITTER_CLIENT_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/bones")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without TWITTER_CLIENT_ID")
	}

	t.Setenv("TWITTER_CLIENT_ID", "client-id")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "5300" {
		t.Errorf("expected default port, got %q", cfg.Port)
	}
	if cfg.AdminReferralCode != "1EMM" {
		t.Errorf("expected default bootstrap code, got %q", cfg.AdminReferralCode)
	}
	if cfg.ReferralBonus != 100 {
		t.Errorf("expected referral bonus 100, got %d", cfg.ReferralBonus)
	}
}

func TestLoadMergesAdminWallets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/bones")
	t.Setenv("TWITTER_CLIENT_ID", "client-id")
	t.Setenv("ADMIN_WALLET", "0xAAA")
	t.Setenv("ADMIN_WALLETS", "0xaaa, 0xBBB, ,0xccc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AdminWallets) != 3 {
		t.Fatalf("expected 3 deduped wallets, got %v", cfg.AdminWallets)
	}
}

func TestIsAdminWallet(t *testing.T) {
	cfg := &Config{AdminWallets: []string{"0xabc"}}

	if !cfg.IsAdminWallet("0xABC") {
		t.Error("expected case-insensitive match")
	}
	if cfg.IsAdminWallet("0xdef") {
		t.Error("unexpected match")
	}
	if cfg.IsAdminWallet("") {
		t.Error("empty wallet must never match")
	}
}
