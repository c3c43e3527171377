// middleware/admin.go
package middleware

import (
	"log"

	"bones-api/config"

	"github.com/gofiber/fiber/v2"
)

// AdminOnly gates the admin surface on the caller-supplied wallet matching
// the configured allowlist. The wallet arrives as the admin_wallet query
// param or the X-Admin-Wallet header; there is no signature check — the
// allowlist itself is the boundary.
func AdminOnly(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		wallet := c.Query("admin_wallet")
		if wallet == "" {
			wallet = c.Get("X-Admin-Wallet")
		}

		if !cfg.IsAdminWallet(wallet) {
			log.Printf("🚫 [ADMIN] Rejected non-admin wallet %q on %s", wallet, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Unauthorized"})
		}

		c.Locals("admin_wallet", wallet)
		return c.Next()
	}
}
