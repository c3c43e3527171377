// handlers/auth_routes.go
package handlers

import (
	"bones-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAuthRoutes(app *fiber.App, authService *services.AuthService) {
	app.Get("/api/auth/twitter", authService.TwitterRedirect)
	app.Get("/api/auth/twitter/callback", authService.TwitterCallback)
	app.Post("/api/auth/wallet/register", authService.RegisterWallet)
}
