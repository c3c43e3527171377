// handlers/user_routes.go
package handlers

import (
	"bones-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(app *fiber.App, userService *services.UserService) {
	app.Get("/api/user/stats", userService.Stats)
	app.Get("/api/user/twitter-status", userService.TwitterStatus)
	app.Get("/api/leaderboard", userService.Leaderboard)
}
