// handlers/task_routes.go
package handlers

import (
	"bones-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTaskRoutes(app *fiber.App, taskService *services.TaskService, completionService *services.CompletionService) {
	// Wallet lookup is the only identity check on these — see the admin
	// routes for the gated surface.
	app.Get("/api/tasks/daily", taskService.ListDaily)
	app.Post("/api/tasks/verify", completionService.VerifyTask)
}
