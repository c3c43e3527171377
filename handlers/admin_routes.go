// handlers/admin_routes.go
package handlers

import (
	"bones-api/config"
	"bones-api/middleware"
	"bones-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(app *fiber.App, adminService *services.AdminService, cfg *config.Config) {
	// The check endpoint stays open — it only answers "is this wallet an
	// admin", which the frontend needs before it has any admin context.
	app.Get("/api/admin/check", adminService.Check)

	admin := app.Group("/api/admin", middleware.AdminOnly(cfg))

	admin.Get("/tasks", adminService.ListTasks)
	admin.Post("/tasks", adminService.CreateTask)
	admin.Put("/tasks/:id", adminService.UpdateTask)
	admin.Patch("/tasks/:id", adminService.ToggleTask)
	admin.Delete("/tasks/:id", adminService.DeleteTask)
	admin.Post("/tasks/upload-image", adminService.UploadTaskImage)

	admin.Get("/stats", adminService.Stats)
	admin.Post("/invites/upload", adminService.UploadInvites)
}
