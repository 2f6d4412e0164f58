package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/peptide_shop/handlers"
)

func AuthRoutes(app *fiber.App, deps *Dependencies) {
	api := app.Group("/api/v1")

	auth := api.Group("/auth")
	auth.Post("/login", handlers.LoginAdmin(deps.DB, deps.JWTSecret))
}
