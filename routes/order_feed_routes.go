package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/peptide_shop/handlers"
	"github.com/anjiri1684/peptide_shop/middleware"
)

func OrderFeedRoutes(app *fiber.App, deps *Dependencies) {
	ws := app.Group("/ws")

	ws.Use("/orders", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, middleware.ProtectedQuery(deps.JWTSecret), middleware.AdminRequired())
	ws.Get("/orders", websocket.New(handlers.ServeOrderFeed(deps.Hub)))
}

// Setup registers every route group.
func Setup(app *fiber.App, deps *Dependencies) {
	PaymentRoutes(app, deps)
	AuthRoutes(app, deps)
	AdminRoutes(app, deps)
	OrderFeedRoutes(app, deps)
}
