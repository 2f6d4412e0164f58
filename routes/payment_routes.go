package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/peptide_shop/handlers"
)

func PaymentRoutes(app *fiber.App, deps *Dependencies) {
	payment := app.Group("/payment")

	var feed handlers.OrderPublisher
	if deps.Hub != nil {
		feed = deps.Hub
	}

	result := handlers.HandlePaymentResult(deps.Callbacks, deps.Notifier, feed, deps.RedirectURL)
	payment.Get("/result", result)
	payment.Post("/result", result)

	back := handlers.HandlePaymentRedirect(deps.RedirectURL)
	payment.All("/success", back)
	payment.All("/fail", back)
	// Spellings configured in existing merchant accounts.
	payment.All("/sucess", back)
	payment.All("/unsucess", back)
}
