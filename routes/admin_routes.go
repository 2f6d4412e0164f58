package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/peptide_shop/handlers"
	"github.com/anjiri1684/peptide_shop/middleware"
)

func AdminRoutes(app *fiber.App, deps *Dependencies) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(deps.JWTSecret), middleware.AdminRequired())

	admin.Get("/stats", handlers.GetRegistrationStats(deps.Referrals))
	admin.Get("/users/:username/balance", handlers.GetUserBalance(deps.Referrals))
	admin.Get("/payments/:payNum", handlers.GetPayment(deps.Ledger))

	reports := admin.Group("/reports")
	reports.Get("/referral-balances", handlers.GenerateReferralBalanceReport(deps.Referrals, deps.Now))
}
