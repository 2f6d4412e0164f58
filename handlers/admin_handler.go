package handlers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/peptide_shop/services"
)

func GetRegistrationStats(referrals *services.ReferralService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := referrals.Stats(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load statistics"})
		}
		return c.JSON(stats)
	}
}

func GetUserBalance(referrals *services.ReferralService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := referrals.GetByUsername(c.UserContext(), c.Params("username"))
		if errors.Is(err, services.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load user"})
		}
		return c.JSON(fiber.Map{
			"telegram_id": user.TelegramID,
			"username":    user.Handle(),
			"tier":        user.ReferralTier,
			"balance":     user.Balance.StringFixed(2),
		})
	}
}

func GetPayment(ledger *services.LedgerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payNum, err := strconv.ParseInt(c.Params("payNum"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment number"})
		}
		payment, err := ledger.Get(c.UserContext(), payNum)
		if errors.Is(err, services.ErrPaymentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment not found"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load payment"})
		}
		return c.JSON(payment)
	}
}

// GenerateReferralBalanceReport streams every user's referral balance as CSV.
func GenerateReferralBalanceReport(referrals *services.ReferralService, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		users, err := referrals.Balances(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load balances"})
		}

		b := new(bytes.Buffer)
		w := csv.NewWriter(b)

		headers := []string{"Username", "Telegram ID", "Tier", "Balance"}
		if err := w.Write(headers); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to write CSV header"})
		}

		for _, u := range users {
			username := u.Handle()
			if username != "" {
				username = "@" + username
			}
			row := []string{
				username,
				strconv.FormatInt(u.TelegramID, 10),
				strconv.Itoa(u.ReferralTier),
				u.Balance.StringFixed(2),
			}
			if err := w.Write(row); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to write CSV row"})
			}
		}
		w.Flush()

		c.Set("Content-Type", "text/csv")
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"referral_balances_%s.csv\"", now().Format("2006-01-02")))

		return c.Send(b.Bytes())
	}
}
