package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/notifications"
	"github.com/anjiri1684/peptide_shop/services"
)

const callbackTimeout = 15 * time.Second

// OrderPublisher receives confirmed orders for the admin live feed.
type OrderPublisher interface {
	Publish(ev services.OrderEvent)
}

// HandlePaymentResult consumes the gateway ResultURL notification. The gateway
// always gets the same redirect back, whatever happened to the callback.
func HandlePaymentResult(callbacks *services.CallbackService, notifier notifications.Notifier, feed OrderPublisher, redirectURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cb := services.Callback{
			OutSum:    c.FormValue("OutSum"),
			InvID:     c.FormValue("InvId"),
			Signature: c.FormValue("SignatureValue"),
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), callbackTimeout)
		defer cancel()

		out, err := callbacks.Handle(ctx, cb)
		switch {
		case err == nil:
			go notifications.Dispatch(notifier, out.Messages)
			if feed != nil {
				feed.Publish(out.Event())
			}
		case errors.Is(err, services.ErrAlreadyClosed),
			errors.Is(err, services.ErrSignatureMismatch),
			errors.Is(err, services.ErrPaymentNotFound),
			errors.Is(err, services.ErrInvalidCallback):
			// Logged by the callback service; nothing to do for the gateway.
		default:
			logger.Log.Error("payment result callback failed", zap.String("inv_id", cb.InvID), zap.Error(err))
		}

		return c.Redirect(redirectURL)
	}
}

// HandlePaymentRedirect sends the buyer back to the bot from the success and fail pages.
func HandlePaymentRedirect(redirectURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Redirect(redirectURL)
	}
}
