package routes

import (
	"time"

	"gorm.io/gorm"

	"github.com/anjiri1684/peptide_shop/notifications"
	"github.com/anjiri1684/peptide_shop/services"
	orderfeed "github.com/anjiri1684/peptide_shop/websocket"
)

// Dependencies carries everything the HTTP routes are wired to.
type Dependencies struct {
	DB          *gorm.DB
	JWTSecret   string
	RedirectURL string
	Now         func() time.Time

	Referrals *services.ReferralService
	Ledger    *services.LedgerService
	Callbacks *services.CallbackService
	Notifier  notifications.Notifier
	Hub       *orderfeed.Hub
}
