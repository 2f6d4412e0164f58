package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/anjiri1684/peptide_shop/logger"
	orderfeed "github.com/anjiri1684/peptide_shop/websocket"
)

// ServeOrderFeed keeps an admin socket registered until the client goes away.
// Inbound frames are read only to notice the close.
func ServeOrderFeed(hub *orderfeed.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		hub.Register(c)
		defer hub.Unregister(c)

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Log.Warn("order feed socket closed unexpectedly", zap.Error(err))
				}
				return
			}
		}
	}
}
