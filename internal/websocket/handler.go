package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/mailbeforecart/internal/auth"
)

// HandleWebSocket upgrades an authenticated operator request and streams hub
// events to it. originPatterns lists extra hosts allowed to connect
// cross-origin; same-origin requests are always accepted.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, auth.OperatorID(r.Context()))
		client.Run(r.Context())
	}
}
