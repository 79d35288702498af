package websocket

import (
	"log/slog"
	"net/http"
	"strings"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades the request and streams changes to it. The
// optional "entity" query parameter, a comma-separated list such as
// "list-items,history", narrows the feed.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			// The daemon listens on loopback; local tools may have any origin.
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		var entities []string
		if q := r.URL.Query().Get("entity"); q != "" {
			entities = strings.Split(q, ",")
		}
		logger.Debug("websocket connected", "remote", r.RemoteAddr, "entities", entities)

		NewClient(hub, conn, entities, logger).Run(r.Context())
	}
}
