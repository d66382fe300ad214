package ws

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rps_wager/internal/service"
)

// HandleWS upgrades an authenticated request and, when ?match= is given,
// subscribes the socket to that match room straight away.
func HandleWS(hub *Hub, verifier *service.TokenVerifier, engine Engine, allowedOrigin string, log *slog.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		playerID, err := verifier.ParsePlayerID(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("ws upgrade error", "error", err)
			return
		}

		client := NewClient(playerID, conn, hub, engine, log)
		if matchID := c.Query("match"); matchID != "" {
			hub.Subscribe(client, matchID)
		}
		go client.Run()
	}
}
