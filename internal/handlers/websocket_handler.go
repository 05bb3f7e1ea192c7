package handlers

import (
	"net/http"

	"oracle-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS layer in front of this.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades connections for the outcome push stream.
type WebSocketHandler struct {
	push   *services.WebSocketPushService
	logger *logrus.Logger
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(push *services.WebSocketPushService, logger *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{push: push, logger: logger}
}

// Subscribe handles GET /ws
func (h *WebSocketHandler) Subscribe(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	h.push.Register(conn)
}
