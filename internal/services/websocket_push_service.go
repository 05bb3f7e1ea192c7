package services

import (
	"encoding/json"
	"sync"
	"time"

	"oracle-backend/internal/metrics"
	"oracle-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const wsWriteTimeout = 10 * time.Second

// outcomeMessage is the wire format pushed to websocket clients.
type outcomeMessage struct {
	Type    string                   `json:"type"`
	Payload *models.ProcessedRequest `json:"payload"`
}

// WebSocketPushService broadcasts terminal request outcomes to connected
// clients, so dashboards see fulfillments without polling the ledger.
type WebSocketPushService struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	logger  *logrus.Logger
}

// NewWebSocketPushService creates a websocket push service.
func NewWebSocketPushService(logger *logrus.Logger) *WebSocketPushService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WebSocketPushService{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

// Register adds a client connection and holds it until it drops. Incoming
// messages are discarded; the channel is push-only.
func (s *WebSocketPushService) Register(conn *websocket.Conn) {
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()
	metrics.WSClientsConnected.Set(float64(count))
	s.logger.WithField("clients", count).Info("Websocket client connected")

	go s.readLoop(conn)
}

func (s *WebSocketPushService) readLoop(conn *websocket.Conn) {
	defer s.unregister(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WebSocketPushService) unregister(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	count := len(s.clients)
	s.mu.Unlock()
	_ = conn.Close()
	metrics.WSClientsConnected.Set(float64(count))
	s.logger.WithField("clients", count).Info("Websocket client disconnected")
}

// NotifyProcessed implements OutcomeNotifier by broadcasting the record to
// every connected client. A failed write drops that client only.
func (s *WebSocketPushService) NotifyProcessed(record *models.ProcessedRequest) {
	data, err := json.Marshal(outcomeMessage{Type: "request_processed", Payload: record})
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode outcome message")
		return
	}

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.WithError(err).Warn("Dropping unresponsive websocket client")
			s.unregister(conn)
		}
	}
}

// Shutdown closes every client connection.
func (s *WebSocketPushService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.Close()
		delete(s.clients, conn)
	}
	metrics.WSClientsConnected.Set(0)
}
