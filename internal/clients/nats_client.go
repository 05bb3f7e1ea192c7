// Package clients holds connectors to external infrastructure services.
package clients

import (
	"fmt"
	"log"
	"time"

	"oracle-backend/internal/config"
	"oracle-backend/internal/metrics"

	"github.com/nats-io/nats.go"
)

// NATSClient consumes decoded verification request events published by an
// external block scanner. It is the alternative to the direct websocket log
// subscription for deployments where the RPC provider offers no ws endpoint.
type NATSClient struct {
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
}

// NewNATSClient connects to the NATS server with automatic reconnects.
func NewNATSClient(cfg *config.NATSConfig) (*NATSClient, error) {
	connectTimeout := time.Duration(cfg.Timeout) * time.Second
	reconnectWait := time.Duration(cfg.ReconnectWait) * time.Second

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ [NATS] Disconnected: %v", err)
			metrics.ListenerStatus.WithLabelValues("nats").Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ [NATS] Reconnected to %s", nc.ConnectedUrl())
			metrics.ListenerStatus.WithLabelValues("nats").Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	log.Printf("✅ [NATS] Connected to %s", cfg.URL)
	metrics.ListenerStatus.WithLabelValues("nats").Set(1)

	return &NATSClient{conn: conn, subject: cfg.Subject}, nil
}

// Subscribe registers the message handler for the configured subject.
func (c *NATSClient) Subscribe(handler nats.MsgHandler) error {
	sub, err := c.conn.Subscribe(c.subject, handler)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.subject, err)
	}
	c.sub = sub
	log.Printf("✅ [NATS] Subscribed to subject %s", c.subject)
	return nil
}

// Close drains the subscription and closes the connection.
func (c *NATSClient) Close() {
	if c.sub != nil {
		_ = c.sub.Drain()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	metrics.ListenerStatus.WithLabelValues("nats").Set(0)
}
