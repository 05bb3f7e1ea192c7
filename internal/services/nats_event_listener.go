package services

import (
	"encoding/json"
	"log"

	"oracle-backend/internal/clients"
	"oracle-backend/internal/metrics"

	"github.com/nats-io/nats.go"
)

// NATSEventListener feeds scanner-published verification requests to the
// processor. Message payloads are JSON-encoded VerificationRequest records.
// Like the log listener it never deduplicates; the ledger does.
type NATSEventListener struct {
	client    *clients.NATSClient
	processor *RequestProcessor
}

// NewNATSEventListener creates a NATS-sourced event listener.
func NewNATSEventListener(client *clients.NATSClient, processor *RequestProcessor) *NATSEventListener {
	return &NATSEventListener{client: client, processor: processor}
}

// Start subscribes to the configured subject.
func (l *NATSEventListener) Start() error {
	return l.client.Subscribe(func(msg *nats.Msg) {
		metrics.EventsReceived.WithLabelValues("nats").Inc()

		var req VerificationRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			metrics.EventDecodeFailures.Inc()
			log.Printf("⚠️ [Listener] Dropping undecodable NATS message on %s: %v", msg.Subject, err)
			return
		}
		if req.RequestID == "" {
			metrics.EventDecodeFailures.Inc()
			log.Printf("⚠️ [Listener] Dropping NATS message without request id")
			return
		}

		log.Printf("📥 [Listener] VerificationRequested via NATS: request=%s user=%s", req.RequestID, req.UserID)
		l.processor.Enqueue(&req)
	})
}

// Stop closes the underlying NATS connection.
func (l *NATSEventListener) Stop() {
	l.client.Close()
}
