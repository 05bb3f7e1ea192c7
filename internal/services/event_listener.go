package services

import (
	"context"
	"log"
	"time"

	"oracle-backend/internal/metrics"

	"github.com/ethereum/go-ethereum/core/types"
)

// EventListener consumes the verifier contract's VerificationRequested log
// stream and feeds decoded requests to the processor. It performs no
// deduplication: redelivered events are harmless because the processed-
// request ledger gates every invocation.
type EventListener struct {
	client    *EthChainClient
	processor *RequestProcessor

	resubscribeWait time.Duration
}

// NewEventListener creates a chain log event listener.
func NewEventListener(client *EthChainClient, processor *RequestProcessor) *EventListener {
	return &EventListener{
		client:          client,
		processor:       processor,
		resubscribeWait: 5 * time.Second,
	}
}

// Run subscribes and consumes events until the context is cancelled,
// resubscribing with a fixed wait whenever the underlying subscription
// drops. A decode failure is logged and the event dropped; the listener
// never crashes on bad input.
func (l *EventListener) Run(ctx context.Context) {
	log.Printf("🚀 [Listener] Listening for VerificationRequested events")

	for {
		if err := l.consume(ctx); err != nil {
			metrics.ListenerStatus.WithLabelValues("subscribe").Set(0)
			log.Printf("⚠️ [Listener] Subscription lost, resubscribing in %v: %v", l.resubscribeWait, err)
		}

		select {
		case <-time.After(l.resubscribeWait):
		case <-ctx.Done():
			log.Printf("✅ [Listener] Event listener stopped")
			return
		}
	}
}

func (l *EventListener) consume(ctx context.Context) error {
	logs := make(chan types.Log, 64)
	sub, err := l.client.SubscribeRequests(ctx, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	metrics.ListenerStatus.WithLabelValues("subscribe").Set(1)

	for {
		select {
		case lg := <-logs:
			l.handleLog(lg)
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *EventListener) handleLog(lg types.Log) {
	metrics.EventsReceived.WithLabelValues("subscribe").Inc()

	req, err := l.client.DecodeVerificationRequest(lg)
	if err != nil {
		metrics.EventDecodeFailures.Inc()
		log.Printf("⚠️ [Listener] Dropping undecodable event (tx=%s, index=%d): %v",
			lg.TxHash.Hex(), lg.Index, err)
		return
	}

	log.Printf("📥 [Listener] VerificationRequested: request=%s user=%s expiry=%d",
		req.RequestID, req.UserID, req.ExpiryAt)
	l.processor.Enqueue(req)
}
