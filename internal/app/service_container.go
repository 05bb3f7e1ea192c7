package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"oracle-backend/internal/clients"
	"oracle-backend/internal/config"
	"oracle-backend/internal/cryptoutil"
	"oracle-backend/internal/db"
	"oracle-backend/internal/middleware"
	"oracle-backend/internal/repository"
	"oracle-backend/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer wires the oracle's repositories and services together.
type ServiceContainer struct {
	DB *gorm.DB

	// Repositories
	UserRepo       repository.UserRepository
	SubmissionRepo repository.SubmissionRepository
	ProcessedRepo  repository.ProcessedRequestRepository

	// Core services
	SeedBox     *cryptoutil.SeedBox
	ChainClient *services.EthChainClient
	WorkQueue   *services.WorkQueue
	Processor   *services.RequestProcessor
	PushService *services.WebSocketPushService
	RateLimiter *middleware.RateLimitMiddleware

	// Event sources (one active, per listener config)
	EventListener *services.EventListener
	NATSListener  *services.NATSEventListener

	queueCancel    context.CancelFunc
	listenerCancel context.CancelFunc
	listenerDone   sync.WaitGroup
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container from the loaded configuration.
func InitializeContainer(logger *logrus.Logger) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")
		cfg := config.AppConfig

		container := &ServiceContainer{DB: db.DB}

		container.UserRepo = repository.NewUserRepository(db.DB)
		container.SubmissionRepo = repository.NewSubmissionRepository(db.DB)
		container.ProcessedRepo = repository.NewProcessedRequestRepository(db.DB)

		seedBox, err := buildSeedBox(&cfg.Crypto)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize seed box: %w", err)
			return
		}
		container.SeedBox = seedBox

		chainClient, err := services.NewEthChainClient(&cfg.Blockchain)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize chain client: %w", err)
			return
		}
		container.ChainClient = chainClient

		container.WorkQueue = services.NewWorkQueue(cfg.Processor.Workers)
		container.PushService = services.NewWebSocketPushService(logger)
		container.RateLimiter = middleware.NewRateLimitMiddleware(
			cfg.RateLimit.RequestsPerMinute,
			cfg.RateLimit.Burst,
		)

		container.Processor = services.NewRequestProcessor(
			container.UserRepo,
			container.SubmissionRepo,
			container.ProcessedRepo,
			chainClient,
			chainClient,
			seedBox,
			container.WorkQueue,
			container.PushService,
			services.ProcessorOptions{
				SubmissionAttempts: cfg.Processor.SubmissionAttempts,
				SubmissionDelay:    time.Duration(cfg.Processor.SubmissionDelaySeconds) * time.Second,
				RequeueAttempts:    cfg.Processor.RequeueAttempts,
				Algorithm:          cfg.OTP.Algorithm,
			},
			logger,
		)

		switch cfg.Listener.Type {
		case "nats":
			natsClient, err := clients.NewNATSClient(&cfg.Listener.NATS)
			if err != nil {
				initErr = fmt.Errorf("failed to initialize NATS client: %w", err)
				return
			}
			container.NATSListener = services.NewNATSEventListener(natsClient, container.Processor)
		default:
			container.EventListener = services.NewEventListener(chainClient, container.Processor)
		}

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

func buildSeedBox(cfg *config.CryptoConfig) (*cryptoutil.SeedBox, error) {
	if cfg.MasterKey != "" {
		return cryptoutil.NewSeedBox(cfg.MasterKey)
	}
	return cryptoutil.NewSeedBoxFromPassphrase(cfg.MasterPassphrase, cfg.MasterSalt)
}

// Start launches the work queue and the configured event source. The queue
// gets its own context so shutting down the listener does not cancel
// in-flight fulfillments; the queue context falls only after the drain.
func (c *ServiceContainer) Start() error {
	queueCtx, queueCancel := context.WithCancel(context.Background())
	c.queueCancel = queueCancel
	c.WorkQueue.Start(queueCtx)

	listenerCtx, listenerCancel := context.WithCancel(context.Background())
	c.listenerCancel = listenerCancel

	if c.NATSListener != nil {
		if err := c.NATSListener.Start(); err != nil {
			return fmt.Errorf("failed to start NATS listener: %w", err)
		}
		return nil
	}

	c.listenerDone.Add(1)
	go func() {
		defer c.listenerDone.Done()
		c.EventListener.Run(listenerCtx)
	}()
	return nil
}

// Shutdown stops event intake, drains the work queue so no fulfillment is
// abandoned mid-flight, then releases the remaining resources.
func (c *ServiceContainer) Shutdown(timeout time.Duration) {
	log.Println("🛑 Shutting down, waiting for queue to drain...")

	if c.NATSListener != nil {
		c.NATSListener.Stop()
	}
	if c.listenerCancel != nil {
		c.listenerCancel()
	}
	c.listenerDone.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.WorkQueue.Drain(drainCtx); err != nil {
		log.Printf("⚠️ Queue drain timed out, %v", err)
	}
	if c.queueCancel != nil {
		c.queueCancel()
	}
	c.WorkQueue.Stop()
	c.PushService.Shutdown()
	c.RateLimiter.Stop()

	log.Println("✅ Shutdown complete")
}
