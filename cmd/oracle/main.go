package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oracle-backend/internal/app"
	"oracle-backend/internal/config"
	"oracle-backend/internal/db"
	"oracle-backend/internal/router"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	configPath := os.Getenv("CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	container, err := app.InitializeContainer(logger)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	if err := container.Start(); err != nil {
		log.Fatalf("Failed to start services: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(container, logger),
	}

	go func() {
		log.Printf("🚀 Oracle API listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for SIGINT/SIGTERM, then drain the work queue before exiting so
	// no fulfillment is abandoned mid-flight.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown error: %v", err)
	}

	container.Shutdown(2 * time.Minute)
}
