package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Shaheed-N/medical-reserva-sub000/internal/booking"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/config"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize Booking Service
	service := booking.New(cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start service in a goroutine
	go func() {
		logger.WithField("addr", addr).Info("Starting Booking Service")
		if err := service.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start Booking Service")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Booking Service...")
	if err := service.Stop(); err != nil {
		logger.WithError(err).Error("Error during shutdown")
	}
	logger.Info("Booking Service stopped")
}
