package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/rework/video-access/pkg/config"
	"github.com/rework/video-access/pkg/events"
	"github.com/rework/video-access/pkg/logger"
	mw "github.com/rework/video-access/pkg/middleware"
	"github.com/rework/video-access/services/notify/internal/consumer"
)

func main() {
	cfg := config.Load()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	c := consumer.New(eventBus)
	if err := c.Start(); err != nil {
		logger.Error("Failed to start consumer", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Logging)
	r.Use(mw.Health)

	port := os.Getenv("NOTIFY_PORT")
	if port == "" {
		port = "8086"
	}

	go func() {
		logger.Info("Starting notify service", "port", port)
		if err := http.ListenAndServe(":"+port, r); err != nil {
			logger.Error("Notify service error", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down notify service...")
}
