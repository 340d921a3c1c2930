package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/rework/video-access/pkg/config"
	"github.com/rework/video-access/pkg/database"
	"github.com/rework/video-access/pkg/events"
	"github.com/rework/video-access/pkg/logger"
	"github.com/rework/video-access/pkg/metrics"
	mw "github.com/rework/video-access/pkg/middleware"
	"github.com/rework/video-access/services/playback/internal/alert"
	"github.com/rework/video-access/services/playback/internal/handlers"
	"github.com/rework/video-access/services/playback/internal/purge"
	"github.com/rework/video-access/services/playback/internal/repository"
	"github.com/rework/video-access/services/playback/internal/service"
	"github.com/rework/video-access/services/playback/internal/storage"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	// Durable store
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	migrator, err := database.NewMigrator(pool, cfg.Database.MigrationsPath)
	if err != nil {
		logger.Error("Failed to init migrator", "error", err)
		os.Exit(1)
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Error("Failed to apply migrations", "error", err)
		os.Exit(1)
	}
	migrator.Close()

	// Guest quota cache
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid redis URL", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Collaborators
	var storageClient storage.Client
	if cfg.Storage.DevMode {
		storageClient = storage.NewDevClient()
	} else {
		storageClient = storage.NewHTTPClient(cfg.Storage.BaseURL, cfg.Storage.APIKey, cfg.Purge.CallTimeout)
	}

	var alerter alert.Service
	if cfg.Alerts.DevMode || cfg.Alerts.MailerSendKey == "" {
		alerter = alert.NewDevAlerter()
	} else {
		alerter = alert.NewMailerSend(cfg.Alerts.MailerSendKey, cfg.Alerts.FromName, cfg.Alerts.FromEmail, cfg.Alerts.OperatorEmail)
	}

	m := metrics.New()

	// Repositories
	grantRepo := repository.NewGrantRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	deletionRepo := repository.NewDeletionRepository(pool)
	guestRepo := repository.NewGuestRepository(rdb, cfg.Guest.ViewLimit, cfg.Guest.SessionTTL)

	// Deletion scheduler
	purger := purge.NewScheduler(deletionRepo, grantRepo, sessionRepo, storageClient, eventBus, alerter, m, cfg)
	purger.Start(ctx)
	defer purger.Stop()

	// Services
	grantService := service.NewGrantService(grantRepo, purger, cfg)
	sessionService := service.NewSessionService(sessionRepo, grantRepo, eventBus, purger, m, cfg)
	urlService := service.NewURLService(sessionRepo, grantRepo, cfg)
	guestService := service.NewGuestService(guestRepo)

	h := handlers.New(grantService, sessionService, urlService, guestService)

	updateGauges := func() {
		if n, err := sessionRepo.CountActive(ctx); err == nil {
			m.SetActiveSessions(n)
		}
	}

	// Router
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("playback"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Viewer-Scope", "X-Viewer-Id"},
		MaxAge:         300,
	}))
	r.Use(mw.Health)
	r.Use(mw.Metrics(m, updateGauges))

	r.Route("/player", func(r chi.Router) {
		r.Use(h.RequireViewer)
		r.Post("/videos/{videoID}/playback", h.StartPlayback)
		r.Post("/sessions/{sessionID}/heartbeat", h.Heartbeat)
		r.Delete("/sessions/{sessionID}", h.EndSession)
	})

	r.Get("/videos/{videoID}/stream", h.Stream)

	r.Route("/guests/views", func(r chi.Router) {
		r.Post("/", h.TrackGuestView)
		r.Post("/sync", h.SyncGuestViews)
		r.Get("/{deviceID}", h.GetGuestViews)
		r.Delete("/{deviceID}", h.ResetGuestViews)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Post("/grants", h.CreateGrant)
		r.Get("/grants/{grantID}", h.GetGrant)
		r.Delete("/grants/{grantID}", h.PurgeGrant)
		r.Post("/grants/{grantID}/purge-cancel", h.CancelPurge)
		r.Get("/videos/{videoID}/stats", h.VideoStats)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down playback service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Playback service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting playback service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Playback service error", "error", err)
		os.Exit(1)
	}
}
