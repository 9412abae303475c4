package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/retina-api/internal/config"
	authHandler "github.com/jwalitptl/retina-api/internal/handler/auth"
	dashboardHandler "github.com/jwalitptl/retina-api/internal/handler/dashboard"
	healthHandler "github.com/jwalitptl/retina-api/internal/handler/health"
	notificationHandler "github.com/jwalitptl/retina-api/internal/handler/notification"
	patientHandler "github.com/jwalitptl/retina-api/internal/handler/patient"
	promHandler "github.com/jwalitptl/retina-api/internal/handler/prometheus"
	scanHandler "github.com/jwalitptl/retina-api/internal/handler/scan"
	"github.com/jwalitptl/retina-api/internal/middleware"
	"github.com/jwalitptl/retina-api/internal/repository/snapshot"
	"github.com/jwalitptl/retina-api/internal/router"
	"github.com/jwalitptl/retina-api/internal/service/classifier"
	"github.com/jwalitptl/retina-api/internal/service/notification"
	"github.com/jwalitptl/retina-api/internal/service/patient"
	"github.com/jwalitptl/retina-api/internal/service/screening"
	"github.com/jwalitptl/retina-api/internal/service/session"
	"github.com/jwalitptl/retina-api/internal/storage"
	"github.com/jwalitptl/retina-api/pkg/event"
	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/messaging"
	redisBroker "github.com/jwalitptl/retina-api/pkg/messaging/redis"
	"github.com/jwalitptl/retina-api/pkg/metrics"
	"github.com/jwalitptl/retina-api/pkg/security"
	"github.com/jwalitptl/retina-api/pkg/validator"
	"github.com/jwalitptl/retina-api/pkg/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})
	log.Logger = appLogger.Zerolog()

	appMetrics := metrics.NewMetrics(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persisted mirror
	opened, err := storage.Open(ctx, cfg, appLogger, appMetrics)
	if err != nil {
		appLogger.Fatal(err, "failed to open storage", "backend", cfg.Storage.Backend)
	}
	defer opened.KV.Close()

	repo := snapshot.New(opened.KV, appLogger.With("snapshot"))
	bus := event.NewBus()

	// Stores
	sentinel, err := security.NewSentinel(security.NewBcryptHasher(cfg.Session.BcryptCost), cfg.Session.Password)
	if err != nil {
		appLogger.Fatal(err, "failed to prepare session sentinel")
	}
	sessions, err := session.NewService(ctx, repo, sentinel, bus, appLogger.With("session"), appMetrics,
		session.Config{Latency: cfg.Session.Latency})
	if err != nil {
		appLogger.Fatal(err, "failed to load session")
	}
	records, err := patient.NewService(ctx, repo, validator.New(), bus, appLogger.With("patients"), appMetrics,
		patient.Config{StrictReferences: cfg.Patients.StrictReferences})
	if err != nil {
		appLogger.Fatal(err, "failed to load patient records")
	}

	// Screening
	images, err := screening.NewImageStore(cfg.Uploads.Dir, cfg.Uploads.MaxBytes)
	if err != nil {
		appLogger.Fatal(err, "failed to prepare image store")
	}
	grader := classifier.NewRandom(classifier.Config{Latency: cfg.Classifier.Latency}, appLogger.With("classifier"), appMetrics)
	workflow := screening.NewWorkflow(records, images, grader, bus, appLogger.With("screening"))

	// Notifications, optionally relayed to redis
	var relay *worker.Relay
	if cfg.Relay.Enabled {
		broker, err := newBroker(cfg, opened, appLogger)
		if err != nil {
			appLogger.Fatal(err, "failed to connect notification broker")
		}
		defer broker.Close()

		relay = worker.NewRelay(broker, worker.RelayConfig{
			Channel:       cfg.Relay.Channel,
			QueueSize:     cfg.Relay.QueueSize,
			RetryAttempts: cfg.Relay.RetryAttempts,
			RetryDelay:    cfg.Relay.RetryDelay,
		}, appLogger.With("relay"), appMetrics)
		go relay.Start(ctx)
	}
	var enqueuer notification.Enqueuer
	if relay != nil {
		enqueuer = relay
	}
	notifications := notification.NewService(bus, notification.Config{
		TTL:             cfg.Notifications.TTL,
		CleanupInterval: cfg.Notifications.CleanupInterval,
		Limit:           cfg.Notifications.Limit,
	}, enqueuer, appLogger.With("notifications"))
	defer notifications.Close()

	// HTTP
	r, err := router.NewRouter(
		middleware.NewAuthMiddleware(sessions),
		sessions,
		router.Handlers{
			Auth:         authHandler.NewHandler(sessions),
			Patient:      patientHandler.NewHandler(records),
			Scan:         scanHandler.NewHandler(records, workflow),
			Dashboard:    dashboardHandler.NewHandler(records),
			Notification: notificationHandler.NewHandler(notifications),
			Health:       healthHandler.NewHandler(opened.KV),
			Metrics:      promHandler.New(prometheus.DefaultGatherer, appMetrics),
		},
		router.RouterConfig{
			Mode:      cfg.Server.Mode,
			RateLimit: rate.Limit(cfg.RateLimit.RPS),
			RateBurst: cfg.RateLimit.Burst,
			CORSConfig: middleware.CORSConfig{
				AllowOrigins:     cfg.CORS.AllowOrigins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           cfg.CORS.MaxAge,
			},
			SizeLimit: middleware.SizeLimitConfig{
				MaxBodySize:   middleware.DefaultSizeLimitConfig().MaxBodySize,
				MaxUploadSize: cfg.Uploads.MaxBytes,
			},
			Security:  middleware.DefaultSecurityConfig(),
			UploadDir: images.Dir(),
		},
	)
	if err != nil {
		appLogger.Fatal(err, "failed to build router")
	}
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port, "backend", opened.KV.Backend())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

// newBroker reuses the storage redis connection when there is one.
func newBroker(cfg *config.Config, opened *storage.Opened, appLogger *logger.Logger) (messaging.Broker, error) {
	zl := appLogger.With("broker").Zerolog()
	if opened.RedisClient != nil {
		return redisBroker.NewWithClient(opened.RedisClient, zl), nil
	}
	return redisBroker.NewRedisBroker(redisBroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, zl)
}
