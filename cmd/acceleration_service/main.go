package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/app"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/repository"
	memoryrepo "github.com/nimbuswallet/golang_services/internal/acceleration_service/repository/memory"
	pgrepo "github.com/nimbuswallet/golang_services/internal/acceleration_service/repository/postgres"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/submitter"
	accelhttp "github.com/nimbuswallet/golang_services/internal/acceleration_service/transport/http"
	"github.com/nimbuswallet/golang_services/internal/platform/config"
	"github.com/nimbuswallet/golang_services/internal/platform/database"
	"github.com/nimbuswallet/golang_services/internal/platform/logger"
	"github.com/nimbuswallet/golang_services/internal/platform/messagebroker"
	platform_middleware "github.com/nimbuswallet/golang_services/internal/platform/middleware"
)

func main() {
	cfg, err := config.Load("acceleration_service")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Acceleration Service starting...", "log_level", cfg.LogLevel, "tx_store", cfg.TxStoreBackend)

	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	var txRepo repository.TransactionRepository
	switch cfg.TxStoreBackend {
	case "postgres":
		dbPool, err := database.NewDBPool(appCtx, cfg.PostgresDSN)
		if err != nil {
			appLogger.Error("Failed to connect to PostgreSQL database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		appLogger.Info("Successfully connected to PostgreSQL database")
		txRepo = pgrepo.NewPgTransactionRepository(dbPool)
	case "memory":
		txRepo = memoryrepo.NewMemoryTransactionRepository()
		appLogger.Warn("Using in-memory transaction store; records do not survive restarts")
	default:
		appLogger.Error("Unknown TX_STORE_BACKEND", "value", cfg.TxStoreBackend)
		os.Exit(1)
	}

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, "acceleration-service", appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS")

	var replacementSubmitter submitter.ReplacementSubmitter
	if cfg.SubmitterBaseURL != "" {
		replacementSubmitter = submitter.NewHTTPSubmitter(appLogger, cfg.SubmitterBaseURL, cfg.SubmitterAPIKey, nil)
		appLogger.Info("Using HTTP submission service", "base_url", cfg.SubmitterBaseURL)
	} else {
		replacementSubmitter = submitter.NewMockSubmitter(appLogger, nil, 0)
		appLogger.Warn("SUBMITTER_BASE_URL not configured; using mock submitter (development mode)")
	}

	controller := app.NewLifecycleController(txRepo, replacementSubmitter, natsClient, appLogger)

	consumer := app.NewTxEventConsumer(natsClient, controller, appLogger)
	consumer.Start(appCtx)
	appLogger.Info("Transaction event consumer started",
		"subjects", []string{app.SubjectTxConfirmed, app.SubjectTxDropped}, "queue_group", app.TxEventQueueGroup)

	handler := accelhttp.NewAccelerationHandler(controller, appLogger, validator.New())

	router := chi.NewRouter()
	router.Use(chi_middleware.RequestID)
	router.Use(chi_middleware.RealIP)
	router.Use(chi_middleware.Recoverer)
	router.Use(accelhttp.PrometheusMetricsMiddleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(platform_middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger))
		handler.RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AccelerationServicePort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		appLogger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed", "error", err)
			cancelAppCtx()
		}
	}()

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case receivedSignal := <-quitChan:
		appLogger.Info("Shutdown signal received", "signal", receivedSignal.String())
	case <-appCtx.Done():
		appLogger.Info("Application context cancelled")
	}

	appLogger.Info("Attempting graceful shutdown of Acceleration Service...")
	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", "error", err)
	}

	appLogger.Info("Acceleration Service shut down successfully.")
}
