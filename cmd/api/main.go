package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/dvloznov/quantoda/internal/api"
	"github.com/dvloznov/quantoda/internal/api/handlers"
	"github.com/dvloznov/quantoda/internal/api/ws"
	"github.com/dvloznov/quantoda/internal/app"
	"github.com/dvloznov/quantoda/internal/config"
	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/jobs/inmemory"
	"github.com/dvloznov/quantoda/internal/logger"
	"github.com/dvloznov/quantoda/internal/payment"
	"github.com/dvloznov/quantoda/internal/session"
)

func main() {
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	flag.Parse()

	cfg := config.Load(logger.New())
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.NewWithLevel(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	ctx := logger.WithContext(context.Background(), log)

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close()

	sessions := session.NewManager(cfg.SessionTTL, cfg.FreeCredits, cfg.CreditsPerPurchase)

	gateway := payment.NewClient(cfg.AbacatePayBaseURL, cfg.AbacatePayAPIKey, cfg.PaymentReturnURL)
	if gateway.MockMode() {
		log.Warn().Msg("ABACATEPAY_API_KEY not set, payments run in mock mode")
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	hub := ws.NewHub(log)
	go hub.Run(workerCtx)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueSize, jobStore,
		inmemory.WithWorkers(cfg.Workers),
		inmemory.WithMaxRetries(cfg.JobRetries),
		inmemory.WithBackoff(cfg.JobBackoff),
		inmemory.WithErrorMessage(domain.UserMessage),
		inmemory.WithOnUpdate(handlers.JobUpdates(sessions, hub, log)),
	)

	log.Info().Int("workers", cfg.Workers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, handlers.NewAnalysisJobHandler(services.Analyzer)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	router := api.NewRouter(api.Handlers{
		Sessions: handlers.NewSessionsHandler(sessions, log),
		Analyses: handlers.NewAnalysesHandler(sessions, jobQueue, cfg.MaxUploadBytes, log),
		Jobs:     handlers.NewJobsHandler(jobStore, log),
		History:  handlers.NewHistoryHandler(sessions, services.History, log),
		Payments: handlers.NewPaymentsHandler(sessions, gateway, log),
		Hub:      hub,
	}, rate.NewLimiter(rate.Every(cfg.RateInterval), cfg.RateBurst), log)

	// WriteTimeout stays 0: websocket connections are long lived.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight analyses
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
