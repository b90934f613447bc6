package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/database"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stemsi/algoprep-backend/internal/event"
	"github.com/stemsi/algoprep-backend/internal/handler"
	"github.com/stemsi/algoprep-backend/internal/logger"
	"github.com/stemsi/algoprep-backend/internal/repository"
	"github.com/stemsi/algoprep-backend/internal/router"
	"github.com/stemsi/algoprep-backend/internal/service"
	"github.com/stemsi/algoprep-backend/internal/validator"
	"github.com/stemsi/algoprep-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting AlgoPrep Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to RabbitMQ ───────────────────────────────────────────
	publisher, err := event.NewAMQPPublisher(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer publisher.Close()

	eval := evaluator.NewHTTPClient(cfg.EvaluatorURL, cfg.EvaluatorAPIKey, cfg.EvaluatorTimeout, log)
	clock := clockwork.NewRealClock()

	// ─── Initialize Repositories ───────────────────────────────────────
	questionRepo := repository.NewQuestionRepository(pool)
	interviewRepo := repository.NewInterviewRepository(pool)
	progressRepo := repository.NewProgressRepository(pool)
	draftRepo := repository.NewDraftRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	queue := service.NewRedisEnqueuer(rdb)
	authService := service.NewAuthService(cfg)
	sessionService := service.NewSessionService(
		cfg, questionRepo, interviewRepo, service.NewRedisSessionMarker(rdb),
		eval, publisher, clock, log,
	)
	reviewService := service.NewReviewService(questionRepo, progressRepo, queue, publisher, clock, log)
	practiceService := service.NewPracticeService(
		service.NewRedisDraftCache(rdb), draftRepo, queue, clock, cfg.DraftDebounce, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Interview: handler.NewInterviewHandler(sessionService),
		Practice:  handler.NewPracticeHandler(reviewService, practiceService, cfg.DefaultLocation()),
		WS:        handler.NewWSHandler(sessionService, practiceService, queue, clock, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(pool, rdb, log)
	pasteWorker := worker.NewPasteWorker(pool, rdb, log)
	xpWorker := worker.NewXPWorker(pool, rdb, log)

	go autosaveWorker.Start(workerCtx)
	go pasteWorker.Start(workerCtx)
	go xpWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked WebSocket
	// connections are not tracked by Shutdown; they close with their session.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Force-end running interviews so their results are persisted.
	finalizeCtx, finalizeCancel := context.WithTimeout(context.Background(), cfg.FinalizeAwaitTimeout+5*time.Second)
	defer finalizeCancel()
	sessionService.Shutdown(finalizeCtx)

	// 3. Save pending drafts, which lands them on the autosave queue.
	practiceService.Close()

	// 4. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
