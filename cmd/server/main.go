package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/chore-reward-api/internal/auth"
	"github.com/yukikurage/chore-reward-api/internal/config"
	"github.com/yukikurage/chore-reward-api/internal/constants"
	"github.com/yukikurage/chore-reward-api/internal/database"
	"github.com/yukikurage/chore-reward-api/internal/handlers"
	"github.com/yukikurage/chore-reward-api/internal/ledger"
	"github.com/yukikurage/chore-reward-api/internal/metrics"
	"github.com/yukikurage/chore-reward-api/internal/middleware"
	"github.com/yukikurage/chore-reward-api/internal/notify"
	"github.com/yukikurage/chore-reward-api/internal/repository"
	"github.com/yukikurage/chore-reward-api/internal/scheduler"
	"github.com/yukikurage/chore-reward-api/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	log := logrus.StandardLogger()
	if cfg.GinMode == gin.ReleaseMode {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetLevel(logrus.DebugLevel)
	}

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	// Initialize Gin router
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), metrics.Middleware())

	// Setup session middleware with Redis
	redisAddr := cfg.RedisHost + ":" + cfg.RedisPort
	store, err := redisStore.NewStore(
		10,        // Redis pool size
		"tcp",     // network type
		redisAddr, // Redis address from config
		"",        // password (empty = no password)
		[]byte(cfg.SessionSecret),
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Redis store")
	}
	isProduction := cfg.GinMode == gin.ReleaseMode
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("chore_session", store))

	// Collaborators
	var notifier notify.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kafka := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
		defer kafka.Close()
		notifier = kafka
	} else {
		log.Warn("KAFKA_BROKERS not set, notifications are only logged")
		notifier = notify.NewLogNotifier(log)
	}
	ledgerClient := ledger.NewHTTPClient(ledger.Config{
		BaseURL: cfg.LedgerURL,
		APIKey:  cfg.LedgerAPIKey,
		Timeout: cfg.LedgerTimeout,
	})

	// Repositories
	db := database.GetDB()
	userRepo := repository.NewUserRepository(db)
	familyRepo := repository.NewFamilyRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	// Services
	familyService := services.NewFamilyService(familyRepo, userRepo, notifier, log, services.InviteDefaults{
		MaxUses: cfg.InviteMaxUses,
		TTL:     cfg.InviteTTL,
	})
	taskService := services.NewTaskService(taskRepo, familyRepo, transactionRepo, notifier, log)
	settlementService := services.NewSettlementService(taskRepo, familyRepo, transactionRepo, userRepo, ledgerClient, notifier, log, cfg.LedgerTimeout)
	submissionService := services.NewSubmissionService(taskRepo, familyRepo, settlementService, notifier, log)
	userService := services.NewUserService(userRepo, familyRepo)
	suggestionService := services.NewSuggestionService(cfg.OpenAIAPIKey, familyRepo)

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, bearer tokens will be rejected")
	}
	authenticator := auth.NewAuthenticator(userRepo, auth.NewTokenVerifier(cfg.JWTSecret), log)
	joinLimiter := middleware.NewRateLimiter(cfg.JoinRatePerMinute, cfg.JoinRatePerMinute, log)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Chore Reward API is running",
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API routes
	handlers.Routes{
		Auth:        handlers.NewAuthHandler(userService),
		Family:      handlers.NewFamilyHandler(familyService),
		Task:        handlers.NewTaskHandler(taskService, settlementService, suggestionService),
		Submission:  handlers.NewSubmissionHandler(submissionService),
		RequireAuth: middleware.RequireAuth(authenticator),
		JoinLimit:   joinLimiter.Handler(),
	}.Register(r.Group("/api"))

	// Background jobs
	jobs := scheduler.New(log, time.Minute)
	if err := jobs.Add("expire_overdue_tasks", cfg.ExpirySchedule, func(ctx context.Context) error {
		_, err := taskService.ExpireOverdue(ctx, time.Now())
		return err
	}); err != nil {
		log.WithError(err).Fatal("Failed to schedule expiry job")
	}
	if err := jobs.Add("retry_failed_settlements", cfg.SettlementRetrySchedule, func(ctx context.Context) error {
		_, err := settlementService.RetryFailed(ctx, constants.SettlementRetryBatch)
		return err
	}); err != nil {
		log.WithError(err).Fatal("Failed to schedule settlement retry job")
	}
	if err := jobs.Add("prune_rate_limiters", "@every 1h", func(context.Context) error {
		joinLimiter.Cleanup(10000)
		return nil
	}); err != nil {
		log.WithError(err).Fatal("Failed to schedule rate limiter cleanup")
	}
	jobs.Start()

	// Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	jobs.Stop(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}
