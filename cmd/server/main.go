package main

import (
	"brokerage_system/internal/api"       // Custom package for API handlers
	"brokerage_system/internal/config"    // Custom package for configuration
	"brokerage_system/internal/db"        // Custom package for the database
	"brokerage_system/internal/events"    // Domain event publishing
	"brokerage_system/internal/metrics"   // Prometheus metrics
	"brokerage_system/internal/payment"   // Payment gateway
	"brokerage_system/internal/processor" // Payment processor client
	"brokerage_system/internal/trade"     // Trade state machine
	"brokerage_system/internal/utils"     // Utility functions
	"context"                             // Shutdown deadline
	"errors"                              // Error inspection
	"net/http"                            // HTTP server
	"os"                                  // Signals
	"os/signal"                           // Signal notification
	"syscall"                             // SIGTERM
	"time"                                // Timeouts

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration
	cfg.SetupLogging()         // Setup logger

	// Connect to the database
	gdb, err := db.Open(cfg.DSN(), cfg.IsProd)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client, optional in development
	redisClient, err := utils.NewRedisClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}
	if redisClient == nil {
		logrus.Warn("REDIS_ADDR not set, caching and events disabled")
	}

	if cfg.ProcessorWebhookSecret == "" {
		logrus.Warn("PROCESSOR_WEBHOOK_SECRET not set, every webhook will be rejected")
	}

	m := metrics.New()                                                                                 // Prometheus registry
	pub := events.NewRedisPublisher(redisClient, cfg.EventsChannel)                                    // Domain events
	proc := processor.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorSecretKey, cfg.ProcessorTimeout, m) // Processor API
	gw := payment.NewGateway(payment.Config{
		DB:            gdb,                        // Database
		Processor:     proc,                       // Processor client
		WebhookSecret: cfg.ProcessorWebhookSecret, // Webhook signature secret
		Redis:         redisClient,                // Cache invalidation
		Events:        pub,                        // Domain events
		Metrics:       m,                          // Counters
	})
	trades := trade.NewService(gdb, redisClient, pub, m) // Trade state machine

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	api.RegisterRoutes(r, api.Deps{
		DB:              gdb,                 // Database
		Redis:           redisClient,         // Cache
		Gateway:         gw,                  // Payments
		Trades:          trades,              // Trade orders
		Metrics:         m,                   // Metrics
		JWTSecret:       cfg.JWTSecret,       // Token secret
		DefaultCurrency: cfg.DefaultCurrency, // Currency when omitted
		ReconcileMinAge: cfg.ReconcileMinAge, // Manual sweep age
		ReconcileBatch:  cfg.ReconcileBatch,  // Manual sweep size
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort, // Listen address
		Handler:           r,                 // Gin router
		ReadHeaderTimeout: 10 * time.Second,  // Slowloris guard
	}
	go func() {
		logrus.Info("Server running on " + cfg.AppPort) // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal, then drain in-flight requests
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("graceful shutdown failed: %v", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logrus.Info("Server stopped")
}
