package main

import (
	"brokerage_system/internal/config"    // Custom package for configuration
	"brokerage_system/internal/db"        // Custom package for the database
	"brokerage_system/internal/events"    // Domain event publishing
	"brokerage_system/internal/payment"   // Payment gateway
	"brokerage_system/internal/processor" // Payment processor client
	"brokerage_system/internal/utils"     // Utility functions
	"context"                             // Sweep cancellation
	"os"                                  // Signals
	"os/signal"                           // Signal notification
	"syscall"                             // SIGTERM

	"github.com/robfig/cron/v3"  // Cron scheduler
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// Main runs the reconciliation sweep on a cron schedule until stopped
func main() {
	cfg := config.LoadConfig() // Load configuration
	cfg.SetupLogging()         // Setup logger

	gdb, err := db.Open(cfg.DSN(), cfg.IsProd) // Connect to the database
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	redisClient, err := utils.NewRedisClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB) // Optional Redis
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	gw := payment.NewGateway(payment.Config{
		DB:        gdb,                                                                                          // Database
		Processor: processor.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorSecretKey, cfg.ProcessorTimeout, nil), // Processor API
		Redis:     redisClient,                                                                                  // Cache invalidation
		Events:    events.NewRedisPublisher(redisClient, cfg.EventsChannel),                                     // Domain events
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SkipIfStillRunning keeps one sweep at a time
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = c.AddFunc(cfg.ReconcileSchedule, func() {
		summary, err := gw.ReconcilePending(ctx, cfg.ReconcileMinAge, cfg.ReconcileBatch)
		entry := logrus.WithFields(logrus.Fields{
			"checked": summary.Checked, // Transactions polled
			"settled": summary.Settled, // Settled now
			"failed":  summary.Failed,  // Failed or reversed now
			"pending": summary.Pending, // Still pending
			"errors":  summary.Errors,  // Per-transaction errors
		})
		if err != nil {
			entry.WithError(err).Warn("Reconciliation sweep stopped early")
			return
		}
		entry.Info("Reconciliation sweep finished")
	})
	if err != nil {
		logrus.Fatalf("invalid RECONCILE_SCHEDULE %q: %v", cfg.ReconcileSchedule, err)
	}
	c.Start()
	logrus.WithField("schedule", cfg.ReconcileSchedule).Info("Reconciler started")

	<-ctx.Done()
	<-c.Stop().Done() // Wait for a running sweep to finish
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logrus.Info("Reconciler stopped")
}
