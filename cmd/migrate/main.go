package main

import (
	"brokerage_system/internal/config" // Custom import path (Config)
	"brokerage_system/internal/db"     // Custom import path (Database)
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	cfg.SetupLogging()         // Setup logger
	db.Migrate(cfg.DSN())      // Create or update the schema
}
