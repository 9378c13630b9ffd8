package db

import (
	"brokerage_system/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
	"gorm.io/gorm/logger"  // GORM logger levels
)

// Models lists every table owned by the service
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Wallet{},
		&domain.WalletTransaction{},
		&domain.Company{},
		&domain.ShareHolding{},
		&domain.TradeOrder{},
	}
}

// Open connects to MySQL with READ COMMITTED sessions so row locks taken
// with SELECT ... FOR UPDATE see the latest committed row.
func Open(dsn string, prod bool) (*gorm.DB, error) {
	level := logger.Info // Verbose SQL in development
	if prod {
		level = logger.Warn // Only slow queries and errors in production
	}
	dsn += "&transaction_isolation=%27READ-COMMITTED%27"
	return gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(level)})
}

// AutoMigrate creates or updates the schema on an open connection
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// Migrate performs automatic migration for the database schema
func Migrate(dsn string) {
	db, err := Open(dsn, false) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := AutoMigrate(db); err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	logrus.Info("Migration completed.") // Log successful migration
}
