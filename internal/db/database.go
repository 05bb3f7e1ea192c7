package db

import (
	"fmt"
	"log"

	"oracle-backend/internal/config"
	"oracle-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB opens the database connection and migrates the oracle's three
// tables: users, submissions and the processed-request ledger.
func InitDB() error {
	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	var err error
	DB, err = gorm.Open(postgres.Open(config.AppConfig.Database.DSN), &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	log.Println("✅ Database connected successfully")

	if err := DB.AutoMigrate(
		&models.User{},
		&models.Submission{},
		&models.ProcessedRequest{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.Println("✅ Database schema migrated")

	return nil
}
