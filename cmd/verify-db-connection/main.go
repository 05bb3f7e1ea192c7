package main

import (
	"database/sql"
	"fmt"
	"log"

	"oracle-backend/internal/config"

	_ "github.com/lib/pq"
)

// verify-db-connection checks connectivity and confirms the oracle's tables
// exist with their expected key columns.
func main() {
	fmt.Println("🔍 Verifying database connection...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sqlDB, err := sql.Open("postgres", config.AppConfig.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to query database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	tables := map[string]string{
		"users":              "user_id",
		"submissions":        "request_id",
		"processed_requests": "request_id",
	}
	for table, keyColumn := range tables {
		var dataType sql.NullString
		err := sqlDB.QueryRow(`
			SELECT data_type FROM information_schema.columns
			WHERE table_name = $1 AND column_name = $2`,
			table, keyColumn).Scan(&dataType)
		if err == sql.ErrNoRows {
			fmt.Printf("❌ Table %s missing or lacks key column %s\n", table, keyColumn)
			continue
		}
		if err != nil {
			log.Fatalf("Failed to inspect table %s: %v", table, err)
		}

		var count int64
		if err := sqlDB.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			log.Fatalf("Failed to count rows of %s: %v", table, err)
		}
		fmt.Printf("✅ %s: key %s (%s), %d rows\n", table, keyColumn, dataType.String, count)
	}
}
