package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/livecast/backend/config"
	"github.com/livecast/backend/internal/database"
	"github.com/livecast/backend/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/migrate/main.go [up|down|status]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Server.Env)

	// Schema changes need the administrative role
	db, err := sql.Open("postgres", cfg.GetAdminDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	switch command {
	case "up":
		log.Info().Msg("running migrations")
		if err := database.RunMigrations(db); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("migrations completed successfully")

	case "status":
		showMigrationStatus(db)

	case "down":
		version, err := database.RollbackLast(db)
		if err != nil {
			log.Fatal().Err(err).Msg("rollback failed")
		}
		if version == 0 {
			log.Info().Msg("nothing to roll back")
			return
		}
		log.Info().Int("version", version).Msg("rolled back migration")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Available commands: up, down, status")
		os.Exit(1)
	}
}

func showMigrationStatus(db *sql.DB) {
	rows, err := db.Query("SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		log.Warn().Err(err).Msg("no migrations found or table doesn't exist")
		return
	}
	defer rows.Close()

	fmt.Println("\nApplied Migrations:")
	fmt.Println("-------------------")
	for rows.Next() {
		var version int
		var appliedAt string
		if err := rows.Scan(&version, &appliedAt); err != nil {
			log.Warn().Err(err).Msg("error scanning row")
			continue
		}
		fmt.Printf("Version %d - Applied at: %s\n", version, appliedAt)
	}
}
