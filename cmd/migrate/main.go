// Command migrate applies or rolls back the PostgreSQL replica schema.
package main

import (
	"log"
	"os"

	"usersync/internal/config"
	"usersync/internal/store/postgres"
)

func main() {
	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	cfg := config.Load()
	store, err := postgres.Open(&cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(direction); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}
