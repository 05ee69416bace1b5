// Package postgres is the relational replica store backed by
// PostgreSQL. The natural key is the aggregate id itself, kept in
// original_user_id; upserts are single INSERT ... ON CONFLICT
// statements so concurrent writers for the same key cannot lose
// updates.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"

	"usersync/internal/config"
	"usersync/internal/sync"
)

type Store struct {
	db *sql.DB
}

func Open(cfg *config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &Store{db: db}, nil
}

// Migrate applies or rolls back the replica schema.
func (s *Store) Migrate(direction string) error {
	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	switch direction {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("failed to run up migrations: %w", err)
		}
		log.Println("Migrations applied successfully")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("failed to run down migrations: %w", err)
		}
		log.Println("Migrations rolled back successfully")
	default:
		return fmt.Errorf("unknown migration direction: %s", direction)
	}

	return nil
}

func (s *Store) DeriveKey(aggregateID string) string {
	return aggregateID
}

func (s *Store) FindByKey(ctx context.Context, key string) (*sync.Record, error) {
	query := `
		SELECT original_user_id, user_email, user_name, user_status, user_roles,
		       is_active, event_metadata, sync_status, last_event_id,
		       last_event_type, source, schema_version, original_timestamp,
		       sync_created_at, sync_updated_at
		FROM sync_users WHERE original_user_id = $1`

	rec := &sync.Record{}
	var originalTS sql.NullTime
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&rec.Key, &rec.Email, &rec.FullName, &rec.StatusCode, &rec.Role,
		&rec.Active, &rec.Metadata, &rec.SyncStatus, &rec.LastEventID,
		&rec.LastEventType, &rec.Source, &rec.SchemaVersion, &originalTS,
		&rec.SyncCreatedAt, &rec.SyncUpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	if originalTS.Valid {
		rec.EventTimestamp = originalTS.Time
	}
	return rec, nil
}

func (s *Store) Upsert(ctx context.Context, rec *sync.Record) error {
	query := `
		INSERT INTO sync_users (
			original_user_id, user_email, user_name, user_status, user_roles,
			is_active, event_metadata, sync_status, last_event_id,
			last_event_type, source, schema_version, original_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (original_user_id) DO UPDATE SET
			user_email = EXCLUDED.user_email,
			user_name = EXCLUDED.user_name,
			user_status = EXCLUDED.user_status,
			user_roles = EXCLUDED.user_roles,
			is_active = EXCLUDED.is_active,
			event_metadata = EXCLUDED.event_metadata,
			sync_status = EXCLUDED.sync_status,
			last_event_id = EXCLUDED.last_event_id,
			last_event_type = EXCLUDED.last_event_type,
			source = EXCLUDED.source,
			schema_version = EXCLUDED.schema_version,
			original_timestamp = EXCLUDED.original_timestamp,
			sync_updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		rec.Key, rec.Email, rec.FullName, rec.StatusCode, rec.Role,
		rec.Active, rec.Metadata, rec.SyncStatus, rec.LastEventID,
		rec.LastEventType, rec.Source, rec.SchemaVersion, rec.EventTimestamp)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) MarkDeleted(ctx context.Context, key string, prov sync.Provenance) error {
	query := `
		UPDATE sync_users
		SET sync_status = $2, is_active = FALSE,
		    last_event_id = $3, last_event_type = $4, sync_updated_at = NOW()
		WHERE original_user_id = $1`

	result, err := s.db.ExecContext(ctx, query, key, sync.StatusDeleted, prov.EventID, prov.EventType)
	if err != nil {
		return classify(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		log.Printf("mark-deleted found no record for key %s", key)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (sync.Stats, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active)
		FROM sync_users`

	var st sync.Stats
	if err := s.db.QueryRowContext(ctx, query).Scan(&st.Total, &st.Active); err != nil {
		return sync.Stats{}, classify(err)
	}
	return st, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// classify marks connectivity and resource-exhaustion failures as
// transient so the pipeline retries them; constraint violations and
// everything else stay permanent.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57": // connection, resources, operator intervention
			return sync.Transient(err)
		}
		return err
	}
	return err
}
