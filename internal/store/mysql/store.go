// Package mysql is the relational replica store backed by MySQL. The
// schema requires an integer natural key, so the aggregate id is
// reduced with a stable FNV-1a hash; the same aggregate id always maps
// to the same key across restarts.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"usersync/internal/config"
	"usersync/internal/sync"
)

// userRow is the persisted shape. Sync audit timestamps are owned by
// the store layer via GORM's auto timestamps.
type userRow struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement"`
	OriginalID        int64      `gorm:"column:original_id;uniqueIndex;not null"`
	Username          string     `gorm:"size:100;index"`
	Email             string     `gorm:"size:255;index"`
	FirstName         string     `gorm:"column:first_name;size:100"`
	LastName          string     `gorm:"column:last_name;size:100"`
	Role              string     `gorm:"size:50;index"`
	Active            bool       `gorm:"index"`
	LastEventID       string     `gorm:"column:last_event_id;size:255"`
	LastEventType     string     `gorm:"column:last_event_type;size:50"`
	Source            string     `gorm:"size:100"`
	SchemaVersion     string     `gorm:"column:schema_version;size:20"`
	SyncStatus        string     `gorm:"column:sync_status;size:20;index"`
	EventMetadata     string     `gorm:"column:event_metadata;type:text"`
	OriginalCreatedAt *time.Time `gorm:"column:original_created_at"`
	OriginalUpdatedAt *time.Time `gorm:"column:original_updated_at"`
	SyncCreatedAt     time.Time  `gorm:"column:sync_created_at;autoCreateTime"`
	SyncUpdatedAt     time.Time  `gorm:"column:sync_updated_at;autoUpdateTime"`
}

func (userRow) TableName() string { return "users_sync" }

type Store struct {
	db *gorm.DB
}

func Open(cfg *config.MySQLConfig) (*Store, error) {
	// Silence GORM's SQL logging; the pipeline logs outcomes itself.
	silent := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{Logger: silent})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&userRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DeriveKey reduces the opaque aggregate id to the schema's BIGINT key
// space with FNV-1a, masked non-negative. Deterministic and stable by
// construction.
func (s *Store) DeriveKey(aggregateID string) string {
	h := fnv.New64a()
	h.Write([]byte(aggregateID))
	return strconv.FormatInt(int64(h.Sum64()&0x7fffffffffffffff), 10)
}

func parseKey(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed store key %q: %w", key, err)
	}
	return id, nil
}

func (s *Store) FindByKey(ctx context.Context, key string) (*sync.Record, error) {
	id, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	var row userRow
	err = s.db.WithContext(ctx).Where("original_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToRecord(&row), nil
}

// Upsert runs as a locked read-modify-write inside one transaction so
// concurrent upserts for the same key serialize instead of losing
// writes.
func (s *Store) Upsert(ctx context.Context, rec *sync.Record) error {
	id, err := parseKey(rec.Key)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing userRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("original_id = ?", id).First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := recordToRow(rec, id)
			ts := rec.EventTimestamp
			row.OriginalCreatedAt = &ts
			row.OriginalUpdatedAt = &ts
			return tx.Create(row).Error
		}
		if err != nil {
			return err
		}

		row := recordToRow(rec, id)
		row.ID = existing.ID
		// The original creation time is written once, on first insert.
		row.OriginalCreatedAt = existing.OriginalCreatedAt
		ts := rec.EventTimestamp
		row.OriginalUpdatedAt = &ts
		row.SyncCreatedAt = existing.SyncCreatedAt
		return tx.Save(row).Error
	})
}

func (s *Store) MarkDeleted(ctx context.Context, key string, prov sync.Provenance) error {
	id, err := parseKey(key)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&userRow{}).
		Where("original_id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":     sync.StatusDeleted,
			"active":          false,
			"last_event_id":   prov.EventID,
			"last_event_type": prov.EventType,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		log.Printf("mark-deleted found no record for key %s", key)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (sync.Stats, error) {
	var st sync.Stats
	if err := s.db.WithContext(ctx).Model(&userRow{}).Count(&st.Total).Error; err != nil {
		return sync.Stats{}, err
	}
	if err := s.db.WithContext(ctx).Model(&userRow{}).
		Where("active = ?", true).Count(&st.Active).Error; err != nil {
		return sync.Stats{}, err
	}
	return st, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func recordToRow(rec *sync.Record, id int64) *userRow {
	return &userRow{
		OriginalID:    id,
		Username:      rec.Username,
		Email:         rec.Email,
		FirstName:     rec.FirstName,
		LastName:      rec.LastName,
		Role:          rec.Role,
		Active:        rec.Active,
		LastEventID:   rec.LastEventID,
		LastEventType: rec.LastEventType,
		Source:        rec.Source,
		SchemaVersion: rec.SchemaVersion,
		SyncStatus:    rec.SyncStatus,
		EventMetadata: rec.Metadata,
	}
}

func rowToRecord(row *userRow) *sync.Record {
	rec := &sync.Record{
		Key:           strconv.FormatInt(row.OriginalID, 10),
		Username:      row.Username,
		Email:         row.Email,
		FirstName:     row.FirstName,
		LastName:      row.LastName,
		Role:          row.Role,
		Active:        row.Active,
		LastEventID:   row.LastEventID,
		LastEventType: row.LastEventType,
		Source:        row.Source,
		SchemaVersion: row.SchemaVersion,
		SyncStatus:    row.SyncStatus,
		Metadata:      row.EventMetadata,
		SyncCreatedAt: row.SyncCreatedAt,
		SyncUpdatedAt: row.SyncUpdatedAt,
	}
	if row.OriginalUpdatedAt != nil {
		rec.EventTimestamp = *row.OriginalUpdatedAt
	}
	return rec
}
