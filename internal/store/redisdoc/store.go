// Package redisdoc is the document replica store: one JSON document
// per user keyed by aggregate id, with membership and active-flag index
// sets maintained atomically alongside the document.
package redisdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"usersync/internal/config"
	"usersync/internal/sync"
)

const (
	docKeyPrefix = "users:sync:"
	indexKey     = "users:sync:keys"
	activeKey    = "users:sync:active"
)

// document is the persisted JSON shape.
type document struct {
	OriginalID        string    `json:"original_id"`
	Email             string    `json:"email"`
	Username          string    `json:"username"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	FullName          string    `json:"full_name"`
	Role              string    `json:"role"`
	Active            bool      `json:"active"`
	Source            string    `json:"source"`
	SchemaVersion     string    `json:"schema_version"`
	SyncStatus        string    `json:"sync_status"`
	LastEventID       string    `json:"last_event_id"`
	LastEventType     string    `json:"last_event_type"`
	EventMetadata     string    `json:"event_metadata,omitempty"`
	OriginalTimestamp time.Time `json:"original_timestamp"`
	SyncCreatedAt     time.Time `json:"sync_created_at"`
	SyncUpdatedAt     time.Time `json:"sync_updated_at"`
}

type Store struct {
	client *redis.Client
}

func Open(cfg *config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) DeriveKey(aggregateID string) string {
	return aggregateID
}

func (s *Store) FindByKey(ctx context.Context, key string) (*sync.Record, error) {
	data, err := s.client.Get(ctx, docKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corrupt document for key %s: %w", key, err)
	}
	return docToRecord(&doc), nil
}

// Upsert writes the whole document in one script call. The existing
// document's creation stamp is preserved inside the script, so
// concurrent upserts for the same key serialize in Redis instead of
// racing a client-side read.
func (s *Store) Upsert(ctx context.Context, rec *sync.Record) error {
	now := time.Now().UTC()
	doc := recordToDoc(rec)
	doc.SyncCreatedAt = now
	doc.SyncUpdatedAt = now

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document for key %s: %w", rec.Key, err)
	}

	return scripts["upsert"].Run(ctx, s.client,
		[]string{docKeyPrefix + rec.Key, indexKey, activeKey},
		string(data), rec.Key).Err()
}

// MarkDeleted patches the lifecycle fields server-side; a concurrent
// upsert can never be overwritten with a stale document read by the
// client.
func (s *Store) MarkDeleted(ctx context.Context, key string, prov sync.Provenance) error {
	n, err := scripts["markDeleted"].Run(ctx, s.client,
		[]string{docKeyPrefix + key, activeKey},
		key, sync.StatusDeleted, prov.EventID, prov.EventType,
		time.Now().UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		log.Printf("mark-deleted found no document for key %s", key)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (sync.Stats, error) {
	total, err := s.client.SCard(ctx, indexKey).Result()
	if err != nil {
		return sync.Stats{}, err
	}
	active, err := s.client.SCard(ctx, activeKey).Result()
	if err != nil {
		return sync.Stats{}, err
	}
	return sync.Stats{Total: total, Active: active}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func recordToDoc(rec *sync.Record) *document {
	return &document{
		OriginalID:        rec.Key,
		Email:             rec.Email,
		Username:          rec.Username,
		FirstName:         rec.FirstName,
		LastName:          rec.LastName,
		FullName:          rec.FullName,
		Role:              rec.Role,
		Active:            rec.Active,
		Source:            rec.Source,
		SchemaVersion:     rec.SchemaVersion,
		SyncStatus:        rec.SyncStatus,
		LastEventID:       rec.LastEventID,
		LastEventType:     rec.LastEventType,
		EventMetadata:     rec.Metadata,
		OriginalTimestamp: rec.EventTimestamp,
	}
}

func docToRecord(doc *document) *sync.Record {
	return &sync.Record{
		Key:            doc.OriginalID,
		Email:          doc.Email,
		Username:       doc.Username,
		FirstName:      doc.FirstName,
		LastName:       doc.LastName,
		FullName:       doc.FullName,
		Role:           doc.Role,
		Active:         doc.Active,
		Source:         doc.Source,
		SchemaVersion:  doc.SchemaVersion,
		SyncStatus:     doc.SyncStatus,
		LastEventID:    doc.LastEventID,
		LastEventType:  doc.LastEventType,
		Metadata:       doc.EventMetadata,
		EventTimestamp: doc.OriginalTimestamp,
		SyncCreatedAt:  doc.SyncCreatedAt,
		SyncUpdatedAt:  doc.SyncUpdatedAt,
	}
}
