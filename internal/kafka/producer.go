package kafka

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"

	"usersync/internal/event"
)

// UserEventMessage is the wire envelope for a user lifecycle event.
// The producer emits both aggregateId and userId with the same value
// for compatibility with older consumers.
type UserEventMessage struct {
	EventID        string                 `json:"eventId"`
	EventType      string                 `json:"eventType"`
	AggregateID    string                 `json:"aggregateId"`
	UserID         string                 `json:"userId"`
	Timestamp      string                 `json:"timestamp"`
	Email          string                 `json:"email,omitempty"`
	Name           string                 `json:"name,omitempty"`
	Roles          []string               `json:"roles,omitempty"`
	Status         string                 `json:"status,omitempty"`
	PreviousStatus string                 `json:"previousStatus,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

type ProducerConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	config := sarama.NewConfig()

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	config.Producer.Compression = sarama.CompressionSnappy

	config.Net.DialTimeout = 30 * time.Second
	config.Net.ReadTimeout = 30 * time.Second
	config.Net.WriteTimeout = 30 * time.Second

	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	} else {
		config.ClientID = "user-sync-producer"
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &Producer{producer: producer, topic: cfg.Topic}, nil
}

// Publish sends one user event. The message key is always the
// aggregate id so all events for one user land on the same partition
// and arrive in order; same-key ordering is a routing guarantee here,
// not an assumption about the producer's defaults.
func (p *Producer) Publish(msg *UserEventMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", msg.EventID, err)
	}

	pm := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.AggregateID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(msg.EventType)},
			{Key: []byte("aggregate_id"), Value: []byte(msg.AggregateID)},
			{Key: []byte("event_id"), Value: []byte(msg.EventID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(pm)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", msg.EventID, err)
	}

	log.Printf("Published %s event %s for aggregate %s (partition: %d, offset: %d)",
		msg.EventType, msg.EventID, msg.AggregateID, partition, offset)
	return nil
}

func (p *Producer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NewUserEventMessage builds a wire envelope for the given lifecycle
// event type with a fresh timestamp.
func NewUserEventMessage(eventID string, evType event.Type, aggregateID string) *UserEventMessage {
	return &UserEventMessage{
		EventID:     eventID,
		EventType:   evType.String(),
		AggregateID: aggregateID,
		UserID:      aggregateID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}
