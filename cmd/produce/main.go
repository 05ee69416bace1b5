// Command produce publishes a single user lifecycle event, for local
// testing of the sync pipelines without the upstream user service.
package main

import (
	"flag"
	"log"
	"strings"

	"github.com/google/uuid"

	"usersync/internal/config"
	"usersync/internal/event"
	"usersync/internal/kafka"
)

func main() {
	evType := flag.String("type", "created", "event type: created, updated or deleted")
	aggregateID := flag.String("user", "", "aggregate id (default: a fresh uuid)")
	email := flag.String("email", "", "user email")
	name := flag.String("name", "", "user full name")
	roles := flag.String("roles", "", "comma-separated roles")
	status := flag.String("status", "ACTIVE", "user status")
	flag.Parse()

	var t event.Type
	switch *evType {
	case "created":
		t = event.TypeCreated
	case "updated":
		t = event.TypeUpdated
	case "deleted":
		t = event.TypeDeleted
	default:
		log.Fatalf("Unknown event type: %s", *evType)
	}

	cfg := config.Load()
	producer, err := kafka.NewProducer(&kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	id := *aggregateID
	if id == "" {
		id = uuid.NewString()
	}

	msg := kafka.NewUserEventMessage(uuid.NewString(), t, id)
	msg.Email = *email
	msg.Name = *name
	msg.Status = *status
	if *roles != "" {
		msg.Roles = strings.Split(*roles, ",")
	}

	if err := producer.Publish(msg); err != nil {
		log.Fatalf("Failed to publish: %v", err)
	}
}
