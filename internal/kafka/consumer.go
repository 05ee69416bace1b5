package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// Handler processes one raw message to a terminal outcome. A nil
// return means the message may be committed; an error means the
// session is ending and the message must be redelivered.
type Handler interface {
	Handle(ctx context.Context, payload []byte) error
}

type ConsumerConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
}

// Consumer binds one consumer group to one handler. Each replica store
// runs its own Consumer so every group receives a full copy of the
// stream; within a group, partitions are spread across the session's
// claims and in-partition order is preserved.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	groupID string
	handler Handler
}

func NewConsumer(cfg *ConsumerConfig, handler Handler) (*Consumer, error) {
	config := sarama.NewConfig()

	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRange(),
	}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	config.Net.DialTimeout = 30 * time.Second
	config.Net.ReadTimeout = 30 * time.Second
	config.Net.WriteTimeout = 30 * time.Second

	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	} else {
		config.ClientID = cfg.GroupID
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", cfg.GroupID, err)
	}

	return &Consumer{
		group:   group,
		topic:   cfg.Topic,
		groupID: cfg.GroupID,
		handler: handler,
	}, nil
}

// Run consumes until the context is cancelled. Consume returns on
// every rebalance and must be re-entered to pick up the new claims.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			log.Printf("[%s] consumer group error: %v", c.groupID, err)
		}
	}()

	handler := &groupHandler{handler: c.handler, groupID: c.groupID}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Printf("[%s] consume session ended: %v", c.groupID, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handler Handler
	groupID string
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	log.Printf("[%s] joined generation %d, claims: %v", h.groupID, sess.GenerationID(), sess.Claims())
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		// The offset is marked strictly after the handler reaches a
		// terminal outcome: durable write, dropped poison message, or
		// exhausted retries. A handler error means shutdown interrupted
		// processing and the message must not be committed.
		if err := h.handler.Handle(sess.Context(), msg.Value); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
