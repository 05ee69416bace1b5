package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	gosync "sync"
	"syscall"
	"time"

	"usersync/internal/config"
	"usersync/internal/kafka"
	"usersync/internal/server"
	"usersync/internal/store/mysql"
	"usersync/internal/store/postgres"
	"usersync/internal/store/redisdoc"
	"usersync/internal/sync"
)

func main() {
	stores := flag.String("stores", "postgres,mysql,redis", "comma-separated store backends to run")
	flag.Parse()

	cfg := config.Load()

	backends := make(map[string]server.Backend)
	for _, name := range strings.Split(*stores, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		backend, err := openBackend(name, cfg)
		if err != nil {
			log.Fatalf("Failed to open %s backend: %v", name, err)
		}
		backends[name] = backend
	}
	if len(backends) == 0 {
		log.Fatal("No store backends enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One consumer group per backend so each replica receives the full
	// stream independently; a slow store never stalls the others.
	var wg gosync.WaitGroup
	consumers := make([]*kafka.Consumer, 0, len(backends))
	for name, backend := range backends {
		consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: fmt.Sprintf("%s-%s", cfg.Kafka.GroupPrefix, name),
		}, backend.Pipeline)
		if err != nil {
			log.Fatalf("Failed to create %s consumer: %v", name, err)
		}
		consumers = append(consumers, consumer)

		wg.Add(1)
		go func(name string, c *kafka.Consumer) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("[%s] consumer stopped: %v", name, err)
			}
		}(name, consumer)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.NewServer(backends).Router(),
	}
	go func() {
		log.Printf("Ops server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Ops server failed: %v", err)
		}
	}()

	log.Printf("Sync daemon started (topic: %s, backends: %s)", cfg.Kafka.Topic, *stores)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	cancel()
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			log.Printf("Consumer close error: %v", err)
		}
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ops server shutdown error: %v", err)
	}

	for name, backend := range backends {
		if err := backend.Store.Close(); err != nil {
			log.Printf("Failed to close %s store: %v", name, err)
		}
	}

	log.Println("Sync daemon stopped")
}

func openBackend(name string, cfg *config.Config) (server.Backend, error) {
	pipelineCfg := &sync.PipelineConfig{
		MaxAttempts:  cfg.Consumer.MaxAttempts,
		RetryBackoff: time.Duration(cfg.Consumer.RetryBackoffMs) * time.Millisecond,
	}

	var (
		store     sync.RecordStore
		projector sync.Projector
	)
	switch name {
	case "postgres":
		s, err := postgres.Open(&cfg.Postgres)
		if err != nil {
			return server.Backend{}, err
		}
		store = s
		projector = &postgres.Projector{Source: cfg.Sync.Source, SchemaVersion: cfg.Sync.SchemaVersion}
	case "mysql":
		s, err := mysql.Open(&cfg.MySQL)
		if err != nil {
			return server.Backend{}, err
		}
		store = s
		projector = &mysql.Projector{Source: cfg.Sync.Source, SchemaVersion: cfg.Sync.SchemaVersion}
	case "redis":
		s, err := redisdoc.Open(&cfg.Redis)
		if err != nil {
			return server.Backend{}, err
		}
		store = s
		projector = &redisdoc.Projector{Source: cfg.Sync.Source, SchemaVersion: cfg.Sync.SchemaVersion}
	default:
		return server.Backend{}, fmt.Errorf("unknown store backend: %s", name)
	}

	return server.Backend{
		Pipeline: sync.NewPipeline(name, store, projector, pipelineCfg),
		Store:    store,
	}, nil
}
