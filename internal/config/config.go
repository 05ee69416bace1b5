package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Kafka    KafkaConfig
	Postgres PostgresConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	Consumer ConsumerConfig
	Sync     SyncConfig
	Server   ServerConfig
}

type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupPrefix string // consumer group id is "<prefix>-<backend>"
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ConsumerConfig struct {
	MaxAttempts    int // attempts per message, including the first
	RetryBackoffMs int // first retry delay, doubled per attempt
}

type SyncConfig struct {
	Source        string
	SchemaVersion string
}

type ServerConfig struct {
	Addr string
}

func Load() *Config {
	return &Config{
		Kafka: KafkaConfig{
			Brokers:     strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Topic:       getEnv("KAFKA_TOPIC", "user-events"),
			GroupPrefix: getEnv("KAFKA_GROUP_PREFIX", "user-sync"),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:   getEnv("POSTGRES_DB", "sync_db_a"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		MySQL: MySQLConfig{
			Host:     getEnv("MYSQL_HOST", "localhost"),
			Port:     getEnv("MYSQL_PORT", "3306"),
			User:     getEnv("MYSQL_USER", "root"),
			Password: getEnv("MYSQL_PASSWORD", "root"),
			DBName:   getEnv("MYSQL_DB", "sync_db_b"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Consumer: ConsumerConfig{
			MaxAttempts:    getEnvInt("CONSUMER_MAX_ATTEMPTS", 3),
			RetryBackoffMs: getEnvInt("CONSUMER_RETRY_BACKOFF_MS", 1000),
		},
		Sync: SyncConfig{
			Source:        getEnv("SYNC_SOURCE", "user-management-service"),
			SchemaVersion: getEnv("SYNC_SCHEMA_VERSION", "1.0"),
		},
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
	}
}

func (p PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

func (m MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.User, m.Password, m.Host, m.Port, m.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
