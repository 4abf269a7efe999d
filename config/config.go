package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration shared by the discussion producer, the
// analytics consumer and the migrate tool. Environment variables win over
// the defaults below; a .env file is loaded first when present.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Bus      BusConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Outbox   OutboxConfig
	Consumer ConsumerConfig
	Archive  ArchiveConfig
}

type AppConfig struct {
	Mode          string
	OpsPort       string
	SourceService string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type BusConfig struct {
	Driver string
	Topic  string
}

type RedisConfig struct {
	Host          string
	Port          string
	Password      string
	DB            int
	ConsumerGroup string
	ConsumerName  string
	MaxLen        int64
}

type NATSConfig struct {
	URL        string
	Stream     string
	Durable    string
	AckWait    time.Duration
	MaxDeliver int
}

type OutboxConfig struct {
	StartupDelay     time.Duration
	Interval         time.Duration
	BatchSize        int
	Workers          int
	PublishTimeout   time.Duration
	StoreTimeout     time.Duration
	FailureThreshold int
	BreakerTimeout   time.Duration
	Retention        time.Duration
	SweepInterval    time.Duration
}

type ConsumerConfig struct {
	StoreTimeout time.Duration
	FetchBatch   int
	BlockTimeout time.Duration
	ClaimIdle    time.Duration
}

type ArchiveConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		App: AppConfig{
			Mode:          getEnv("APP_MODE", "development"),
			OpsPort:       getEnv("OPS_PORT", "9090"),
			SourceService: getEnv("SOURCE_SERVICE", "discussion-service"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("STORE_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "learnit"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Bus: BusConfig{
			Driver: getEnv("BUS_DRIVER", "redis"),
			Topic:  getEnv("BUS_TOPIC", "discussion.events"),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnv("REDIS_PORT", "6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			ConsumerGroup: getEnv("REDIS_CONSUMER_GROUP", "analytics-service"),
			ConsumerName:  getEnv("REDIS_CONSUMER_NAME", hostname()),
			MaxLen:        int64(getEnvAsInt("REDIS_STREAM_MAXLEN", 100000)),
		},
		NATS: NATSConfig{
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			Stream:     getEnv("NATS_STREAM", "DISCUSSION"),
			Durable:    getEnv("NATS_DURABLE", "analytics-service"),
			AckWait:    getEnvAsDuration("NATS_ACK_WAIT", 30*time.Second),
			MaxDeliver: getEnvAsInt("NATS_MAX_DELIVER", -1),
		},
		Outbox: OutboxConfig{
			StartupDelay:     getEnvAsDuration("OUTBOX_STARTUP_DELAY", 10*time.Second),
			Interval:         getEnvAsDuration("OUTBOX_INTERVAL", 5*time.Second),
			BatchSize:        getEnvAsInt("OUTBOX_BATCH_SIZE", 0),
			Workers:          getEnvAsInt("OUTBOX_WORKERS", 1),
			PublishTimeout:   getEnvAsDuration("OUTBOX_PUBLISH_TIMEOUT", 5*time.Second),
			StoreTimeout:     getEnvAsDuration("OUTBOX_STORE_TIMEOUT", 5*time.Second),
			FailureThreshold: getEnvAsInt("OUTBOX_FAILURE_THRESHOLD", 5),
			BreakerTimeout:   getEnvAsDuration("OUTBOX_BREAKER_TIMEOUT", 30*time.Second),
			Retention:        getEnvAsDuration("OUTBOX_RETENTION", 7*24*time.Hour),
			SweepInterval:    getEnvAsDuration("OUTBOX_SWEEP_INTERVAL", 24*time.Hour),
		},
		Consumer: ConsumerConfig{
			StoreTimeout: getEnvAsDuration("CONSUMER_STORE_TIMEOUT", 5*time.Second),
			FetchBatch:   getEnvAsInt("CONSUMER_FETCH_BATCH", 50),
			BlockTimeout: getEnvAsDuration("CONSUMER_BLOCK_TIMEOUT", 2*time.Second),
			ClaimIdle:    getEnvAsDuration("CONSUMER_CLAIM_IDLE", time.Minute),
		},
		Archive: ArchiveConfig{
			Bucket:    getEnv("ARCHIVE_BUCKET", ""),
			Prefix:    getEnv("ARCHIVE_PREFIX", "outbox"),
			Region:    getEnv("ARCHIVE_REGION", "us-east-1"),
			Endpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
			AccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "analytics-1"
	}
	return name
}
