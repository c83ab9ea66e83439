package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server      ServerConfig
	Worker      WorkerConfig
	Database    DatabaseConfig
	ObjectStore ObjectStoreConfig
	RabbitMQ    RabbitMQConfig
	Redis       RedisConfig
	Pipeline    PipelineConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

type WorkerConfig struct {
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"ingest"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"ingest"`
	DBName   string `envconfig:"POSTGRES_DB" default:"ingest"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// ObjectStoreConfig targets an S3-compatible endpoint (MinIO in
// development, any compatible provider in production).
type ObjectStoreConfig struct {
	Endpoint string `envconfig:"OBJECT_STORE_ENDPOINT" default:"localhost:9000"`
	Key      string `envconfig:"OBJECT_STORE_KEY" default:"minioadmin"`
	Secret   string `envconfig:"OBJECT_STORE_SECRET" default:"minioadmin"`
	Region   string `envconfig:"OBJECT_STORE_REGION" default:"us-east-1"`
	Bucket   string `envconfig:"OBJECT_STORE_BUCKET" default:"media"`
	UseSSL   bool   `envconfig:"OBJECT_STORE_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"ingest"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"ingest"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// PipelineConfig holds the chunked-upload/transcode tuning knobs.
type PipelineConfig struct {
	UploadDir            string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	TranscodeConcurrency int64  `envconfig:"TRANSCODE_CONCURRENCY" default:"1"`
	QueueConcurrency     int    `envconfig:"QUEUE_CONCURRENCY" default:"1"`
	SegmentDurationSec   int    `envconfig:"SEGMENT_DURATION_SEC" default:"6"`
	MaxQueueDepth        int    `envconfig:"MAX_QUEUE_DEPTH" default:"100"`
	FFmpegPath           string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath          string `envconfig:"FFPROBE_PATH" default:"ffprobe"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
