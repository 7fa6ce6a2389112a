package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	JWTSecret     string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPass        string
	DBName        string
	DBNameTest    string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	MinioHost     string
	MinioPort     string
	MinioUsername string
	MinioPassword string
	BucketName    string
	RabbitMQURL   string

	// QuotaLimitBytes is the default per-user upload limit, assigned at
	// registration. Live and trashed-but-recoverable bytes both count.
	QuotaLimitBytes int64

	// TrashLifespanDays is how long a soft-deleted entity stays recoverable.
	TrashLifespanDays int

	FileCacheTTL time.Duration
	UserCacheTTL time.Duration

	ShelfSweepInterval time.Duration
	TrashSweepInterval time.Duration

	CleanupWorkerConcurrency int
	CleanupRate              float64
	CleanupBurst             int
}

var AppConfig Config

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// InitConfig loads configuration from the environment.
func InitConfig() {
	rabbitHost := getEnv("RABBITMQ_HOST", "localhost")
	rabbitPort := getEnv("RABBITMQ_PORT", "5672")
	rabbitUser := getEnv("RABBITMQ_USER", "guest")
	rabbitPass := getEnv("RABBITMQ_PASSWORD", "guest")
	rabbitVhost := getEnv("RABBITMQ_VHOST", "/")
	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(rabbitUser),
			url.PathEscape(rabbitPass),
			rabbitHost,
			rabbitPort,
			url.PathEscape(rabbitVhost),
		)
	}
	AppConfig = Config{
		JWTSecret:     getEnv("JWT_SECRET", "l=ax+b"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", "root"),
		DBPass:        getEnv("DB_PASS", "root"),
		DBName:        getEnv("DB_NAME", "CloudKeep"),
		DBNameTest:    getEnv("DB_NAME_TEST", "CloudKeep_Test"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,
		MinioHost:     getEnv("MINIO_HOST", "localhost"),
		MinioPort:     getEnv("MINIO_PORT", "9000"),
		MinioUsername: getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword: getEnv("MINIO_PASSWORD", "minioadmin"),
		BucketName:    getEnv("BUCKET_NAME", "cloudkeep"),
		RabbitMQURL:   rabbitURL,

		QuotaLimitBytes:   getEnvInt64("QUOTA_LIMIT_BYTES", 10*1024*1024*1024),
		TrashLifespanDays: getEnvInt("TRASH_LIFESPAN_DAYS", 10),

		FileCacheTTL: time.Duration(getEnvInt("FILE_CACHE_TTL_MIN", 120)) * time.Minute,
		UserCacheTTL: time.Duration(getEnvInt("USER_CACHE_TTL_MIN", 120)) * time.Minute,

		ShelfSweepInterval: getEnvDuration("SHELF_SWEEP_INTERVAL", time.Minute),
		TrashSweepInterval: getEnvDuration("TRASH_SWEEP_INTERVAL", 24*time.Hour),

		CleanupWorkerConcurrency: getEnvInt("CLEANUP_WORKER_CONCURRENCY", 4),
		CleanupRate:              getEnvFloat("CLEANUP_RATE", 8),
		CleanupBurst:             getEnvInt("CLEANUP_BURST", 16),
	}
}
