package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// Scheduler holds the queue dispatch knobs. Business logic never reads the
// environment directly; everything is resolved here once and injected.
type Scheduler struct {
	TickInterval time.Duration
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	JobRetention time.Duration
}

type Engagement struct {
	MaxSnapshotsPerPublication int
	SnapshotRetention          time.Duration
	PollWindow                 time.Duration
}

type Config struct {
	InstagramClientID     string
	InstagramClientSecret string
	TwitterClientID       string
	TwitterClientSecret   string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	R2                    R2
	SecretKey             string
	CookieName            string
	Scheduler             Scheduler
	Engagement            Engagement
}

func LoadConfig() *Config {
	return &Config{
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		TwitterClientID:       getEnv("TWITTER_CLIENT_ID", ""),
		TwitterClientSecret:   getEnv("TWITTER_CLIENT_SECRET", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", "localhost:6379"),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "postpulse_session"),
		Scheduler: Scheduler{
			TickInterval: getEnvDuration("SCHEDULER_TICK_INTERVAL", 5*time.Second),
			Concurrency:  getEnvInt("SCHEDULER_CONCURRENCY", 10),
			MaxAttempts:  getEnvInt("SCHEDULER_MAX_ATTEMPTS", 3),
			BackoffBase:  getEnvDuration("SCHEDULER_BACKOFF_BASE", 30*time.Second),
			BackoffCap:   getEnvDuration("SCHEDULER_BACKOFF_CAP", time.Hour),
			JobRetention: getEnvDuration("SCHEDULER_JOB_RETENTION", 7*24*time.Hour),
		},
		Engagement: Engagement{
			MaxSnapshotsPerPublication: getEnvInt("ENGAGEMENT_MAX_SNAPSHOTS", 500),
			SnapshotRetention:          getEnvDuration("ENGAGEMENT_SNAPSHOT_RETENTION", 90*24*time.Hour),
			PollWindow:                 getEnvDuration("ENGAGEMENT_POLL_WINDOW", 7*24*time.Hour),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
