package config

import (
	"os"
	"strconv"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicBase string
}

type Config struct {
	FacebookAppID        string
	FacebookAppSecret    string
	TwitterClientID      string
	TwitterClientSecret  string
	LinkedinClientID     string
	LinkedinClientSecret string
	MastodonClientID     string
	MastodonClientSecret string
	MastodonInstanceURL  string
	BlueskyServiceURL    string
	BlueskyAuthScheme    string
	PostgresURI          string
	RedisURI             string
	QueueEnabled         bool
	WorkerConcurrency    int
	MaxPublishAttempts   int
	FrontendURL          string
	R2                   R2
	SecretKey            string
	CookieName           string
}

func LoadConfig() *Config {
	return &Config{
		FacebookAppID:        getEnv("FACEBOOK_APP_ID", ""),
		FacebookAppSecret:    getEnv("FACEBOOK_APP_SECRET", ""),
		TwitterClientID:      getEnv("TWITTER_CLIENT_ID", ""),
		TwitterClientSecret:  getEnv("TWITTER_CLIENT_SECRET", ""),
		LinkedinClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
		MastodonClientID:     getEnv("MASTODON_CLIENT_ID", ""),
		MastodonClientSecret: getEnv("MASTODON_CLIENT_SECRET", ""),
		MastodonInstanceURL:  getEnv("MASTODON_INSTANCE_URL", "https://mastodon.social"),
		BlueskyServiceURL:    getEnv("BLUESKY_SERVICE_URL", "https://bsky.social"),
		BlueskyAuthScheme:    getEnv("BLUESKY_AUTH_SCHEME", "Bearer"),
		PostgresURI:          getEnv("POSTGRES_URI", ""),
		RedisURI:             getEnv("REDIS_URI", ""),
		QueueEnabled:         getEnvBool("QUEUE_ENABLED", true),
		WorkerConcurrency:    getEnvInt("WORKER_CONCURRENCY", 3),
		MaxPublishAttempts:   getEnvInt("MAX_PUBLISH_ATTEMPTS", 5),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicBase: getEnv("R2_PUBLIC_BASE", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", ""),
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
