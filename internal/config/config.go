package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the review engine.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	AllowOrigins         string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	JWTSecret            string
	SweepSchedule        string
	SweepItemTimeout     time.Duration
	SweepReminderWindow  time.Duration
	SweepLockTTL         time.Duration
	SweepBatchSize       int
	PeerSpareCandidates  int
	PeerDefaultReviewers int
	AggregateCacheTTL    time.Duration
	NotificationsChannel string
	StaleWriteRetries    int
	BatchRateLimit       int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from REVIEW_* environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("REVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Review Engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.allow_origins", "*")
	v.SetDefault("sweep.schedule", "@every 1m")
	v.SetDefault("sweep.item_timeout", "10s")
	v.SetDefault("sweep.reminder_window", "24h")
	v.SetDefault("sweep.lock_ttl", "5m")
	v.SetDefault("sweep.batch_size", 500)
	v.SetDefault("peer.min_spare_candidates", 1)
	v.SetDefault("peer.default_reviewers", 2)
	v.SetDefault("aggregate.cache_ttl", "5m")
	v.SetDefault("notifications.channel", "review")
	v.SetDefault("stale_write_retries", 3)
	v.SetDefault("batch_rate_limit", 10)

	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		AllowOrigins:         v.GetString("app.allow_origins"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		JWTSecret:            v.GetString("jwt.secret"),
		SweepSchedule:        strings.TrimSpace(v.GetString("sweep.schedule")),
		SweepBatchSize:       v.GetInt("sweep.batch_size"),
		PeerSpareCandidates:  v.GetInt("peer.min_spare_candidates"),
		PeerDefaultReviewers: v.GetInt("peer.default_reviewers"),
		NotificationsChannel: v.GetString("notifications.channel"),
		StaleWriteRetries:    v.GetInt("stale_write_retries"),
		BatchRateLimit:       v.GetInt("batch_rate_limit"),
	}
	durations["sweep.item_timeout"] = &cfg.SweepItemTimeout
	durations["sweep.reminder_window"] = &cfg.SweepReminderWindow
	durations["sweep.lock_ttl"] = &cfg.SweepLockTTL
	durations["aggregate.cache_ttl"] = &cfg.AggregateCacheTTL

	for key, target := range durations {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		*target = parsed
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.SweepSchedule == "" {
		return Config{}, fmt.Errorf("sweep schedule must be provided")
	}
	if cfg.PeerDefaultReviewers <= 0 {
		return Config{}, fmt.Errorf("peer.default_reviewers must be positive")
	}
	if cfg.PeerSpareCandidates < 0 {
		cfg.PeerSpareCandidates = 0
	}
	if cfg.StaleWriteRetries <= 0 {
		cfg.StaleWriteRetries = 3
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 500
	}

	return cfg, nil
}
