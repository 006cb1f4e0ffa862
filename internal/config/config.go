package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the sensordash server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Retention RetentionConfig
	Polling   PollingConfig
	Ingest    IngestConfig
	Notify    NotifyConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// StorageTimeout bounds every read or write issued on the request path.
	StorageTimeout time.Duration
}

type RedisConfig struct {
	URL string
}

// RetentionConfig describes the daily purge. PurgeAt is a wall-clock time in Timezone.
type RetentionConfig struct {
	PurgeAt               string
	Timezone              string
	IncludeCustomerCounts bool
	TableTimeout          time.Duration

	Hour     int
	Minute   int
	Location *time.Location
}

// PollingConfig holds the canonical client poll interval per data class.
type PollingConfig struct {
	Readings time.Duration
	Alerts   time.Duration
	Logs     time.Duration
}

type IngestConfig struct {
	RateLimitPerMinute int
}

type NotifyConfig struct {
	Backend      string
	MQTT         MQTTConfig
	AMQP         AMQPConfig
	RedisChannel string
}

type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

var validNotifyBackends = map[string]bool{
	"none":  true,
	"mqtt":  true,
	"redis": true,
	"amqp":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     envInt("SENSORDASH_PORT", 8080),
			Env:      envString("SENSORDASH_ENV", "development"),
			LogLevel: strings.ToLower(envString("SENSORDASH_LOG_LEVEL", "info")),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			StorageTimeout:  envDuration("STORAGE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Retention: RetentionConfig{
			PurgeAt:               envString("RETENTION_PURGE_AT", "00:00"),
			Timezone:              envString("RETENTION_TIMEZONE", "Asia/Singapore"),
			IncludeCustomerCounts: envBool("RETENTION_INCLUDE_CUSTOMER_COUNTS", false),
			TableTimeout:          envDuration("RETENTION_TABLE_TIMEOUT", 30*time.Second),
		},
		Polling: PollingConfig{
			Readings: envDuration("POLL_INTERVAL_READINGS", 4*time.Second),
			Alerts:   envDuration("POLL_INTERVAL_ALERTS", 6*time.Second),
			Logs:     envDuration("POLL_INTERVAL_LOGS", 10*time.Second),
		},
		Ingest: IngestConfig{
			RateLimitPerMinute: envInt("INGEST_RATE_LIMIT_PER_MIN", 600),
		},
		Notify: NotifyConfig{
			Backend: strings.ToLower(envString("NOTIFY_BACKEND", "none")),
			MQTT: MQTTConfig{
				BrokerURL:   os.Getenv("MQTT_BROKER_URL"),
				ClientID:    envString("MQTT_CLIENT_ID", "sensordash"),
				Username:    os.Getenv("MQTT_USERNAME"),
				Password:    os.Getenv("MQTT_PASSWORD"),
				TopicPrefix: envString("MQTT_TOPIC_PREFIX", "sensordash"),
			},
			AMQP: AMQPConfig{
				URL:      os.Getenv("AMQP_URL"),
				Exchange: envString("AMQP_EXCHANGE", "sensordash.door"),
			},
			RedisChannel: envString("NOTIFY_REDIS_CHANNEL", "sensordash:door"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Database.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive, got %s", c.Database.StorageTimeout)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("SENSORDASH_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if err := c.Retention.resolve(); err != nil {
		return err
	}

	if c.Polling.Readings <= 0 || c.Polling.Alerts <= 0 || c.Polling.Logs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_* values must be positive")
	}

	if !validNotifyBackends[c.Notify.Backend] {
		return fmt.Errorf("NOTIFY_BACKEND must be one of none, mqtt, redis, amqp; got %q", c.Notify.Backend)
	}
	if c.Notify.Backend == "mqtt" && c.Notify.MQTT.BrokerURL == "" {
		return fmt.Errorf("MQTT_BROKER_URL is required when NOTIFY_BACKEND is mqtt")
	}
	if c.Notify.Backend == "amqp" && c.Notify.AMQP.URL == "" {
		return fmt.Errorf("AMQP_URL is required when NOTIFY_BACKEND is amqp")
	}

	return nil
}

// resolve parses PurgeAt and loads Timezone. The purge is tied to one physical
// deployment, so the zone must be a named IANA zone rather than UTC or Local.
func (r *RetentionConfig) resolve() error {
	at, err := time.Parse("15:04", r.PurgeAt)
	if err != nil {
		return fmt.Errorf("RETENTION_PURGE_AT must be HH:MM, got %q", r.PurgeAt)
	}
	r.Hour, r.Minute = at.Hour(), at.Minute()

	if r.Timezone == "" || r.Timezone == "UTC" || r.Timezone == "Local" {
		return fmt.Errorf("RETENTION_TIMEZONE must be a named zone such as Asia/Singapore, got %q", r.Timezone)
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return fmt.Errorf("RETENTION_TIMEZONE %q: %w", r.Timezone, err)
	}
	r.Location = loc

	if r.TableTimeout <= 0 {
		return fmt.Errorf("RETENTION_TABLE_TIMEOUT must be positive, got %s", r.TableTimeout)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
