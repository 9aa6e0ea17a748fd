package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML overlay. Values found in the file replace the
// built-in defaults; environment variables still win over both.
type fileConfig struct {
	Server struct {
		Port            string        `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RequestTimeout  time.Duration `yaml:"request_timeout"`
		IdempotencyTTL  time.Duration `yaml:"idempotency_ttl"`
		MaxRequestSize  int           `yaml:"max_request_size"`
	} `yaml:"server"`

	Storage struct {
		Backend     string        `yaml:"backend"`
		SlotLockTTL time.Duration `yaml:"slot_lock_ttl"`
		Mongo       struct {
			URI         string        `yaml:"uri"`
			Database    string        `yaml:"database"`
			ConnTimeout time.Duration `yaml:"conn_timeout"`
		} `yaml:"mongo"`
		Postgres struct {
			DSN      string `yaml:"dsn"`
			MaxConns int    `yaml:"max_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	RateLimit struct {
		Backend           string        `yaml:"backend"`
		Capacity          int           `yaml:"capacity"`
		Requests          int           `yaml:"requests"`
		Window            time.Duration `yaml:"window"`
		MaxKeys           int           `yaml:"max_keys"`
		Shards            int           `yaml:"shards"`
		SweepInterval     time.Duration `yaml:"sweep_interval"`
		TrustProxyHeaders bool          `yaml:"trust_proxy_headers"`
		Redis             struct {
			Addr      string `yaml:"addr"`
			Password  string `yaml:"password"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"redis"`
	} `yaml:"rate_limit"`

	Events struct {
		Backend    string `yaml:"backend"`
		Topic      string `yaml:"topic"`
		QueueSize  int    `yaml:"queue_size"`
		Workers    int    `yaml:"workers"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"events"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func defaultFileConfig() *fileConfig {
	fc := &fileConfig{}

	fc.Server.Port = DefaultPort
	fc.Server.ReadTimeout = DefaultReadTimeout
	fc.Server.WriteTimeout = DefaultWriteTimeout
	fc.Server.IdleTimeout = DefaultIdleTimeout
	fc.Server.ShutdownTimeout = DefaultShutdownTimeout
	fc.Server.RequestTimeout = DefaultRequestTimeout
	fc.Server.IdempotencyTTL = DefaultIdempotencyTTL
	fc.Server.MaxRequestSize = DefaultMaxRequestSize

	fc.Storage.Backend = DefaultStorageBackend
	fc.Storage.SlotLockTTL = DefaultSlotLockTTL
	fc.Storage.Mongo.URI = DefaultMongoURI
	fc.Storage.Mongo.Database = DefaultMongoDatabaseName
	fc.Storage.Mongo.ConnTimeout = DefaultMongoConnTimeout
	fc.Storage.Postgres.DSN = DefaultPostgresDSN
	fc.Storage.Postgres.MaxConns = DefaultPostgresMaxConns

	fc.RateLimit.Backend = DefaultRateLimitBackend
	fc.RateLimit.Capacity = DefaultRateLimitCapacity
	fc.RateLimit.Requests = DefaultRateLimitRequests
	fc.RateLimit.Window = DefaultRateLimitWindow
	fc.RateLimit.MaxKeys = DefaultRateLimitMaxKeys
	fc.RateLimit.Shards = DefaultRateLimitShards
	fc.RateLimit.SweepInterval = DefaultRateLimitSweepInterval
	fc.RateLimit.TrustProxyHeaders = DefaultTrustProxyHeaders
	fc.RateLimit.Redis.Addr = DefaultRedisAddr
	fc.RateLimit.Redis.DB = DefaultRedisDB
	fc.RateLimit.Redis.KeyPrefix = DefaultRedisKeyPrefix

	fc.Events.Backend = DefaultEventsBackend
	fc.Events.Topic = DefaultEventsTopic
	fc.Events.QueueSize = DefaultEventsQueueSize
	fc.Events.Workers = DefaultEventsWorkers
	fc.Events.MaxRetries = DefaultEventsMaxRetries

	fc.Log.Level = DefaultLogLevel
	fc.Log.Format = DefaultLogFormat

	return fc
}

// readFileConfig returns the defaults overlaid with path. An empty path yields the defaults.
func readFileConfig(path string) (*fileConfig, error) {
	fc := defaultFileConfig()
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}
