package config

import (
	"fmt"
	"os"
	"regexp"
	"slotguard/pkg/client"
	"slotguard/pkg/logger"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	StorageBackend string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	PostgresDSN      string
	PostgresMaxConns int

	Port      string
	LogLevel  string
	LogFormat string

	RateLimitBackend       string
	RateLimitCapacity      int
	RateLimitRequests      int
	RateLimitWindow        time.Duration
	RateLimitMaxKeys       int
	RateLimitShards        int
	RateLimitSweepInterval time.Duration
	TrustProxyHeaders      bool

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	EventsBackend    string
	EventsTopic      string
	EventsQueueSize  int
	EventsWorkers    int
	EventsMaxRetries int

	SlotLockTTL time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

// Load reads configuration for serviceName and exits the process when it is invalid.
func Load(serviceName string) *Config {
	cfg, err := load(serviceName)
	if err != nil {
		if cfg == nil || cfg.Log == nil {
			logger.New(logger.Config{Service: serviceName}).Fatal(err.Error())
		}
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func load(serviceName string) (*Config, error) {
	fc, err := readFileConfig(os.Getenv(EnvConfigFile))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StorageBackend: strings.ToLower(getEnvStr(EnvStorageBackend, fc.Storage.Backend)),

		MongoURI:          getEnvStr(EnvMongoURI, fc.Storage.Mongo.URI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, fc.Storage.Mongo.Database),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, fc.Storage.Mongo.ConnTimeout),

		PostgresDSN:      getEnvStr(EnvPostgresDSN, fc.Storage.Postgres.DSN),
		PostgresMaxConns: getEnvNum(EnvPostgresMaxConns, fc.Storage.Postgres.MaxConns),

		Port:      getEnvStr(EnvPort, fc.Server.Port),
		LogLevel:  getEnvStr(EnvLogLevel, fc.Log.Level),
		LogFormat: getEnvStr(EnvLogFormat, fc.Log.Format),

		RateLimitBackend:       strings.ToLower(getEnvStr(EnvRateLimitBackend, fc.RateLimit.Backend)),
		RateLimitCapacity:      getEnvNum(EnvRateLimitCapacity, fc.RateLimit.Capacity),
		RateLimitRequests:      getEnvNum(EnvRateLimitRequests, fc.RateLimit.Requests),
		RateLimitWindow:        getEnvDuration(EnvRateLimitWindow, fc.RateLimit.Window),
		RateLimitMaxKeys:       getEnvNum(EnvRateLimitMaxKeys, fc.RateLimit.MaxKeys),
		RateLimitShards:        getEnvNum(EnvRateLimitShards, fc.RateLimit.Shards),
		RateLimitSweepInterval: getEnvDuration(EnvRateLimitSweepInterval, fc.RateLimit.SweepInterval),
		TrustProxyHeaders:      getEnvBool(EnvTrustProxyHeaders, fc.RateLimit.TrustProxyHeaders),

		RedisAddr:      getEnvStr(EnvRedisAddr, fc.RateLimit.Redis.Addr),
		RedisPassword:  getEnvStr(EnvRedisPassword, fc.RateLimit.Redis.Password),
		RedisDB:        getEnvNum(EnvRedisDB, fc.RateLimit.Redis.DB),
		RedisKeyPrefix: getEnvStr(EnvRedisKeyPrefix, fc.RateLimit.Redis.KeyPrefix),

		EventsBackend:    strings.ToLower(getEnvStr(EnvEventsBackend, fc.Events.Backend)),
		EventsTopic:      getEnvStr(EnvEventsTopic, fc.Events.Topic),
		EventsQueueSize:  getEnvNum(EnvEventsQueueSize, fc.Events.QueueSize),
		EventsWorkers:    getEnvNum(EnvEventsWorkers, fc.Events.Workers),
		EventsMaxRetries: getEnvNum(EnvEventsMaxRetries, fc.Events.MaxRetries),

		SlotLockTTL: getEnvDuration(EnvSlotLockTTL, fc.Storage.SlotLockTTL),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, fc.Server.RequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, fc.Server.IdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, fc.Server.MaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, fc.Server.ReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, fc.Server.WriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, fc.Server.IdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, fc.Server.ShutdownTimeout),

		Client: client.NewClient(),
	}

	cfg.Log = logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		AddSource: cfg.LogFormat == logger.JSON,
		Service:   serviceName,
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetPostgres() {
	cfg.Client.SetPostgres(cfg.Log, cfg.PostgresDSN, int32(cfg.PostgresMaxConns), cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StorageBackend {
	case StorageMemory:
	case StorageMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StoragePostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresDSN) {
			errors = append(errors, fmt.Sprintf("PostgresDSN must start with 'postgres://' or 'postgresql://', got: %s", redactURI(cfg.PostgresDSN)))
		}
		if cfg.PostgresMaxConns <= 0 {
			errors = append(errors, fmt.Sprintf("PostgresMaxConns must be positive, got: %d", cfg.PostgresMaxConns))
		}
	default:
		errors = append(errors, fmt.Sprintf("StorageBackend must be one of [memory, mongo, postgres], got: %s", cfg.StorageBackend))
	}

	switch cfg.RateLimitBackend {
	case LimiterMemory:
		if cfg.RateLimitMaxKeys <= 0 {
			errors = append(errors, fmt.Sprintf("RateLimitMaxKeys must be positive, got: %d", cfg.RateLimitMaxKeys))
		}
		if cfg.RateLimitShards <= 0 {
			errors = append(errors, fmt.Sprintf("RateLimitShards must be positive, got: %d", cfg.RateLimitShards))
		}
		if cfg.RateLimitSweepInterval <= 0 {
			errors = append(errors, fmt.Sprintf("RateLimitSweepInterval must be positive, got: %s", cfg.RateLimitSweepInterval))
		}
	case LimiterRedis:
		if cfg.RedisAddr == "" {
			errors = append(errors, "RedisAddr cannot be empty when RateLimitBackend is redis")
		}
	default:
		errors = append(errors, fmt.Sprintf("RateLimitBackend must be one of [memory, redis], got: %s", cfg.RateLimitBackend))
	}

	if cfg.RateLimitCapacity <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitCapacity must be positive, got: %d", cfg.RateLimitCapacity))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}

	switch cfg.EventsBackend {
	case EventsKafka, EventsLog:
	default:
		errors = append(errors, fmt.Sprintf("EventsBackend must be one of [kafka, log], got: %s", cfg.EventsBackend))
	}
	if cfg.EventsTopic == "" {
		errors = append(errors, "EventsTopic cannot be empty")
	}
	if cfg.EventsQueueSize <= 0 {
		errors = append(errors, fmt.Sprintf("EventsQueueSize must be positive, got: %d", cfg.EventsQueueSize))
	}
	if cfg.EventsWorkers <= 0 {
		errors = append(errors, fmt.Sprintf("EventsWorkers must be positive, got: %d", cfg.EventsWorkers))
	}
	if cfg.EventsMaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("EventsMaxRetries cannot be negative, got: %d", cfg.EventsMaxRetries))
	}

	if cfg.SlotLockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("SlotLockTTL must be positive, got: %s", cfg.SlotLockTTL))
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	switch cfg.LogFormat {
	case logger.JSON, logger.TEXT, logger.PRETTY:
	default:
		errors = append(errors, fmt.Sprintf("LogFormat must be one of [json, text, pretty], got: %s", cfg.LogFormat))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"storage_backend", cfg.StorageBackend,
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"postgres_dsn", redactURI(cfg.PostgresDSN),
		"postgres_max_conns", cfg.PostgresMaxConns,
		"port", cfg.Port,
		"log_level", cfg.LogLevel,
		"log_format", cfg.LogFormat,
		"rate_limit_backend", cfg.RateLimitBackend,
		"rate_limit_capacity", cfg.RateLimitCapacity,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"rate_limit_max_keys", cfg.RateLimitMaxKeys,
		"rate_limit_shards", cfg.RateLimitShards,
		"rate_limit_sweep_interval", cfg.RateLimitSweepInterval,
		"trust_proxy_headers", cfg.TrustProxyHeaders,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"events_backend", cfg.EventsBackend,
		"events_topic", cfg.EventsTopic,
		"events_queue_size", cfg.EventsQueueSize,
		"events_workers", cfg.EventsWorkers,
		"events_max_retries", cfg.EventsMaxRetries,
		"slot_lock_ttl", cfg.SlotLockTTL,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

var credentialRegex = regexp.MustCompile(`^([a-z+]+://)[^:/@]+:[^@]+@`)

func redactURI(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}
