package config

const (
	EnvConfigFile = "CONFIG_FILE"

	EnvStorageBackend = "STORAGE_BACKEND"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPostgresDSN      = "POSTGRES_DSN"
	EnvPostgresMaxConns = "POSTGRES_MAX_CONNS"

	EnvPort      = "PORT"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	EnvRateLimitBackend       = "RATE_LIMIT_BACKEND"
	EnvRateLimitCapacity      = "RATE_LIMIT_CAPACITY"
	EnvRateLimitRequests      = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow        = "RATE_LIMIT_WINDOW"
	EnvRateLimitMaxKeys       = "RATE_LIMIT_MAX_KEYS"
	EnvRateLimitShards        = "RATE_LIMIT_SHARDS"
	EnvRateLimitSweepInterval = "RATE_LIMIT_SWEEP_INTERVAL"
	EnvTrustProxyHeaders      = "TRUST_PROXY_HEADERS"

	EnvRedisAddr      = "REDIS_ADDR"
	EnvRedisPassword  = "REDIS_PASSWORD"
	EnvRedisDB        = "REDIS_DB"
	EnvRedisKeyPrefix = "REDIS_KEY_PREFIX"

	EnvEventsBackend    = "EVENTS_BACKEND"
	EnvEventsTopic      = "EVENTS_TOPIC"
	EnvEventsQueueSize  = "EVENTS_QUEUE_SIZE"
	EnvEventsWorkers    = "EVENTS_WORKERS"
	EnvEventsMaxRetries = "EVENTS_MAX_RETRIES"

	EnvSlotLockTTL = "SLOT_LOCK_TTL"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
