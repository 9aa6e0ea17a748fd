package main

import (
	"context"
	"fmt"

	"slotguard/internal/bookings/handler"
	"slotguard/internal/bookings/locker"
	"slotguard/internal/bookings/repository"
	"slotguard/internal/bookings/service"
	"slotguard/internal/bookings/validator"
	"slotguard/internal/events"
	"slotguard/pkg/app"
	"slotguard/pkg/config"
	"slotguard/pkg/contracts"
	"slotguard/pkg/kafka"
	kafka_config "slotguard/pkg/kafka/config"
	kafka_middleware "slotguard/pkg/kafka/middleware"
	"slotguard/pkg/ratelimit"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Bookings service")

	serverApp := app.NewApplication(cfg)

	repo, slotLocker := initStorage(cfg)
	limiter, err := initLimiter(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize rate limiter", "error", err)
	}
	sink, err := initEvents(cfg, serverApp)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize event sink", "error", err)
	}

	bookingService := service.NewBookingService(
		repo,
		slotLocker,
		validator.NewBookingValidator(cfg.Log),
		sink,
		cfg.Log,
	)

	if err := serverApp.SetApp(handler.NewBookingHandler(bookingService, cfg.Log), limiter); err != nil {
		cfg.Log.Fatal("Failed to configure application", "error", err)
	}
	serverApp.Run()
}

// initStorage opens the configured backend. Every backend gets an in-process lock in
// front; shared backends add a distributed one behind it.
func initStorage(cfg *config.Config) (repository.BookingRepository, locker.SlotLocker) {
	local := locker.NewLocalLocker()

	switch cfg.StorageBackend {
	case config.StorageMongo:
		cfg.SetMongo()
		repo := repository.NewMongoBookingRepository(cfg)
		distributed := locker.NewMongoLocker(repository.NewBookingLockRepository(cfg), cfg.SlotLockTTL, cfg.Log)
		cfg.Log.Info("Booking storage initialized", "backend", cfg.StorageBackend, "database", cfg.MongoDatabaseName)
		return repo, locker.Chain(local, distributed)

	case config.StoragePostgres:
		cfg.SetPostgres()
		repo := repository.NewPostgresBookingRepository(cfg.Client.Postgres, cfg.ReadTimeout, cfg.WriteTimeout)
		distributed := locker.NewPostgresLocker(cfg.Client.Postgres, cfg.Log)
		cfg.Log.Info("Booking storage initialized", "backend", cfg.StorageBackend)
		return repo, locker.Chain(local, distributed)

	default:
		cfg.Log.Info("Booking storage initialized", "backend", config.StorageMemory)
		return repository.NewMemoryBookingRepository(), local
	}
}

func initLimiter(cfg *config.Config) (ratelimit.Limiter, error) {
	limit := ratelimit.Limit{
		Capacity: float64(cfg.RateLimitCapacity),
		Rate:     float64(cfg.RateLimitRequests),
		Period:   cfg.RateLimitWindow,
	}

	if cfg.RateLimitBackend == config.LimiterRedis {
		cfg.SetRedis()
		cfg.Log.Info("Rate limiter initialized", "backend", cfg.RateLimitBackend, "prefix", cfg.RedisKeyPrefix)
		return ratelimit.NewRedisLimiter(cfg.Client.Redis, limit, cfg.RedisKeyPrefix)
	}

	cfg.Log.Info("Rate limiter initialized", "backend", config.LimiterMemory, "shards", cfg.RateLimitShards)
	return ratelimit.NewMemoryLimiter(limit,
		ratelimit.WithShards(cfg.RateLimitShards),
		ratelimit.WithMaxKeys(cfg.RateLimitMaxKeys),
	)
}

// initEvents returns the post-commit event sink. Kafka delivery runs behind a bounded
// async queue that is drained on shutdown.
func initEvents(cfg *config.Config, serverApp *app.Application) (events.Sink, error) {
	if cfg.EventsBackend != config.EventsKafka {
		cfg.Log.Info("Event sink initialized", "backend", config.EventsLog)
		return events.NewLogSink(cfg.Log), nil
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		return nil, err
	}
	if err := kafkaCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka configuration: %w", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.EventsTopic, cfg.Log)
	if err != nil {
		return nil, err
	}
	metrics := &kafka_middleware.Metrics{}
	producer.Use(metrics.ProducerMiddleware())
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))

	sink := events.NewAsyncSink(events.NewKafkaSink(producer, ServiceName), events.AsyncOptions{
		QueueSize:  cfg.EventsQueueSize,
		Workers:    cfg.EventsWorkers,
		MaxRetries: cfg.EventsMaxRetries,
	}, cfg.Log)

	// Registered first so it closes last, after the queue drained into it.
	serverApp.OnShutdown("kafka producer", contracts.CloserFunc(func(context.Context) error {
		cfg.Log.Info("Kafka producer metrics", metrics.Snapshot().LogValues()...)
		return producer.Close()
	}))
	serverApp.OnShutdown("event queue", sink)

	cfg.Log.Info("Event sink initialized", "backend", config.EventsKafka, "topic", cfg.EventsTopic)
	return sink, nil
}
