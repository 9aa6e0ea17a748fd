package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"slotguard/internal/events"
	"slotguard/pkg/config"
	"slotguard/pkg/kafka"
	kafka_config "slotguard/pkg/kafka/config"
	kafka_middleware "slotguard/pkg/kafka/middleware"

	"golang.org/x/sync/errgroup"
)

const ServiceName = "booking-events"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting booking events consumer")

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Failed to load kafka configuration", "error", err)
	}
	if err := kafkaCfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	handler, err := events.NewHandler(events.LogProcessor(cfg.Log), events.DefaultDedupeSize, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create event handler", "error", err)
	}

	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.EventsTopic, handler.Handle, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create consumer", "error", err)
	}
	metrics := &kafka_middleware.Metrics{}
	consumer.Use(metrics.ConsumerMiddleware())
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg.Log.Info("Consuming booking events", "topic", cfg.EventsTopic, "group", kafkaCfg.ConsumerGroup)
		return consumer.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		cfg.Log.Info("Shutdown signal received, closing consumer")
		return consumer.Close()
	})

	err = g.Wait()
	cfg.Log.Info("Kafka consumer metrics", metrics.Snapshot().LogValues()...)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, kafka.ErrConsumerClosed) {
		cfg.Log.Fatal("Consumer stopped with error", "error", err)
	}
	cfg.Log.Info("Booking events consumer stopped")
}
