package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	kafka_config "slotguard/pkg/kafka/config"
	"slotguard/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// Writer is the part of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer     Writer
	dlqWriter  Writer
	topic      string
	dlqTopic   string
	middleware []ProducerMiddleware
	log        *logger.Logger
	closed     bool
	mu         sync.RWMutex
}

type ProducerMiddleware func(ctx context.Context, msg Message, next func(ctx context.Context, msg Message) error) error

func compression(name string) compress.Compression {
	switch name {
	case "none":
		return compress.None
	case "gzip":
		return compress.Gzip
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.Snappy
	}
}

func requiredAcks(acks int) kafka.RequiredAcks {
	switch acks {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

// clientLoggers routes kafka-go's own logging into log: info at debug level, errors as errors.
func clientLoggers(log *logger.Logger) (kafka.Logger, kafka.Logger) {
	return kafka.LoggerFunc(func(msg string, args ...any) {
			log.Debug(fmt.Sprintf(msg, args...), "component", "kafka")
		}), kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error(fmt.Sprintf(msg, args...), "component", "kafka")
		})
}

func newWriter(cfg *kafka_config.Config, topic string, maxAttempts int, log *logger.Logger) *kafka.Writer {
	infoLog, errLog := clientLoggers(log)
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same key, same partition
		RequiredAcks: requiredAcks(cfg.ProducerRequireAcks),
		Compression:  compression(cfg.ProducerCompression),
		MaxAttempts:  maxAttempts,
		BatchTimeout: cfg.ProducerBatchTimeout,
		Logger:       infoLog,
		ErrorLogger:  errLog,
	}
}

func NewProducer(cfg *kafka_config.Config, topic string, log *logger.Logger) (*Producer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	var dlq Writer
	if cfg.DLQTopic != "" {
		dlq = newWriter(cfg, cfg.DLQTopic, 3, log)
	}
	return NewProducerWithWriters(topic, newWriter(cfg, topic, cfg.ProducerMaxAttempts, log), cfg.DLQTopic, dlq, log), nil
}

// NewProducerWithWriters builds a producer over caller-supplied writers. dlq may be nil.
func NewProducerWithWriters(topic string, writer Writer, dlqTopic string, dlq Writer, log *logger.Logger) *Producer {
	return &Producer{
		writer:    writer,
		dlqWriter: dlq,
		topic:     topic,
		dlqTopic:  dlqTopic,
		log:       log,
	}
}

func (p *Producer) Use(middleware ProducerMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middleware = append(p.middleware, middleware)
}

func (p *Producer) Topic() string {
	return p.topic
}

func (p *Producer) Publish(ctx context.Context, msg Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrProducerClosed
	}
	chain := p.middleware
	p.mu.RUnlock()

	if msg.Key == "" {
		return NewPermanentError("invalid message", ErrEmptyKey)
	}
	if len(msg.Value) == 0 {
		return NewPermanentError("invalid message", ErrEmptyValue)
	}
	msg.Topic = p.topic

	handler := p.publishInternal
	for i := len(chain) - 1; i >= 0; i-- {
		middleware := chain[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return middleware(ctx, m, next)
		}
	}
	return handler(ctx, msg)
}

func (p *Producer) publishInternal(ctx context.Context, msg Message) error {
	return p.writer.WriteMessages(ctx, msg.toKafka())
}

// SendToDLQ parks a message that could not be delivered. It is a no-op without a DLQ topic.
func (p *Producer) SendToDLQ(ctx context.Context, msg Message, cause error) error {
	if p.dlqWriter == nil {
		return nil
	}

	dead := msg.clone()
	dead.Headers[HeaderOriginalTopic] = p.topic
	dead.Headers[HeaderDLQError] = cause.Error()
	dead.Headers[HeaderDLQTimestamp] = time.Now().UTC().Format(time.RFC3339)
	dead.Timestamp = time.Now()

	if err := p.dlqWriter.WriteMessages(ctx, dead.toKafka()); err != nil {
		return fmt.Errorf("failed to send to DLQ %s: %w", p.dlqTopic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	err := p.writer.Close()
	if p.dlqWriter != nil {
		if dlqErr := p.dlqWriter.Close(); err == nil {
			err = dlqErr
		}
	}
	return err
}
