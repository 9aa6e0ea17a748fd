package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"slotguard/pkg/kafka"
	"slotguard/pkg/logger"
	"slotguard/pkg/middleware"
	"slotguard/pkg/model"
)

var ErrSinkClosed = errors.New("event sink is closed")

type AsyncOptions struct {
	QueueSize  int
	Workers    int
	MaxRetries int
	Backoff    time.Duration
	// PublishTimeout bounds each delivery attempt.
	PublishTimeout time.Duration
}

type envelope struct {
	event     model.BookingEvent
	requestID string
}

// AsyncSink hands events to worker goroutines so requests never wait on the broker.
// Publish blocks only while the queue is full. Transient delivery failures are retried
// with exponential backoff; an event that still fails is dead-lettered when the inner
// sink supports it.
type AsyncSink struct {
	inner Sink
	opts  AsyncOptions
	log   *logger.Logger
	queue chan envelope

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncSink(inner Sink, opts AsyncOptions, log *logger.Logger) *AsyncSink {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 10 * time.Second
	}

	s := &AsyncSink{
		inner: inner,
		opts:  opts,
		log:   log,
		queue: make(chan envelope, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *AsyncSink) Publish(ctx context.Context, event model.BookingEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.queue <- envelope{event: event, requestID: middleware.RequestIDFromContext(ctx)}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to be delivered, or for ctx.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()
	for env := range s.queue {
		s.deliver(env)
	}
}

func (s *AsyncSink) deliver(env envelope) {
	ctx := middleware.WithRequestID(context.Background(), env.requestID)
	backoff := s.opts.Backoff

	var err error
	for attempt := 0; ; attempt++ {
		err = s.attempt(ctx, env.event)
		if err == nil {
			return
		}
		if !kafka.ShouldRetry(err, attempt, s.opts.MaxRetries) {
			break
		}
		s.log.Warn("Retrying event delivery", "event", env.event.Kind, "id", env.event.Booking.ID, "attempt", attempt+1, "error", err)
		time.Sleep(backoff)
		backoff *= 2
	}

	s.log.Error("Failed to deliver event", "event", env.event.Kind, "id", env.event.Booking.ID, "error", err)
	if dl, ok := s.inner.(DeadLetterer); ok {
		dctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
		defer cancel()
		if dlErr := dl.DeadLetter(dctx, env.event, err); dlErr != nil {
			s.log.Error("Failed to dead-letter event", "event", env.event.Kind, "id", env.event.Booking.ID, "error", dlErr)
		}
	}
}

func (s *AsyncSink) attempt(ctx context.Context, event model.BookingEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()
	return s.inner.Publish(ctx, event)
}
