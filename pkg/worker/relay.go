package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/messaging"
	"github.com/jwalitptl/retina-api/pkg/metrics"
)

type RelayConfig struct {
	Channel       string
	QueueSize     int
	RetryAttempts int
	RetryDelay    time.Duration
}

// Relay forwards queued messages to a broker channel from a single
// background goroutine, retrying failed publishes.
type Relay struct {
	broker  messaging.Broker
	config  RelayConfig
	queue   chan messaging.Message
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewRelay(
	broker messaging.Broker,
	config RelayConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Relay {
	// Config validation instead of defaults
	if config.Channel == "" {
		panic("Channel must not be empty")
	}
	if config.QueueSize <= 0 {
		panic("QueueSize must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &Relay{
		broker:  broker,
		config:  config,
		queue:   make(chan messaging.Message, config.QueueSize),
		logger:  logger,
		metrics: metrics,
	}
}

// Enqueue never blocks. It reports false and counts a drop when the
// queue is full.
func (r *Relay) Enqueue(msg messaging.Message) bool {
	select {
	case r.queue <- msg:
		return true
	default:
		r.metrics.RelayDropped.Inc()
		r.logger.Warn("Relay queue full, dropping message", "type", msg.Type)
		return false
	}
}

// Start publishes queued messages until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	r.logger.Info("Starting notification relay", "channel", r.config.Channel)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shutting down notification relay")
			return
		case msg := <-r.queue:
			if err := r.publish(ctx, msg); err != nil {
				r.logger.Error(err, "Failed to publish message", "type", msg.Type)
			}
		}
	}
}

func (r *Relay) publish(ctx context.Context, msg messaging.Message) error {
	attempt := 0
	err := retry(ctx, r.config.RetryAttempts, r.config.RetryDelay, func() error {
		if attempt > 0 {
			r.metrics.RelayRetries.Inc()
		}
		attempt++
		return r.broker.Publish(ctx, r.config.Channel, msg)
	})
	if err != nil {
		r.metrics.RelayFailed.Inc()
		return err
	}

	r.metrics.RelayPublished.Inc()
	return nil
}

// Helper retry function
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
