package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/messaging"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Channel       string
	// ClaimLease is how long an event may sit in processing before another
	// poll takes it over.
	ClaimLease time.Duration
}

// statusTimeout bounds the status write that follows a publish. It runs
// detached from the poll context so shutdown does not strand a claimed event.
const statusTimeout = 5 * time.Second

// Notifier is told about every published event. Failures are logged and
// do not hold the event back.
type Notifier interface {
	Notify(ctx context.Context, event *model.OutboxEvent) error
}

type OutboxProcessor struct {
	repo     repository.OutboxRepository
	broker   messaging.Broker
	notifier Notifier
	config   OutboxProcessorConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	notifier Notifier,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	switch {
	case config.BatchSize <= 0:
		return nil, fmt.Errorf("batch size must be greater than 0")
	case config.PollInterval <= 0:
		return nil, fmt.Errorf("poll interval must be greater than 0")
	case config.RetryAttempts <= 0:
		return nil, fmt.Errorf("retry attempts must be greater than 0")
	case config.RetryDelay <= 0:
		return nil, fmt.Errorf("retry delay must be greater than 0")
	case config.Channel == "":
		return nil, fmt.Errorf("channel is required")
	case config.ClaimLease <= 0:
		return nil, fmt.Errorf("claim lease must be greater than 0")
	}

	return &OutboxProcessor{
		repo:     repo,
		broker:   broker,
		notifier: notifier,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "failed to process events")
			}
		}
	}
}

// ProcessBatch claims due events and publishes them. It returns how many
// were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	claimTimer := prometheus.NewTimer(p.metrics.DatabaseLatency.WithLabelValues("claim_pending_events"))
	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize, p.now().Add(-p.config.ClaimLease))
	claimTimer.ObserveDuration()
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "success").Inc()

	published := 0
	for _, event := range events {
		// the rest of the batch stays claimed until the lease runs out
		if ctx.Err() != nil {
			break
		}
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		published++
	}
	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:      event.ID.String(),
		Type:    event.EventType,
		Payload: json.RawMessage(event.Payload),
	}

	if err := p.broker.Publish(ctx, p.config.Channel, msg); err != nil {
		return p.fail(ctx, event, err)
	}

	statusCtx, cancel := detached(ctx)
	defer cancel()
	if err := p.repo.MarkProcessed(statusCtx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	p.metrics.OutboxEventsProcessed.Inc()

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, event); err != nil {
			p.logger.Warn("notification failed",
				"event_id", event.ID.String(),
				"event_type", event.EventType,
				"error", err.Error())
		}
	}
	return nil
}

// fail schedules a retry with linear backoff, or gives up once the
// attempts are used.
func (p *OutboxProcessor) fail(ctx context.Context, event *model.OutboxEvent, cause error) error {
	ctx, cancel := detached(ctx)
	defer cancel()

	attempt := event.RetryCount + 1
	if attempt >= p.config.RetryAttempts {
		p.metrics.OutboxEventsFailed.Inc()
		if err := p.repo.MarkFailed(ctx, event.ID, cause.Error()); err != nil {
			return fmt.Errorf("failed to mark event failed: %w", err)
		}
		return fmt.Errorf("giving up after %d attempts: %w", attempt, cause)
	}

	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	retryAt := p.now().Add(time.Duration(attempt) * p.config.RetryDelay)
	if err := p.repo.MarkRetry(ctx, event.ID, cause.Error(), retryAt); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return fmt.Errorf("publish failed, retry %d at %s: %w", attempt, retryAt.Format(time.RFC3339), cause)
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
}
