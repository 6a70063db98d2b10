package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/repository"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/telemetry"
)

const (
	DefaultRelayInterval  = 5 * time.Second
	DefaultRelayBatchSize = 100
)

// RelayOptions tunes the polling loop.
type RelayOptions struct {
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
	Metrics   *telemetry.OutboxMetrics
}

// Relay re-delivers outbox events that were persisted but never marked
// dispatched, for example because the process stopped between commit and
// dispatch. Delivery is at least once.
type Relay struct {
	outbox    repository.OutboxRepository
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *telemetry.OutboxMetrics
}

func NewRelay(outbox repository.OutboxRepository, publisher Publisher, opts RelayOptions) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if r.interval <= 0 {
		r.interval = DefaultRelayInterval
	}
	if r.batchSize <= 0 {
		r.batchSize = DefaultRelayBatchSize
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run relays a batch every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.RelayOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("outbox relay failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("outbox relayed events", "count", n)
			}
		}
	}
}

// RelayOnce delivers up to one batch of pending events and returns how many
// were marked dispatched. Events that fail to decode or deliver are marked
// failed and retried on a later pass.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerOutbox, "outbox.RelayOnce")
	defer span.End()

	pending, err := r.outbox.ListPending(ctx, r.batchSize)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("list pending events: %w", err)
	}
	span.SetAttributes(attribute.Int("outbox.pending", len(pending)))

	delivered := make([]string, 0, len(pending))
	for _, row := range pending {
		if err := r.deliver(ctx, row); err != nil {
			r.metrics.RecordDelivery(ctx, row.Type, err)
			r.logger.Warn("outbox delivery failed", "event_id", row.ID, "type", row.Type, "attempts", row.Attempts+1, "error", err)
			if markErr := r.outbox.MarkFailed(ctx, row.ID, err); markErr != nil {
				return len(delivered), fmt.Errorf("mark event %s failed: %w", row.ID, markErr)
			}
			continue
		}
		r.metrics.RecordDelivery(ctx, row.Type, nil)
		delivered = append(delivered, row.ID)
	}

	if len(delivered) == 0 {
		return 0, nil
	}
	if err := r.outbox.MarkDispatched(ctx, delivered); err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("mark events dispatched: %w", err)
	}
	return len(delivered), nil
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) error {
	event, err := organization.DecodeEvent(row.Type, row.Payload)
	if err != nil {
		return err
	}
	return r.publisher.Dispatch(ctx, event)
}
