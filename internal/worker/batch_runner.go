package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quartzlabs/ownermatch/internal/domain"
	"github.com/quartzlabs/ownermatch/internal/observability/metrics"
	"github.com/quartzlabs/ownermatch/internal/service"
)

// BatchRunner feeds legacy user records through the reconciliation engine,
// sequentially by default or across a bounded worker pool. Per-record
// reconciliation is independent; the stats collector and the mapping
// table's insert-or-confirm semantics make parallel workers safe, and the
// relationship table's unique constraint keeps idempotency under races.
type BatchRunner struct {
	service *service.ReconcileService
	logger  *slog.Logger
	workers int
}

// NewBatchRunner creates a runner. workers below 1 means sequential.
func NewBatchRunner(svc *service.ReconcileService, logger *slog.Logger, workers int) *BatchRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}

	return &BatchRunner{
		service: svc,
		logger:  logger,
		workers: workers,
	}
}

// Run reconciles every record. It returns an error only for fatal
// conditions: a mapping conflict or context cancellation. Per-record
// failures are counted and the batch continues.
func (r *BatchRunner) Run(ctx context.Context, records []*domain.LegacyRecord) error {
	tracer := otel.Tracer("ownermatch")
	ctx, span := tracer.Start(ctx, "reconcile.run", trace.WithAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("workers", r.workers),
	))
	defer span.End()

	r.logger.Info("reconciliation started",
		slog.Int("records", len(records)),
		slog.Int("workers", r.workers),
	)
	metrics.SetRemaining(len(records))

	var err error
	if r.workers == 1 {
		err = r.runSequential(ctx, records)
	} else {
		err = r.runParallel(ctx, records)
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	metrics.SetRemaining(0)
	r.logger.Info("reconciliation finished", slog.Int("records", len(records)))
	return nil
}

func (r *BatchRunner) runSequential(ctx context.Context, records []*domain.LegacyRecord) error {
	for i, rec := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome := r.service.Reconcile(ctx, rec)
		if fatal(outcome) {
			return outcome.Err
		}
		metrics.SetRemaining(len(records) - i - 1)
	}
	return nil
}

func (r *BatchRunner) runParallel(ctx context.Context, records []*domain.LegacyRecord) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan *domain.LegacyRecord)
	fatalErrs := make(chan error, r.workers)
	var wg sync.WaitGroup

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				outcome := r.service.Reconcile(ctx, rec)
				if fatal(outcome) {
					fatalErrs <- outcome.Err
					cancel()
					return
				}
			}
		}()
	}

feed:
	for _, rec := range records {
		select {
		case <-ctx.Done():
			break feed
		case work <- rec:
		}
	}
	close(work)
	wg.Wait()

	select {
	case err := <-fatalErrs:
		return err
	default:
	}
	return ctx.Err()
}

// fatal reports whether an outcome must halt the run. Only a conflicting
// identity mapping qualifies: silently resolving it risks corrupting the
// migration.
func fatal(outcome domain.Outcome) bool {
	return outcome.Err != nil && errors.Is(outcome.Err, domain.ErrMappingConflict)
}
