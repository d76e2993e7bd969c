package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gestia-erp/gestia/internal/observability"
	"github.com/gestia-erp/gestia/internal/shared"
)

// Locker serializes sync calls per tenant. Cross-tenant calls run fully
// in parallel.
type Locker interface {
	Acquire(ctx context.Context, companyID int64) (func(), error)
}

// FiscalEnqueuer hands committed invoice ids to the fiscal submission
// pipeline. Failures are logged, never surfaced: the pipeline is a
// fire-and-forget consumer.
type FiscalEnqueuer interface {
	EnqueueInvoiceSubmission(ctx context.Context, companyID int64, invoiceID ID) error
}

// ServiceConfig carries the sync tunables.
type ServiceConfig struct {
	ClockSkew time.Duration
	MaxBatch  int
}

// Service is the public entry point of the sync engine.
type Service struct {
	logger  *slog.Logger
	repo    Repository
	lock    Locker
	fiscal  FiscalEnqueuer
	metrics *observability.SyncMetrics
	cfg     ServiceConfig
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo Repository, lock Locker, fiscal FiscalEnqueuer, metrics *observability.SyncMetrics, cfg ServiceConfig) *Service {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 5 * time.Minute
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 5000
	}
	return &Service{logger: logger, repo: repo, lock: lock, fiscal: fiscal, metrics: metrics, cfg: cfg}
}

// Sync validates the envelope, applies the pushed batch atomically,
// captures the new watermark, and exports the delta window
// (lastSyncTime, pushCompletedAt] minus this call's own writes.
func (s *Service) Sync(ctx context.Context, sess *shared.Session, env Envelope) (*Result, error) {
	if sess == nil || env.CompanyID != sess.CompanyID {
		return nil, ErrTenantMismatch
	}
	tenant := sess.CompanyID

	since, err := s.parseWatermark(ctx, env.LastSyncTime)
	if err != nil {
		return nil, err
	}
	if size := env.Data.Size(); size > s.cfg.MaxBatch {
		return nil, fmt.Errorf("%w: %d records, limit %d", ErrBatchTooLarge, size, s.cfg.MaxBatch)
	}

	corr, until, err := s.pushLocked(ctx, tenant, env.Data)
	if err != nil {
		return nil, err
	}

	exporter := deltaExporter{repo: s.repo}
	deltas, err := exporter.export(ctx, tenant, since, until, corr)
	if err != nil {
		return nil, fmt.Errorf("sync: delta export: %w", err)
	}

	s.submitInvoices(ctx, tenant, corr)
	if s.metrics != nil {
		s.metrics.ObserveDelta(deltas.Size())
	}

	return &Result{
		ServerTime: until,
		Deltas:     deltas,
		Mappings:   corr.mappings(),
	}, nil
}

// pushLocked runs the push transaction under the per-tenant lock and
// captures the watermark before releasing it, so a concurrent device
// cannot commit rows that predate the watermark we hand back.
func (s *Service) pushLocked(ctx context.Context, tenant int64, batch Batch) (*correlationResolver, time.Time, error) {
	release, err := s.lock.Acquire(ctx, tenant)
	if err != nil {
		if s.metrics != nil {
			s.metrics.LockFailed()
		}
		return nil, time.Time{}, err
	}
	defer release()

	coordinator := pushCoordinator{repo: s.repo}
	corr, err := coordinator.push(ctx, tenant, batch)
	if err != nil {
		return nil, time.Time{}, err
	}

	until, err := s.repo.Now(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	if s.metrics != nil {
		s.metrics.ObservePush(batch.Size())
	}
	return corr, until, nil
}

func (s *Service) parseWatermark(ctx context.Context, raw string) (time.Time, error) {
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWatermark, raw)
	}
	now, err := s.repo.Now(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if since.After(now.Add(s.cfg.ClockSkew)) {
		return time.Time{}, fmt.Errorf("%w: %q is in the future", ErrInvalidWatermark, raw)
	}
	return since, nil
}

func (s *Service) submitInvoices(ctx context.Context, tenant int64, corr *correlationResolver) {
	if s.fiscal == nil {
		return
	}
	for _, id := range corr.writtenIDs(FamilyInvoices) {
		if err := s.fiscal.EnqueueInvoiceSubmission(ctx, tenant, id); err != nil {
			s.logger.Warn("fiscal submission enqueue failed",
				slog.Int64("company_id", tenant),
				slog.String("invoice_id", id.String()),
				slog.Any("error", err))
		}
	}
}
