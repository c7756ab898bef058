package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tryon-backend/internal/ledger"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
	"github.com/angelmondragon/tryon-backend/pkg/metrics"
)

const (
	ReconcileJobName      = "ledger-reconcile"
	defaultReconcileLimit = 500
)

type ledgerAuditor interface {
	ListAccounts(ctx context.Context, limit, offset int) ([]uuid.UUID, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (ledger.Reconciliation, error)
}

type ReconcileJobParams struct {
	Logger  *logger.Logger
	Ledger  ledgerAuditor
	Metrics *metrics.BillingMetrics
	// PageSize is the number of accounts loaded per page.
	PageSize int
}

// ReconcileJob compares every stored balance with the sum of its transaction
// log. Drift is reported, never corrected.
type ReconcileJob struct {
	logg     *logger.Logger
	ledger   ledgerAuditor
	metrics  *metrics.BillingMetrics
	pageSize int
}

// ReconcileReport summarizes one pass.
type ReconcileReport struct {
	Scanned    int
	Mismatched []ledger.Reconciliation
}

func NewReconcileJob(params ReconcileJobParams) (*ReconcileJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultReconcileLimit
	}
	return &ReconcileJob{
		logg:     params.Logger,
		ledger:   params.Ledger,
		metrics:  params.Metrics,
		pageSize: pageSize,
	}, nil
}

func (j *ReconcileJob) Name() string { return ReconcileJobName }

func (j *ReconcileJob) Run(ctx context.Context) error {
	_, err := j.Reconcile(ctx)
	return err
}

// Reconcile walks all accounts page by page. Per-account failures are
// collected and the walk continues.
func (j *ReconcileJob) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var (
		report ReconcileReport
		errs   error
	)
	for offset := 0; ; offset += j.pageSize {
		if err := ctx.Err(); err != nil {
			return report, multierr.Append(errs, err)
		}
		ids, err := j.ledger.ListAccounts(ctx, j.pageSize, offset)
		if err != nil {
			return report, multierr.Append(errs, fmt.Errorf("list accounts: %w", err))
		}
		for _, id := range ids {
			rec, err := j.ledger.Reconcile(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", id, err))
				continue
			}
			report.Scanned++
			if rec.Consistent() {
				continue
			}
			report.Mismatched = append(report.Mismatched, rec)
			j.metrics.ReconcileMismatch(ReconcileJobName)
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"tenant_id":  id.String(),
				"balance":    rec.Balance,
				"ledger_sum": rec.LedgerSum,
				"difference": rec.Difference,
			}), "ledger.drift_detected")
		}
		if len(ids) < j.pageSize {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned":    report.Scanned,
		"mismatched": len(report.Mismatched),
	}), "ledger.reconcile_complete")
	return report, errs
}
