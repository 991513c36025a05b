package service

import (
	"context"
	"log/slog"

	"dropp/internal/datastore"
	"dropp/internal/models"
	"dropp/internal/observability"
)

// InconsistencyLedgerPath is the datastore node that collects reported
// inconsistencies for operators.
const InconsistencyLedgerPath = "inconsistencies"

// InconsistencyReporter records one-sided relationship records. Reports are
// logged and counted; when a datastore is configured they are also appended
// to the ledger. Reporting never fails the calling operation.
type InconsistencyReporter struct {
	ds datastore.Datastore
}

// NewInconsistencyReporter returns a reporter writing to ds. ds may be nil.
func NewInconsistencyReporter(ds datastore.Datastore) *InconsistencyReporter {
	return &InconsistencyReporter{ds: ds}
}

// Report logs inc at error level and appends it to the ledger.
func (r *InconsistencyReporter) Report(ctx context.Context, inc models.Inconsistency) {
	observability.Inconsistencies.WithLabelValues(inc.Operation).Inc()
	observability.Logger.ErrorContext(ctx, "social graph inconsistency",
		slog.String("kind", string(models.KindInconsistency)),
		slog.String("severity", "high"),
		slog.String("operation", inc.Operation),
		slog.String("path", inc.Path),
		slog.String("cause", inc.Cause),
		slog.String("cleanup_error", inc.CleanupErr),
		slog.String("description", inc.Description),
	)

	if r == nil || r.ds == nil {
		return
	}
	if _, err := r.ds.Add(context.WithoutCancel(ctx), InconsistencyLedgerPath, inc.ToRecord()); err != nil {
		observability.Logger.ErrorContext(ctx, "failed to record inconsistency",
			slog.String("path", inc.Path),
			slog.String("error", err.Error()),
		)
	}
}
