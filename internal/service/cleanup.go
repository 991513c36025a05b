package service

import (
	"context"
	"log/slog"

	"dropp/internal/models"
	"dropp/internal/observability"

	"github.com/sourcegraph/conc/pool"
)

const maxCleanupGoroutines = 8

// cleanupItem is one best-effort delete of a record that points at a user.
type cleanupItem struct {
	path string
	del  func(context.Context) error
}

// cleanupResult is the outcome of one cleanupItem.
type cleanupResult struct {
	path string
	err  error
}

// runCleanup issues every delete concurrently and waits for all of them. A
// failed item never stops its siblings; each failure is reported as an
// inconsistency and returned in the result list.
func runCleanup(ctx context.Context, reporter *InconsistencyReporter, op, cause string, items []cleanupItem) []cleanupResult {
	if len(items) == 0 {
		return nil
	}

	cleanupCtx := context.WithoutCancel(ctx)
	p := pool.NewWithResults[cleanupResult]().WithMaxGoroutines(maxCleanupGoroutines)
	for _, item := range items {
		p.Go(func() cleanupResult {
			return cleanupResult{path: item.path, err: item.del(cleanupCtx)}
		})
	}
	results := p.Wait()

	failed := 0
	for _, r := range results {
		if r.err == nil {
			continue
		}
		failed++
		reporter.Report(ctx, models.Inconsistency{
			Operation:   op,
			Path:        r.path,
			Cause:       cause,
			CleanupErr:  r.err.Error(),
			Description: "reciprocal record could not be removed",
		})
	}

	observability.Logger.InfoContext(ctx, "cleanup finished",
		slog.String("operation", op),
		slog.Int("items", len(items)),
		slog.Int("failed", failed),
	)
	return results
}
