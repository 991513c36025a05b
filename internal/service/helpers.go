package service

import (
	"sort"

	"dropp/internal/models"
	"dropp/internal/observability"

	"go.opentelemetry.io/otel/trace"
)

// finish ends the operation span and counts the outcome.
func finish(span trace.Span, op string, err error) {
	observability.EndSpan(span, err)
	outcome := "success"
	if err != nil {
		outcome = string(models.KindOf(err))
	}
	observability.GraphOperations.WithLabelValues(op, outcome).Inc()
}

func has(set map[string]string, key string) bool {
	_, ok := set[key]
	return ok
}

func sortedKeys(set map[string]string) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
