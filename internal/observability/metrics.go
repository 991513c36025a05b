package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatastoreOpLatency records datastore latency by backend and operation.
	DatastoreOpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dropp_datastore_op_latency_seconds",
		Help:    "Datastore operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// DatastoreErrors counts failed datastore operations.
	DatastoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dropp_datastore_errors_total",
		Help: "Total number of failed datastore operations",
	}, []string{"backend", "operation"})

	// RedisErrors counts Redis command errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dropp_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// GraphOperations counts social graph operations by name and outcome kind.
	GraphOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dropp_graph_operations_total",
		Help: "Total number of social graph operations by outcome",
	}, []string{"operation", "outcome"})

	// Compensations counts compensating deletes issued after a failed second write.
	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dropp_graph_compensations_total",
		Help: "Total number of compensating writes by operation and result",
	}, []string{"operation", "result"})

	// Inconsistencies counts one-sided records left behind by failed cleanup.
	Inconsistencies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dropp_graph_inconsistencies_total",
		Help: "Total number of detected one-sided relationship records",
	}, []string{"operation"})

	// PairLockWaits records how long operations waited for a pair lock.
	PairLockWaits = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dropp_pair_lock_wait_seconds",
		Help:    "Time spent acquiring per-pair locks",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"backend", "result"})

	// ActiveEventStreams is the number of open /api/ws connections.
	ActiveEventStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dropp_event_streams_active",
		Help: "Number of open websocket event streams",
	})

	// EventStreamDrops counts events dropped because a stream fell behind.
	EventStreamDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropp_event_stream_drops_total",
		Help: "Total number of events dropped for slow websocket clients",
	})
)

// ObserveStoreOp records latency and failures of one datastore call. It is
// meant to be deferred with a pointer to the call's named error result.
func ObserveStoreOp(backend, operation string, start time.Time, errp *error) {
	DatastoreOpLatency.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	if errp != nil && *errp != nil {
		DatastoreErrors.WithLabelValues(backend, operation).Inc()
	}
}
