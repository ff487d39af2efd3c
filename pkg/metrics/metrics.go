// Package metrics holds the Prometheus counters of a scan.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for a scan.
type Metrics struct {
	BytesRead    prometheus.Counter
	Blobs        *prometheus.CounterVec
	BlobErrors   *prometheus.CounterVec
	Matches      *prometheus.CounterVec
	EntityErrors *prometheus.CounterVec
	Groups       prometheus.Counter
}

// New creates and registers all metrics with the provided registry.
func New(reg prometheus.Registerer) *Metrics {
	bytesRead := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amenityscan_bytes_read_total",
		Help: "Total bytes read from the input stream",
	})

	blobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amenityscan_blobs_total",
		Help: "Blobs framed, by blob type",
	}, []string{"type"})

	blobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amenityscan_blob_errors_total",
		Help: "Blobs that could not be framed, inflated or decoded",
	}, []string{"reason"})

	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amenityscan_matches_total",
		Help: "Reported entities, by entity kind",
	}, []string{"kind"})

	entityErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amenityscan_entity_errors_total",
		Help: "Entities or dense sections abandoned because of malformed tag data",
	}, []string{"reason"})

	groups := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amenityscan_primitive_groups_total",
		Help: "Primitive groups scanned",
	})

	reg.MustRegister(bytesRead, blobs, blobErrors, matches, entityErrors, groups)

	return &Metrics{
		BytesRead:    bytesRead,
		Blobs:        blobs,
		BlobErrors:   blobErrors,
		Matches:      matches,
		EntityErrors: entityErrors,
		Groups:       groups,
	}
}
