package dictionary

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metadataRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablekit_dictionary_metadata_requests_total",
		Help: "Table metadata requests by result: hit, load, shared or error",
	}, []string{"result"})
	metadataLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tablekit_dictionary_metadata_load_duration_seconds",
		Help:    "Duration of table metadata loads from the database",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	listTablesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tablekit_dictionary_list_tables_total",
		Help: "Total number of list tables calls",
	})
	invalidationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tablekit_dictionary_invalidations_total",
		Help: "Table metadata invalidations",
	})
	registryHandlers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablekit_registry_handlers_total",
		Help: "Table handler lookups in the registry by result: hit, build or stale",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		metadataRequests,
		metadataLoadDuration,
		listTablesTotal,
		invalidationsTotal,
		registryHandlers,
	)
}
