package handler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	constructorCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tablekit_table_handler_constructor_calls_total",
		Help: "Total number of table handler constructions",
	})
	handlersCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablekit_table_handler_created_total",
		Help: "Table handlers created per table",
	}, []string{"table"})
	mappingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablekit_table_handler_mappings_total",
		Help: "Table handlers built from default or explicit mappings",
	}, []string{"kind"})
	invalidHandlers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tablekit_table_handler_invalid_total",
		Help: "Table handlers that failed mapping resolution",
	})
	indexHandlersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tablekit_index_handler_created_total",
		Help: "Index handlers created",
	})
	resultObjectsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tablekit_result_objects_created_total",
		Help: "Result objects created by table handlers",
	})
)

func init() {
	prometheus.MustRegister(
		constructorCalls,
		handlersCreated,
		mappingsTotal,
		invalidHandlers,
		indexHandlersCreated,
		resultObjectsCreated,
	)
}
