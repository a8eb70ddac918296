// Package metrics provides Prometheus collectors for the CSV and database engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by the engines
const (
	EngineCSV      = "csv"
	EngineDatabase = "database"

	SourceSQL  = "sql"
	SourceFile = "file"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

var (
	// QueriesTotal counts executed database queries by source and outcome.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbconnect_queries_total",
		Help: "Total number of database queries executed, by source (sql/file) and outcome.",
	}, []string{"source", "outcome"})

	// QueryDuration observes database query latency.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dbconnect_query_duration_seconds",
		Help:    "Database query latency in seconds, by source.",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 9),
	}, []string{"source"})

	// CacheRequestsTotal counts frame cache lookups by engine and result.
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbconnect_cache_requests_total",
		Help: "Total number of frame cache lookups, by engine and result (hit/miss).",
	}, []string{"engine", "result"})

	// CSVFilesLoadedTotal counts CSV files read from disk.
	CSVFilesLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dbconnect_csv_files_loaded_total",
		Help: "Total number of CSV files read from disk.",
	})

	// RowsLoadedTotal counts rows materialized into frames.
	RowsLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbconnect_rows_loaded_total",
		Help: "Total number of rows loaded into frames, by engine.",
	}, []string{"engine"})
)

// RecordCacheLookup increments the cache counter for engine
func RecordCacheLookup(engine string, hit bool) {
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	CacheRequestsTotal.WithLabelValues(engine, result).Inc()
}
