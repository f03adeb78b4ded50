package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IndexerRequests tracks indexing service queries by outcome
	IndexerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratesync_indexer_requests_total",
			Help: "Total number of indexing service queries",
		},
		[]string{"operation", "outcome"},
	)

	// IndexerLatency tracks indexing service query latency
	IndexerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratesync_indexer_latency_seconds",
			Help:    "Indexing service query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// EntriesWritten tracks ledger rows appended per token and stage
	EntriesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratesync_entries_written_total",
			Help: "Total number of exchange-rate entries written",
		},
		[]string{"token", "stage"},
	)

	// HoursSkipped tracks backfill hours with no usable sample
	HoursSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratesync_hours_skipped_total",
			Help: "Total number of backfill hours skipped for lack of data",
		},
		[]string{"token"},
	)

	// TokenFailures tracks tokens whose sync step failed
	TokenFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratesync_token_failures_total",
			Help: "Total number of failed token syncs",
		},
		[]string{"token"},
	)

	// RunDuration tracks the wall time of a sync run
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ratesync_run_duration_seconds",
			Help:    "Duration of a full sync run in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// LastExchangeRate tracks the most recently written rate per token
	LastExchangeRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratesync_last_exchange_rate",
			Help: "Most recently written exchange rate",
		},
		[]string{"token"},
	)

	// TransfersIngested tracks mint and burn transfers stored
	TransfersIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratesync_transfers_ingested_total",
			Help: "Total number of mint and burn transfers stored",
		},
		[]string{"token"},
	)

	// IngestLatestBlock tracks the last block covered by transfer ingestion
	IngestLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratesync_ingest_latest_block",
			Help: "Latest block covered by transfer ingestion",
		},
		[]string{"state"},
	)
)
