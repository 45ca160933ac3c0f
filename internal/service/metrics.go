package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retrievalRoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zstream_retrieval_rounds_total",
			Help: "Total number of retrieval rounds by result",
		},
		[]string{"policy", "result"},
	)

	retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zstream_retrieval_duration_seconds",
			Help:    "Time from selection to decoded chunk",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"policy", "result"},
	)

	fragmentFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zstream_fragment_fetch_duration_seconds",
			Help:    "Per-server fragment fetch latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"server", "result"},
	)

	selectionSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zstream_selection_size",
			Help:    "Number of servers selected per round",
			Buckets: prometheus.LinearBuckets(1, 1, 16),
		},
		[]string{"policy"},
	)

	virtualBacklog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zstream_virtual_backlog",
			Help: "Current virtual queue backlog of the deadline policy",
		},
		[]string{"policy"},
	)

	serverQuality = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zstream_server_quality",
			Help: "Learned quality estimate per server",
		},
		[]string{"server"},
	)

	metadataCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zstream_metadata_cache_total",
			Help: "Chunk metadata cache lookups by result",
		},
		[]string{"result"},
	)

	fragmentsUploadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zstream_fragments_uploaded_total",
			Help: "Fragments uploaded per server",
		},
		[]string{"server"},
	)
)
