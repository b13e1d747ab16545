package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReadingsAccepted counts readings accepted by the ingestion path per device class.
var ReadingsAccepted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mtzview_readings_accepted_total",
		Help: "Total number of telemetry readings accepted",
	},
	[]string{"class"},
)

// ReadingsRejected counts readings rejected by validation per device class.
var ReadingsRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mtzview_readings_rejected_total",
		Help: "Total number of telemetry readings rejected by validation",
	},
	[]string{"class"},
)

// Live stream metrics
var (
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mtzview_stream_subscribers",
			Help: "Number of currently connected live viewers",
		},
	)

	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtzview_stream_deliveries_total",
			Help: "Live stream writes by kind (event, heartbeat, seed) and outcome",
		},
		[]string{"kind", "outcome"},
	)

	BroadcastLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mtzview_stream_broadcast_seconds",
			Help:    "Time to fan one event out to every subscriber",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Persistence metrics
var (
	PersistWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtzview_persist_writes_total",
			Help: "Durable writes by device class and outcome",
		},
		[]string{"class", "outcome"},
	)

	PersistQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mtzview_persist_queue_depth",
			Help: "Readings waiting for a persistence worker",
		},
	)

	HistorySwept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtzview_history_swept_total",
			Help: "History entries evicted by the retention sweeper",
		},
		[]string{"class"},
	)
)

func init() {
	prometheus.MustRegister(ReadingsAccepted, ReadingsRejected)
	prometheus.MustRegister(Subscribers, Deliveries, BroadcastLatency)
	prometheus.MustRegister(PersistWrites, PersistQueueDepth, HistorySwept)
}
