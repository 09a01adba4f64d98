package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjpg_frames_dispatched_total",
		Help: "Frames handed to the Sink Dispatcher by the Capture Loop.",
	})

	clientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mjpg_clients_connected",
		Help: "Streaming clients currently registered in the Client Registry.",
	})

	snapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mjpg_snapshot_duration_seconds",
		Help:    "Wall-clock time spent servicing a /full_res request.",
		Buckets: prometheus.DefBuckets,
	})

	snapshotOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mjpg_snapshot_outcomes_total",
		Help: "Outcomes of snapshots taken by the Capture Loop, by outcome (ok or error).",
	}, []string{"outcome"})
)
