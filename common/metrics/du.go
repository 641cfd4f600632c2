package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DU-specific metrics
var (
	// UE lifecycle
	ActiveUEs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "du_active_ues",
			Help: "Number of UEs currently active at the DU",
		},
	)

	UECreationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "du_ue_creation_failures_total",
			Help: "UE creation failures, by reason",
		},
		[]string{"reason"},
	)

	// F1 interface
	F1SetupAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "du_f1_setup_attempts_total",
			Help: "F1 Setup attempts towards the CU, by result",
		},
		[]string{"result"},
	)

	// MAC scheduling
	TACommandsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "du_ta_commands_sent_total",
			Help: "Timing Advance command MAC CEs enqueued for transmission",
		},
	)

	AllocatedTBBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "du_allocated_tb_bytes",
			Help:    "Bytes allocated per transport block",
			Buckets: prometheus.ExponentialBuckets(32, 2, 12),
		},
	)
)
