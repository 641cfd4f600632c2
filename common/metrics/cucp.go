package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CU-CP-specific metrics
var (
	// UE lifecycle
	ConnectedUEs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cucp_connected_ues",
			Help: "Number of UEs currently attached to the CU-CP",
		},
	)

	UEAdmissionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cucp_ue_admission_failures_total",
			Help: "UEs rejected at admission, by reason",
		},
		[]string{"reason"},
	)

	// NG interface
	NGSetupAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cucp_ng_setup_attempts_total",
			Help: "NG Setup attempts towards the AMF, by result",
		},
		[]string{"result"},
	)

	// PDU sessions
	PDUSessionSetups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cucp_pdu_session_setups_total",
			Help: "PDU session resource setup outcomes, by result",
		},
		[]string{"result"},
	)

	ActiveDRBs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cucp_active_drbs",
			Help: "Number of DRBs currently established across all UEs",
		},
	)

	// RRC procedures
	RRCProcedures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cucp_rrc_procedures_total",
			Help: "RRC procedure outcomes, by procedure and result",
		},
		[]string{"procedure", "result"},
	)
)
