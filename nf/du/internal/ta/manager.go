// Package ta implements per-UE timing advance adaptation: N_TA difference
// measurements are windowed per timing advance group, filtered for SINR and
// statistical outliers, and converted into Timing Advance Command MAC CEs.
package ta

import (
	"math"

	"go.uber.org/zap"

	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/common/ran"
	"github.com/your-org/gnb/nf/du/internal/mac"
)

// outlier filter width in standard deviations.
const numStdDeviations = 2.0

// Config carries the timing advance adaptation parameters.
type Config struct {
	// MeasurementSlotPeriod is the measurement window length in slots.
	MeasurementSlotPeriod int
	// ULSINRThreshold is the SINR floor in dB below which measurements
	// are discarded as outliers.
	ULSINRThreshold float64
	// CmdOffsetThreshold: a new command is sent only when |T_A - 31|
	// exceeds this value. A negative value disables timing advance
	// adaptation.
	CmdOffsetThreshold int
}

type state uint8

const (
	stateIdle state = iota
	stateMeasuring
	stateDisabled
)

// Manager windows N_TA difference measurements per TAG and emits Timing
// Advance Command MAC CEs into the DL logical channel manager.
type Manager struct {
	cfg    Config
	ulSCS  ran.SubcarrierSpacing
	dlMgr  *mac.DLLogicalChannelManager
	logger *zap.Logger

	state        state
	measStart    ran.SlotPoint
	measurements [ran.MaxNofTAGs][]int64
}

// NewManager returns a manager; a negative command offset threshold
// permanently disables it.
func NewManager(cfg Config, ulSCS ran.SubcarrierSpacing, dlMgr *mac.DLLogicalChannelManager, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		ulSCS:  ulSCS,
		dlMgr:  dlMgr,
		logger: logger,
		state:  stateIdle,
	}
	if cfg.CmdOffsetThreshold < 0 {
		m.state = stateDisabled
	}
	return m
}

// HandleULNTAUpdateIndication admits one N_TA difference measurement (in
// Tc units) while measuring and the reported SINR clears the floor.
func (m *Manager) HandleULNTAUpdateIndication(tagID ran.TAGID, nTADiff int64, ulSINR float64) {
	if m.state == stateMeasuring && ulSINR > m.cfg.ULSINRThreshold {
		m.measurements[tagID] = append(m.measurements[tagID], nTADiff)
	}
}

// SlotIndication drives the measurement window. When the window closes,
// each TAG with samples may produce a Timing Advance Command CE; samples
// are cleared regardless.
func (m *Manager) SlotIndication(current ran.SlotPoint) {
	if m.state == stateDisabled {
		return
	}

	if m.state == stateIdle {
		m.measStart = current
		m.state = stateMeasuring
	}

	if current.Sub(m.measStart) < m.cfg.MeasurementSlotPeriod {
		return
	}

	for tagID := range m.measurements {
		if len(m.measurements[tagID]) == 0 {
			continue
		}

		newTA := m.computeNewTA(m.avgNTADifference(ran.TAGID(tagID)))
		if offset := int(newTA) - 31; offset > m.cfg.CmdOffsetThreshold || -offset > m.cfg.CmdOffsetThreshold {
			m.dlMgr.HandleMACCEIndication(mac.CE{
				LCID:    mac.LCIDTACommand,
				Payload: mac.TACommandPayload{TAGID: ran.TAGID(tagID), TACmd: newTA},
			})
			metrics.TACommandsSent.Inc()
			m.logger.Debug("timing advance command enqueued",
				zap.Int("tag_id", tagID),
				zap.Uint8("ta_cmd", newTA),
			)
		}

		m.measurements[tagID] = m.measurements[tagID][:0]
	}

	m.state = stateIdle
}

// avgNTADifference returns the mean of the TAG's measurements with
// samples beyond two standard deviations excluded from the sum. The sum
// is divided by the total sample count.
func (m *Manager) avgNTADifference(tagID ran.TAGID) int64 {
	meas := m.measurements[tagID]

	sum := 0.0
	for _, v := range meas {
		sum += float64(v)
	}
	mean := sum / float64(len(meas))

	sqSum := 0.0
	for _, v := range meas {
		d := float64(v) - mean
		sqSum += d * d
	}
	stdDev := math.Sqrt(sqSum / float64(len(meas)))

	var filtered int64
	for _, v := range meas {
		if math.Abs(float64(v)-mean) <= numStdDeviations*stdDev {
			filtered += v
		}
	}
	return filtered / int64(len(meas))
}

// computeNewTA converts an averaged N_TA difference into a Timing Advance
// Command value per TS 38.213, clause 4.2.
func (m *Manager) computeNewTA(nTADiff int64) uint8 {
	scaled := float64(nTADiff*int64(1<<m.ulSCS.Numerology())) / float64(16*64)
	return uint8(int(math.Round(scaled)) + 31)
}
