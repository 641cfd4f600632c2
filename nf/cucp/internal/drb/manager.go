// Package drb maps QoS flows of PDU sessions onto data radio bearers and
// derives the per-DRB PDCP and SDAP configuration.
package drb

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/common/ngap"
	"github.com/your-org/gnb/common/ran"
)

// Manager errors.
var (
	ErrInvalidQoS    = errors.New("drb: invalid QoS characteristics")
	ErrDrbsFull      = errors.New("drb: no DRB id available")
	ErrUnknownFiveQi = errors.New("drb: no configuration for 5QI")
	ErrNotFound      = errors.New("drb: unknown DRB id")
)

// PDCPConfig is the PDCP configuration derived per DRB.
type PDCPConfig struct {
	SNSizeDL       uint8
	SNSizeUL       uint8
	DiscardTimerMs uint16
	TReorderingMs  uint16
}

// SDAPConfig is the SDAP configuration derived per DRB. SDAP headers are
// absent in both directions.
type SDAPConfig struct {
	PDUSessionID ran.PDUSessionID
	DefaultDRB   bool
	MappedFlows  []ran.QoSFlowID
}

// Context is one DRB's bookkeeping.
type Context struct {
	DRBID        ran.DRBID
	PDUSessionID ran.PDUSessionID
	SNSSAI       ran.SNSSAI
	DefaultDRB   bool
	FiveQI       ran.FiveQI
	MappedFlows  []ran.QoSFlowID
	PDCP         PDCPConfig
	SDAP         SDAPConfig
}

// Config maps each admitted 5QI to its PDCP configuration. A 5QI missing
// from the map is rejected with ErrUnknownFiveQi.
type Config struct {
	FiveQIConfig map[ran.FiveQI]PDCPConfig
}

// Manager owns the DRB table of one UE.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	drbs    map[ran.DRBID]*Context
	fiveQIs map[ran.FiveQI]ran.DRBID
}

// NewManager returns an empty DRB table.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		drbs:    make(map[ran.DRBID]*Context),
		fiveQIs: make(map[ran.FiveQI]ran.DRBID),
	}
}

// fiveQIOf derives a flow's 5QI: from the non-dynamic descriptor when
// present, else from the dynamic descriptor's 5QI field.
func fiveQIOf(flow ngap.QoSFlowSetupItem) (ran.FiveQI, error) {
	switch {
	case flow.Characteristics.NonDynamic5QI != nil:
		return *flow.Characteristics.NonDynamic5QI, nil
	case flow.Characteristics.Dynamic5QI != nil && flow.Characteristics.Dynamic5QI.FiveQI != nil:
		return *flow.Characteristics.Dynamic5QI.FiveQI, nil
	default:
		return 0, fmt.Errorf("%w: flow %d has neither non-dynamic nor dynamic 5QI", ErrInvalidQoS, flow.QFI)
	}
}

// CalculateDRBsToAdd maps the session's QoS flows onto DRBs. A flow whose
// 5QI already has a DRB maps onto it; otherwise the lowest free DRB id is
// allocated and configured. The returned list holds newly added DRB ids.
func (m *Manager) CalculateDRBsToAdd(session ngap.PDUSessionResourceSetupItem) ([]ran.DRBID, error) {
	var added []ran.DRBID
	for _, flow := range session.QoSFlows {
		fiveQI, err := fiveQIOf(flow)
		if err != nil {
			return added, err
		}

		if drbID, ok := m.fiveQIs[fiveQI]; ok {
			// Same 5QI: map the flow onto the existing DRB.
			ctx := m.drbs[drbID]
			ctx.MappedFlows = append(ctx.MappedFlows, flow.QFI)
			ctx.SDAP.MappedFlows = append(ctx.SDAP.MappedFlows, flow.QFI)
			continue
		}

		pdcp, ok := m.cfg.FiveQIConfig[fiveQI]
		if !ok {
			return added, fmt.Errorf("%w: %d", ErrUnknownFiveQi, fiveQI)
		}

		drbID, ok := m.allocateDRBID()
		if !ok {
			return added, ErrDrbsFull
		}

		ctx := &Context{
			DRBID:        drbID,
			PDUSessionID: session.PDUSessionID,
			SNSSAI:       session.SNSSAI,
			DefaultDRB:   len(m.drbs) == 0,
			FiveQI:       fiveQI,
			MappedFlows:  []ran.QoSFlowID{flow.QFI},
			PDCP:         pdcp,
		}
		ctx.SDAP = SDAPConfig{
			PDUSessionID: session.PDUSessionID,
			DefaultDRB:   ctx.DefaultDRB,
			MappedFlows:  []ran.QoSFlowID{flow.QFI},
		}

		m.drbs[drbID] = ctx
		m.fiveQIs[fiveQI] = drbID
		added = append(added, drbID)

		metrics.ActiveDRBs.Inc()
		m.logger.Debug("DRB allocated",
			zap.Uint8("drb_id", uint8(drbID)),
			zap.Uint16("five_qi", uint16(fiveQI)),
			zap.Bool("default", ctx.DefaultDRB),
		)
	}
	return added, nil
}

// allocateDRBID returns the lowest free DRB id.
func (m *Manager) allocateDRBID() (ran.DRBID, bool) {
	if len(m.drbs) >= ran.MaxNofDRBs {
		return 0, false
	}
	for id := ran.DRBID(1); id <= ran.MaxNofDRBs; id++ {
		if _, ok := m.drbs[id]; !ok {
			return id, true
		}
	}
	return 0, false
}

// Get returns the DRB context.
func (m *Manager) Get(id ran.DRBID) (*Context, error) {
	ctx, ok := m.drbs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return ctx, nil
}

// PDCPConfigOf returns the DRB's PDCP configuration.
func (m *Manager) PDCPConfigOf(id ran.DRBID) (PDCPConfig, error) {
	ctx, err := m.Get(id)
	if err != nil {
		return PDCPConfig{}, err
	}
	return ctx.PDCP, nil
}

// SDAPConfigOf returns the DRB's SDAP configuration.
func (m *Manager) SDAPConfigOf(id ran.DRBID) (SDAPConfig, error) {
	ctx, err := m.Get(id)
	if err != nil {
		return SDAPConfig{}, err
	}
	return ctx.SDAP, nil
}

// MappedFlowsOf returns the QoS flows mapped onto the DRB.
func (m *Manager) MappedFlowsOf(id ran.DRBID) ([]ran.QoSFlowID, error) {
	ctx, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return ctx.MappedFlows, nil
}

// PDUSessionOf returns the DRB's owning PDU session.
func (m *Manager) PDUSessionOf(id ran.DRBID) (ran.PDUSessionID, error) {
	ctx, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	return ctx.PDUSessionID, nil
}

// SNSSAIOf returns the DRB's slice.
func (m *Manager) SNSSAIOf(id ran.DRBID) (ran.SNSSAI, error) {
	ctx, err := m.Get(id)
	if err != nil {
		return ran.SNSSAI{}, err
	}
	return ctx.SNSSAI, nil
}

// DRBsOf enumerates the DRBs belonging to a PDU session, in id order.
func (m *Manager) DRBsOf(session ran.PDUSessionID) []ran.DRBID {
	var out []ran.DRBID
	for id := ran.DRBID(1); id <= ran.MaxNofDRBs; id++ {
		if ctx, ok := m.drbs[id]; ok && ctx.PDUSessionID == session {
			out = append(out, id)
		}
	}
	return out
}

// RemoveSession releases every DRB of the session and returns their ids.
func (m *Manager) RemoveSession(session ran.PDUSessionID) []ran.DRBID {
	removed := m.DRBsOf(session)
	for _, id := range removed {
		ctx := m.drbs[id]
		delete(m.fiveQIs, ctx.FiveQI)
		delete(m.drbs, id)
		metrics.ActiveDRBs.Dec()
	}
	return removed
}

// NofDRBs returns the number of established DRBs.
func (m *Manager) NofDRBs() int {
	return len(m.drbs)
}
