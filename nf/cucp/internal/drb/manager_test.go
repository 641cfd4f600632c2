package drb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/gnb/common/ngap"
	"github.com/your-org/gnb/common/ran"
)

func testConfig() Config {
	return Config{FiveQIConfig: map[ran.FiveQI]PDCPConfig{
		7: {SNSizeDL: 12, SNSizeUL: 12, DiscardTimerMs: 50, TReorderingMs: 40},
		9: {SNSizeDL: 18, SNSizeUL: 18, DiscardTimerMs: 100, TReorderingMs: 80},
	}}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewManager(testConfig(), logger)
}

func flow(qfi ran.QoSFlowID, fiveQI ran.FiveQI) ngap.QoSFlowSetupItem {
	q := fiveQI
	return ngap.QoSFlowSetupItem{QFI: qfi, Characteristics: ngap.QoSCharacteristics{NonDynamic5QI: &q}}
}

func session(id ran.PDUSessionID, flows ...ngap.QoSFlowSetupItem) ngap.PDUSessionResourceSetupItem {
	return ngap.PDUSessionResourceSetupItem{
		PDUSessionID: id,
		SNSSAI:       ran.SNSSAI{SST: 1},
		QoSFlows:     flows,
	}
}

func TestFirstDRBIsDefault(t *testing.T) {
	m := newTestManager(t)

	added, err := m.CalculateDRBsToAdd(session(1, flow(1, 9)))
	require.NoError(t, err)
	require.Equal(t, []ran.DRBID{1}, added)

	ctx, err := m.Get(1)
	require.NoError(t, err)
	assert.True(t, ctx.DefaultDRB)
	assert.Equal(t, ran.FiveQI(9), ctx.FiveQI)
	assert.Equal(t, testConfig().FiveQIConfig[9], ctx.PDCP)

	sdap, err := m.SDAPConfigOf(1)
	require.NoError(t, err)
	assert.Equal(t, ran.PDUSessionID(1), sdap.PDUSessionID)
	assert.True(t, sdap.DefaultDRB)
	assert.Equal(t, []ran.QoSFlowID{1}, sdap.MappedFlows)
}

func TestSame5QIMapsOntoExistingDRB(t *testing.T) {
	m := newTestManager(t)

	added, err := m.CalculateDRBsToAdd(session(1, flow(1, 9), flow(2, 9)))
	require.NoError(t, err)
	assert.Equal(t, []ran.DRBID{1}, added)

	flows, err := m.MappedFlowsOf(1)
	require.NoError(t, err)
	assert.Equal(t, []ran.QoSFlowID{1, 2}, flows)
}

func TestDistinct5QIAllocatesNewDRB(t *testing.T) {
	m := newTestManager(t)

	added, err := m.CalculateDRBsToAdd(session(1, flow(1, 9), flow(2, 7)))
	require.NoError(t, err)
	assert.Equal(t, []ran.DRBID{1, 2}, added)

	ctx, err := m.Get(2)
	require.NoError(t, err)
	assert.False(t, ctx.DefaultDRB)
	assert.Equal(t, ran.FiveQI(7), ctx.FiveQI)
}

func TestDynamic5QI(t *testing.T) {
	m := newTestManager(t)
	q := ran.FiveQI(9)
	dyn := ngap.QoSFlowSetupItem{
		QFI:             3,
		Characteristics: ngap.QoSCharacteristics{Dynamic5QI: &ngap.Dynamic5QI{PriorityLevel: 1, FiveQI: &q}},
	}

	added, err := m.CalculateDRBsToAdd(session(1, dyn))
	require.NoError(t, err)
	assert.Equal(t, []ran.DRBID{1}, added)
}

func TestInvalidQoSRejected(t *testing.T) {
	m := newTestManager(t)

	// Dynamic without 5QI.
	bad := ngap.QoSFlowSetupItem{
		QFI:             1,
		Characteristics: ngap.QoSCharacteristics{Dynamic5QI: &ngap.Dynamic5QI{PriorityLevel: 1}},
	}
	_, err := m.CalculateDRBsToAdd(session(1, bad))
	assert.ErrorIs(t, err, ErrInvalidQoS)

	// Neither descriptor.
	_, err = m.CalculateDRBsToAdd(session(1, ngap.QoSFlowSetupItem{QFI: 2}))
	assert.ErrorIs(t, err, ErrInvalidQoS)
}

func TestUnknownFiveQiRejected(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CalculateDRBsToAdd(session(1, flow(1, 83)))
	assert.ErrorIs(t, err, ErrUnknownFiveQi)
}

func TestDRBExhaustion(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cfg := Config{FiveQIConfig: map[ran.FiveQI]PDCPConfig{}}
	for q := ran.FiveQI(1); q <= ran.FiveQI(ran.MaxNofDRBs+1); q++ {
		cfg.FiveQIConfig[q] = PDCPConfig{SNSizeDL: 12, SNSizeUL: 12}
	}
	m := NewManager(cfg, logger)

	for q := ran.FiveQI(1); q <= ran.FiveQI(ran.MaxNofDRBs); q++ {
		_, err := m.CalculateDRBsToAdd(session(1, flow(ran.QoSFlowID(q), q)))
		require.NoError(t, err)
	}
	assert.Equal(t, ran.MaxNofDRBs, m.NofDRBs())

	_, err := m.CalculateDRBsToAdd(session(1, flow(40, ran.FiveQI(ran.MaxNofDRBs+1))))
	assert.ErrorIs(t, err, ErrDrbsFull)
}

func TestSessionQueriesAndRemoval(t *testing.T) {
	m := newTestManager(t)

	_, err := m.CalculateDRBsToAdd(session(1, flow(1, 9)))
	require.NoError(t, err)
	_, err = m.CalculateDRBsToAdd(session(2, flow(2, 7)))
	require.NoError(t, err)

	sess, err := m.PDUSessionOf(2)
	require.NoError(t, err)
	assert.Equal(t, ran.PDUSessionID(2), sess)

	assert.Equal(t, []ran.DRBID{1}, m.DRBsOf(1))
	assert.Equal(t, []ran.DRBID{2}, m.DRBsOf(2))

	removed := m.RemoveSession(1)
	assert.Equal(t, []ran.DRBID{1}, removed)
	_, err = m.Get(1)
	assert.ErrorIs(t, err, ErrNotFound)

	// The freed DRB id and 5QI are available again.
	added, err := m.CalculateDRBsToAdd(session(3, flow(5, 9)))
	require.NoError(t, err)
	assert.Equal(t, []ran.DRBID{1}, added)
}

func TestLowestFreeDRBIDAllocated(t *testing.T) {
	m := newTestManager(t)

	_, err := m.CalculateDRBsToAdd(session(1, flow(1, 9)))
	require.NoError(t, err)
	_, err = m.CalculateDRBsToAdd(session(1, flow(2, 7)))
	require.NoError(t, err)

	m.RemoveSession(1) // frees DRB 1 and 2
	_, err = m.CalculateDRBsToAdd(session(2, flow(3, 7)))
	require.NoError(t, err)
	ctx, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, ran.FiveQI(7), ctx.FiveQI)
}
