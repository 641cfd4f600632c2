package f1ap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/exec"
	"github.com/your-org/gnb/common/f1ap"
	"github.com/your-org/gnb/common/ran"
	"github.com/your-org/gnb/nf/du/internal/manager"
	"github.com/your-org/gnb/nf/du/internal/ta"
)

var testCGI = ran.NRCGI{PLMN: ran.PLMN{MCC: "001", MNC: "01"}, CellID: 0x19b0}

// fakeSender records every packed PDU and exposes it decoded.
type fakeSender struct {
	mu   sync.Mutex
	pdus []f1ap.PDU
	sent chan f1ap.PDU
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan f1ap.PDU, 16)}
}

func (s *fakeSender) Send(buf *bytebuf.Buffer) error {
	pdu, err := f1ap.Unpack(buf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pdus = append(s.pdus, pdu)
	s.mu.Unlock()
	s.sent <- pdu
	return nil
}

func (s *fakeSender) wait(t *testing.T) f1ap.PDU {
	t.Helper()
	select {
	case pdu := <-s.sent:
		return pdu
	case <-time.After(5 * time.Second):
		t.Fatal("no PDU sent")
		return f1ap.PDU{}
	}
}

func newTestEngine(t *testing.T, maxRetries int) (*Engine, *fakeSender, *manager.DU) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	du := manager.New(manager.Config{MaxUEs: 8, TA: ta.Config{MeasurementSlotPeriod: 10}}, logger)
	_, err := du.AddCell(manager.Cell{NRCGI: testCGI, PCI: 1, TAC: 7, MIB: []byte{1}, SIB1: []byte{2}})
	require.NoError(t, err)

	sender := newFakeSender()
	txs := exec.NewTransactions(exec.NewTimers())
	engine := NewEngine(Config{GNBDUID: 0x11, GNBDUName: "gnb-du-0", MaxSetupRetries: maxRetries}, du, sender, txs, logger)
	return engine, sender, du
}

func TestF1Setup_HappyPath(t *testing.T) {
	engine, sender, _ := newTestEngine(t, 5)

	done := make(chan error, 1)
	go func() { done <- engine.RunF1Setup(context.Background()) }()

	pdu := sender.wait(t)
	req, ok := pdu.Message.(f1ap.F1SetupRequest)
	require.True(t, ok)
	assert.Equal(t, "gnb-du-0", req.GNBDUName)
	require.Len(t, req.ServedCells, 1)
	assert.Equal(t, testCGI, req.ServedCells[0].NRCGI)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentSuccessfulOutcome,
		Message: f1ap.F1SetupResponse{TransactionID: req.TransactionID, GNBCUName: "gnb-cucp-0"},
	})
	require.NoError(t, <-done)
}

func TestF1Setup_RetryWithNewTransaction(t *testing.T) {
	engine, sender, _ := newTestEngine(t, 5)

	done := make(chan error, 1)
	go func() { done <- engine.RunF1Setup(context.Background()) }()

	first, _ := sender.wait(t).Message.(f1ap.F1SetupRequest)
	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentUnsuccessfulOutcome,
		Message: f1ap.F1SetupFailure{
			TransactionID:     first.TransactionID,
			Cause:             f1ap.Cause{Group: f1ap.CauseGroupMisc},
			TimeToWaitSeconds: 1,
		},
	})

	second, _ := sender.wait(t).Message.(f1ap.F1SetupRequest)
	assert.NotEqual(t, first.TransactionID, second.TransactionID)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentSuccessfulOutcome,
		Message: f1ap.F1SetupResponse{TransactionID: second.TransactionID, GNBCUName: "gnb-cucp-0"},
	})
	require.NoError(t, <-done)
}

func TestF1Setup_RetriesExhausted(t *testing.T) {
	engine, sender, _ := newTestEngine(t, 1)

	done := make(chan error, 1)
	go func() { done <- engine.RunF1Setup(context.Background()) }()

	for i := 0; i < 2; i++ {
		req, _ := sender.wait(t).Message.(f1ap.F1SetupRequest)
		engine.HandleMessage(f1ap.PDU{
			Present: f1ap.PresentUnsuccessfulOutcome,
			Message: f1ap.F1SetupFailure{
				TransactionID:     req.TransactionID,
				Cause:             f1ap.Cause{Group: f1ap.CauseGroupMisc},
				TimeToWaitSeconds: 1,
			},
		})
	}
	assert.ErrorIs(t, <-done, ErrSetup)
}

func TestF1Setup_NoTimeToWaitFailsPermanently(t *testing.T) {
	engine, sender, _ := newTestEngine(t, 5)

	done := make(chan error, 1)
	go func() { done <- engine.RunF1Setup(context.Background()) }()

	req, _ := sender.wait(t).Message.(f1ap.F1SetupRequest)
	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentUnsuccessfulOutcome,
		Message: f1ap.F1SetupFailure{
			TransactionID: req.TransactionID,
			Cause:         f1ap.Cause{Group: f1ap.CauseGroupMisc},
		},
	})
	assert.ErrorIs(t, <-done, ErrSetup)
}

func TestDLRRC_LearnsCUIDAndFillsBuffer(t *testing.T) {
	engine, _, du := newTestEngine(t, 5)
	ue, err := du.CreateUE(0, 0x4601)
	require.NoError(t, err)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.DLRRCMessageTransfer{
			GNBCUUEF1APID: 7,
			GNBDUUEF1APID: ue.F1APID,
			SRBID:         ran.SRB0,
			RRCContainer:  []byte{1, 2, 3, 4},
		},
	})

	synced := make(chan struct{})
	require.NoError(t, ue.Queue.Post(func() { close(synced) }))
	<-synced

	assert.EqualValues(t, 7, ue.CUF1APID)
	assert.True(t, ue.DL.HasPendingBytesFor(ran.LCID(ran.SRB0)))
}

func TestDLRRC_UnknownUEEmitsErrorIndication(t *testing.T) {
	engine, sender, _ := newTestEngine(t, 5)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.DLRRCMessageTransfer{
			GNBCUUEF1APID: 7,
			GNBDUUEF1APID: 999,
			SRBID:         ran.SRB0,
			RRCContainer:  []byte{1},
		},
	})

	pdu := sender.wait(t)
	ind, ok := pdu.Message.(f1ap.ErrorIndication)
	require.True(t, ok)
	assert.EqualValues(t, f1ap.CauseRadioNetworkUnknownUEID, ind.Cause.Value)
}

func TestUEContextSetup_AppliesBearers(t *testing.T) {
	engine, sender, du := newTestEngine(t, 5)
	ue, err := du.CreateUE(0, 0x4601)
	require.NoError(t, err)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.UEContextSetupRequest{
			GNBCUUEF1APID: 3,
			GNBDUUEF1APID: ue.F1APID,
			SpCellNRCGI:   testCGI,
			SRBs:          []f1ap.SRBToSetup{{SRBID: ran.SRB2}},
			DRBs:          []f1ap.DRBToSetup{{DRBID: 1, FiveQI: 9, RLCMode: f1ap.RLCModeAM}},
		},
	})

	pdu := sender.wait(t)
	resp, ok := pdu.Message.(f1ap.UEContextSetupResponse)
	require.True(t, ok)
	assert.Equal(t, []ran.SRBID{ran.SRB2}, resp.SRBsSetup)
	assert.Equal(t, []ran.DRBID{1}, resp.DRBsSetup)

	assert.Contains(t, ue.DRBs, ran.DRBID(1))
	assert.True(t, ue.DL.IsActive(drbLCID(1)))
}

func TestUEContextRelease_RemovesUEAndCompletes(t *testing.T) {
	engine, sender, du := newTestEngine(t, 5)
	ue, err := du.CreateUE(0, 0x4601)
	require.NoError(t, err)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.UEContextReleaseCommand{
			GNBCUUEF1APID: 3,
			GNBDUUEF1APID: ue.F1APID,
			Cause:         f1ap.Cause{Group: f1ap.CauseGroupRadioNetwork, Value: f1ap.CauseRadioNetworkReleaseRequested},
		},
	})

	pdu := sender.wait(t)
	_, ok := pdu.Message.(f1ap.UEContextReleaseComplete)
	require.True(t, ok)
	assert.Equal(t, 0, du.NofUEs())
}
