package f1ap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/exec"
	"github.com/your-org/gnb/common/f1ap"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/ran"
)

var testCGI = ran.NRCGI{PLMN: ran.PLMN{MCC: "001", MNC: "01"}, CellID: 0x19b0}

type fakeSender struct {
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

type fakeProcessor struct {
	setupErr      error
	initialErr    error
	initialULRRCs chan f1ap.InitialULRRCMessageTransfer
	ulRRCs        chan f1ap.ULRRCMessageTransfer
	removed       chan struct{}
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		initialULRRCs: make(chan f1ap.InitialULRRCMessageTransfer, 8),
		ulRRCs:        make(chan f1ap.ULRRCMessageTransfer, 8),
		removed:       make(chan struct{}, 1),
	}
}

func (f *fakeProcessor) HandleF1Setup(req f1ap.F1SetupRequest) error { return f.setupErr }

func (f *fakeProcessor) HandleInitialULRRC(msg f1ap.InitialULRRCMessageTransfer) error {
	if f.initialErr != nil {
		return f.initialErr
	}
	f.initialULRRCs <- msg
	return nil
}

func (f *fakeProcessor) HandleULRRC(msg f1ap.ULRRCMessageTransfer) { f.ulRRCs <- msg }
func (f *fakeProcessor) HandleF1Removal()                         { f.removed <- struct{}{} }

func newTestEngine(t *testing.T) (*Engine, *fakeSender, *fakeProcessor) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	sender := newFakeSender()
	proc := newFakeProcessor()
	txs := exec.NewTransactions(exec.NewTimers())
	engine := NewEngine(Config{GNBCUName: "gnb-cucp-0"}, sender, txs, proc, logger)
	return engine, sender, proc
}

func f1SetupRequest() f1ap.F1SetupRequest {
	return f1ap.F1SetupRequest{
		TransactionID: 1,
		GNBDUID:       0x11,
		GNBDUName:     "gnb-du-0",
		ServedCells:   []f1ap.ServedCell{{NRCGI: testCGI, PCI: 1, TAC: 7, MIB: []byte{1}, SIB1: []byte{2}}},
	}
}

func TestF1Setup_Accepted(t *testing.T) {
	engine, sender, _ := newTestEngine(t)

	engine.HandleMessage(f1ap.PDU{Present: f1ap.PresentInitiatingMessage, Message: f1SetupRequest()})

	pdu := sender.wait(t)
	resp, ok := pdu.Message.(f1ap.F1SetupResponse)
	require.True(t, ok)
	assert.Equal(t, uint8(1), resp.TransactionID)
	assert.Equal(t, "gnb-cucp-0", resp.GNBCUName)
	assert.Equal(t, []ran.NRCGI{testCGI}, resp.CellsToActivate)
}

func TestF1Setup_Rejected(t *testing.T) {
	engine, sender, proc := newTestEngine(t)
	proc.setupErr = assert.AnError

	engine.HandleMessage(f1ap.PDU{Present: f1ap.PresentInitiatingMessage, Message: f1SetupRequest()})

	pdu := sender.wait(t)
	fail, ok := pdu.Message.(f1ap.F1SetupFailure)
	require.True(t, ok)
	assert.Equal(t, uint8(1), fail.TransactionID)
}

func TestInitialULRRC_RejectionTriggersRelease(t *testing.T) {
	engine, sender, proc := newTestEngine(t)
	proc.initialErr = ids.ErrNoUESlots

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.InitialULRRCMessageTransfer{
			GNBDUUEF1APID: 41255,
			NRCGI:         testCGI,
			CRNTI:         0x4601,
			RRCContainer:  []byte{1},
		},
	})

	pdu := sender.wait(t)
	cmd, ok := pdu.Message.(f1ap.UEContextReleaseCommand)
	require.True(t, ok)
	assert.EqualValues(t, 41255, cmd.GNBDUUEF1APID)
	assert.EqualValues(t, f1ap.CauseRadioNetworkNoRadioResources, cmd.Cause.Value)
}

func TestULRRC_RoutedToProcessor(t *testing.T) {
	engine, _, proc := newTestEngine(t)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.ULRRCMessageTransfer{GNBCUUEF1APID: 0, GNBDUUEF1APID: 41255, SRBID: ran.SRB1, RRCContainer: []byte{1}},
	})
	msg := <-proc.ulRRCs
	assert.Equal(t, ran.SRB1, msg.SRBID)
}

func TestUEContextModification_RoundTrip(t *testing.T) {
	engine, sender, _ := newTestEngine(t)

	done := make(chan error, 1)
	go func() {
		resp, err := engine.RunUEContextModification(context.Background(), f1ap.UEContextModificationRequest{
			GNBCUUEF1APID: 0,
			GNBDUUEF1APID: 41255,
			DRBs:          []f1ap.DRBToSetup{{DRBID: 1, FiveQI: 9, PDCP: f1ap.PDCPConfig{SNSizeDL: 18, SNSizeUL: 18}}},
		})
		if err == nil && len(resp.DRBsSetup) != 1 {
			err = assert.AnError
		}
		done <- err
	}()

	pdu := sender.wait(t)
	req, ok := pdu.Message.(f1ap.UEContextModificationRequest)
	require.True(t, ok)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentSuccessfulOutcome,
		Message: f1ap.UEContextModificationResponse{
			GNBCUUEF1APID: req.GNBCUUEF1APID,
			GNBDUUEF1APID: req.GNBDUUEF1APID,
			DRBsSetup:     []ran.DRBID{1},
		},
	})
	require.NoError(t, <-done)
}

func TestUEContextModification_PeerFailure(t *testing.T) {
	engine, sender, _ := newTestEngine(t)

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunUEContextModification(context.Background(), f1ap.UEContextModificationRequest{
			GNBCUUEF1APID: 3,
			GNBDUUEF1APID: 4,
		})
		done <- err
	}()
	sender.wait(t)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentUnsuccessfulOutcome,
		Message: f1ap.UEContextModificationFailure{
			GNBCUUEF1APID: 3,
			GNBDUUEF1APID: 4,
			Cause:         f1ap.Cause{Group: f1ap.CauseGroupRadioNetwork, Value: f1ap.CauseRadioNetworkUnspecified},
		},
	})
	assert.ErrorIs(t, <-done, ErrPeerFailure)
}

func TestUEContextRelease_TwoStep(t *testing.T) {
	engine, sender, _ := newTestEngine(t)

	done := make(chan error, 1)
	go func() {
		done <- engine.RunUEContextRelease(context.Background(), 0, 41255, f1ap.Cause{
			Group: f1ap.CauseGroupRadioNetwork,
			Value: f1ap.CauseRadioNetworkReleaseRequested,
		})
	}()

	pdu := sender.wait(t)
	cmd, ok := pdu.Message.(f1ap.UEContextReleaseCommand)
	require.True(t, ok)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentSuccessfulOutcome,
		Message: f1ap.UEContextReleaseComplete{
			GNBCUUEF1APID: cmd.GNBCUUEF1APID,
			GNBDUUEF1APID: cmd.GNBDUUEF1APID,
		},
	})
	require.NoError(t, <-done)
}

func TestConnectionLossFailsPendingProcedure(t *testing.T) {
	engine, sender, _ := newTestEngine(t)

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunUEContextSetup(context.Background(), f1ap.UEContextSetupRequest{
			GNBCUUEF1APID: 0,
			GNBDUUEF1APID: 41255,
			SpCellNRCGI:   testCGI,
		})
		done <- err
	}()
	sender.wait(t)

	engine.OnConnectionLoss()
	assert.ErrorIs(t, <-done, ErrTransport)
}

func TestF1Removal_Confirmed(t *testing.T) {
	engine, sender, proc := newTestEngine(t)

	engine.HandleMessage(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.F1RemovalRequest{TransactionID: 9},
	})
	<-proc.removed

	pdu := sender.wait(t)
	resp, ok := pdu.Message.(f1ap.F1RemovalResponse)
	require.True(t, ok)
	assert.Equal(t, uint8(9), resp.TransactionID)
}
