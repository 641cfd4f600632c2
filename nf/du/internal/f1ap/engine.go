// Package f1ap implements the DU side of the F1 application protocol: the
// F1 Setup procedure with peer-directed retry, RRC message transfer in
// both directions, and UE context setup, modification and release handling.
package f1ap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/exec"
	"github.com/your-org/gnb/common/f1ap"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/common/ran"
	"github.com/your-org/gnb/nf/du/internal/manager"
)

// Engine errors.
var (
	ErrTransport = errors.New("f1ap-du: transport failure")
	ErrSetup     = errors.New("f1ap-du: setup failed")
)

// defaultMaxSetupRetries caps the F1 Setup retry loop.
const defaultMaxSetupRetries = 5

// transactionTimeout guards each F1 request.
const transactionTimeout = 5 * time.Second

// Sender transmits one packed PDU towards the CU.
type Sender interface {
	Send(*bytebuf.Buffer) error
}

// PeerFailure carries an explicit failure cause from the CU.
type PeerFailure struct {
	Cause f1ap.Cause
}

func (e *PeerFailure) Error() string {
	return fmt.Sprintf("f1ap-du: peer failure (group=%d, value=%d)", e.Cause.Group, e.Cause.Value)
}

// Config carries the engine parameters.
type Config struct {
	GNBDUID         uint64
	GNBDUName       string
	MaxSetupRetries int
}

// Engine is the DU-side F1AP protocol engine.
type Engine struct {
	cfg    Config
	du     *manager.DU
	sender Sender
	txs    *exec.Transactions
	logger *zap.Logger
}

// NewEngine builds the engine on the given transaction table.
func NewEngine(cfg Config, du *manager.DU, sender Sender, txs *exec.Transactions, logger *zap.Logger) *Engine {
	if cfg.MaxSetupRetries <= 0 {
		cfg.MaxSetupRetries = defaultMaxSetupRetries
	}
	return &Engine{
		cfg:    cfg,
		du:     du,
		sender: sender,
		txs:    txs,
		logger: logger,
	}
}

func (e *Engine) send(pdu f1ap.PDU) error {
	buf, err := f1ap.Pack(pdu)
	if err != nil {
		return err
	}
	if err := e.sender.Send(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	metrics.PDUsSent.WithLabelValues("f1").Inc()
	return nil
}

// peerDirectedBackOff waits exactly as long as the peer's last
// time-to-wait IE commanded.
type peerDirectedBackOff struct {
	wait time.Duration
}

func (b *peerDirectedBackOff) NextBackOff() time.Duration { return b.wait }
func (b *peerDirectedBackOff) Reset()                     {}

// RunF1Setup announces the DU's served cells and retries on failure with
// the CU-commanded time-to-wait until the retry cap is reached.
func (e *Engine) RunF1Setup(ctx context.Context) error {
	wait := &peerDirectedBackOff{}
	attempt := 0

	operation := func() error {
		attempt++
		outcome, err := e.setupAttempt(ctx)
		if err != nil {
			metrics.F1SetupAttempts.WithLabelValues("error").Inc()
			return backoff.Permanent(err)
		}
		switch m := outcome.(type) {
		case f1ap.F1SetupResponse:
			metrics.F1SetupAttempts.WithLabelValues("success").Inc()
			e.logger.Info("F1 Setup complete", zap.String("gnb_cu_name", m.GNBCUName))
			return nil
		case f1ap.F1SetupFailure:
			metrics.F1SetupAttempts.WithLabelValues("failure").Inc()
			if m.TimeToWaitSeconds == 0 {
				return backoff.Permanent(fmt.Errorf("%w: no time-to-wait from CU", ErrSetup))
			}
			if attempt > e.cfg.MaxSetupRetries {
				return backoff.Permanent(fmt.Errorf("%w: retries exhausted after %d attempts", ErrSetup, attempt))
			}
			wait.wait = time.Duration(m.TimeToWaitSeconds) * time.Second
			e.logger.Info("F1 Setup failed, retrying",
				zap.Uint16("time_to_wait_s", m.TimeToWaitSeconds),
				zap.Int("attempt", attempt),
			)
			return fmt.Errorf("%w: CU asked to retry", ErrSetup)
		default:
			return backoff.Permanent(fmt.Errorf("%w: unexpected outcome %T", ErrSetup, outcome))
		}
	}

	return backoff.Retry(operation, backoff.WithContext(wait, ctx))
}

func (e *Engine) setupAttempt(ctx context.Context) (f1ap.Message, error) {
	tx, err := e.txs.Begin(transactionTimeout)
	if err != nil {
		return nil, err
	}

	var cells []f1ap.ServedCell
	for _, c := range e.du.Cells() {
		cells = append(cells, f1ap.ServedCell{
			NRCGI: c.NRCGI,
			PCI:   c.PCI,
			TAC:   c.TAC,
			MIB:   c.MIB,
			SIB1:  c.SIB1,
		})
	}
	req := f1ap.F1SetupRequest{
		TransactionID: tx.ID,
		GNBDUID:       e.cfg.GNBDUID,
		GNBDUName:     e.cfg.GNBDUName,
		ServedCells:   cells,
	}
	if err := e.send(f1ap.PDU{Present: f1ap.PresentInitiatingMessage, Message: req}); err != nil {
		e.txs.Resolve(tx.ID, nil, err)
		tx.Await(ctx)
		return nil, err
	}

	out := tx.Await(ctx)
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Msg.(f1ap.Message), nil
}

// HandleMessage dispatches one inbound PDU. It runs on the packer's
// delivery goroutine, in receive order.
func (e *Engine) HandleMessage(pdu f1ap.PDU) {
	metrics.PDUsReceived.WithLabelValues("f1").Inc()
	switch m := pdu.Message.(type) {
	case f1ap.F1SetupResponse:
		if !e.txs.Resolve(m.TransactionID, m, nil) {
			e.logger.Warn("dropping F1SetupResponse for unknown transaction", zap.Uint8("transaction_id", m.TransactionID))
		}
	case f1ap.F1SetupFailure:
		if !e.txs.Resolve(m.TransactionID, m, nil) {
			e.logger.Warn("dropping F1SetupFailure for unknown transaction", zap.Uint8("transaction_id", m.TransactionID))
		}
	case f1ap.DLRRCMessageTransfer:
		e.handleDLRRC(m)
	case f1ap.UEContextSetupRequest:
		e.handleUEContextSetup(m)
	case f1ap.UEContextModificationRequest:
		e.handleUEContextModification(m)
	case f1ap.UEContextReleaseCommand:
		e.handleUEContextRelease(m)
	case f1ap.F1RemovalResponse:
		if !e.txs.Resolve(m.TransactionID, m, nil) {
			e.logger.Warn("dropping F1RemovalResponse for unknown transaction", zap.Uint8("transaction_id", m.TransactionID))
		}
	default:
		e.logger.Warn("dropping unsupported F1AP message", zap.String("type", fmt.Sprintf("%T", pdu.Message)))
	}
}

// OnConnectionLoss fails all pending transactions so awaiting procedures
// finish deterministically.
func (e *Engine) OnConnectionLoss() {
	metrics.SetAssociationUp("f1", false)
	e.txs.FailAll(ErrTransport)
}

// SendInitialULRRC forwards the first UL-CCCH PDU of a UE to the CU,
// together with the DU-to-CU container.
func (e *Engine) SendInitialULRRC(ue *manager.UE, cgi ran.NRCGI, rrcContainer, duToCU []byte) error {
	return e.send(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.InitialULRRCMessageTransfer{
			GNBDUUEF1APID:   ue.F1APID,
			NRCGI:           cgi,
			CRNTI:           ue.CRNTI,
			RRCContainer:    rrcContainer,
			DUtoCUContainer: duToCU,
		},
	})
}

// SendULRRC forwards an UL RRC PDU on the given SRB.
func (e *Engine) SendULRRC(ue *manager.UE, srb ran.SRBID, container []byte) error {
	return e.send(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.ULRRCMessageTransfer{
			GNBCUUEF1APID: ue.CUF1APID,
			GNBDUUEF1APID: ue.F1APID,
			SRBID:         srb,
			RRCContainer:  container,
		},
	})
}

// handleDLRRC routes a DL RRC container to the UE: the CU's F1AP id is
// learned on first use and the SRB's DL buffer state is updated so the
// scheduler picks the PDU up.
func (e *Engine) handleDLRRC(m f1ap.DLRRCMessageTransfer) {
	ue, err := e.du.FindUEByF1APID(m.GNBDUUEF1APID)
	if err != nil {
		e.logger.Warn("DL RRC for unknown UE",
			zap.Uint32("gnb_du_ue_f1ap_id", uint32(m.GNBDUUEF1APID)),
		)
		e.sendErrorIndication(m.GNBCUUEF1APID, m.GNBDUUEF1APID, f1ap.CauseRadioNetworkUnknownUEID)
		return
	}
	task := func() {
		if ue.CUF1APID == 0 {
			ue.CUF1APID = m.GNBCUUEF1APID
		}
		lcid := ran.LCID(m.SRBID)
		ue.DL.SetStatus(lcid, true)
		ue.DL.HandleDLBufferStatusIndication(lcid, len(m.RRCContainer))
	}
	if err := ue.Queue.Post(task); err != nil {
		e.logger.Warn("UE queue rejected DL RRC task", zap.Error(err))
	}
}

func (e *Engine) handleUEContextSetup(m f1ap.UEContextSetupRequest) {
	ue, err := e.du.FindUEByF1APID(m.GNBDUUEF1APID)
	if err != nil {
		e.logger.Warn("UE Context Setup for unknown UE",
			zap.Uint32("gnb_du_ue_f1ap_id", uint32(m.GNBDUUEF1APID)),
		)
		_ = e.send(f1ap.PDU{
			Present: f1ap.PresentUnsuccessfulOutcome,
			Message: f1ap.UEContextSetupFailure{
				GNBCUUEF1APID: m.GNBCUUEF1APID,
				GNBDUUEF1APID: m.GNBDUUEF1APID,
				Cause:         f1ap.Cause{Group: f1ap.CauseGroupRadioNetwork, Value: f1ap.CauseRadioNetworkUnknownUEID},
			},
		})
		return
	}

	task := func() {
		if ue.CUF1APID == 0 {
			ue.CUF1APID = m.GNBCUUEF1APID
		}
		resp := e.applyBearers(ue, m.SRBs, m.DRBs, nil)
		resp.GNBCUUEF1APID = m.GNBCUUEF1APID
		resp.GNBDUUEF1APID = ue.F1APID
		if err := e.send(f1ap.PDU{Present: f1ap.PresentSuccessfulOutcome, Message: resp}); err != nil {
			e.logger.Error("failed to send UE Context Setup Response", zap.Error(err))
		}
	}
	if err := ue.Queue.Post(task); err != nil {
		e.logger.Warn("UE queue rejected context setup", zap.Error(err))
	}
}

func (e *Engine) handleUEContextModification(m f1ap.UEContextModificationRequest) {
	ue, err := e.du.FindUEByF1APID(m.GNBDUUEF1APID)
	if err != nil {
		_ = e.send(f1ap.PDU{
			Present: f1ap.PresentUnsuccessfulOutcome,
			Message: f1ap.UEContextModificationFailure{
				GNBCUUEF1APID: m.GNBCUUEF1APID,
				GNBDUUEF1APID: m.GNBDUUEF1APID,
				Cause:         f1ap.Cause{Group: f1ap.CauseGroupRadioNetwork, Value: f1ap.CauseRadioNetworkUnknownUEID},
			},
		})
		return
	}
	task := func() {
		setup := e.applyBearers(ue, m.SRBs, m.DRBs, m.DRBsToRelease)
		resp := f1ap.UEContextModificationResponse{
			GNBCUUEF1APID: m.GNBCUUEF1APID,
			GNBDUUEF1APID: ue.F1APID,
			DRBsSetup:     setup.DRBsSetup,
			DRBsFailed:    setup.DRBsFailed,
		}
		if err := e.send(f1ap.PDU{Present: f1ap.PresentSuccessfulOutcome, Message: resp}); err != nil {
			e.logger.Error("failed to send UE Context Modification Response", zap.Error(err))
		}
	}
	if err := ue.Queue.Post(task); err != nil {
		e.logger.Warn("UE queue rejected context modification", zap.Error(err))
	}
}

// applyBearers installs SRBs and DRBs into the UE's MAC state. DRB LCIDs
// follow the convention LCID = 3 + DRB-ID.
func (e *Engine) applyBearers(ue *manager.UE, srbs []f1ap.SRBToSetup, drbs []f1ap.DRBToSetup, release []ran.DRBID) f1ap.UEContextSetupResponse {
	var resp f1ap.UEContextSetupResponse
	for _, s := range srbs {
		ue.SRBs[s.SRBID] = struct{}{}
		ue.DL.SetStatus(ran.LCID(s.SRBID), true)
		resp.SRBsSetup = append(resp.SRBsSetup, s.SRBID)
	}
	for _, d := range drbs {
		if !d.DRBID.Valid() {
			resp.DRBsFailed = append(resp.DRBsFailed, d.DRBID)
			continue
		}
		ue.DRBs[d.DRBID] = d.FiveQI
		ue.DL.SetStatus(drbLCID(d.DRBID), true)
		resp.DRBsSetup = append(resp.DRBsSetup, d.DRBID)
	}
	for _, id := range release {
		delete(ue.DRBs, id)
		ue.DL.SetStatus(drbLCID(id), false)
	}
	return resp
}

func drbLCID(id ran.DRBID) ran.LCID {
	return ran.LCID(3 + id)
}

func (e *Engine) handleUEContextRelease(m f1ap.UEContextReleaseCommand) {
	ue, err := e.du.FindUEByF1APID(m.GNBDUUEF1APID)
	if err == nil {
		err = e.du.RemoveUE(ue.Index)
	}
	if err != nil {
		e.logger.Warn("UE Context Release for unknown UE",
			zap.Uint32("gnb_du_ue_f1ap_id", uint32(m.GNBDUUEF1APID)),
			zap.Error(err),
		)
	}
	_ = e.send(f1ap.PDU{
		Present: f1ap.PresentSuccessfulOutcome,
		Message: f1ap.UEContextReleaseComplete{
			GNBCUUEF1APID: m.GNBCUUEF1APID,
			GNBDUUEF1APID: m.GNBDUUEF1APID,
		},
	})
}

func (e *Engine) sendErrorIndication(cu ids.GNBCUUEF1APID, du ids.GNBDUUEF1APID, cause uint8) {
	_ = e.send(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.ErrorIndication{
			GNBCUUEF1APID: cu,
			GNBDUUEF1APID: du,
			Cause:         f1ap.Cause{Group: f1ap.CauseGroupRadioNetwork, Value: cause},
		},
	})
}
