// Package f1ap implements the CU side of the F1 application protocol:
// F1 Setup acceptance, RRC message routing and the UE context setup,
// modification and release procedures towards the DU.
package f1ap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/exec"
	"github.com/your-org/gnb/common/f1ap"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/common/ran"
)

// Engine errors.
var (
	ErrTransport   = errors.New("f1ap-cu: transport failure")
	ErrPeerFailure = errors.New("f1ap-cu: peer failure")
	ErrInFlight    = errors.New("f1ap-cu: UE procedure already in flight")
)

// transactionTimeout guards each CU-initiated F1 request.
const transactionTimeout = 5 * time.Second

// Sender transmits one packed PDU towards the DU.
type Sender interface {
	Send(*bytebuf.Buffer) error
}

// Processor receives DU-initiated events. Implemented by the CU-CP's DU
// processor.
type Processor interface {
	// HandleF1Setup validates and records the DU; a non-nil error turns
	// into an F1SetupFailure with the given cause.
	HandleF1Setup(req f1ap.F1SetupRequest) error
	// HandleInitialULRRC admits the UE and routes the UL-CCCH PDU.
	HandleInitialULRRC(msg f1ap.InitialULRRCMessageTransfer) error
	// HandleULRRC routes an UL RRC container to the UE's SRB.
	HandleULRRC(msg f1ap.ULRRCMessageTransfer)
	// HandleF1Removal tears the DU down.
	HandleF1Removal()
}

// Config carries the engine parameters.
type Config struct {
	GNBCUName string
}

// Engine is the CU-side F1AP protocol engine for one DU association.
type Engine struct {
	cfg       Config
	sender    Sender
	txs       *exec.Transactions
	processor Processor
	logger    *zap.Logger

	// mu guards the pending UE-procedure map; lookups originate on
	// different executors.
	mu      sync.Mutex
	pending map[ids.GNBCUUEF1APID]*exec.Transaction
}

// NewEngine builds the engine on the given transaction table.
func NewEngine(cfg Config, sender Sender, txs *exec.Transactions, processor Processor, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		sender:    sender,
		txs:       txs,
		processor: processor,
		logger:    logger,
		pending:   make(map[ids.GNBCUUEF1APID]*exec.Transaction),
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

// OnConnectionLoss fails every pending UE procedure.
func (e *Engine) OnConnectionLoss() {
	metrics.SetAssociationUp("f1", false)
	e.mu.Lock()
	e.pending = make(map[ids.GNBCUUEF1APID]*exec.Transaction)
	e.mu.Unlock()
	e.txs.FailAll(ErrTransport)
}

// HandleMessage dispatches one inbound PDU in receive order.
func (e *Engine) HandleMessage(pdu f1ap.PDU) {
	metrics.PDUsReceived.WithLabelValues("f1").Inc()
	switch m := pdu.Message.(type) {
	case f1ap.F1SetupRequest:
		e.handleF1Setup(m)
	case f1ap.InitialULRRCMessageTransfer:
		if err := e.processor.HandleInitialULRRC(m); err != nil {
			e.logger.Warn("Initial UL RRC rejected", zap.Error(err))
			// No UE slot: release the radio context immediately.
			_ = e.send(f1ap.PDU{
				Present: f1ap.PresentInitiatingMessage,
				Message: f1ap.UEContextReleaseCommand{
					GNBDUUEF1APID: m.GNBDUUEF1APID,
					Cause:         f1ap.Cause{Group: f1ap.CauseGroupRadioNetwork, Value: f1ap.CauseRadioNetworkNoRadioResources},
				},
			})
		}
	case f1ap.ULRRCMessageTransfer:
		e.processor.HandleULRRC(m)
	case f1ap.UEContextSetupResponse:
		e.resolveUE(m.GNBCUUEF1APID, m, nil)
	case f1ap.UEContextSetupFailure:
		e.resolveUE(m.GNBCUUEF1APID, nil, fmt.Errorf("%w: group=%d value=%d", ErrPeerFailure, m.Cause.Group, m.Cause.Value))
	case f1ap.UEContextModificationResponse:
		e.resolveUE(m.GNBCUUEF1APID, m, nil)
	case f1ap.UEContextModificationFailure:
		e.resolveUE(m.GNBCUUEF1APID, nil, fmt.Errorf("%w: group=%d value=%d", ErrPeerFailure, m.Cause.Group, m.Cause.Value))
	case f1ap.UEContextReleaseComplete:
		e.resolveUE(m.GNBCUUEF1APID, m, nil)
	case f1ap.F1RemovalRequest:
		e.logger.Info("F1 Removal requested by DU")
		e.processor.HandleF1Removal()
		_ = e.send(f1ap.PDU{
			Present: f1ap.PresentSuccessfulOutcome,
			Message: f1ap.F1RemovalResponse{TransactionID: m.TransactionID},
		})
	case f1ap.ErrorIndication:
		e.logger.Warn("received F1AP Error Indication",
			zap.Uint32("gnb_cu_ue_f1ap_id", uint32(m.GNBCUUEF1APID)),
			zap.Uint8("cause_group", uint8(m.Cause.Group)),
			zap.Uint8("cause", m.Cause.Value),
		)
	default:
		e.logger.Warn("dropping unsupported F1AP message", zap.String("type", fmt.Sprintf("%T", pdu.Message)))
	}
}

func (e *Engine) handleF1Setup(m f1ap.F1SetupRequest) {
	if err := e.processor.HandleF1Setup(m); err != nil {
		e.logger.Warn("F1 Setup rejected", zap.Error(err))
		_ = e.send(f1ap.PDU{
			Present: f1ap.PresentUnsuccessfulOutcome,
			Message: f1ap.F1SetupFailure{
				TransactionID: m.TransactionID,
				Cause:         f1ap.Cause{Group: f1ap.CauseGroupRadioNetwork, Value: f1ap.CauseRadioNetworkUnspecified},
			},
		})
		return
	}
	var cells []ran.NRCGI
	for _, c := range m.ServedCells {
		cells = append(cells, c.NRCGI)
	}
	_ = e.send(f1ap.PDU{
		Present: f1ap.PresentSuccessfulOutcome,
		Message: f1ap.F1SetupResponse{
			TransactionID:   m.TransactionID,
			GNBCUName:       e.cfg.GNBCUName,
			CellsToActivate: cells,
		},
	})
}

// SendDLRRC forwards a DL RRC container to the DU.
func (e *Engine) SendDLRRC(cu ids.GNBCUUEF1APID, du ids.GNBDUUEF1APID, srb ran.SRBID, container []byte) error {
	return e.send(f1ap.PDU{
		Present: f1ap.PresentInitiatingMessage,
		Message: f1ap.DLRRCMessageTransfer{
			GNBCUUEF1APID: cu,
			GNBDUUEF1APID: du,
			SRBID:         srb,
			RRCContainer:  container,
		},
	})
}

func (e *Engine) beginUE(cu ids.GNBCUUEF1APID) (*exec.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.pending[cu]; busy {
		return nil, fmt.Errorf("%w: gnb_cu_ue_f1ap_id=%d", ErrInFlight, cu)
	}
	tx, err := e.txs.Begin(transactionTimeout)
	if err != nil {
		return nil, err
	}
	e.pending[cu] = tx
	return tx, nil
}

func (e *Engine) resolveUE(cu ids.GNBCUUEF1APID, msg any, failure error) {
	e.mu.Lock()
	tx, ok := e.pending[cu]
	delete(e.pending, cu)
	e.mu.Unlock()
	if !ok {
		e.logger.Warn("dropping UE procedure outcome for unknown UE", zap.Uint32("gnb_cu_ue_f1ap_id", uint32(cu)))
		return
	}
	e.txs.Resolve(tx.ID, msg, failure)
}

func (e *Engine) awaitUE(ctx context.Context, cu ids.GNBCUUEF1APID, tx *exec.Transaction) (any, error) {
	out := tx.Await(ctx)
	e.mu.Lock()
	delete(e.pending, cu)
	e.mu.Unlock()
	return out.Msg, out.Err
}

// RunUEContextSetup drives the UE Context Setup procedure.
func (e *Engine) RunUEContextSetup(ctx context.Context, req f1ap.UEContextSetupRequest) (f1ap.UEContextSetupResponse, error) {
	tx, err := e.beginUE(req.GNBCUUEF1APID)
	if err != nil {
		return f1ap.UEContextSetupResponse{}, err
	}
	if err := e.send(f1ap.PDU{Present: f1ap.PresentInitiatingMessage, Message: req}); err != nil {
		e.resolveUE(req.GNBCUUEF1APID, nil, err)
		tx.Await(ctx)
		return f1ap.UEContextSetupResponse{}, err
	}
	msg, err := e.awaitUE(ctx, req.GNBCUUEF1APID, tx)
	if err != nil {
		return f1ap.UEContextSetupResponse{}, err
	}
	return msg.(f1ap.UEContextSetupResponse), nil
}

// RunUEContextModification drives the UE Context Modification procedure.
func (e *Engine) RunUEContextModification(ctx context.Context, req f1ap.UEContextModificationRequest) (f1ap.UEContextModificationResponse, error) {
	tx, err := e.beginUE(req.GNBCUUEF1APID)
	if err != nil {
		return f1ap.UEContextModificationResponse{}, err
	}
	if err := e.send(f1ap.PDU{Present: f1ap.PresentInitiatingMessage, Message: req}); err != nil {
		e.resolveUE(req.GNBCUUEF1APID, nil, err)
		tx.Await(ctx)
		return f1ap.UEContextModificationResponse{}, err
	}
	msg, err := e.awaitUE(ctx, req.GNBCUUEF1APID, tx)
	if err != nil {
		return f1ap.UEContextModificationResponse{}, err
	}
	return msg.(f1ap.UEContextModificationResponse), nil
}

// RunUEContextRelease drives the two-step release: command, then await
// the DU's complete.
func (e *Engine) RunUEContextRelease(ctx context.Context, cu ids.GNBCUUEF1APID, du ids.GNBDUUEF1APID, cause f1ap.Cause) error {
	tx, err := e.beginUE(cu)
	if err != nil {
		return err
	}
	cmd := f1ap.UEContextReleaseCommand{GNBCUUEF1APID: cu, GNBDUUEF1APID: du, Cause: cause}
	if err := e.send(f1ap.PDU{Present: f1ap.PresentInitiatingMessage, Message: cmd}); err != nil {
		e.resolveUE(cu, nil, err)
		tx.Await(ctx)
		return err
	}
	_, err = e.awaitUE(ctx, cu, tx)
	return err
}
