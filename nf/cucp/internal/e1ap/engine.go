// Package e1ap implements the CU-CP side of the E1 interface: CU-UP
// attach handling and the bearer context setup and modification
// procedures towards the CU-UP.
package e1ap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/e1ap"
	"github.com/your-org/gnb/common/exec"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/metrics"
)

// Engine errors.
var (
	ErrTransport    = errors.New("e1ap-cu: transport failure")
	ErrNoCUUP       = errors.New("e1ap-cu: no CU-UP attached")
	ErrPeerFailure  = errors.New("e1ap-cu: peer failure")
	ErrInFlight     = errors.New("e1ap-cu: bearer procedure already in flight for UE")
)

// transactionTimeout guards each bearer context request.
const transactionTimeout = 5 * time.Second

// Sender transmits one packed PDU towards the CU-UP.
type Sender interface {
	Send(*bytebuf.Buffer) error
}

// CUUPContext describes an attached CU-UP.
type CUUPContext struct {
	Index ids.CUUPIndex
	ID    uint64
	Name  string
}

// Config carries the engine parameters.
type Config struct {
	GNBCUCPName string
}

// BearerSetupResult is the outcome of a bearer context procedure.
type BearerSetupResult struct {
	CUUPUEE1APID uint32
	Sessions     []e1ap.SessionSetup
}

// Engine is the CU-CP-side E1AP protocol engine for one CU-UP
// association.
type Engine struct {
	cfg    Config
	sender Sender
	txs    *exec.Transactions
	logger *zap.Logger

	mu      sync.Mutex
	cuup    *CUUPContext
	pending map[uint32]*exec.Transaction
	// upIDs maps the CP-side UE E1AP id to the CU-UP's id once learned.
	upIDs map[uint32]uint32
}

// NewEngine builds the engine on the given transaction table.
func NewEngine(cfg Config, sender Sender, txs *exec.Transactions, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		sender:  sender,
		txs:     txs,
		logger:  logger,
		pending: make(map[uint32]*exec.Transaction),
		upIDs:   make(map[uint32]uint32),
	}
}

func (e *Engine) send(pdu e1ap.PDU) error {
	buf, err := e1ap.Pack(pdu)
	if err != nil {
		return err
	}
	if err := e.sender.Send(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	metrics.PDUsSent.WithLabelValues("e1").Inc()
	return nil
}

// CUUP returns the attached CU-UP, if any.
func (e *Engine) CUUP() (CUUPContext, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cuup == nil {
		return CUUPContext{}, false
	}
	return *e.cuup, true
}

// OnConnectionLoss drops the CU-UP attach state and fails every pending
// bearer procedure.
func (e *Engine) OnConnectionLoss() {
	metrics.SetAssociationUp("e1", false)
	e.mu.Lock()
	e.cuup = nil
	e.pending = make(map[uint32]*exec.Transaction)
	e.mu.Unlock()
	e.txs.FailAll(ErrTransport)
}

// HandleMessage dispatches one inbound PDU in receive order.
func (e *Engine) HandleMessage(pdu e1ap.PDU) {
	metrics.PDUsReceived.WithLabelValues("e1").Inc()
	switch m := pdu.Message.(type) {
	case e1ap.GNBCUUPE1SetupRequest:
		e.handleCUUPSetup(m)
	case e1ap.BearerContextSetupResponse:
		e.resolveBearer(m.GNBCUCPUEE1APID, m.GNBCUUPUEE1APID, m.Sessions, nil)
	case e1ap.BearerContextSetupFailure:
		e.resolveBearer(m.GNBCUCPUEE1APID, 0, nil, fmt.Errorf("%w: group=%d value=%d", ErrPeerFailure, m.Cause.Group, m.Cause.Value))
	case e1ap.BearerContextModificationResponse:
		e.resolveBearer(m.GNBCUCPUEE1APID, m.GNBCUUPUEE1APID, m.Sessions, nil)
	case e1ap.BearerContextModificationFailure:
		e.resolveBearer(m.GNBCUCPUEE1APID, 0, nil, fmt.Errorf("%w: group=%d value=%d", ErrPeerFailure, m.Cause.Group, m.Cause.Value))
	default:
		e.logger.Warn("dropping unsupported E1AP message", zap.String("type", fmt.Sprintf("%T", pdu.Message)))
	}
}

// handleCUUPSetup records the CU-UP attach and confirms it.
func (e *Engine) handleCUUPSetup(m e1ap.GNBCUUPE1SetupRequest) {
	e.mu.Lock()
	e.cuup = &CUUPContext{Index: 0, ID: m.GNBCUUPID, Name: m.GNBCUUPName}
	e.mu.Unlock()

	metrics.SetAssociationUp("e1", true)
	e.logger.Info("CU-UP attached",
		zap.Uint64("gnb_cu_up_id", m.GNBCUUPID),
		zap.String("name", m.GNBCUUPName),
	)
	_ = e.send(e1ap.PDU{
		Present: e1ap.PresentSuccessfulOutcome,
		Message: e1ap.GNBCUUPE1SetupResponse{
			TransactionID: m.TransactionID,
			GNBCUCPName:   e.cfg.GNBCUCPName,
		},
	})
}

func (e *Engine) resolveBearer(cpUEID, upUEID uint32, sessions []e1ap.SessionSetup, failure error) {
	e.mu.Lock()
	tx, ok := e.pending[cpUEID]
	delete(e.pending, cpUEID)
	if failure == nil && upUEID != 0 {
		e.upIDs[cpUEID] = upUEID
	}
	e.mu.Unlock()
	if !ok {
		e.logger.Warn("dropping bearer context outcome for unknown UE", zap.Uint32("gnb_cu_cp_ue_e1ap_id", cpUEID))
		return
	}
	if failure != nil {
		e.txs.Resolve(tx.ID, nil, failure)
		return
	}
	e.txs.Resolve(tx.ID, BearerSetupResult{CUUPUEE1APID: upUEID, Sessions: sessions}, nil)
}

func (e *Engine) beginBearer(cpUEID uint32) (*exec.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cuup == nil {
		return nil, ErrNoCUUP
	}
	if _, busy := e.pending[cpUEID]; busy {
		return nil, fmt.Errorf("%w: gnb_cu_cp_ue_e1ap_id=%d", ErrInFlight, cpUEID)
	}
	tx, err := e.txs.Begin(transactionTimeout)
	if err != nil {
		return nil, err
	}
	e.pending[cpUEID] = tx
	return tx, nil
}

func (e *Engine) awaitBearer(ctx context.Context, cpUEID uint32, tx *exec.Transaction) (BearerSetupResult, error) {
	out := tx.Await(ctx)
	e.mu.Lock()
	delete(e.pending, cpUEID)
	e.mu.Unlock()
	if out.Err != nil {
		return BearerSetupResult{}, out.Err
	}
	return out.Msg.(BearerSetupResult), nil
}

// RunBearerContextSetup establishes the sessions' bearer contexts at the
// CU-UP and returns the CU-UP UE E1AP id and per-session tunnel info.
func (e *Engine) RunBearerContextSetup(ctx context.Context, id ids.CUCPUEID, sessions []e1ap.SessionToSetup) (BearerSetupResult, error) {
	cpUEID := uint32(id)
	tx, err := e.beginBearer(cpUEID)
	if err != nil {
		return BearerSetupResult{}, err
	}
	req := e1ap.BearerContextSetupRequest{
		GNBCUCPUEE1APID: cpUEID,
		Sessions:        sessions,
	}
	if err := e.send(e1ap.PDU{Present: e1ap.PresentInitiatingMessage, Message: req}); err != nil {
		e.txs.Resolve(tx.ID, nil, err)
		_, _ = e.awaitBearer(ctx, cpUEID, tx)
		return BearerSetupResult{}, err
	}
	return e.awaitBearer(ctx, cpUEID, tx)
}

// RunBearerContextModification modifies the UE's bearer contexts.
func (e *Engine) RunBearerContextModification(ctx context.Context, id ids.CUCPUEID, sessions []e1ap.SessionToSetup) (BearerSetupResult, error) {
	cpUEID := uint32(id)
	e.mu.Lock()
	upUEID, known := e.upIDs[cpUEID]
	e.mu.Unlock()
	if !known {
		return BearerSetupResult{}, fmt.Errorf("%w: no bearer context for gnb_cu_cp_ue_e1ap_id=%d", ErrNoCUUP, cpUEID)
	}
	tx, err := e.beginBearer(cpUEID)
	if err != nil {
		return BearerSetupResult{}, err
	}
	req := e1ap.BearerContextModificationRequest{
		GNBCUCPUEE1APID: cpUEID,
		GNBCUUPUEE1APID: upUEID,
		Sessions:        sessions,
	}
	if err := e.send(e1ap.PDU{Present: e1ap.PresentInitiatingMessage, Message: req}); err != nil {
		e.txs.Resolve(tx.ID, nil, err)
		_, _ = e.awaitBearer(ctx, cpUEID, tx)
		return BearerSetupResult{}, err
	}
	return e.awaitBearer(ctx, cpUEID, tx)
}

// RemoveUE drops the UE's E1 bookkeeping.
func (e *Engine) RemoveUE(id ids.CUCPUEID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.upIDs, uint32(id))
}
