// Package ngap implements the CU-CP's NG application protocol engine: the
// NG Setup procedure with peer-directed retry, the NG UE registry, NAS
// transport in both directions, Initial Context Setup and PDU Session
// Resource Setup.
package ngap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/exec"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/common/ngap"
	"github.com/your-org/gnb/common/ran"
)

// Engine errors.
var (
	ErrTransport        = errors.New("ngap: transport failure")
	ErrSetup            = errors.New("ngap: NG setup failed")
	ErrNotReady         = errors.New("ngap: AMF UE NGAP id not learned yet")
	ErrIdentityMismatch = errors.New("ngap: AMF UE NGAP id mismatch")
	ErrDuplicate        = errors.New("ngap: NG UE already exists")
	ErrNotFound         = errors.New("ngap: NG UE not found")
)

// defaultMaxSetupRetries caps the NG Setup retry loop.
const defaultMaxSetupRetries = 5

// transactionTimeout guards each NG request.
const transactionTimeout = 5 * time.Second

// Sender transmits one packed PDU towards the AMF.
type Sender interface {
	Send(*bytebuf.Buffer) error
}

// UEControl is the engine's handle on the CU-CP's UE machinery.
type UEControl interface {
	// DeliverDLNAS forwards a DL NAS PDU to the UE's RRC.
	DeliverDLNAS(id ids.CUCPUEID, nas []byte)
	// RunSecurityMode drives the RRC security mode procedure.
	RunSecurityMode(ctx context.Context, id ids.CUCPUEID, caps ngap.UESecurityCapabilities, key [32]byte) error
	// SetupPDUSessions establishes the requested sessions and reports
	// per-session outcomes.
	SetupPDUSessions(ctx context.Context, id ids.CUCPUEID, sessions []ngap.PDUSessionResourceSetupItem) ([]ngap.PDUSessionResourceSetupResponseItem, []ngap.PDUSessionResourceFailedItem)
	// ReleaseUE tears the UE down.
	ReleaseUE(id ids.CUCPUEID, cause error)
}

// Config carries the NG Setup parameters.
type Config struct {
	GNBID           uint32
	RANNodeName     string
	PLMN            ran.PLMN
	TAC             ran.TAC
	Slices          []ran.SNSSAI
	PagingDRX       ngap.PagingDRX
	MaxSetupRetries int
}

// ngUE is one NG UE context.
type ngUE struct {
	ranID  ids.RANUENGAPID
	amfID  ids.AMFUENGAPID
	cucpID ids.CUCPUEID
}

// Engine is the NGAP protocol engine for one AMF association.
type Engine struct {
	cfg    Config
	sender Sender
	txs    *exec.Transactions
	ues    UEControl
	logger *zap.Logger

	connected atomic.Bool

	mu      sync.Mutex
	ngUEs   map[ids.RANUENGAPID]*ngUE
	amfName string
	guamis  []ngap.GUAMI
}

// NewEngine builds the engine on the given transaction table.
func NewEngine(cfg Config, sender Sender, txs *exec.Transactions, ues UEControl, logger *zap.Logger) *Engine {
	if cfg.MaxSetupRetries <= 0 {
		cfg.MaxSetupRetries = defaultMaxSetupRetries
	}
	return &Engine{
		cfg:    cfg,
		sender: sender,
		txs:    txs,
		ues:    ues,
		logger: logger,
		ngUEs:  make(map[ids.RANUENGAPID]*ngUE),
	}
}

func (e *Engine) send(pdu ngap.PDU) error {
	buf, err := ngap.Pack(pdu)
	if err != nil {
		return err
	}
	if err := e.sender.Send(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	metrics.PDUsSent.WithLabelValues("ng").Inc()
	return nil
}

// OnConnectionEstablished marks the association usable.
func (e *Engine) OnConnectionEstablished() {
	e.connected.Store(true)
	metrics.SetAssociationUp("ng", true)
}

// OnConnectionLoss fails all pending transactions with a transport error
// so awaiting procedures finish deterministically.
func (e *Engine) OnConnectionLoss() {
	e.connected.Store(false)
	metrics.SetAssociationUp("ng", false)
	e.txs.FailAll(ErrTransport)
}

// AMFName returns the AMF name learned from NG Setup.
func (e *Engine) AMFName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.amfName
}

// ServedGUAMIs returns the GUAMI list learned from NG Setup.
func (e *Engine) ServedGUAMIs() []ngap.GUAMI {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guamis
}

// peerDirectedBackOff waits exactly the peer's last time-to-wait.
type peerDirectedBackOff struct {
	wait time.Duration
}

func (b *peerDirectedBackOff) NextBackOff() time.Duration { return b.wait }
func (b *peerDirectedBackOff) Reset()                     {}

// RunNGSetup drives the NG Setup procedure, retrying with the AMF's
// time-to-wait until the retry cap is reached.
func (e *Engine) RunNGSetup(ctx context.Context) error {
	ctx, span := otel.Tracer("cucp-ngap").Start(ctx, "NGAP.RunNGSetup")
	defer span.End()

	wait := &peerDirectedBackOff{}
	attempt := 0

	operation := func() error {
		attempt++
		outcome, err := e.setupAttempt(ctx)
		if err != nil {
			metrics.NGSetupAttempts.WithLabelValues("error").Inc()
			return backoff.Permanent(err)
		}
		switch m := outcome.(type) {
		case ngap.NGSetupResponse:
			metrics.NGSetupAttempts.WithLabelValues("success").Inc()
			e.mu.Lock()
			e.amfName = m.AMFName
			e.guamis = m.ServedGUAMIs
			e.mu.Unlock()
			span.SetAttributes(attribute.String("amf_name", m.AMFName))
			e.logger.Info("NG Setup complete", zap.String("amf_name", m.AMFName))
			return nil
		case ngap.NGSetupFailure:
			metrics.NGSetupAttempts.WithLabelValues("failure").Inc()
			if m.TimeToWaitSeconds == 0 {
				return backoff.Permanent(fmt.Errorf("%w: no time-to-wait from AMF", ErrSetup))
			}
			if attempt > e.cfg.MaxSetupRetries {
				return backoff.Permanent(fmt.Errorf("%w: retries exhausted after %d attempts", ErrSetup, attempt))
			}
			wait.wait = time.Duration(m.TimeToWaitSeconds) * time.Second
			e.logger.Info("NG Setup failed, retrying",
				zap.Uint16("time_to_wait_s", m.TimeToWaitSeconds),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", e.cfg.MaxSetupRetries),
			)
			return fmt.Errorf("%w: AMF asked to retry", ErrSetup)
		default:
			return backoff.Permanent(fmt.Errorf("%w: unexpected outcome %T", ErrSetup, outcome))
		}
	}

	return backoff.Retry(operation, backoff.WithContext(wait, ctx))
}

func (e *Engine) setupAttempt(ctx context.Context) (ngap.Message, error) {
	tx, err := e.txs.Begin(transactionTimeout)
	if err != nil {
		return nil, err
	}
	req := ngap.NGSetupRequest{
		TransactionID: tx.ID,
		GlobalGNBID:   ngap.GlobalGNBID{PLMN: e.cfg.PLMN, GNBID: e.cfg.GNBID},
		RANNodeName:   e.cfg.RANNodeName,
		SupportedTAs: []ngap.SupportedTA{{
			TAC: e.cfg.TAC,
			PLMNs: []ngap.BroadcastPLMN{{
				PLMN:   e.cfg.PLMN,
				Slices: e.cfg.Slices,
			}},
		}},
		PagingDRX: e.cfg.PagingDRX,
	}
	if err := e.send(ngap.PDU{Present: ngap.PresentInitiatingMessage, Message: req}); err != nil {
		e.txs.Resolve(tx.ID, nil, err)
		tx.Await(ctx)
		return nil, err
	}

	out := tx.Await(ctx)
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Msg.(ngap.Message), nil
}

// AddUE creates the NG UE context for a CU-CP UE. The RAN UE NGAP id is
// derived from the CU-CP UE id.
func (e *Engine) AddUE(id ids.CUCPUEID) (ids.RANUENGAPID, error) {
	ranID := id.RANUENGAPIDOf()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.ngUEs[ranID]; ok {
		return 0, fmt.Errorf("%w: ran_ue_ngap_id=%d", ErrDuplicate, ranID)
	}
	e.ngUEs[ranID] = &ngUE{ranID: ranID, amfID: ids.InvalidAMFUENGAPID, cucpID: id}
	return ranID, nil
}

// RemoveUE drops the NG UE context; the AMF UE NGAP id becomes invalid.
func (e *Engine) RemoveUE(id ids.CUCPUEID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.ngUEs, id.RANUENGAPIDOf())
}

func (e *Engine) findUE(ranID ids.RANUENGAPID) (*ngUE, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ue, ok := e.ngUEs[ranID]
	if !ok {
		return nil, fmt.Errorf("%w: ran_ue_ngap_id=%d", ErrNotFound, ranID)
	}
	return ue, nil
}

// SendInitialUEMessage emits the Initial UE Message for the UE's first UL
// NAS PDU. Without a connected AMF the message is dropped and the UE is
// released with a transport cause.
func (e *Engine) SendInitialUEMessage(id ids.CUCPUEID, nas []byte, cause ngap.RRCEstablishmentCause, cgi ran.NRCGI, tac ran.TAC) error {
	if !e.connected.Load() {
		e.logger.Warn("dropping Initial UE Message: AMF not connected",
			zap.Uint64("cu_cp_ue_id", uint64(id)),
		)
		e.ues.ReleaseUE(id, ErrTransport)
		return ErrTransport
	}
	ranID, err := e.AddUE(id)
	if err != nil {
		return err
	}
	msg := ngap.InitialUEMessage{
		RANUENGAPID:        ranID,
		NASPDU:             nas,
		EstablishmentCause: cause,
		NRCGI:              cgi,
		TAC:                tac,
		UEContextRequest:   true,
	}
	e.logger.Info("sending Initial UE Message", zap.Uint32("ran_ue_ngap_id", uint32(ranID)))
	return e.send(ngap.PDU{Present: ngap.PresentInitiatingMessage, Message: msg})
}

// SendULNAS forwards a subsequent UL NAS PDU. It requires the AMF UE NGAP
// id to have been learned.
func (e *Engine) SendULNAS(id ids.CUCPUEID, nas []byte, cgi ran.NRCGI, tac ran.TAC) error {
	ue, err := e.findUE(id.RANUENGAPIDOf())
	if err != nil {
		return err
	}
	e.mu.Lock()
	amfID := ue.amfID
	e.mu.Unlock()
	if amfID == ids.InvalidAMFUENGAPID {
		return fmt.Errorf("%w: ran_ue_ngap_id=%d", ErrNotReady, ue.ranID)
	}
	msg := ngap.UplinkNASTransport{
		AMFUENGAPID: amfID,
		RANUENGAPID: ue.ranID,
		NASPDU:      nas,
		NRCGI:       cgi,
		TAC:         tac,
	}
	return e.send(ngap.PDU{Present: ngap.PresentInitiatingMessage, Message: msg})
}

// HandleMessage dispatches one inbound PDU in receive order. Long
// procedures continue on their own goroutine.
func (e *Engine) HandleMessage(pdu ngap.PDU) {
	metrics.PDUsReceived.WithLabelValues("ng").Inc()
	switch m := pdu.Message.(type) {
	case ngap.NGSetupResponse:
		if !e.txs.Resolve(m.TransactionID, m, nil) {
			e.logger.Warn("dropping NGSetupResponse for unknown transaction", zap.Uint8("transaction_id", m.TransactionID))
		}
	case ngap.NGSetupFailure:
		if !e.txs.Resolve(m.TransactionID, m, nil) {
			e.logger.Warn("dropping NGSetupFailure for unknown transaction", zap.Uint8("transaction_id", m.TransactionID))
		}
	case ngap.DownlinkNASTransport:
		e.handleDLNAS(m)
	case ngap.InitialContextSetupRequest:
		go e.handleInitialContextSetup(m)
	case ngap.PDUSessionResourceSetupRequest:
		go e.handlePDUSessionSetup(m)
	case ngap.ErrorIndication:
		e.logger.Warn("received NGAP Error Indication",
			zap.Uint32("ran_ue_ngap_id", uint32(m.RANUENGAPID)),
			zap.Uint8("cause_group", uint8(m.Cause.Group)),
			zap.Uint8("cause", m.Cause.Value),
		)
	default:
		e.logger.Warn("dropping unsupported NGAP message", zap.String("type", fmt.Sprintf("%T", pdu.Message)))
	}
}

// learnAMFID stores the AMF UE NGAP id on first sight and verifies
// equality afterwards.
func (e *Engine) learnAMFID(ue *ngUE, amfID ids.AMFUENGAPID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ue.amfID == ids.InvalidAMFUENGAPID {
		ue.amfID = amfID
		return nil
	}
	if ue.amfID != amfID {
		return fmt.Errorf("%w: have %d, got %d", ErrIdentityMismatch, ue.amfID, amfID)
	}
	return nil
}

func (e *Engine) handleDLNAS(m ngap.DownlinkNASTransport) {
	ue, err := e.findUE(m.RANUENGAPID)
	if err != nil {
		e.logger.Warn("DL NAS for unknown UE", zap.Uint32("ran_ue_ngap_id", uint32(m.RANUENGAPID)))
		e.sendErrorIndication(m.RANUENGAPID, ngap.CauseRadioNetworkUnknownUEID)
		return
	}
	if err := e.learnAMFID(ue, m.AMFUENGAPID); err != nil {
		e.logger.Error("DL NAS identity mismatch", zap.Error(err))
		e.sendErrorIndication(m.RANUENGAPID, ngap.CauseRadioNetworkUnspecified)
		return
	}
	e.ues.DeliverDLNAS(ue.cucpID, m.NASPDU)
}

func (e *Engine) handleInitialContextSetup(m ngap.InitialContextSetupRequest) {
	ctx, span := otel.Tracer("cucp-ngap").Start(context.Background(), "NGAP.InitialContextSetup")
	defer span.End()
	span.SetAttributes(attribute.Int64("ran_ue_ngap_id", int64(m.RANUENGAPID)))

	ue, err := e.findUE(m.RANUENGAPID)
	if err != nil {
		e.logger.Warn("Initial Context Setup for unknown UE", zap.Uint32("ran_ue_ngap_id", uint32(m.RANUENGAPID)))
		e.sendErrorIndication(m.RANUENGAPID, ngap.CauseRadioNetworkUnknownUEID)
		return
	}
	if err := e.learnAMFID(ue, m.AMFUENGAPID); err != nil {
		e.logger.Error("Initial Context Setup identity mismatch", zap.Error(err))
		e.sendErrorIndication(m.RANUENGAPID, ngap.CauseRadioNetworkUnspecified)
		return
	}

	if err := e.ues.RunSecurityMode(ctx, ue.cucpID, m.UESecurityCapabilities, m.SecurityKey); err != nil {
		e.logger.Warn("Initial Context Setup failed", zap.Error(err))
		_ = e.send(ngap.PDU{
			Present: ngap.PresentUnsuccessfulOutcome,
			Message: ngap.InitialContextSetupFailure{
				AMFUENGAPID: m.AMFUENGAPID,
				RANUENGAPID: m.RANUENGAPID,
				Cause:       ngap.Cause{Group: ngap.CauseGroupRadioNetwork, Value: ngap.CauseRadioNetworkUnspecified},
			},
		})
		return
	}

	if len(m.NASPDU) > 0 {
		e.ues.DeliverDLNAS(ue.cucpID, m.NASPDU)
	}

	_ = e.send(ngap.PDU{
		Present: ngap.PresentSuccessfulOutcome,
		Message: ngap.InitialContextSetupResponse{
			AMFUENGAPID: m.AMFUENGAPID,
			RANUENGAPID: m.RANUENGAPID,
		},
	})
}

func (e *Engine) handlePDUSessionSetup(m ngap.PDUSessionResourceSetupRequest) {
	ctx, span := otel.Tracer("cucp-ngap").Start(context.Background(), "NGAP.PDUSessionResourceSetup")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("ran_ue_ngap_id", int64(m.RANUENGAPID)),
		attribute.Int("sessions", len(m.Sessions)),
	)

	ue, err := e.findUE(m.RANUENGAPID)
	if err != nil {
		e.logger.Warn("PDU Session Resource Setup for unknown UE", zap.Uint32("ran_ue_ngap_id", uint32(m.RANUENGAPID)))
		e.sendErrorIndication(m.RANUENGAPID, ngap.CauseRadioNetworkUnknownUEID)
		return
	}

	succeeded, failed := e.ues.SetupPDUSessions(ctx, ue.cucpID, m.Sessions)
	for range succeeded {
		metrics.PDUSessionSetups.WithLabelValues("success").Inc()
	}
	for range failed {
		metrics.PDUSessionSetups.WithLabelValues("failure").Inc()
	}

	_ = e.send(ngap.PDU{
		Present: ngap.PresentSuccessfulOutcome,
		Message: ngap.PDUSessionResourceSetupResponse{
			AMFUENGAPID: m.AMFUENGAPID,
			RANUENGAPID: m.RANUENGAPID,
			Succeeded:   succeeded,
			Failed:      failed,
		},
	})
}

func (e *Engine) sendErrorIndication(ranID ids.RANUENGAPID, cause uint8) {
	_ = e.send(ngap.PDU{
		Present: ngap.PresentInitiatingMessage,
		Message: ngap.ErrorIndication{
			AMFUENGAPID: ids.InvalidAMFUENGAPID,
			RANUENGAPID: ranID,
			Cause:       ngap.Cause{Group: ngap.CauseGroupRadioNetwork, Value: cause},
		},
	})
}
