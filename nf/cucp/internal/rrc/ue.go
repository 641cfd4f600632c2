package rrc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/your-org/gnb/common/exec"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/common/ngap"
	"github.com/your-org/gnb/common/ran"
)

// State machine errors.
var (
	ErrTimeout      = errors.New("rrc: procedure timer expired")
	ErrInvalidState = errors.New("rrc: procedure not allowed in this state")
	ErrReleased     = errors.New("rrc: UE released")
)

// State is the RRC UE state.
type State uint8

const (
	StateIdle State = iota
	StateAwaitingSetupComplete
	StateConnected
	StateAwaitSMCComplete
	StateAwaitReconfigComplete
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSetupComplete:
		return "awaiting_setup_complete"
	case StateConnected:
		return "connected"
	case StateAwaitSMCComplete:
		return "await_smc_complete"
	case StateAwaitReconfigComplete:
		return "await_reconfig_complete"
	case StateReleased:
		return "released"
	}
	return "unknown"
}

// SRBTxNotifier transmits a DL RRC container on an SRB towards the DU.
type SRBTxNotifier interface {
	OnDLRRCPDU(srb ran.SRBID, container []byte) error
}

// NGNotifier forwards NAS payloads into the NG interface.
type NGNotifier interface {
	// OnInitialNAS triggers the Initial UE Message for the first UL NAS.
	OnInitialNAS(nas []byte, cause ngap.RRCEstablishmentCause)
	// OnULNAS forwards a subsequent UL NAS PDU.
	OnULNAS(nas []byte)
}

// ReleaseNotifier is invoked when the UE releases itself (timer expiry).
type ReleaseNotifier interface {
	OnUERelease(id ids.CUCPUEID, cause error)
}

// Timeouts configures the per-procedure guard windows.
type Timeouts struct {
	Setup    time.Duration
	SMC      time.Duration
	Reconfig time.Duration
}

func (t *Timeouts) applyDefaults() {
	if t.Setup <= 0 {
		t.Setup = time.Second
	}
	if t.SMC <= 0 {
		t.SMC = 2 * time.Second
	}
	if t.Reconfig <= 0 {
		t.Reconfig = 2 * time.Second
	}
}

// UE is the RRC state machine of one UE. All state transitions run on the
// UE's task queue; the blocking Run* procedures are called from protocol
// engine goroutines and resume when the UE answers or the guard expires.
type UE struct {
	ID    ids.CUCPUEID
	CRNTI ran.RNTI

	queue    *exec.Queue
	timers   *exec.Timers
	timeouts Timeouts

	f1      SRBTxNotifier
	ng      NGNotifier
	release ReleaseNotifier
	logger  *zap.Logger

	// Owned by the UE queue.
	state   State
	sec     SecurityContext
	guard   *exec.Timer
	pending chan error
}

// NewUE creates an idle RRC UE. SRB0 exists from the start with only the
// TX notifier; SRB1 comes up with RRC Setup.
func NewUE(id ids.CUCPUEID, crnti ran.RNTI, queue *exec.Queue, timers *exec.Timers, timeouts Timeouts,
	f1 SRBTxNotifier, ng NGNotifier, release ReleaseNotifier, logger *zap.Logger) *UE {
	timeouts.applyDefaults()
	return &UE{
		ID:       id,
		CRNTI:    crnti,
		queue:    queue,
		timers:   timers,
		timeouts: timeouts,
		f1:       f1,
		ng:       ng,
		release:  release,
		logger:   logger.With(zap.Uint64("cu_cp_ue_id", uint64(id))),
		state:    StateIdle,
	}
}

// State returns the current state. Only safe from the UE's queue or in
// tests that have synchronized with it.
func (u *UE) State() State {
	return u.state
}

// SecurityEnabled reports whether SRB1 security is active.
func (u *UE) SecurityEnabled() bool {
	return u.sec.Enabled
}

// HandleULRRC delivers an inbound RRC container from F1. Processing is
// serialized on the UE queue.
func (u *UE) HandleULRRC(srb ran.SRBID, container []byte) {
	if err := u.queue.Post(func() { u.handleULRRC(srb, container) }); err != nil {
		u.logger.Warn("UE queue rejected UL RRC", zap.Error(err))
	}
}

func (u *UE) handleULRRC(srb ran.SRBID, container []byte) {
	msg, err := UnpackMessage(container)
	if err != nil {
		u.logger.Warn("dropping undecodable RRC container", zap.Error(err))
		return
	}
	u.logger.Debug("UL RRC message",
		zap.String("type", msg.Type.String()),
		zap.Uint8("srb", uint8(srb)),
		zap.String("state", u.state.String()),
	)

	switch {
	case srb == ran.SRB0 && msg.Type == MsgRRCSetupRequest && u.state == StateIdle:
		u.handleSetupRequest()
	case srb == ran.SRB1 && msg.Type == MsgRRCSetupComplete && u.state == StateAwaitingSetupComplete:
		u.stopGuard()
		u.state = StateConnected
		metrics.RRCProcedures.WithLabelValues("setup", "success").Inc()
		u.ng.OnInitialNAS(msg.Payload, ngap.EstablishmentCauseMOSignalling)
	case srb == ran.SRB1 && msg.Type == MsgSecurityModeComplete && u.state == StateAwaitSMCComplete:
		u.stopGuard()
		u.sec.Enabled = true
		u.state = StateConnected
		metrics.RRCProcedures.WithLabelValues("smc", "success").Inc()
		u.resolve(nil)
	case srb == ran.SRB1 && msg.Type == MsgSecurityModeFailure && u.state == StateAwaitSMCComplete:
		u.stopGuard()
		u.state = StateConnected
		metrics.RRCProcedures.WithLabelValues("smc", "failure").Inc()
		u.resolve(ErrSecurityNegotiationFailed)
	case srb == ran.SRB1 && msg.Type == MsgRRCReconfigurationComplete && u.state == StateAwaitReconfigComplete:
		u.stopGuard()
		u.state = StateConnected
		metrics.RRCProcedures.WithLabelValues("reconfiguration", "success").Inc()
		u.resolve(nil)
	case srb == ran.SRB1 && msg.Type == MsgULInformationTransfer && u.state == StateConnected:
		u.ng.OnULNAS(msg.Payload)
	default:
		u.logger.Warn("dropping unexpected RRC message",
			zap.String("type", msg.Type.String()),
			zap.String("state", u.state.String()),
		)
	}
}

func (u *UE) handleSetupRequest() {
	container, err := PackMessage(Message{Type: MsgRRCSetup})
	if err != nil {
		u.logger.Error("failed to build RRCSetup", zap.Error(err))
		return
	}
	if err := u.f1.OnDLRRCPDU(ran.SRB0, container); err != nil {
		u.logger.Error("failed to send RRCSetup", zap.Error(err))
		return
	}
	u.state = StateAwaitingSetupComplete
	u.armGuard(u.timeouts.Setup, func() {
		metrics.RRCProcedures.WithLabelValues("setup", "timeout").Inc()
		u.releaseLocked(fmt.Errorf("%w: RRC Setup Complete missing", ErrTimeout))
	})
}

// RunSecurityMode negotiates algorithms from the UE capabilities, stores
// the reversed KgNB and drives the Security Mode Command procedure. It
// blocks until the UE answers or the guard expires.
func (u *UE) RunSecurityMode(ctx context.Context, caps ngap.UESecurityCapabilities, wireKey [32]byte) error {
	ctx, span := otel.Tracer("cucp-rrc").Start(ctx, "RRCUE.RunSecurityMode")
	defer span.End()

	result := make(chan error, 1)
	task := func() {
		if u.state != StateConnected {
			result <- fmt.Errorf("%w: %s", ErrInvalidState, u.state)
			return
		}
		integrity, ciphering, err := SelectAlgorithms(caps.NRIntegrityAlgorithms, caps.NRCipheringAlgorithms)
		if err != nil {
			metrics.RRCProcedures.WithLabelValues("smc", "negotiation_failed").Inc()
			result <- err
			return
		}
		u.sec = SecurityContext{
			KgNB:      CopyKgNB(wireKey),
			Integrity: integrity,
			Ciphering: ciphering,
		}
		container, err := PackMessage(Message{
			Type:    MsgSecurityModeCommand,
			Payload: []byte{byte(integrity), byte(ciphering)},
		})
		if err != nil {
			result <- err
			return
		}
		if err := u.f1.OnDLRRCPDU(ran.SRB1, container); err != nil {
			result <- err
			return
		}
		u.state = StateAwaitSMCComplete
		u.pending = result
		u.armGuard(u.timeouts.SMC, func() {
			metrics.RRCProcedures.WithLabelValues("smc", "timeout").Inc()
			u.resolve(ErrTimeout)
			u.releaseLocked(ErrTimeout)
		})
	}
	if err := u.queue.Post(task); err != nil {
		return ErrReleased
	}

	span.SetAttributes(attribute.Int64("cu_cp_ue_id", int64(u.ID)))
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunReconfiguration builds the RRCReconfiguration from the request and
// blocks until the UE confirms or the guard expires.
func (u *UE) RunReconfiguration(ctx context.Context, req ReconfigurationRequest) error {
	ctx, span := otel.Tracer("cucp-rrc").Start(ctx, "RRCUE.RunReconfiguration")
	defer span.End()

	result := make(chan error, 1)
	task := func() {
		if u.state != StateConnected {
			result <- fmt.Errorf("%w: %s", ErrInvalidState, u.state)
			return
		}
		payload, err := PackReconfiguration(req)
		if err != nil {
			result <- err
			return
		}
		container, err := PackMessage(Message{Type: MsgRRCReconfiguration, Payload: payload})
		if err != nil {
			result <- err
			return
		}
		if err := u.f1.OnDLRRCPDU(ran.SRB1, container); err != nil {
			result <- err
			return
		}
		u.state = StateAwaitReconfigComplete
		u.pending = result
		u.armGuard(u.timeouts.Reconfig, func() {
			metrics.RRCProcedures.WithLabelValues("reconfiguration", "timeout").Inc()
			u.resolve(ErrTimeout)
			u.releaseLocked(ErrTimeout)
		})
	}
	if err := u.queue.Post(task); err != nil {
		return ErrReleased
	}

	span.SetAttributes(
		attribute.Int64("cu_cp_ue_id", int64(u.ID)),
		attribute.Int("drbs_to_add", len(req.DRBsToAdd)),
	)
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendDLNAS forwards a DL NAS PDU to the UE on SRB1.
func (u *UE) SendDLNAS(nas []byte) {
	task := func() {
		container, err := PackMessage(Message{Type: MsgDLInformationTransfer, Payload: nas})
		if err != nil {
			u.logger.Error("failed to build DLInformationTransfer", zap.Error(err))
			return
		}
		if err := u.f1.OnDLRRCPDU(ran.SRB1, container); err != nil {
			u.logger.Error("failed to send DL NAS", zap.Error(err))
		}
	}
	if err := u.queue.Post(task); err != nil {
		u.logger.Warn("UE queue rejected DL NAS", zap.Error(err))
	}
}

// Release moves the UE to the terminal state, sending RRCRelease when the
// UE is reachable. Pending procedures resolve with ErrReleased.
func (u *UE) Release() {
	_ = u.queue.Post(func() {
		if u.state == StateReleased {
			return
		}
		u.stopGuard()
		u.resolve(ErrReleased)
		if container, err := PackMessage(Message{Type: MsgRRCRelease}); err == nil {
			_ = u.f1.OnDLRRCPDU(ran.SRB1, container)
		}
		u.state = StateReleased
	})
}

// releaseLocked runs on the UE queue: terminal transition plus owner
// notification.
func (u *UE) releaseLocked(cause error) {
	if u.state == StateReleased {
		return
	}
	u.stopGuard()
	u.state = StateReleased
	u.logger.Info("RRC UE released", zap.NamedError("cause", cause))
	u.release.OnUERelease(u.ID, cause)
}

func (u *UE) armGuard(d time.Duration, onExpiry func()) {
	u.stopGuard()
	u.guard = u.timers.Start(d, u.queue, onExpiry)
}

func (u *UE) stopGuard() {
	if u.guard != nil {
		u.guard.Stop()
		u.guard = nil
	}
}

func (u *UE) resolve(err error) {
	if u.pending != nil {
		u.pending <- err
		u.pending = nil
	}
}
