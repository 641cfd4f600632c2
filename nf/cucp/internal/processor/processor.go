// Package processor implements the CU-CP's DU processor: the per-DU cell
// registry learned from F1 Setup, the CU-wide UE table with its identifier
// federation, and the multi-leg PDU session resource setup routine that
// fans out over E1, F1 and RRC.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	commonE1 "github.com/your-org/gnb/common/e1ap"
	"github.com/your-org/gnb/common/exec"
	commonF1 "github.com/your-org/gnb/common/f1ap"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/common/ngap"
	"github.com/your-org/gnb/common/ran"
	"github.com/your-org/gnb/nf/cucp/internal/drb"
	cue1ap "github.com/your-org/gnb/nf/cucp/internal/e1ap"
	cuf1ap "github.com/your-org/gnb/nf/cucp/internal/f1ap"
	"github.com/your-org/gnb/nf/cucp/internal/rrc"
)

// Processor errors.
var (
	ErrNoUESlots = ids.ErrNoUESlots
	ErrUnknownDU = errors.New("processor: no DU attached")
	ErrUnknownUE = errors.New("processor: unknown UE")
	ErrBadSetup  = errors.New("processor: invalid F1 Setup")
)

// ueQueueDepth bounds each UE's task queue.
const ueQueueDepth = 128

// releaseTimeout bounds the F1 release leg during teardown.
const releaseTimeout = 5 * time.Second

// F1 is the processor's handle on the CU-side F1AP engine.
type F1 interface {
	SendDLRRC(cu ids.GNBCUUEF1APID, du ids.GNBDUUEF1APID, srb ran.SRBID, container []byte) error
	RunUEContextSetup(ctx context.Context, req commonF1.UEContextSetupRequest) (commonF1.UEContextSetupResponse, error)
	RunUEContextModification(ctx context.Context, req commonF1.UEContextModificationRequest) (commonF1.UEContextModificationResponse, error)
	RunUEContextRelease(ctx context.Context, cu ids.GNBCUUEF1APID, du ids.GNBDUUEF1APID, cause commonF1.Cause) error
}

// NG is the processor's handle on the NGAP engine.
type NG interface {
	SendInitialUEMessage(id ids.CUCPUEID, nas []byte, cause ngap.RRCEstablishmentCause, cgi ran.NRCGI, tac ran.TAC) error
	SendULNAS(id ids.CUCPUEID, nas []byte, cgi ran.NRCGI, tac ran.TAC) error
	RemoveUE(id ids.CUCPUEID)
}

// E1 is the processor's handle on the E1AP engine.
type E1 interface {
	RunBearerContextSetup(ctx context.Context, id ids.CUCPUEID, sessions []commonE1.SessionToSetup) (cue1ap.BearerSetupResult, error)
	RunBearerContextModification(ctx context.Context, id ids.CUCPUEID, sessions []commonE1.SessionToSetup) (cue1ap.BearerSetupResult, error)
	RemoveUE(id ids.CUCPUEID)
}

// Config carries the processor parameters.
type Config struct {
	DUIndex     ids.DUIndex
	MaxUEsPerDU int
	RRCTimeouts rrc.Timeouts
	DRB         drb.Config
}

// cell is one cell learned from F1 Setup.
type cell struct {
	NRCGI ran.NRCGI
	PCI   uint16
	TAC   ran.TAC
}

// duContext is the attached DU.
type duContext struct {
	GNBDUID uint64
	Name    string
	// cells is keyed by packed NR-CGI for inbound lookups.
	cells map[uint64]cell
}

// UE is one UE attached through this DU.
type UE struct {
	ID      ids.CUCPUEID
	UEIndex ids.UEIndex
	CRNTI   ran.RNTI
	CGI     ran.NRCGI
	TAC     ran.TAC

	DUF1APID ids.GNBDUUEF1APID
	CUF1APID ids.GNBCUUEF1APID

	Queue *exec.Queue
	RRC   *rrc.UE
	DRBs  *drb.Manager

	// hasBearerContext flips after the first successful E1 setup.
	hasBearerContext bool
}

// Processor is the CU-CP side DU processor.
type Processor struct {
	cfg    Config
	timers *exec.Timers
	f1     F1
	ng     NG
	e1     E1
	logger *zap.Logger

	mu         sync.Mutex
	du         *duContext
	ues        map[ids.UEIndex]*UE
	byDUF1APID map[ids.GNBDUUEF1APID]*UE
	nextIndex  ids.UEIndex
}

// New builds a processor for one DU slot.
func New(cfg Config, timers *exec.Timers, f1 F1, ng NG, e1 E1, logger *zap.Logger) *Processor {
	if cfg.MaxUEsPerDU <= 0 || cfg.MaxUEsPerDU > ids.MaxNofUEs {
		cfg.MaxUEsPerDU = ids.MaxNofUEs
	}
	return &Processor{
		cfg:        cfg,
		timers:     timers,
		f1:         f1,
		ng:         ng,
		e1:         e1,
		logger:     logger.With(zap.Uint16("du_index", uint16(cfg.DUIndex))),
		ues:        make(map[ids.UEIndex]*UE),
		byDUF1APID: make(map[ids.GNBDUUEF1APID]*UE),
	}
}

// HandleF1Setup validates the DU's announcement and records its cells.
func (p *Processor) HandleF1Setup(req commonF1.F1SetupRequest) error {
	if len(req.ServedCells) == 0 {
		return fmt.Errorf("%w: no served cells", ErrBadSetup)
	}
	if len(req.ServedCells) > ids.MaxNofDUCells {
		return fmt.Errorf("%w: %d cells exceeds maximum %d", ErrBadSetup, len(req.ServedCells), ids.MaxNofDUCells)
	}
	du := &duContext{GNBDUID: req.GNBDUID, Name: req.GNBDUName, cells: make(map[uint64]cell)}
	for _, c := range req.ServedCells {
		if len(c.MIB) == 0 || len(c.SIB1) == 0 {
			return fmt.Errorf("%w: cell %v without gnb-du-sys-info", ErrBadSetup, c.NRCGI)
		}
		key, err := c.NRCGI.Packed()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadSetup, err)
		}
		du.cells[key] = cell{NRCGI: c.NRCGI, PCI: c.PCI, TAC: c.TAC}
	}

	p.mu.Lock()
	p.du = du
	p.mu.Unlock()

	p.logger.Info("DU attached",
		zap.Uint64("gnb_du_id", req.GNBDUID),
		zap.String("name", req.GNBDUName),
		zap.Int("cells", len(req.ServedCells)),
	)
	return nil
}

// HandleF1Removal tears down every UE and forgets the DU.
func (p *Processor) HandleF1Removal() {
	p.mu.Lock()
	ues := make([]*UE, 0, len(p.ues))
	for _, ue := range p.ues {
		ues = append(ues, ue)
	}
	p.du = nil
	p.mu.Unlock()

	for _, ue := range ues {
		p.ReleaseUE(ue.ID, ErrUnknownDU)
	}
	p.logger.Info("DU removed")
}

func (p *Processor) cellByCGI(cgi ran.NRCGI) (cell, error) {
	key, err := cgi.Packed()
	if err != nil {
		return cell{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.du == nil {
		return cell{}, ErrUnknownDU
	}
	c, ok := p.du.cells[key]
	if !ok {
		return cell{}, fmt.Errorf("%w: unknown cell %v", ids.ErrNotFound, cgi)
	}
	return c, nil
}

// HandleInitialULRRC admits the UE: a CU UE index is allocated, the RRC
// UE is created, and the UL-CCCH PDU is routed to SRB0, or SRB1 when it
// already carries an RRCSetupComplete. The message's DU-to-CU container is
// not passed to the RRC UE and is not stored.
func (p *Processor) HandleInitialULRRC(msg commonF1.InitialULRRCMessageTransfer) error {
	servingCell, err := p.cellByCGI(msg.NRCGI)
	if err != nil {
		return err
	}

	p.mu.Lock()
	index, ok := p.allocateIndexLocked()
	if !ok {
		p.mu.Unlock()
		metrics.UEAdmissionFailures.WithLabelValues("no_ue_slots").Inc()
		return fmt.Errorf("%w: du_index=%d", ErrNoUESlots, p.cfg.DUIndex)
	}

	id := ids.NewCUCPUEID(p.cfg.DUIndex, index)
	ue := &UE{
		ID:       id,
		UEIndex:  index,
		CRNTI:    msg.CRNTI,
		CGI:      msg.NRCGI,
		TAC:      servingCell.TAC,
		DUF1APID: msg.GNBDUUEF1APID,
		CUF1APID: ids.GNBCUUEF1APID(id),
		Queue:    exec.NewQueue(fmt.Sprintf("cucp-ue-%d", id), ueQueueDepth, p.logger),
		DRBs:     drb.NewManager(p.cfg.DRB, p.logger),
	}
	ue.RRC = rrc.NewUE(id, msg.CRNTI, ue.Queue, p.timers, p.cfg.RRCTimeouts,
		&srbTxAdapter{p: p, ue: ue},
		&ngAdapter{p: p, ue: ue},
		&releaseAdapter{p: p},
		p.logger,
	)
	p.ues[index] = ue
	p.byDUF1APID[msg.GNBDUUEF1APID] = ue
	count := len(p.ues)
	p.mu.Unlock()

	metrics.ConnectedUEs.Set(float64(count))
	p.logger.Info("UE admitted",
		zap.Uint64("cu_cp_ue_id", uint64(id)),
		zap.Uint16("c_rnti", uint16(msg.CRNTI)),
		zap.Uint32("gnb_du_ue_f1ap_id", uint32(msg.GNBDUUEF1APID)),
	)

	// An RRCSetupComplete in the first PDU belongs on SRB1 (the UE
	// re-established); everything else is the SRB0 CCCH message.
	if m, err := rrc.UnpackMessage(msg.RRCContainer); err == nil && m.Type == rrc.MsgRRCSetupComplete {
		ue.RRC.HandleULRRC(ran.SRB1, msg.RRCContainer)
	} else {
		ue.RRC.HandleULRRC(ran.SRB0, msg.RRCContainer)
	}
	return nil
}

func (p *Processor) allocateIndexLocked() (ids.UEIndex, bool) {
	if len(p.ues) >= p.cfg.MaxUEsPerDU {
		return 0, false
	}
	for i := 0; i < p.cfg.MaxUEsPerDU; i++ {
		idx := ids.UEIndex((int(p.nextIndex) + i) % p.cfg.MaxUEsPerDU)
		if _, ok := p.ues[idx]; !ok {
			p.nextIndex = ids.UEIndex((int(idx) + 1) % p.cfg.MaxUEsPerDU)
			return idx, true
		}
	}
	return 0, false
}

// HandleULRRC routes an UL RRC container to the UE's RRC entity.
func (p *Processor) HandleULRRC(msg commonF1.ULRRCMessageTransfer) {
	ue, err := p.findByCUF1APID(msg.GNBCUUEF1APID)
	if err != nil {
		p.logger.Warn("UL RRC for unknown UE", zap.Uint32("gnb_cu_ue_f1ap_id", uint32(msg.GNBCUUEF1APID)))
		return
	}
	ue.RRC.HandleULRRC(msg.SRBID, msg.RRCContainer)
}

// FindUE returns the UE with the CU-CP UE id.
func (p *Processor) FindUE(id ids.CUCPUEID) (*UE, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ue, ok := p.ues[id.UEIndexOf()]
	if !ok || ue.ID != id {
		return nil, fmt.Errorf("%w: cu_cp_ue_id=%d", ErrUnknownUE, id)
	}
	return ue, nil
}

func (p *Processor) findByCUF1APID(cuID ids.GNBCUUEF1APID) (*UE, error) {
	return p.FindUE(ids.CUCPUEID(cuID))
}

// FindUEByDUF1APID returns the UE with the DU-assigned F1AP id.
func (p *Processor) FindUEByDUF1APID(duID ids.GNBDUUEF1APID) (*UE, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ue, ok := p.byDUF1APID[duID]
	if !ok {
		return nil, fmt.Errorf("%w: gnb_du_ue_f1ap_id=%d", ErrUnknownUE, duID)
	}
	return ue, nil
}

// NofUEs returns the number of attached UEs.
func (p *Processor) NofUEs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ues)
}

// DeliverDLNAS forwards a DL NAS PDU to the UE.
func (p *Processor) DeliverDLNAS(id ids.CUCPUEID, nas []byte) {
	ue, err := p.FindUE(id)
	if err != nil {
		p.logger.Warn("DL NAS for unknown UE", zap.Uint64("cu_cp_ue_id", uint64(id)))
		return
	}
	ue.RRC.SendDLNAS(nas)
}

// RunSecurityMode drives the UE's security mode procedure. Once security
// is up, SRB2 is established at the DU via UE Context Setup.
func (p *Processor) RunSecurityMode(ctx context.Context, id ids.CUCPUEID, caps ngap.UESecurityCapabilities, key [32]byte) error {
	ue, err := p.FindUE(id)
	if err != nil {
		return err
	}
	if err := ue.RRC.RunSecurityMode(ctx, caps, key); err != nil {
		return err
	}

	resp, err := p.f1.RunUEContextSetup(ctx, commonF1.UEContextSetupRequest{
		GNBCUUEF1APID: ue.CUF1APID,
		GNBDUUEF1APID: ue.DUF1APID,
		SpCellNRCGI:   ue.CGI,
		SRBs:          []commonF1.SRBToSetup{{SRBID: ran.SRB2}},
	})
	if err != nil {
		p.logger.Warn("SRB2 setup at DU failed", zap.Error(err))
		return nil
	}
	for _, srb := range resp.SRBsFailed {
		p.logger.Warn("DU rejected SRB", zap.Uint8("srb_id", uint8(srb)))
	}
	return nil
}

// ReleaseUE tears the UE down: RRC terminal state, F1 release towards the
// DU, NG and E1 bookkeeping, then the UE slot itself.
func (p *Processor) ReleaseUE(id ids.CUCPUEID, cause error) {
	p.mu.Lock()
	ue, ok := p.ues[id.UEIndexOf()]
	if !ok || ue.ID != id {
		p.mu.Unlock()
		return
	}
	delete(p.ues, ue.UEIndex)
	delete(p.byDUF1APID, ue.DUF1APID)
	count := len(p.ues)
	p.mu.Unlock()

	ue.RRC.Release()

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := p.f1.RunUEContextRelease(ctx, ue.CUF1APID, ue.DUF1APID, commonF1.Cause{
		Group: commonF1.CauseGroupRadioNetwork,
		Value: commonF1.CauseRadioNetworkReleaseRequested,
	}); err != nil {
		p.logger.Warn("F1 UE context release failed", zap.Error(err))
	}

	p.ng.RemoveUE(id)
	p.e1.RemoveUE(id)
	ue.Queue.Stop()

	metrics.ConnectedUEs.Set(float64(count))
	p.logger.Info("UE released",
		zap.Uint64("cu_cp_ue_id", uint64(id)),
		zap.NamedError("cause", cause),
	)
}

// SetupPDUSessions drives the multi-leg session setup for each requested
// session: DRB mapping, E1 bearer context, F1 context modification, then
// RRC reconfiguration. Outcomes accumulate per session.
func (p *Processor) SetupPDUSessions(ctx context.Context, id ids.CUCPUEID, sessions []ngap.PDUSessionResourceSetupItem) ([]ngap.PDUSessionResourceSetupResponseItem, []ngap.PDUSessionResourceFailedItem) {
	ctx, span := otel.Tracer("cucp-processor").Start(ctx, "Processor.SetupPDUSessions")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("cu_cp_ue_id", int64(id)),
		attribute.Int("sessions", len(sessions)),
	)

	var succeeded []ngap.PDUSessionResourceSetupResponseItem
	var failed []ngap.PDUSessionResourceFailedItem

	ue, err := p.FindUE(id)
	if err != nil {
		for _, s := range sessions {
			failed = append(failed, ngap.PDUSessionResourceFailedItem{
				PDUSessionID: s.PDUSessionID,
				Cause:        ngap.Cause{Group: ngap.CauseGroupRadioNetwork, Value: ngap.CauseRadioNetworkUnknownUEID},
			})
		}
		return succeeded, failed
	}

	for _, session := range sessions {
		item, err := p.setupOneSession(ctx, ue, session)
		if err != nil {
			p.logger.Warn("PDU session setup failed",
				zap.Uint16("pdu_session_id", uint16(session.PDUSessionID)),
				zap.Error(err),
			)
			failed = append(failed, ngap.PDUSessionResourceFailedItem{
				PDUSessionID: session.PDUSessionID,
				Cause:        causeOf(err),
			})
			continue
		}
		succeeded = append(succeeded, item)
	}
	return succeeded, failed
}

func causeOf(err error) ngap.Cause {
	switch {
	case errors.Is(err, drb.ErrInvalidQoS), errors.Is(err, drb.ErrUnknownFiveQi):
		return ngap.Cause{Group: ngap.CauseGroupRadioNetwork, Value: ngap.CauseRadioNetworkUnspecified}
	case errors.Is(err, drb.ErrDrbsFull):
		return ngap.Cause{Group: ngap.CauseGroupRadioNetwork, Value: ngap.CauseRadioNetworkNoResources}
	case errors.Is(err, cue1ap.ErrTransport), errors.Is(err, cuf1ap.ErrTransport):
		return ngap.Cause{Group: ngap.CauseGroupTransport, Value: ngap.CauseTransportResourceUnavailable}
	default:
		return ngap.Cause{Group: ngap.CauseGroupMisc, Value: ngap.CauseMiscUnspecified}
	}
}

func (p *Processor) setupOneSession(ctx context.Context, ue *UE, session ngap.PDUSessionResourceSetupItem) (ngap.PDUSessionResourceSetupResponseItem, error) {
	var item ngap.PDUSessionResourceSetupResponseItem

	// Leg 1: map QoS flows onto DRBs.
	added, err := ue.DRBs.CalculateDRBsToAdd(session)
	if err != nil {
		return item, err
	}

	// Leg 2: bearer context at the CU-UP.
	e1Session := commonE1.SessionToSetup{
		PDUSessionID:    session.PDUSessionID,
		SNSSAI:          session.SNSSAI,
		ULTunnelAddress: session.ULNGUTunnel.TransportLayerAddress,
		ULTEID:          session.ULNGUTunnel.TEID,
	}
	for _, drbID := range ue.DRBs.DRBsOf(session.PDUSessionID) {
		drbCtx, err := ue.DRBs.Get(drbID)
		if err != nil {
			return item, err
		}
		e1Session.DRBs = append(e1Session.DRBs, commonE1.DRBToSetup{DRBID: drbID, FiveQI: drbCtx.FiveQI})
	}
	var bearer cue1ap.BearerSetupResult
	if ue.hasBearerContext {
		bearer, err = p.e1.RunBearerContextModification(ctx, ue.ID, []commonE1.SessionToSetup{e1Session})
	} else {
		bearer, err = p.e1.RunBearerContextSetup(ctx, ue.ID, []commonE1.SessionToSetup{e1Session})
	}
	if err != nil {
		ue.DRBs.RemoveSession(session.PDUSessionID)
		return item, err
	}
	ue.hasBearerContext = true

	// Leg 3: F1 UE context modification with the new DRBs.
	modReq := commonF1.UEContextModificationRequest{
		GNBCUUEF1APID: ue.CUF1APID,
		GNBDUUEF1APID: ue.DUF1APID,
	}
	for _, drbID := range added {
		drbCtx, err := ue.DRBs.Get(drbID)
		if err != nil {
			return item, err
		}
		modReq.DRBs = append(modReq.DRBs, commonF1.DRBToSetup{
			DRBID:   drbID,
			FiveQI:  drbCtx.FiveQI,
			RLCMode: commonF1.RLCModeAM,
			PDCP: commonF1.PDCPConfig{
				SNSizeDL:       drbCtx.PDCP.SNSizeDL,
				SNSizeUL:       drbCtx.PDCP.SNSizeUL,
				DiscardTimerMs: drbCtx.PDCP.DiscardTimerMs,
				TReorderingMs:  drbCtx.PDCP.TReorderingMs,
			},
		})
	}
	modResp, err := p.f1.RunUEContextModification(ctx, modReq)
	if err != nil {
		ue.DRBs.RemoveSession(session.PDUSessionID)
		return item, err
	}
	if len(modResp.DRBsFailed) > 0 {
		ue.DRBs.RemoveSession(session.PDUSessionID)
		return item, fmt.Errorf("DU rejected DRBs %v", modResp.DRBsFailed)
	}

	// Leg 4: RRC reconfiguration with the radio bearer config and the
	// session's NAS PDU piggy-backed.
	reconfig := rrc.ReconfigurationRequest{}
	for _, drbID := range added {
		drbCtx, _ := ue.DRBs.Get(drbID)
		reconfig.DRBsToAdd = append(reconfig.DRBsToAdd, rrc.DRBConfigItem{DRBID: drbID, FiveQI: drbCtx.FiveQI})
	}
	if len(session.NASPDU) > 0 {
		reconfig.NASPDUs = [][]byte{session.NASPDU}
	}
	if err := ue.RRC.RunReconfiguration(ctx, reconfig); err != nil {
		ue.DRBs.RemoveSession(session.PDUSessionID)
		return item, err
	}

	item = ngap.PDUSessionResourceSetupResponseItem{PDUSessionID: session.PDUSessionID}
	for _, s := range bearer.Sessions {
		if s.PDUSessionID == session.PDUSessionID {
			item.DLNGUTunnel = ngap.GTPTunnel{TransportLayerAddress: s.DLTunnelAddress, TEID: s.DLTEID}
		}
	}
	for _, flow := range session.QoSFlows {
		item.AcceptedQFIs = append(item.AcceptedQFIs, flow.QFI)
	}
	return item, nil
}

// srbTxAdapter carries DL RRC PDUs from the RRC UE into F1.
type srbTxAdapter struct {
	p  *Processor
	ue *UE
}

func (a *srbTxAdapter) OnDLRRCPDU(srb ran.SRBID, container []byte) error {
	return a.p.f1.SendDLRRC(a.ue.CUF1APID, a.ue.DUF1APID, srb, container)
}

// ngAdapter carries NAS payloads from the RRC UE into NGAP.
type ngAdapter struct {
	p  *Processor
	ue *UE
}

func (a *ngAdapter) OnInitialNAS(nas []byte, cause ngap.RRCEstablishmentCause) {
	if err := a.p.ng.SendInitialUEMessage(a.ue.ID, nas, cause, a.ue.CGI, a.ue.TAC); err != nil {
		a.p.logger.Warn("Initial UE Message failed", zap.Error(err))
	}
}

func (a *ngAdapter) OnULNAS(nas []byte) {
	if err := a.p.ng.SendULNAS(a.ue.ID, nas, a.ue.CGI, a.ue.TAC); err != nil {
		a.p.logger.Warn("UL NAS transport failed", zap.Error(err))
	}
}

// releaseAdapter reacts to RRC-internal releases (procedure timeouts).
type releaseAdapter struct {
	p *Processor
}

func (a *releaseAdapter) OnUERelease(id ids.CUCPUEID, cause error) {
	// Runs on the UE queue; the teardown legs must not block it.
	go a.p.ReleaseUE(id, cause)
}
