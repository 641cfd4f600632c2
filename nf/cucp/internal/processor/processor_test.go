package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	commonE1 "github.com/your-org/gnb/common/e1ap"
	"github.com/your-org/gnb/common/exec"
	commonF1 "github.com/your-org/gnb/common/f1ap"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/ngap"
	"github.com/your-org/gnb/common/ran"
	"github.com/your-org/gnb/nf/cucp/internal/drb"
	cue1ap "github.com/your-org/gnb/nf/cucp/internal/e1ap"
	"github.com/your-org/gnb/nf/cucp/internal/rrc"
)

var (
	testPLMN = ran.PLMN{MCC: "001", MNC: "01"}
	testCGI  = ran.NRCGI{PLMN: testPLMN, CellID: 0x19b0}
)

type dlRRC struct {
	CU        ids.GNBCUUEF1APID
	DU        ids.GNBDUUEF1APID
	SRB       ran.SRBID
	Container []byte
}

// fakeF1 emulates the DU side: DL RRC PDUs are recorded, UE context
// procedures succeed, releases complete immediately.
type fakeF1 struct {
	mu       sync.Mutex
	dl       chan dlRRC
	mods     chan commonF1.UEContextModificationRequest
	releases chan ids.GNBCUUEF1APID
	failDRBs bool
}

func newFakeF1() *fakeF1 {
	return &fakeF1{
		dl:       make(chan dlRRC, 16),
		mods:     make(chan commonF1.UEContextModificationRequest, 16),
		releases: make(chan ids.GNBCUUEF1APID, 16),
	}
}

func (f *fakeF1) SendDLRRC(cu ids.GNBCUUEF1APID, du ids.GNBDUUEF1APID, srb ran.SRBID, container []byte) error {
	f.dl <- dlRRC{CU: cu, DU: du, SRB: srb, Container: container}
	return nil
}

func (f *fakeF1) RunUEContextSetup(ctx context.Context, req commonF1.UEContextSetupRequest) (commonF1.UEContextSetupResponse, error) {
	return commonF1.UEContextSetupResponse{
		GNBCUUEF1APID: req.GNBCUUEF1APID,
		GNBDUUEF1APID: req.GNBDUUEF1APID,
	}, nil
}

func (f *fakeF1) RunUEContextModification(ctx context.Context, req commonF1.UEContextModificationRequest) (commonF1.UEContextModificationResponse, error) {
	f.mods <- req
	resp := commonF1.UEContextModificationResponse{
		GNBCUUEF1APID: req.GNBCUUEF1APID,
		GNBDUUEF1APID: req.GNBDUUEF1APID,
	}
	f.mu.Lock()
	fail := f.failDRBs
	f.mu.Unlock()
	for _, d := range req.DRBs {
		if fail {
			resp.DRBsFailed = append(resp.DRBsFailed, d.DRBID)
		} else {
			resp.DRBsSetup = append(resp.DRBsSetup, d.DRBID)
		}
	}
	return resp, nil
}

func (f *fakeF1) RunUEContextRelease(ctx context.Context, cu ids.GNBCUUEF1APID, du ids.GNBDUUEF1APID, cause commonF1.Cause) error {
	f.releases <- cu
	return nil
}

type initialUEMsg struct {
	ID  ids.CUCPUEID
	NAS []byte
}

type fakeNG struct {
	initial chan initialUEMsg
	ulNAS   chan []byte
	removed chan ids.CUCPUEID
}

func newFakeNG() *fakeNG {
	return &fakeNG{
		initial: make(chan initialUEMsg, 8),
		ulNAS:   make(chan []byte, 8),
		removed: make(chan ids.CUCPUEID, 8),
	}
}

func (f *fakeNG) SendInitialUEMessage(id ids.CUCPUEID, nas []byte, cause ngap.RRCEstablishmentCause, cgi ran.NRCGI, tac ran.TAC) error {
	f.initial <- initialUEMsg{ID: id, NAS: nas}
	return nil
}

func (f *fakeNG) SendULNAS(id ids.CUCPUEID, nas []byte, cgi ran.NRCGI, tac ran.TAC) error {
	f.ulNAS <- nas
	return nil
}

func (f *fakeNG) RemoveUE(id ids.CUCPUEID) { f.removed <- id }

type fakeE1 struct {
	setups  chan []commonE1.SessionToSetup
	mods    chan []commonE1.SessionToSetup
	failErr error
}

func newFakeE1() *fakeE1 {
	return &fakeE1{
		setups: make(chan []commonE1.SessionToSetup, 8),
		mods:   make(chan []commonE1.SessionToSetup, 8),
	}
}

func (f *fakeE1) result(sessions []commonE1.SessionToSetup) cue1ap.BearerSetupResult {
	res := cue1ap.BearerSetupResult{CUUPUEE1APID: 9}
	for _, s := range sessions {
		res.Sessions = append(res.Sessions, commonE1.SessionSetup{
			PDUSessionID:    s.PDUSessionID,
			DLTunnelAddress: []byte{10, 0, 0, 9},
			DLTEID:          0x2000,
		})
	}
	return res
}

func (f *fakeE1) RunBearerContextSetup(ctx context.Context, id ids.CUCPUEID, sessions []commonE1.SessionToSetup) (cue1ap.BearerSetupResult, error) {
	f.setups <- sessions
	if f.failErr != nil {
		return cue1ap.BearerSetupResult{}, f.failErr
	}
	return f.result(sessions), nil
}

func (f *fakeE1) RunBearerContextModification(ctx context.Context, id ids.CUCPUEID, sessions []commonE1.SessionToSetup) (cue1ap.BearerSetupResult, error) {
	f.mods <- sessions
	return f.result(sessions), nil
}

func (f *fakeE1) RemoveUE(id ids.CUCPUEID) {}

type harness struct {
	p  *Processor
	f1 *fakeF1
	ng *fakeNG
	e1 *fakeE1
}

func newHarness(t *testing.T, maxUEs int) *harness {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	h := &harness{f1: newFakeF1(), ng: newFakeNG(), e1: newFakeE1()}
	h.p = New(Config{
		DUIndex:     0,
		MaxUEsPerDU: maxUEs,
		DRB: drb.Config{FiveQIConfig: map[ran.FiveQI]drb.PDCPConfig{
			9: {SNSizeDL: 18, SNSizeUL: 18, DiscardTimerMs: 100, TReorderingMs: 80},
		}},
	}, exec.NewTimers(), h.f1, h.ng, h.e1, logger)
	require.NoError(t, h.p.HandleF1Setup(f1SetupRequest(1)))
	return h
}

func f1SetupRequest(nofCells int) commonF1.F1SetupRequest {
	req := commonF1.F1SetupRequest{TransactionID: 1, GNBDUID: 0x11, GNBDUName: "gnb-du-0"}
	for i := 0; i < nofCells; i++ {
		req.ServedCells = append(req.ServedCells, commonF1.ServedCell{
			NRCGI: ran.NRCGI{PLMN: testPLMN, CellID: ran.NRCellID(0x19b0 + i)},
			PCI:   uint16(i + 1),
			TAC:   7,
			MIB:   []byte{1},
			SIB1:  []byte{2},
		})
	}
	return req
}

func pack(t *testing.T, msg rrc.Message) []byte {
	t.Helper()
	b, err := rrc.PackMessage(msg)
	require.NoError(t, err)
	return b
}

func (h *harness) waitDL(t *testing.T) dlRRC {
	t.Helper()
	select {
	case m := <-h.f1.dl:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no DL RRC PDU")
		return dlRRC{}
	}
}

// attachUE drives the initial UE flow up to the connected state.
func (h *harness) attachUE(t *testing.T, duID ids.GNBDUUEF1APID, crnti ran.RNTI) *UE {
	t.Helper()
	require.NoError(t, h.p.HandleInitialULRRC(commonF1.InitialULRRCMessageTransfer{
		GNBDUUEF1APID:   duID,
		NRCGI:           testCGI,
		CRNTI:           crnti,
		RRCContainer:    pack(t, rrc.Message{Type: rrc.MsgRRCSetupRequest}),
		DUtoCUContainer: []byte{0x5c},
	}))

	// The CU answers with RRCSetup on SRB0.
	dl := h.waitDL(t)
	require.Equal(t, ran.SRB0, dl.SRB)
	msg, err := rrc.UnpackMessage(dl.Container)
	require.NoError(t, err)
	require.Equal(t, rrc.MsgRRCSetup, msg.Type)

	ue, err := h.p.FindUEByDUF1APID(duID)
	require.NoError(t, err)

	// The UE completes on SRB1.
	h.p.HandleULRRC(commonF1.ULRRCMessageTransfer{
		GNBCUUEF1APID: ue.CUF1APID,
		GNBDUUEF1APID: duID,
		SRBID:         ran.SRB1,
		RRCContainer:  pack(t, rrc.Message{Type: rrc.MsgRRCSetupComplete, Payload: []byte{0x7e, 0x41}}),
	})
	return ue
}

func TestF1Setup_Validation(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	p := New(Config{}, exec.NewTimers(), newFakeF1(), newFakeNG(), newFakeE1(), logger)

	assert.ErrorIs(t, p.HandleF1Setup(commonF1.F1SetupRequest{}), ErrBadSetup)
	assert.ErrorIs(t, p.HandleF1Setup(f1SetupRequest(ids.MaxNofDUCells+1)), ErrBadSetup)

	bad := f1SetupRequest(1)
	bad.ServedCells[0].SIB1 = nil
	assert.ErrorIs(t, p.HandleF1Setup(bad), ErrBadSetup)

	assert.NoError(t, p.HandleF1Setup(f1SetupRequest(2)))
}

func TestInitialUEFlow(t *testing.T) {
	h := newHarness(t, 8)

	ue := h.attachUE(t, 41255, 0x4601)
	assert.Equal(t, ids.CUCPUEID(0), ue.ID)
	assert.EqualValues(t, 0, ue.CUF1APID)
	assert.EqualValues(t, 41255, ue.DUF1APID)

	// The RRCSetupComplete NAS payload became the Initial UE Message
	// with ran_ue_ngap_id derived from the CU-CP UE id.
	msg := <-h.ng.initial
	assert.Equal(t, ids.CUCPUEID(0), msg.ID)
	assert.EqualValues(t, 0, msg.ID.RANUENGAPIDOf())
	assert.Equal(t, []byte{0x7e, 0x41}, msg.NAS)
}

func TestInitialULRRC_UnknownCellRejected(t *testing.T) {
	h := newHarness(t, 8)
	err := h.p.HandleInitialULRRC(commonF1.InitialULRRCMessageTransfer{
		GNBDUUEF1APID: 1,
		NRCGI:         ran.NRCGI{PLMN: testPLMN, CellID: 0xbad},
		CRNTI:         0x4601,
		RRCContainer:  pack(t, rrc.Message{Type: rrc.MsgRRCSetupRequest}),
	})
	assert.ErrorIs(t, err, ids.ErrNotFound)
}

func TestInitialULRRC_NoUESlots(t *testing.T) {
	h := newHarness(t, 1)
	h.attachUE(t, 1, 0x4601)

	err := h.p.HandleInitialULRRC(commonF1.InitialULRRCMessageTransfer{
		GNBDUUEF1APID: 2,
		NRCGI:         testCGI,
		CRNTI:         0x4602,
		RRCContainer:  pack(t, rrc.Message{Type: rrc.MsgRRCSetupRequest}),
	})
	assert.ErrorIs(t, err, ErrNoUESlots)
}

func TestULNASForwarded(t *testing.T) {
	h := newHarness(t, 8)
	ue := h.attachUE(t, 41255, 0x4601)
	<-h.ng.initial

	h.p.HandleULRRC(commonF1.ULRRCMessageTransfer{
		GNBCUUEF1APID: ue.CUF1APID,
		GNBDUUEF1APID: ue.DUF1APID,
		SRBID:         ran.SRB1,
		RRCContainer:  pack(t, rrc.Message{Type: rrc.MsgULInformationTransfer, Payload: []byte{0x7e, 0x50}}),
	})
	assert.Equal(t, []byte{0x7e, 0x50}, <-h.ng.ulNAS)
}

func sessionRequest(id ran.PDUSessionID, fiveQI ran.FiveQI) ngap.PDUSessionResourceSetupItem {
	q := fiveQI
	return ngap.PDUSessionResourceSetupItem{
		PDUSessionID: id,
		NASPDU:       []byte{0x7e, 0x09},
		SNSSAI:       ran.SNSSAI{SST: 1},
		ULNGUTunnel:  ngap.GTPTunnel{TransportLayerAddress: []byte{10, 0, 0, 1}, TEID: 0x1000},
		QoSFlows: []ngap.QoSFlowSetupItem{{
			QFI:             1,
			Characteristics: ngap.QoSCharacteristics{NonDynamic5QI: &q},
		}},
	}
}

func TestPDUSessionSetup_HappyPath(t *testing.T) {
	h := newHarness(t, 8)
	ue := h.attachUE(t, 41255, 0x4601)
	<-h.ng.initial

	// Drive the reconfiguration leg: answer the DL RRCReconfiguration
	// with a complete.
	go func() {
		for {
			dl := <-h.f1.dl
			msg, err := rrc.UnpackMessage(dl.Container)
			if err != nil {
				continue
			}
			if msg.Type == rrc.MsgRRCReconfiguration {
				h.p.HandleULRRC(commonF1.ULRRCMessageTransfer{
					GNBCUUEF1APID: dl.CU,
					GNBDUUEF1APID: dl.DU,
					SRBID:         ran.SRB1,
					RRCContainer:  mustPack(rrc.Message{Type: rrc.MsgRRCReconfigurationComplete}),
				})
			}
		}
	}()

	succeeded, failed := h.p.SetupPDUSessions(context.Background(), ue.ID, []ngap.PDUSessionResourceSetupItem{sessionRequest(1, 9)})
	require.Empty(t, failed)
	require.Len(t, succeeded, 1)
	assert.Equal(t, ran.PDUSessionID(1), succeeded[0].PDUSessionID)
	assert.EqualValues(t, 0x2000, succeeded[0].DLNGUTunnel.TEID)
	assert.Equal(t, []ran.QoSFlowID{1}, succeeded[0].AcceptedQFIs)

	// DRB-1 exists and is the default DRB.
	drbCtx, err := ue.DRBs.Get(1)
	require.NoError(t, err)
	assert.True(t, drbCtx.DefaultDRB)

	// The E1 and F1 legs both saw DRB-1.
	e1Sessions := <-h.e1.setups
	require.Len(t, e1Sessions, 1)
	assert.Equal(t, ran.DRBID(1), e1Sessions[0].DRBs[0].DRBID)
	mod := <-h.f1.mods
	require.Len(t, mod.DRBs, 1)
	assert.Equal(t, ran.DRBID(1), mod.DRBs[0].DRBID)
	assert.Equal(t, uint8(18), mod.DRBs[0].PDCP.SNSizeDL)
}

func mustPack(msg rrc.Message) []byte {
	b, err := rrc.PackMessage(msg)
	if err != nil {
		panic(err)
	}
	return b
}

func TestPDUSessionSetup_UnknownFiveQiFails(t *testing.T) {
	h := newHarness(t, 8)
	ue := h.attachUE(t, 41255, 0x4601)
	<-h.ng.initial

	succeeded, failed := h.p.SetupPDUSessions(context.Background(), ue.ID, []ngap.PDUSessionResourceSetupItem{sessionRequest(1, 83)})
	assert.Empty(t, succeeded)
	require.Len(t, failed, 1)
	assert.Equal(t, ran.PDUSessionID(1), failed[0].PDUSessionID)
}

func TestPDUSessionSetup_E1FailureRollsBackDRBs(t *testing.T) {
	h := newHarness(t, 8)
	ue := h.attachUE(t, 41255, 0x4601)
	<-h.ng.initial
	h.e1.failErr = cue1ap.ErrTransport

	succeeded, failed := h.p.SetupPDUSessions(context.Background(), ue.ID, []ngap.PDUSessionResourceSetupItem{sessionRequest(1, 9)})
	assert.Empty(t, succeeded)
	require.Len(t, failed, 1)
	assert.Equal(t, ngap.CauseGroupTransport, failed[0].Cause.Group)
	assert.Equal(t, 0, ue.DRBs.NofDRBs())
	<-h.e1.setups
}

func TestReleaseUE_TearsDownEverything(t *testing.T) {
	h := newHarness(t, 8)
	ue := h.attachUE(t, 41255, 0x4601)
	<-h.ng.initial

	h.p.ReleaseUE(ue.ID, nil)

	assert.Equal(t, ue.CUF1APID, <-h.f1.releases)
	assert.Equal(t, ue.ID, <-h.ng.removed)
	assert.Equal(t, 0, h.p.NofUEs())

	_, err := h.p.FindUE(ue.ID)
	assert.ErrorIs(t, err, ErrUnknownUE)
}

func TestRRCSetupTimeout_ReleasesUE(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := &harness{f1: newFakeF1(), ng: newFakeNG(), e1: newFakeE1()}
	timers := exec.NewTimers()
	h.p = New(Config{
		DUIndex:     0,
		MaxUEsPerDU: 8,
		RRCTimeouts: rrc.Timeouts{Setup: 2 * exec.TickResolution},
		DRB:         drb.Config{FiveQIConfig: map[ran.FiveQI]drb.PDCPConfig{}},
	}, timers, h.f1, h.ng, h.e1, logger)
	require.NoError(t, h.p.HandleF1Setup(f1SetupRequest(1)))

	require.NoError(t, h.p.HandleInitialULRRC(commonF1.InitialULRRCMessageTransfer{
		GNBDUUEF1APID: 7,
		NRCGI:         testCGI,
		CRNTI:         0x4601,
		RRCContainer:  pack(t, rrc.Message{Type: rrc.MsgRRCSetupRequest}),
	}))
	h.waitDL(t) // RRCSetup went out; no complete follows

	timers.Tick()
	timers.Tick()

	// The timeout releases the UE towards the DU and the slot frees up.
	assert.EqualValues(t, 0, <-h.f1.releases)
	deadline := time.After(5 * time.Second)
	for h.p.NofUEs() != 0 {
		select {
		case <-deadline:
			t.Fatal("UE not removed after setup timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestF1Removal_ReleasesAllUEs(t *testing.T) {
	h := newHarness(t, 8)
	h.attachUE(t, 1, 0x4601)
	h.attachUE(t, 2, 0x4602)
	<-h.ng.initial
	<-h.ng.initial

	h.p.HandleF1Removal()
	assert.Equal(t, 0, h.p.NofUEs())
}
