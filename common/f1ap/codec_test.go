package f1ap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/ran"
)

var testCGI = ran.NRCGI{PLMN: ran.PLMN{MCC: "001", MNC: "01"}, CellID: 0x19b0}

func roundTrip(t *testing.T, pdu PDU) Message {
	t.Helper()
	buf, err := Pack(pdu)
	require.NoError(t, err)
	got, err := Unpack(buf)
	require.NoError(t, err)
	assert.Equal(t, pdu.Present, got.Present)
	return got.Message
}

func TestPackUnpack_F1Setup(t *testing.T) {
	req := F1SetupRequest{
		TransactionID: 1,
		GNBDUID:       0x11,
		GNBDUName:     "gnb-du-0",
		ServedCells: []ServedCell{{
			NRCGI: testCGI,
			PCI:   1,
			TAC:   7,
			MIB:   []byte{0x01, 0x02},
			SIB1:  []byte{0x03, 0x04, 0x05},
		}},
	}
	assert.Equal(t, req, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req}))

	resp := F1SetupResponse{
		TransactionID:   1,
		GNBCUName:       "gnb-cucp-0",
		CellsToActivate: []ran.NRCGI{testCGI},
	}
	assert.Equal(t, resp, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: resp}))

	fail := F1SetupFailure{
		TransactionID:     1,
		Cause:             Cause{Group: CauseGroupRadioNetwork, Value: CauseRadioNetworkUnspecified},
		TimeToWaitSeconds: 10,
	}
	assert.Equal(t, fail, roundTrip(t, PDU{Present: PresentUnsuccessfulOutcome, Message: fail}))
}

func TestPackUnpack_InitialULRRC(t *testing.T) {
	m := InitialULRRCMessageTransfer{
		GNBDUUEF1APID:   41255,
		NRCGI:           testCGI,
		CRNTI:           0x4601,
		RRCContainer:    []byte{0x1d, 0xec},
		DUtoCUContainer: []byte{0x5c, 0x00, 0x01},
	}
	assert.Equal(t, m, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: m}))
}

func TestPackUnpack_RRCTransfers(t *testing.T) {
	dl := DLRRCMessageTransfer{
		GNBCUUEF1APID: 0,
		GNBDUUEF1APID: 41255,
		SRBID:         ran.SRB0,
		RRCContainer:  []byte{0xaa},
	}
	assert.Equal(t, dl, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: dl}))

	ul := ULRRCMessageTransfer{
		GNBCUUEF1APID: 0,
		GNBDUUEF1APID: 41255,
		SRBID:         ran.SRB1,
		RRCContainer:  []byte{0xbb, 0xcc},
	}
	assert.Equal(t, ul, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: ul}))
}

func TestPackUnpack_UEContextSetup(t *testing.T) {
	req := UEContextSetupRequest{
		GNBCUUEF1APID: 0,
		GNBDUUEF1APID: 41255,
		SpCellNRCGI:   testCGI,
		SRBs:          []SRBToSetup{{SRBID: ran.SRB2}},
		DRBs: []DRBToSetup{{
			DRBID:   1,
			FiveQI:  9,
			RLCMode: RLCModeAM,
			PDCP:    PDCPConfig{SNSizeDL: 18, SNSizeUL: 18, DiscardTimerMs: 100, TReorderingMs: 80},
		}},
	}
	assert.Equal(t, req, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req}))

	resp := UEContextSetupResponse{
		GNBCUUEF1APID:   0,
		GNBDUUEF1APID:   41255,
		DUtoCUContainer: []byte{1, 2, 3},
		SRBsSetup:       []ran.SRBID{ran.SRB2},
		DRBsSetup:       []ran.DRBID{1},
	}
	assert.Equal(t, resp, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: resp}))
}

func TestPackUnpack_UEContextModAndRelease(t *testing.T) {
	mod := UEContextModificationRequest{
		GNBCUUEF1APID: 3,
		GNBDUUEF1APID: 4,
		DRBs: []DRBToSetup{{
			DRBID:   2,
			FiveQI:  7,
			RLCMode: RLCModeUM,
			PDCP:    PDCPConfig{SNSizeDL: 12, SNSizeUL: 12},
		}},
		DRBsToRelease: []ran.DRBID{1},
	}
	assert.Equal(t, mod, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: mod}))

	modResp := UEContextModificationResponse{
		GNBCUUEF1APID: 3,
		GNBDUUEF1APID: 4,
		DRBsSetup:     []ran.DRBID{2},
	}
	assert.Equal(t, modResp, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: modResp}))

	cmd := UEContextReleaseCommand{
		GNBCUUEF1APID: 3,
		GNBDUUEF1APID: 4,
		Cause:         Cause{Group: CauseGroupRadioNetwork, Value: CauseRadioNetworkReleaseRequested},
	}
	assert.Equal(t, cmd, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: cmd}))

	complete := UEContextReleaseComplete{GNBCUUEF1APID: 3, GNBDUUEF1APID: 4}
	assert.Equal(t, complete, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: complete}))
}

func TestPackUnpack_F1Removal(t *testing.T) {
	req := F1RemovalRequest{TransactionID: 9}
	assert.Equal(t, req, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req}))
	resp := F1RemovalResponse{TransactionID: 9}
	assert.Equal(t, resp, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: resp}))
}

func TestUnpack_Malformed(t *testing.T) {
	_, err := Unpack(bytebuf.FromBytes([]byte{0x40}))
	assert.ErrorIs(t, err, ErrDecode)

	// Unknown procedure code.
	_, err = Unpack(bytebuf.FromBytes([]byte{0x00, 0x63, 0x00, 0x01, 0x00}))
	assert.ErrorIs(t, err, ErrDecode)
}
