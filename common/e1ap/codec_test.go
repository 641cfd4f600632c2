package e1ap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/ran"
)

func roundTrip(t *testing.T, pdu PDU) Message {
	t.Helper()
	buf, err := Pack(pdu)
	require.NoError(t, err)
	got, err := Unpack(buf)
	require.NoError(t, err)
	assert.Equal(t, pdu.Present, got.Present)
	return got.Message
}

func TestPackUnpack_CUUPSetup(t *testing.T) {
	req := GNBCUUPE1SetupRequest{TransactionID: 1, GNBCUUPID: 0x77, GNBCUUPName: "cu-up-0"}
	assert.Equal(t, req, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req}))

	resp := GNBCUUPE1SetupResponse{TransactionID: 1, GNBCUCPName: "gnb-cucp-0"}
	assert.Equal(t, resp, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: resp}))

	fail := GNBCUUPE1SetupFailure{TransactionID: 1, Cause: Cause{Group: CauseGroupMisc, Value: 0}}
	assert.Equal(t, fail, roundTrip(t, PDU{Present: PresentUnsuccessfulOutcome, Message: fail}))
}

func TestPackUnpack_BearerContextSetup(t *testing.T) {
	req := BearerContextSetupRequest{
		GNBCUCPUEE1APID: 7,
		Sessions: []SessionToSetup{{
			PDUSessionID:    1,
			SNSSAI:          ran.SNSSAI{SST: 1},
			ULTunnelAddress: []byte{10, 0, 0, 1},
			ULTEID:          0x1000,
			DRBs:            []DRBToSetup{{DRBID: 1, FiveQI: 9}},
		}},
	}
	assert.Equal(t, req, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req}))

	resp := BearerContextSetupResponse{
		GNBCUCPUEE1APID: 7,
		GNBCUUPUEE1APID: 9,
		Sessions: []SessionSetup{{
			PDUSessionID:    1,
			DLTunnelAddress: []byte{10, 0, 0, 9},
			DLTEID:          0x2000,
		}},
	}
	assert.Equal(t, resp, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: resp}))

	fail := BearerContextSetupFailure{
		GNBCUCPUEE1APID: 7,
		Cause:           Cause{Group: CauseGroupRadioNetwork, Value: 2},
	}
	assert.Equal(t, fail, roundTrip(t, PDU{Present: PresentUnsuccessfulOutcome, Message: fail}))
}

func TestPackUnpack_BearerContextModification(t *testing.T) {
	req := BearerContextModificationRequest{
		GNBCUCPUEE1APID: 7,
		GNBCUUPUEE1APID: 9,
		Sessions: []SessionToSetup{{
			PDUSessionID:    2,
			SNSSAI:          ran.SNSSAI{SST: 1},
			ULTunnelAddress: []byte{10, 0, 0, 1},
			ULTEID:          5,
			DRBs:            []DRBToSetup{{DRBID: 2, FiveQI: 7}},
		}},
	}
	assert.Equal(t, req, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req}))

	resp := BearerContextModificationResponse{
		GNBCUCPUEE1APID: 7,
		GNBCUUPUEE1APID: 9,
		Sessions:        []SessionSetup{{PDUSessionID: 2, DLTunnelAddress: []byte{10, 0, 0, 9}, DLTEID: 6}},
	}
	assert.Equal(t, resp, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: resp}))
}

func TestUnpack_Malformed(t *testing.T) {
	_, err := Unpack(bytebuf.FromBytes([]byte{0x01, 0x02}))
	assert.ErrorIs(t, err, ErrDecode)
}
