package ngap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/ran"
)

var testPLMN = ran.PLMN{MCC: "001", MNC: "01"}

func roundTrip(t *testing.T, pdu PDU) Message {
	t.Helper()
	buf, err := Pack(pdu)
	require.NoError(t, err)
	got, err := Unpack(buf)
	require.NoError(t, err)
	assert.Equal(t, pdu.Present, got.Present)
	return got.Message
}

func TestPackUnpack_NGSetupRequest(t *testing.T) {
	sd := uint32(0x010203)
	req := NGSetupRequest{
		TransactionID: 3,
		GlobalGNBID:   GlobalGNBID{PLMN: testPLMN, GNBID: 411},
		RANNodeName:   "gnb-cucp-0",
		SupportedTAs: []SupportedTA{{
			TAC: 7,
			PLMNs: []BroadcastPLMN{{
				PLMN:   testPLMN,
				Slices: []ran.SNSSAI{{SST: 1}, {SST: 1, SD: &sd}},
			}},
		}},
		PagingDRX: PagingDRX256,
	}
	got := roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req})
	assert.Equal(t, req, got)
}

func TestPackUnpack_NGSetupResponseAndFailure(t *testing.T) {
	resp := NGSetupResponse{
		TransactionID:       9,
		AMFName:             "open5gs-amf0",
		ServedGUAMIs:        []GUAMI{{PLMN: testPLMN, RegionID: 2, SetID: 1, Pointer: 0}},
		RelativeAMFCapacity: 255,
	}
	got := roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: resp})
	assert.Equal(t, resp, got)

	fail := NGSetupFailure{
		TransactionID:     9,
		Cause:             Cause{Group: CauseGroupMisc, Value: CauseMiscUnspecified},
		TimeToWaitSeconds: 10,
	}
	got = roundTrip(t, PDU{Present: PresentUnsuccessfulOutcome, Message: fail})
	assert.Equal(t, fail, got)
}

func TestPackUnpack_InitialUEMessage(t *testing.T) {
	msg := InitialUEMessage{
		RANUENGAPID:        0,
		NASPDU:             []byte{0x7e, 0x00, 0x41},
		EstablishmentCause: EstablishmentCauseMOSignalling,
		NRCGI:              ran.NRCGI{PLMN: testPLMN, CellID: 0x12345678},
		TAC:                7,
		UEContextRequest:   true,
	}
	got := roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: msg})
	assert.Equal(t, msg, got)
}

func TestPackUnpack_NASTransports(t *testing.T) {
	ul := UplinkNASTransport{
		AMFUENGAPID: 0x12345,
		RANUENGAPID: 41,
		NASPDU:      []byte{1, 2, 3, 4},
		NRCGI:       ran.NRCGI{PLMN: testPLMN, CellID: 1},
		TAC:         7,
	}
	assert.Equal(t, ul, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: ul}))

	dl := DownlinkNASTransport{
		AMFUENGAPID: ids.AMFUENGAPID(1) << 39, // needs all 40 bits
		RANUENGAPID: 41,
		NASPDU:      []byte{9},
	}
	assert.Equal(t, dl, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: dl}))
}

func TestPackUnpack_InitialContextSetup(t *testing.T) {
	req := InitialContextSetupRequest{
		AMFUENGAPID: 100,
		RANUENGAPID: 0,
		GUAMI:       GUAMI{PLMN: testPLMN, RegionID: 2, SetID: 1, Pointer: 0},
		UESecurityCapabilities: UESecurityCapabilities{
			NRIntegrityAlgorithms: 0xe000,
			NRCipheringAlgorithms: 0xc000,
		},
		NASPDU: []byte{0x7e, 1},
	}
	for i := range req.SecurityKey {
		req.SecurityKey[i] = byte(i)
	}
	got := roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req})
	assert.Equal(t, req, got)

	resp := InitialContextSetupResponse{AMFUENGAPID: 100, RANUENGAPID: 0}
	assert.Equal(t, resp, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: resp}))
}

func TestPackUnpack_PDUSessionResourceSetup(t *testing.T) {
	nine := ran.FiveQI(9)
	req := PDUSessionResourceSetupRequest{
		AMFUENGAPID: 100,
		RANUENGAPID: 0,
		Sessions: []PDUSessionResourceSetupItem{{
			PDUSessionID: 1,
			NASPDU:       []byte{0x7e, 9},
			SNSSAI:       ran.SNSSAI{SST: 1},
			ULNGUTunnel:  GTPTunnel{TransportLayerAddress: []byte{10, 0, 0, 1}, TEID: 0x1000},
			QoSFlows: []QoSFlowSetupItem{{
				QFI:             1,
				Characteristics: QoSCharacteristics{NonDynamic5QI: &nine},
			}},
		}},
	}
	assert.Equal(t, req, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req}))

	resp := PDUSessionResourceSetupResponse{
		AMFUENGAPID: 100,
		RANUENGAPID: 0,
		Succeeded: []PDUSessionResourceSetupResponseItem{{
			PDUSessionID: 1,
			DLNGUTunnel:  GTPTunnel{TransportLayerAddress: []byte{10, 0, 0, 2}, TEID: 0x2000},
			AcceptedQFIs: []ran.QoSFlowID{1},
		}},
		Failed: []PDUSessionResourceFailedItem{{
			PDUSessionID: 2,
			Cause:        Cause{Group: CauseGroupRadioNetwork, Value: CauseRadioNetworkNoResources},
		}},
	}
	assert.Equal(t, resp, roundTrip(t, PDU{Present: PresentSuccessfulOutcome, Message: resp}))
}

func TestPackUnpack_DynamicFiveQI(t *testing.T) {
	q := ran.FiveQI(82)
	req := PDUSessionResourceSetupRequest{
		AMFUENGAPID: 1,
		RANUENGAPID: 2,
		Sessions: []PDUSessionResourceSetupItem{{
			PDUSessionID: 5,
			SNSSAI:       ran.SNSSAI{SST: 1},
			ULNGUTunnel:  GTPTunnel{TransportLayerAddress: []byte{10, 0, 0, 1}, TEID: 1},
			QoSFlows: []QoSFlowSetupItem{{
				QFI: 2,
				Characteristics: QoSCharacteristics{
					Dynamic5QI: &Dynamic5QI{PriorityLevel: 10, FiveQI: &q},
				},
			}},
		}},
	}
	assert.Equal(t, req, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: req}))
}

func TestPackUnpack_ErrorIndication(t *testing.T) {
	m := ErrorIndication{
		AMFUENGAPID: ids.InvalidAMFUENGAPID,
		RANUENGAPID: 3,
		Cause:       Cause{Group: CauseGroupRadioNetwork, Value: CauseRadioNetworkUnknownUEID},
	}
	assert.Equal(t, m, roundTrip(t, PDU{Present: PresentInitiatingMessage, Message: m}))
}

func TestUnpack_Malformed(t *testing.T) {
	_, err := Unpack(bytebuf.FromBytes([]byte{0xff}))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Unpack(bytebuf.FromBytes([]byte{0x00, 0x63, 0x00, 0x02, 0xaa, 0xbb}))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestPack_EmptyPDU(t *testing.T) {
	_, err := Pack(PDU{})
	assert.ErrorIs(t, err, ErrEncode)
}
