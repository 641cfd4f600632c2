// Package ngap models the NG application protocol (3GPP TS 38.413) PDUs
// exchanged between the CU-CP and the AMF, and packs them to and from the
// wire via the aligned-PER primitives.
package ngap

import (
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/ran"
)

// NGAP procedure codes (TS 38.413).
const (
	ProcErrorIndication         = 2
	ProcDownlinkNASTransport    = 4
	ProcInitialContextSetup     = 14
	ProcInitialUEMessage        = 15
	ProcNGSetup                 = 21
	ProcPDUSessionResourceSetup = 29
	ProcUplinkNASTransport      = 46
)

// Present selects the PDU container variant.
type Present uint8

const (
	PresentInitiatingMessage Present = iota
	PresentSuccessfulOutcome
	PresentUnsuccessfulOutcome
)

// Message is implemented by every NGAP message body.
type Message interface {
	ngapMessage()
	// ProcedureCode returns the elementary procedure the message belongs to.
	ProcedureCode() int
}

// PDU is the NGAP PDU container.
type PDU struct {
	Present Present
	Message Message
}

// CauseGroup selects the cause choice arm.
type CauseGroup uint8

const (
	CauseGroupRadioNetwork CauseGroup = iota
	CauseGroupTransport
	CauseGroupNAS
	CauseGroupProtocol
	CauseGroupMisc
)

// Cause is a failure cause from a peer PDU.
type Cause struct {
	Group CauseGroup
	Value uint8
}

// Cause values used by this implementation.
const (
	CauseRadioNetworkUnspecified      = 0
	CauseRadioNetworkUnknownUEID      = 1
	CauseRadioNetworkNoResources      = 2
	CauseTransportResourceUnavailable = 0
	CauseProtocolSemanticError        = 0
	CauseMiscUnspecified              = 0
)

// PagingDRX enumerates the default paging DRX cycle lengths.
type PagingDRX uint8

const (
	PagingDRX32 PagingDRX = iota
	PagingDRX64
	PagingDRX128
	PagingDRX256
)

// RRCEstablishmentCause mirrors the RRC establishment cause enumeration.
type RRCEstablishmentCause uint8

const (
	EstablishmentCauseEmergency RRCEstablishmentCause = iota
	EstablishmentCauseHighPriorityAccess
	EstablishmentCauseMTAccess
	EstablishmentCauseMOSignalling
	EstablishmentCauseMOData
)

// GlobalGNBID identifies the gNB towards the core.
type GlobalGNBID struct {
	PLMN  ran.PLMN
	GNBID uint32 // 22..32 significant bits; fixed 32 here
}

// SupportedTA is one entry of the supported TA list.
type SupportedTA struct {
	TAC   ran.TAC
	PLMNs []BroadcastPLMN
}

// BroadcastPLMN is a PLMN with its slice support list.
type BroadcastPLMN struct {
	PLMN   ran.PLMN
	Slices []ran.SNSSAI
}

// GUAMI is the globally unique AMF identifier.
type GUAMI struct {
	PLMN     ran.PLMN
	RegionID uint8
	SetID    uint16 // 10 bits
	Pointer  uint8  // 6 bits
}

// NGSetupRequest — gNB -> AMF.
type NGSetupRequest struct {
	TransactionID uint8
	GlobalGNBID   GlobalGNBID
	RANNodeName   string
	SupportedTAs  []SupportedTA
	PagingDRX     PagingDRX
}

// NGSetupResponse — AMF -> gNB.
type NGSetupResponse struct {
	TransactionID       uint8
	AMFName             string
	ServedGUAMIs        []GUAMI
	RelativeAMFCapacity uint8
}

// NGSetupFailure — AMF -> gNB.
type NGSetupFailure struct {
	TransactionID uint8
	Cause         Cause
	// TimeToWaitSeconds is zero when the time-to-wait IE is absent.
	TimeToWaitSeconds uint16
}

// InitialUEMessage — gNB -> AMF.
type InitialUEMessage struct {
	RANUENGAPID        ids.RANUENGAPID
	NASPDU             []byte
	EstablishmentCause RRCEstablishmentCause
	NRCGI              ran.NRCGI
	TAC                ran.TAC
	UEContextRequest   bool
}

// UplinkNASTransport — gNB -> AMF.
type UplinkNASTransport struct {
	AMFUENGAPID ids.AMFUENGAPID
	RANUENGAPID ids.RANUENGAPID
	NASPDU      []byte
	NRCGI       ran.NRCGI
	TAC         ran.TAC
}

// DownlinkNASTransport — AMF -> gNB.
type DownlinkNASTransport struct {
	AMFUENGAPID ids.AMFUENGAPID
	RANUENGAPID ids.RANUENGAPID
	NASPDU      []byte
}

// UESecurityCapabilities carries the 16-bit big-endian algorithm
// bitstrings. Only the three leading bits of each are meaningful
// (NIA1/NIA2/NIA3 and NEA1/NEA2/NEA3).
type UESecurityCapabilities struct {
	NRIntegrityAlgorithms uint16
	NRCipheringAlgorithms uint16
}

// InitialContextSetupRequest — AMF -> gNB.
type InitialContextSetupRequest struct {
	AMFUENGAPID            ids.AMFUENGAPID
	RANUENGAPID            ids.RANUENGAPID
	GUAMI                  GUAMI
	UESecurityCapabilities UESecurityCapabilities
	// SecurityKey is the 256-bit KgNB bitstring in ASN.1 transmission
	// order (first transmitted octet first).
	SecurityKey [32]byte
	// NASPDU piggy-backed for the UE; nil when absent.
	NASPDU []byte
}

// InitialContextSetupResponse — gNB -> AMF.
type InitialContextSetupResponse struct {
	AMFUENGAPID ids.AMFUENGAPID
	RANUENGAPID ids.RANUENGAPID
}

// InitialContextSetupFailure — gNB -> AMF.
type InitialContextSetupFailure struct {
	AMFUENGAPID ids.AMFUENGAPID
	RANUENGAPID ids.RANUENGAPID
	Cause       Cause
}

// GTPTunnel is an uplink or downlink GTP-U endpoint.
type GTPTunnel struct {
	TransportLayerAddress []byte // 4 or 16 bytes
	TEID                  uint32
}

// QoSCharacteristics selects non-dynamic or dynamic 5QI. Exactly one of
// the pointers is set.
type QoSCharacteristics struct {
	NonDynamic5QI *ran.FiveQI
	Dynamic5QI    *Dynamic5QI
}

// Dynamic5QI carries dynamic QoS characteristics; FiveQI may be absent.
type Dynamic5QI struct {
	PriorityLevel uint8
	FiveQI        *ran.FiveQI
}

// QoSFlowSetupItem is one QoS flow requested within a PDU session.
type QoSFlowSetupItem struct {
	QFI             ran.QoSFlowID
	Characteristics QoSCharacteristics
}

// PDUSessionResourceSetupItem is one session of the setup request.
type PDUSessionResourceSetupItem struct {
	PDUSessionID ran.PDUSessionID
	NASPDU       []byte
	SNSSAI       ran.SNSSAI
	ULNGUTunnel  GTPTunnel
	QoSFlows     []QoSFlowSetupItem
}

// PDUSessionResourceSetupRequest — AMF -> gNB.
type PDUSessionResourceSetupRequest struct {
	AMFUENGAPID ids.AMFUENGAPID
	RANUENGAPID ids.RANUENGAPID
	Sessions    []PDUSessionResourceSetupItem
}

// PDUSessionResourceSetupResponseItem is one succeeded session.
type PDUSessionResourceSetupResponseItem struct {
	PDUSessionID ran.PDUSessionID
	DLNGUTunnel  GTPTunnel
	AcceptedQFIs []ran.QoSFlowID
}

// PDUSessionResourceFailedItem is one failed session.
type PDUSessionResourceFailedItem struct {
	PDUSessionID ran.PDUSessionID
	Cause        Cause
}

// PDUSessionResourceSetupResponse — gNB -> AMF.
type PDUSessionResourceSetupResponse struct {
	AMFUENGAPID ids.AMFUENGAPID
	RANUENGAPID ids.RANUENGAPID
	Succeeded   []PDUSessionResourceSetupResponseItem
	Failed      []PDUSessionResourceFailedItem
}

// ErrorIndication — either direction.
type ErrorIndication struct {
	// AMFUENGAPID is InvalidAMFUENGAPID when absent.
	AMFUENGAPID ids.AMFUENGAPID
	RANUENGAPID ids.RANUENGAPID
	Cause       Cause
}

func (NGSetupRequest) ngapMessage()                  {}
func (NGSetupResponse) ngapMessage()                 {}
func (NGSetupFailure) ngapMessage()                  {}
func (InitialUEMessage) ngapMessage()                {}
func (UplinkNASTransport) ngapMessage()              {}
func (DownlinkNASTransport) ngapMessage()            {}
func (InitialContextSetupRequest) ngapMessage()      {}
func (InitialContextSetupResponse) ngapMessage()     {}
func (InitialContextSetupFailure) ngapMessage()      {}
func (PDUSessionResourceSetupRequest) ngapMessage()  {}
func (PDUSessionResourceSetupResponse) ngapMessage() {}
func (ErrorIndication) ngapMessage()                 {}

func (NGSetupRequest) ProcedureCode() int                  { return ProcNGSetup }
func (NGSetupResponse) ProcedureCode() int                 { return ProcNGSetup }
func (NGSetupFailure) ProcedureCode() int                  { return ProcNGSetup }
func (InitialUEMessage) ProcedureCode() int                { return ProcInitialUEMessage }
func (UplinkNASTransport) ProcedureCode() int              { return ProcUplinkNASTransport }
func (DownlinkNASTransport) ProcedureCode() int            { return ProcDownlinkNASTransport }
func (InitialContextSetupRequest) ProcedureCode() int      { return ProcInitialContextSetup }
func (InitialContextSetupResponse) ProcedureCode() int     { return ProcInitialContextSetup }
func (InitialContextSetupFailure) ProcedureCode() int      { return ProcInitialContextSetup }
func (PDUSessionResourceSetupRequest) ProcedureCode() int  { return ProcPDUSessionResourceSetup }
func (PDUSessionResourceSetupResponse) ProcedureCode() int { return ProcPDUSessionResourceSetup }
func (ErrorIndication) ProcedureCode() int                 { return ProcErrorIndication }
