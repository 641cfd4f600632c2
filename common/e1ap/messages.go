// Package e1ap models the E1 application protocol (3GPP TS 37.483) PDUs
// exchanged between the CU-CP and CU-UP peers, and packs them to and from
// the wire via the aligned-PER primitives.
package e1ap

import (
	"github.com/your-org/gnb/common/ran"
)

// E1AP procedure codes (TS 37.483).
const (
	ProcGNBCUUPE1Setup            = 3
	ProcBearerContextSetup        = 8
	ProcBearerContextModification = 9
)

// Present selects the PDU container variant.
type Present uint8

const (
	PresentInitiatingMessage Present = iota
	PresentSuccessfulOutcome
	PresentUnsuccessfulOutcome
)

// Message is implemented by every E1AP message body.
type Message interface {
	e1apMessage()
	ProcedureCode() int
}

// PDU is the E1AP PDU container.
type PDU struct {
	Present Present
	Message Message
}

// Cause is a failure cause from a peer PDU.
type Cause struct {
	Group uint8
	Value uint8
}

// Cause groups.
const (
	CauseGroupRadioNetwork = 0
	CauseGroupTransport    = 1
	CauseGroupProtocol     = 2
	CauseGroupMisc         = 3
)

// GNBCUUPE1SetupRequest — CU-UP -> CU-CP. The CU-UP attaches with its id
// and name.
type GNBCUUPE1SetupRequest struct {
	TransactionID uint8
	GNBCUUPID     uint64
	GNBCUUPName   string
}

// GNBCUUPE1SetupResponse — CU-CP -> CU-UP.
type GNBCUUPE1SetupResponse struct {
	TransactionID uint8
	GNBCUCPName   string
}

// GNBCUUPE1SetupFailure — CU-CP -> CU-UP.
type GNBCUUPE1SetupFailure struct {
	TransactionID uint8
	Cause         Cause
}

// SessionToSetup is one PDU session of a bearer context request.
type SessionToSetup struct {
	PDUSessionID ran.PDUSessionID
	SNSSAI       ran.SNSSAI
	// ULTunnelAddress and ULTEID point at the UPF side (NG-U).
	ULTunnelAddress []byte
	ULTEID          uint32
	DRBs            []DRBToSetup
}

// DRBToSetup is one DRB of a bearer context request.
type DRBToSetup struct {
	DRBID  ran.DRBID
	FiveQI ran.FiveQI
}

// BearerContextSetupRequest — CU-CP -> CU-UP.
type BearerContextSetupRequest struct {
	GNBCUCPUEE1APID uint32
	Sessions        []SessionToSetup
}

// SessionSetup is the per-session outcome of a bearer context response,
// carrying the CU-UP's F1-U/NG-U downlink endpoint.
type SessionSetup struct {
	PDUSessionID    ran.PDUSessionID
	DLTunnelAddress []byte
	DLTEID          uint32
}

// BearerContextSetupResponse — CU-UP -> CU-CP.
type BearerContextSetupResponse struct {
	GNBCUCPUEE1APID uint32
	GNBCUUPUEE1APID uint32
	Sessions        []SessionSetup
}

// BearerContextSetupFailure — CU-UP -> CU-CP.
type BearerContextSetupFailure struct {
	GNBCUCPUEE1APID uint32
	Cause           Cause
}

// BearerContextModificationRequest — CU-CP -> CU-UP.
type BearerContextModificationRequest struct {
	GNBCUCPUEE1APID uint32
	GNBCUUPUEE1APID uint32
	Sessions        []SessionToSetup
}

// BearerContextModificationResponse — CU-UP -> CU-CP.
type BearerContextModificationResponse struct {
	GNBCUCPUEE1APID uint32
	GNBCUUPUEE1APID uint32
	Sessions        []SessionSetup
}

// BearerContextModificationFailure — CU-UP -> CU-CP.
type BearerContextModificationFailure struct {
	GNBCUCPUEE1APID uint32
	GNBCUUPUEE1APID uint32
	Cause           Cause
}

func (GNBCUUPE1SetupRequest) e1apMessage()             {}
func (GNBCUUPE1SetupResponse) e1apMessage()            {}
func (GNBCUUPE1SetupFailure) e1apMessage()             {}
func (BearerContextSetupRequest) e1apMessage()         {}
func (BearerContextSetupResponse) e1apMessage()        {}
func (BearerContextSetupFailure) e1apMessage()         {}
func (BearerContextModificationRequest) e1apMessage()  {}
func (BearerContextModificationResponse) e1apMessage() {}
func (BearerContextModificationFailure) e1apMessage()  {}

func (GNBCUUPE1SetupRequest) ProcedureCode() int             { return ProcGNBCUUPE1Setup }
func (GNBCUUPE1SetupResponse) ProcedureCode() int            { return ProcGNBCUUPE1Setup }
func (GNBCUUPE1SetupFailure) ProcedureCode() int             { return ProcGNBCUUPE1Setup }
func (BearerContextSetupRequest) ProcedureCode() int         { return ProcBearerContextSetup }
func (BearerContextSetupResponse) ProcedureCode() int        { return ProcBearerContextSetup }
func (BearerContextSetupFailure) ProcedureCode() int         { return ProcBearerContextSetup }
func (BearerContextModificationRequest) ProcedureCode() int  { return ProcBearerContextModification }
func (BearerContextModificationResponse) ProcedureCode() int { return ProcBearerContextModification }
func (BearerContextModificationFailure) ProcedureCode() int  { return ProcBearerContextModification }
