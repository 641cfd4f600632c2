// Package f1ap models the F1 application protocol (3GPP TS 38.473) PDUs
// exchanged between the CU-CP and the DU, and packs them to and from the
// wire via the aligned-PER primitives.
package f1ap

import (
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/ran"
)

// F1AP procedure codes (TS 38.473).
const (
	ProcReset                 = 0
	ProcF1Setup               = 1
	ProcErrorIndication       = 2
	ProcUEContextSetup        = 5
	ProcUEContextRelease      = 6
	ProcUEContextModification = 7
	ProcInitialULRRCTransfer  = 11
	ProcDLRRCTransfer         = 12
	ProcULRRCTransfer         = 13
	ProcF1Removal             = 41
)

// Present selects the PDU container variant.
type Present uint8

const (
	PresentInitiatingMessage Present = iota
	PresentSuccessfulOutcome
	PresentUnsuccessfulOutcome
)

// Message is implemented by every F1AP message body.
type Message interface {
	f1apMessage()
	ProcedureCode() int
}

// PDU is the F1AP PDU container.
type PDU struct {
	Present Present
	Message Message
}

// CauseGroup selects the cause choice arm.
type CauseGroup uint8

const (
	CauseGroupRadioNetwork CauseGroup = iota
	CauseGroupTransport
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
	CauseRadioNetworkNoRadioResources = 2
	CauseRadioNetworkReleaseRequested = 3
	CauseTransportUnavailable         = 0
	CauseProtocolSemanticError        = 0
	CauseMiscUnspecified              = 0
)

// ServedCell is one cell announced in F1 Setup, with its packed system
// information (gnb-du-sys-info).
type ServedCell struct {
	NRCGI ran.NRCGI
	PCI   uint16 // physical cell id, 0..1007
	TAC   ran.TAC
	// MIB and SIB1 are the packed system information containers.
	MIB  []byte
	SIB1 []byte
}

// F1SetupRequest — DU -> CU.
type F1SetupRequest struct {
	TransactionID uint8
	GNBDUID       uint64
	GNBDUName     string
	ServedCells   []ServedCell
}

// F1SetupResponse — CU -> DU.
type F1SetupResponse struct {
	TransactionID   uint8
	GNBCUName       string
	CellsToActivate []ran.NRCGI
}

// F1SetupFailure — CU -> DU.
type F1SetupFailure struct {
	TransactionID     uint8
	Cause             Cause
	TimeToWaitSeconds uint16
}

// InitialULRRCMessageTransfer — DU -> CU. Carries the UL-CCCH PDU and the
// DU-to-CU container (CellGroupConfig).
type InitialULRRCMessageTransfer struct {
	GNBDUUEF1APID   ids.GNBDUUEF1APID
	NRCGI           ran.NRCGI
	CRNTI           ran.RNTI
	RRCContainer    []byte
	DUtoCUContainer []byte
}

// DLRRCMessageTransfer — CU -> DU.
type DLRRCMessageTransfer struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	GNBDUUEF1APID ids.GNBDUUEF1APID
	SRBID         ran.SRBID
	RRCContainer  []byte
}

// ULRRCMessageTransfer — DU -> CU.
type ULRRCMessageTransfer struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	GNBDUUEF1APID ids.GNBDUUEF1APID
	SRBID         ran.SRBID
	RRCContainer  []byte
}

// RLCMode is the RLC mode requested for a DRB.
type RLCMode uint8

const (
	RLCModeAM RLCMode = iota
	RLCModeUM
)

// PDCPConfig is the per-DRB PDCP configuration carried on F1.
type PDCPConfig struct {
	SNSizeDL       uint8 // 12 or 18
	SNSizeUL       uint8
	DiscardTimerMs uint16
	TReorderingMs  uint16
}

// SRBToSetup is one SRB of a UE context setup/modification.
type SRBToSetup struct {
	SRBID ran.SRBID
}

// DRBToSetup is one DRB of a UE context setup/modification.
type DRBToSetup struct {
	DRBID   ran.DRBID
	FiveQI  ran.FiveQI
	RLCMode RLCMode
	PDCP    PDCPConfig
}

// UEContextSetupRequest — CU -> DU.
type UEContextSetupRequest struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	// GNBDUUEF1APID is zero when the CU does not know it yet.
	GNBDUUEF1APID ids.GNBDUUEF1APID
	SpCellNRCGI   ran.NRCGI
	SRBs          []SRBToSetup
	DRBs          []DRBToSetup
}

// UEContextSetupResponse — DU -> CU.
type UEContextSetupResponse struct {
	GNBCUUEF1APID   ids.GNBCUUEF1APID
	GNBDUUEF1APID   ids.GNBDUUEF1APID
	DUtoCUContainer []byte
	SRBsSetup       []ran.SRBID
	DRBsSetup       []ran.DRBID
	SRBsFailed      []ran.SRBID
	DRBsFailed      []ran.DRBID
}

// UEContextSetupFailure — DU -> CU.
type UEContextSetupFailure struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	GNBDUUEF1APID ids.GNBDUUEF1APID
	Cause         Cause
}

// UEContextModificationRequest — CU -> DU.
type UEContextModificationRequest struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	GNBDUUEF1APID ids.GNBDUUEF1APID
	SRBs          []SRBToSetup
	DRBs          []DRBToSetup
	DRBsToRelease []ran.DRBID
}

// UEContextModificationResponse — DU -> CU.
type UEContextModificationResponse struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	GNBDUUEF1APID ids.GNBDUUEF1APID
	DRBsSetup     []ran.DRBID
	DRBsFailed    []ran.DRBID
}

// UEContextModificationFailure — DU -> CU.
type UEContextModificationFailure struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	GNBDUUEF1APID ids.GNBDUUEF1APID
	Cause         Cause
}

// UEContextReleaseCommand — CU -> DU.
type UEContextReleaseCommand struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	GNBDUUEF1APID ids.GNBDUUEF1APID
	Cause         Cause
}

// UEContextReleaseComplete — DU -> CU.
type UEContextReleaseComplete struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	GNBDUUEF1APID ids.GNBDUUEF1APID
}

// F1RemovalRequest — DU -> CU. Requests complete DU tear-down.
type F1RemovalRequest struct {
	TransactionID uint8
}

// F1RemovalResponse — CU -> DU.
type F1RemovalResponse struct {
	TransactionID uint8
}

// ErrorIndication — either direction.
type ErrorIndication struct {
	GNBCUUEF1APID ids.GNBCUUEF1APID
	GNBDUUEF1APID ids.GNBDUUEF1APID
	Cause         Cause
}

func (F1SetupRequest) f1apMessage()                {}
func (F1SetupResponse) f1apMessage()               {}
func (F1SetupFailure) f1apMessage()                {}
func (InitialULRRCMessageTransfer) f1apMessage()   {}
func (DLRRCMessageTransfer) f1apMessage()          {}
func (ULRRCMessageTransfer) f1apMessage()          {}
func (UEContextSetupRequest) f1apMessage()         {}
func (UEContextSetupResponse) f1apMessage()        {}
func (UEContextSetupFailure) f1apMessage()         {}
func (UEContextModificationRequest) f1apMessage()  {}
func (UEContextModificationResponse) f1apMessage() {}
func (UEContextModificationFailure) f1apMessage()  {}
func (UEContextReleaseCommand) f1apMessage()       {}
func (UEContextReleaseComplete) f1apMessage()      {}
func (F1RemovalRequest) f1apMessage()              {}
func (F1RemovalResponse) f1apMessage()             {}
func (ErrorIndication) f1apMessage()               {}

func (F1SetupRequest) ProcedureCode() int                { return ProcF1Setup }
func (F1SetupResponse) ProcedureCode() int               { return ProcF1Setup }
func (F1SetupFailure) ProcedureCode() int                { return ProcF1Setup }
func (InitialULRRCMessageTransfer) ProcedureCode() int   { return ProcInitialULRRCTransfer }
func (DLRRCMessageTransfer) ProcedureCode() int          { return ProcDLRRCTransfer }
func (ULRRCMessageTransfer) ProcedureCode() int          { return ProcULRRCTransfer }
func (UEContextSetupRequest) ProcedureCode() int         { return ProcUEContextSetup }
func (UEContextSetupResponse) ProcedureCode() int        { return ProcUEContextSetup }
func (UEContextSetupFailure) ProcedureCode() int         { return ProcUEContextSetup }
func (UEContextModificationRequest) ProcedureCode() int  { return ProcUEContextModification }
func (UEContextModificationResponse) ProcedureCode() int { return ProcUEContextModification }
func (UEContextModificationFailure) ProcedureCode() int  { return ProcUEContextModification }
func (UEContextReleaseCommand) ProcedureCode() int       { return ProcUEContextRelease }
func (UEContextReleaseComplete) ProcedureCode() int      { return ProcUEContextRelease }
func (F1RemovalRequest) ProcedureCode() int              { return ProcF1Removal }
func (F1RemovalResponse) ProcedureCode() int             { return ProcF1Removal }
func (ErrorIndication) ProcedureCode() int               { return ProcErrorIndication }
