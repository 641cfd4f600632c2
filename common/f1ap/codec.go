package f1ap

import (
	"errors"
	"fmt"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/ids"
	"github.com/your-org/gnb/common/per"
	"github.com/your-org/gnb/common/ran"
)

// Codec errors.
var (
	ErrEncode = errors.New("f1ap: encode error")
	ErrDecode = errors.New("f1ap: decode error")
)

// Protocol IE ids (TS 38.473 §9.4).
const (
	ieCause           uint16 = 0
	ieCRNTI           uint16 = 95
	ieDRBsFailedList  uint16 = 13
	ieDRBsToRelease   uint16 = 31
	ieDRBsSetupList   uint16 = 27
	ieDRBsToSetupList uint16 = 35
	ieDUtoCUContainer uint16 = 39
	ieGNBCUUEF1APID   uint16 = 40
	ieGNBDUUEF1APID   uint16 = 41
	ieGNBDUID         uint16 = 42
	ieGNBDUName       uint16 = 45
	ieGNBCUName       uint16 = 82
	ieNRCGI           uint16 = 111
	ieRRCContainer    uint16 = 50
	ieServedCells     uint16 = 43
	ieCellsToActivate uint16 = 3
	ieSRBID           uint16 = 64
	ieSRBsFailedList  uint16 = 65
	ieSRBsSetupList   uint16 = 66
	ieSRBsToSetupList uint16 = 74
	ieTimeToWait      uint16 = 77
	ieTransactionID   uint16 = 78
)

const maxUEF1APID = int64(1)<<32 - 1

func ieUint(id uint16, criticality int, v, min, max int64) (per.IE, error) {
	w := per.NewBitWriter()
	if err := per.WriteConstrainedWholeNumber(w, v, min, max); err != nil {
		return per.IE{}, fmt.Errorf("%w: IE %d: %v", ErrEncode, id, err)
	}
	return per.IE{ID: id, Criticality: criticality, Value: w.Bytes()}, nil
}

func decUint(set per.IESet, id uint16, min, max int64) (int64, error) {
	v, err := set.Get(id)
	if err != nil {
		return 0, err
	}
	return per.ReadConstrainedWholeNumber(per.NewBitReader(v), min, max)
}

func ieOctets(id uint16, criticality int, p []byte) (per.IE, error) {
	w := per.NewBitWriter()
	if err := per.WriteOctetString(w, p, 0, -1, false); err != nil {
		return per.IE{}, fmt.Errorf("%w: IE %d: %v", ErrEncode, id, err)
	}
	return per.IE{ID: id, Criticality: criticality, Value: w.Bytes()}, nil
}

func decOctets(set per.IESet, id uint16) ([]byte, error) {
	v, err := set.Get(id)
	if err != nil {
		return nil, err
	}
	return per.ReadOctetString(per.NewBitReader(v), 0, -1, false)
}

func ieFunc(id uint16, criticality int, enc func(*per.BitWriter) error) (per.IE, error) {
	w := per.NewBitWriter()
	if err := enc(w); err != nil {
		return per.IE{}, fmt.Errorf("%w: IE %d: %v", ErrEncode, id, err)
	}
	return per.IE{ID: id, Criticality: criticality, Value: w.Bytes()}, nil
}

func encNRCGI(w *per.BitWriter, cgi ran.NRCGI) error {
	b, err := cgi.PLMN.Encode()
	if err != nil {
		return err
	}
	if err := per.WriteOctetString(w, b[:], 3, 3, false); err != nil {
		return err
	}
	return per.WriteConstrainedWholeNumber(w, int64(cgi.CellID), 0, int64(ran.MaxNRCellID))
}

func decNRCGI(r *per.BitReader) (ran.NRCGI, error) {
	b, err := per.ReadOctetString(r, 3, 3, false)
	if err != nil {
		return ran.NRCGI{}, err
	}
	plmn, err := ran.DecodePLMN([3]byte{b[0], b[1], b[2]})
	if err != nil {
		return ran.NRCGI{}, err
	}
	cell, err := per.ReadConstrainedWholeNumber(r, 0, int64(ran.MaxNRCellID))
	if err != nil {
		return ran.NRCGI{}, err
	}
	return ran.NRCGI{PLMN: plmn, CellID: ran.NRCellID(cell)}, nil
}

func encCause(c Cause) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		if err := per.WriteChoice(w, int(c.Group), 4, true); err != nil {
			return err
		}
		return per.WriteConstrainedWholeNumber(w, int64(c.Value), 0, 255)
	}
}

func decCause(set per.IESet) (Cause, error) {
	v, err := set.Get(ieCause)
	if err != nil {
		return Cause{}, err
	}
	r := per.NewBitReader(v)
	group, err := per.ReadChoice(r, 4, true)
	if err != nil {
		return Cause{}, err
	}
	val, err := per.ReadConstrainedWholeNumber(r, 0, 255)
	if err != nil {
		return Cause{}, err
	}
	return Cause{Group: CauseGroup(group), Value: uint8(val)}, nil
}

func encDRBList(drbs []DRBToSetup) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(drbs)), 0, ran.MaxNofDRBs); err != nil {
			return err
		}
		for _, d := range drbs {
			if err := per.WriteConstrainedWholeNumber(w, int64(d.DRBID), 1, ran.MaxNofDRBs); err != nil {
				return err
			}
			if err := per.WriteConstrainedWholeNumber(w, int64(d.FiveQI), 0, 255); err != nil {
				return err
			}
			if err := per.WriteEnumerated(w, int(d.RLCMode), 2, true); err != nil {
				return err
			}
			if err := per.WriteConstrainedWholeNumber(w, int64(d.PDCP.SNSizeDL), 0, 31); err != nil {
				return err
			}
			if err := per.WriteConstrainedWholeNumber(w, int64(d.PDCP.SNSizeUL), 0, 31); err != nil {
				return err
			}
			if err := per.WriteConstrainedWholeNumber(w, int64(d.PDCP.DiscardTimerMs), 0, 65535); err != nil {
				return err
			}
			if err := per.WriteConstrainedWholeNumber(w, int64(d.PDCP.TReorderingMs), 0, 65535); err != nil {
				return err
			}
		}
		return nil
	}
}

func decDRBList(v []byte) ([]DRBToSetup, error) {
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 0, ran.MaxNofDRBs)
	if err != nil {
		return nil, err
	}
	var out []DRBToSetup
	for i := int64(0); i < n; i++ {
		var d DRBToSetup
		id, err := per.ReadConstrainedWholeNumber(r, 1, ran.MaxNofDRBs)
		if err != nil {
			return nil, err
		}
		d.DRBID = ran.DRBID(id)
		q, err := per.ReadConstrainedWholeNumber(r, 0, 255)
		if err != nil {
			return nil, err
		}
		d.FiveQI = ran.FiveQI(q)
		mode, err := per.ReadEnumerated(r, 2, true)
		if err != nil {
			return nil, err
		}
		d.RLCMode = RLCMode(mode)
		sn, err := per.ReadConstrainedWholeNumber(r, 0, 31)
		if err != nil {
			return nil, err
		}
		d.PDCP.SNSizeDL = uint8(sn)
		sn, err = per.ReadConstrainedWholeNumber(r, 0, 31)
		if err != nil {
			return nil, err
		}
		d.PDCP.SNSizeUL = uint8(sn)
		discard, err := per.ReadConstrainedWholeNumber(r, 0, 65535)
		if err != nil {
			return nil, err
		}
		d.PDCP.DiscardTimerMs = uint16(discard)
		reorder, err := per.ReadConstrainedWholeNumber(r, 0, 65535)
		if err != nil {
			return nil, err
		}
		d.PDCP.TReorderingMs = uint16(reorder)
		out = append(out, d)
	}
	return out, nil
}

func encSRBList(srbs []SRBToSetup) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(srbs)), 0, 4); err != nil {
			return err
		}
		for _, s := range srbs {
			if err := per.WriteConstrainedWholeNumber(w, int64(s.SRBID), 0, 3); err != nil {
				return err
			}
		}
		return nil
	}
}

func decSRBList(v []byte) ([]SRBToSetup, error) {
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 0, 4)
	if err != nil {
		return nil, err
	}
	var out []SRBToSetup
	for i := int64(0); i < n; i++ {
		id, err := per.ReadConstrainedWholeNumber(r, 0, 3)
		if err != nil {
			return nil, err
		}
		out = append(out, SRBToSetup{SRBID: ran.SRBID(id)})
	}
	return out, nil
}

func encSRBIDList(srbs []ran.SRBID) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(srbs)), 0, 4); err != nil {
			return err
		}
		for _, s := range srbs {
			if err := per.WriteConstrainedWholeNumber(w, int64(s), 0, 3); err != nil {
				return err
			}
		}
		return nil
	}
}

func decSRBIDList(v []byte) ([]ran.SRBID, error) {
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 0, 4)
	if err != nil {
		return nil, err
	}
	var out []ran.SRBID
	for i := int64(0); i < n; i++ {
		id, err := per.ReadConstrainedWholeNumber(r, 0, 3)
		if err != nil {
			return nil, err
		}
		out = append(out, ran.SRBID(id))
	}
	return out, nil
}

func encDRBIDList(drbs []ran.DRBID) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(drbs)), 0, ran.MaxNofDRBs); err != nil {
			return err
		}
		for _, d := range drbs {
			if err := per.WriteConstrainedWholeNumber(w, int64(d), 1, ran.MaxNofDRBs); err != nil {
				return err
			}
		}
		return nil
	}
}

func decDRBIDList(v []byte) ([]ran.DRBID, error) {
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 0, ran.MaxNofDRBs)
	if err != nil {
		return nil, err
	}
	var out []ran.DRBID
	for i := int64(0); i < n; i++ {
		id, err := per.ReadConstrainedWholeNumber(r, 1, ran.MaxNofDRBs)
		if err != nil {
			return nil, err
		}
		out = append(out, ran.DRBID(id))
	}
	return out, nil
}

// Pack encodes a PDU into a byte container.
func Pack(pdu PDU) (*bytebuf.Buffer, error) {
	if pdu.Message == nil {
		return nil, fmt.Errorf("%w: empty PDU", ErrEncode)
	}
	ies, err := encodeMessage(pdu.Message)
	if err != nil {
		return nil, err
	}
	body := per.NewBitWriter()
	per.WriteSequencePreamble(body, true, 0, 0)
	if err := per.WriteIEs(body, ies); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	w := per.NewBitWriter()
	if err := per.WriteChoice(w, int(pdu.Present), 3, true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	w.WriteBytes([]byte{byte(pdu.Message.ProcedureCode())})
	if err := per.WriteEnumerated(w, per.CriticalityReject, 3, false); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if err := per.WriteLengthDeterminant(w, body.Len()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	w.WriteBytes(body.Bytes())
	return bytebuf.FromBytes(w.Bytes()), nil
}

// Unpack decodes a byte container into a PDU.
func Unpack(buf *bytebuf.Buffer) (PDU, error) {
	r := per.NewBitReader(buf.Bytes())
	present, err := per.ReadChoice(r, 3, true)
	if err != nil {
		return PDU{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	codeBytes, err := r.ReadBytes(1)
	if err != nil {
		return PDU{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if _, err := per.ReadEnumerated(r, 3, false); err != nil {
		return PDU{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	n, err := per.ReadLengthDeterminant(r)
	if err != nil {
		return PDU{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	body, err := r.ReadBytes(n)
	if err != nil {
		return PDU{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	br := per.NewBitReader(body)
	if _, err := per.ReadSequencePreamble(br, true, 0); err != nil {
		return PDU{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	rawIEs, err := per.ReadIEs(br)
	if err != nil {
		return PDU{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	msg, err := decodeMessage(Present(present), int(codeBytes[0]), per.ToSet(rawIEs))
	if err != nil {
		return PDU{}, err
	}
	return PDU{Present: Present(present), Message: msg}, nil
}

func encodeMessage(msg Message) ([]per.IE, error) {
	switch m := msg.(type) {
	case F1SetupRequest:
		return encodeF1SetupRequest(m)
	case F1SetupResponse:
		return encodeF1SetupResponse(m)
	case F1SetupFailure:
		return encodeF1SetupFailure(m)
	case InitialULRRCMessageTransfer:
		return encodeInitialULRRC(m)
	case DLRRCMessageTransfer:
		return encodeRRCTransfer(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID), m.SRBID, m.RRCContainer)
	case ULRRCMessageTransfer:
		return encodeRRCTransfer(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID), m.SRBID, m.RRCContainer)
	case UEContextSetupRequest:
		return encodeUECtxtSetupRequest(m)
	case UEContextSetupResponse:
		return encodeUECtxtSetupResponse(m)
	case UEContextSetupFailure:
		return encodeUEIDsWithCause(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID), m.Cause)
	case UEContextModificationRequest:
		return encodeUECtxtModRequest(m)
	case UEContextModificationResponse:
		return encodeUECtxtModResponse(m)
	case UEContextModificationFailure:
		return encodeUEIDsWithCause(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID), m.Cause)
	case UEContextReleaseCommand:
		return encodeUEIDsWithCause(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID), m.Cause)
	case UEContextReleaseComplete:
		return encodeUEIDs(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID))
	case F1RemovalRequest:
		ie, err := ieUint(ieTransactionID, per.CriticalityReject, int64(m.TransactionID), 0, 255)
		if err != nil {
			return nil, err
		}
		return []per.IE{ie}, nil
	case F1RemovalResponse:
		ie, err := ieUint(ieTransactionID, per.CriticalityReject, int64(m.TransactionID), 0, 255)
		if err != nil {
			return nil, err
		}
		return []per.IE{ie}, nil
	case ErrorIndication:
		return encodeUEIDsWithCause(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID), m.Cause)
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", ErrEncode, msg)
	}
}

func decodeMessage(present Present, code int, set per.IESet) (Message, error) {
	switch {
	case code == ProcF1Setup && present == PresentInitiatingMessage:
		return decodeF1SetupRequest(set)
	case code == ProcF1Setup && present == PresentSuccessfulOutcome:
		return decodeF1SetupResponse(set)
	case code == ProcF1Setup && present == PresentUnsuccessfulOutcome:
		return decodeF1SetupFailure(set)
	case code == ProcInitialULRRCTransfer && present == PresentInitiatingMessage:
		return decodeInitialULRRC(set)
	case code == ProcDLRRCTransfer && present == PresentInitiatingMessage:
		cu, du, srb, container, err := decodeRRCTransfer(set)
		if err != nil {
			return nil, err
		}
		return DLRRCMessageTransfer{GNBCUUEF1APID: cu, GNBDUUEF1APID: du, SRBID: srb, RRCContainer: container}, nil
	case code == ProcULRRCTransfer && present == PresentInitiatingMessage:
		cu, du, srb, container, err := decodeRRCTransfer(set)
		if err != nil {
			return nil, err
		}
		return ULRRCMessageTransfer{GNBCUUEF1APID: cu, GNBDUUEF1APID: du, SRBID: srb, RRCContainer: container}, nil
	case code == ProcUEContextSetup && present == PresentInitiatingMessage:
		return decodeUECtxtSetupRequest(set)
	case code == ProcUEContextSetup && present == PresentSuccessfulOutcome:
		return decodeUECtxtSetupResponse(set)
	case code == ProcUEContextSetup && present == PresentUnsuccessfulOutcome:
		cu, du, cause, err := decodeUEIDsWithCause(set)
		if err != nil {
			return nil, err
		}
		return UEContextSetupFailure{GNBCUUEF1APID: cu, GNBDUUEF1APID: du, Cause: cause}, nil
	case code == ProcUEContextModification && present == PresentInitiatingMessage:
		return decodeUECtxtModRequest(set)
	case code == ProcUEContextModification && present == PresentSuccessfulOutcome:
		return decodeUECtxtModResponse(set)
	case code == ProcUEContextModification && present == PresentUnsuccessfulOutcome:
		cu, du, cause, err := decodeUEIDsWithCause(set)
		if err != nil {
			return nil, err
		}
		return UEContextModificationFailure{GNBCUUEF1APID: cu, GNBDUUEF1APID: du, Cause: cause}, nil
	case code == ProcUEContextRelease && present == PresentInitiatingMessage:
		cu, du, cause, err := decodeUEIDsWithCause(set)
		if err != nil {
			return nil, err
		}
		return UEContextReleaseCommand{GNBCUUEF1APID: cu, GNBDUUEF1APID: du, Cause: cause}, nil
	case code == ProcUEContextRelease && present == PresentSuccessfulOutcome:
		cu, du, err := decodeUEIDs(set)
		if err != nil {
			return nil, err
		}
		return UEContextReleaseComplete{GNBCUUEF1APID: cu, GNBDUUEF1APID: du}, nil
	case code == ProcF1Removal && present == PresentInitiatingMessage:
		t, err := decUint(set, ieTransactionID, 0, 255)
		if err != nil {
			return nil, err
		}
		return F1RemovalRequest{TransactionID: uint8(t)}, nil
	case code == ProcF1Removal && present == PresentSuccessfulOutcome:
		t, err := decUint(set, ieTransactionID, 0, 255)
		if err != nil {
			return nil, err
		}
		return F1RemovalResponse{TransactionID: uint8(t)}, nil
	case code == ProcErrorIndication && present == PresentInitiatingMessage:
		cu, du, cause, err := decodeUEIDsWithCause(set)
		if err != nil {
			return nil, err
		}
		return ErrorIndication{GNBCUUEF1APID: cu, GNBDUUEF1APID: du, Cause: cause}, nil
	default:
		return nil, fmt.Errorf("%w: unknown PDU (present=%d, code=%d)", ErrDecode, present, code)
	}
}

func encodeF1SetupRequest(m F1SetupRequest) ([]per.IE, error) {
	ieTrans, err := ieUint(ieTransactionID, per.CriticalityReject, int64(m.TransactionID), 0, 255)
	if err != nil {
		return nil, err
	}
	ieID, err := ieFunc(ieGNBDUID, per.CriticalityReject, func(w *per.BitWriter) error {
		w.WriteBits(m.GNBDUID, 64)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ieName, err := ieOctets(ieGNBDUName, per.CriticalityIgnore, []byte(m.GNBDUName))
	if err != nil {
		return nil, err
	}
	ieCells, err := ieFunc(ieServedCells, per.CriticalityReject, func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(m.ServedCells)), 0, 512); err != nil {
			return err
		}
		for _, c := range m.ServedCells {
			if err := encNRCGI(w, c.NRCGI); err != nil {
				return err
			}
			if err := per.WriteConstrainedWholeNumber(w, int64(c.PCI), 0, 1007); err != nil {
				return err
			}
			tac := c.TAC.Encode()
			if err := per.WriteOctetString(w, tac[:], 3, 3, false); err != nil {
				return err
			}
			if err := per.WriteOctetString(w, c.MIB, 0, -1, false); err != nil {
				return err
			}
			if err := per.WriteOctetString(w, c.SIB1, 0, -1, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []per.IE{ieTrans, ieID, ieName, ieCells}, nil
}

func decodeF1SetupRequest(set per.IESet) (Message, error) {
	var m F1SetupRequest
	t, err := decUint(set, ieTransactionID, 0, 255)
	if err != nil {
		return nil, err
	}
	m.TransactionID = uint8(t)
	v, err := set.Get(ieGNBDUID)
	if err != nil {
		return nil, err
	}
	id, err := per.NewBitReader(v).ReadBits(64)
	if err != nil {
		return nil, err
	}
	m.GNBDUID = id
	name, err := decOctets(set, ieGNBDUName)
	if err != nil {
		return nil, err
	}
	m.GNBDUName = string(name)
	v, err = set.Get(ieServedCells)
	if err != nil {
		return nil, err
	}
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 0, 512)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < n; i++ {
		var c ServedCell
		if c.NRCGI, err = decNRCGI(r); err != nil {
			return nil, err
		}
		pci, err := per.ReadConstrainedWholeNumber(r, 0, 1007)
		if err != nil {
			return nil, err
		}
		c.PCI = uint16(pci)
		tac, err := per.ReadOctetString(r, 3, 3, false)
		if err != nil {
			return nil, err
		}
		c.TAC = ran.DecodeTAC([3]byte{tac[0], tac[1], tac[2]})
		if c.MIB, err = per.ReadOctetString(r, 0, -1, false); err != nil {
			return nil, err
		}
		if c.SIB1, err = per.ReadOctetString(r, 0, -1, false); err != nil {
			return nil, err
		}
		m.ServedCells = append(m.ServedCells, c)
	}
	return m, nil
}

func encodeF1SetupResponse(m F1SetupResponse) ([]per.IE, error) {
	ieTrans, err := ieUint(ieTransactionID, per.CriticalityReject, int64(m.TransactionID), 0, 255)
	if err != nil {
		return nil, err
	}
	ieName, err := ieOctets(ieGNBCUName, per.CriticalityIgnore, []byte(m.GNBCUName))
	if err != nil {
		return nil, err
	}
	ieCells, err := ieFunc(ieCellsToActivate, per.CriticalityReject, func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(m.CellsToActivate)), 0, 512); err != nil {
			return err
		}
		for _, cgi := range m.CellsToActivate {
			if err := encNRCGI(w, cgi); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []per.IE{ieTrans, ieName, ieCells}, nil
}

func decodeF1SetupResponse(set per.IESet) (Message, error) {
	var m F1SetupResponse
	t, err := decUint(set, ieTransactionID, 0, 255)
	if err != nil {
		return nil, err
	}
	m.TransactionID = uint8(t)
	name, err := decOctets(set, ieGNBCUName)
	if err != nil {
		return nil, err
	}
	m.GNBCUName = string(name)
	v, err := set.Get(ieCellsToActivate)
	if err != nil {
		return nil, err
	}
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 0, 512)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < n; i++ {
		cgi, err := decNRCGI(r)
		if err != nil {
			return nil, err
		}
		m.CellsToActivate = append(m.CellsToActivate, cgi)
	}
	return m, nil
}

func encodeF1SetupFailure(m F1SetupFailure) ([]per.IE, error) {
	ieTrans, err := ieUint(ieTransactionID, per.CriticalityReject, int64(m.TransactionID), 0, 255)
	if err != nil {
		return nil, err
	}
	ieC, err := ieFunc(ieCause, per.CriticalityIgnore, encCause(m.Cause))
	if err != nil {
		return nil, err
	}
	out := []per.IE{ieTrans, ieC}
	if m.TimeToWaitSeconds > 0 {
		ieTTW, err := ieUint(ieTimeToWait, per.CriticalityIgnore, int64(m.TimeToWaitSeconds), 1, 3600)
		if err != nil {
			return nil, err
		}
		out = append(out, ieTTW)
	}
	return out, nil
}

func decodeF1SetupFailure(set per.IESet) (Message, error) {
	var m F1SetupFailure
	t, err := decUint(set, ieTransactionID, 0, 255)
	if err != nil {
		return nil, err
	}
	m.TransactionID = uint8(t)
	if m.Cause, err = decCause(set); err != nil {
		return nil, err
	}
	if _, ok := set.Lookup(ieTimeToWait); ok {
		ttw, err := decUint(set, ieTimeToWait, 1, 3600)
		if err != nil {
			return nil, err
		}
		m.TimeToWaitSeconds = uint16(ttw)
	}
	return m, nil
}

func encodeInitialULRRC(m InitialULRRCMessageTransfer) ([]per.IE, error) {
	ieDU, err := ieUint(ieGNBDUUEF1APID, per.CriticalityReject, int64(m.GNBDUUEF1APID), 0, maxUEF1APID)
	if err != nil {
		return nil, err
	}
	ieCGI, err := ieFunc(ieNRCGI, per.CriticalityReject, func(w *per.BitWriter) error {
		return encNRCGI(w, m.NRCGI)
	})
	if err != nil {
		return nil, err
	}
	ieRNTI, err := ieUint(ieCRNTI, per.CriticalityReject, int64(m.CRNTI), 0, 65535)
	if err != nil {
		return nil, err
	}
	ieRRC, err := ieOctets(ieRRCContainer, per.CriticalityReject, m.RRCContainer)
	if err != nil {
		return nil, err
	}
	ieDU2CU, err := ieOctets(ieDUtoCUContainer, per.CriticalityReject, m.DUtoCUContainer)
	if err != nil {
		return nil, err
	}
	return []per.IE{ieDU, ieCGI, ieRNTI, ieRRC, ieDU2CU}, nil
}

func decodeInitialULRRC(set per.IESet) (Message, error) {
	var m InitialULRRCMessageTransfer
	du, err := decUint(set, ieGNBDUUEF1APID, 0, maxUEF1APID)
	if err != nil {
		return nil, err
	}
	m.GNBDUUEF1APID = ids.GNBDUUEF1APID(du)
	v, err := set.Get(ieNRCGI)
	if err != nil {
		return nil, err
	}
	if m.NRCGI, err = decNRCGI(per.NewBitReader(v)); err != nil {
		return nil, err
	}
	rnti, err := decUint(set, ieCRNTI, 0, 65535)
	if err != nil {
		return nil, err
	}
	m.CRNTI = ran.RNTI(rnti)
	if m.RRCContainer, err = decOctets(set, ieRRCContainer); err != nil {
		return nil, err
	}
	if m.DUtoCUContainer, err = decOctets(set, ieDUtoCUContainer); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeRRCTransfer(cu, du uint32, srb ran.SRBID, container []byte) ([]per.IE, error) {
	ieCU, err := ieUint(ieGNBCUUEF1APID, per.CriticalityReject, int64(cu), 0, maxUEF1APID)
	if err != nil {
		return nil, err
	}
	ieDU, err := ieUint(ieGNBDUUEF1APID, per.CriticalityReject, int64(du), 0, maxUEF1APID)
	if err != nil {
		return nil, err
	}
	ieSRB, err := ieUint(ieSRBID, per.CriticalityReject, int64(srb), 0, 3)
	if err != nil {
		return nil, err
	}
	ieRRC, err := ieOctets(ieRRCContainer, per.CriticalityReject, container)
	if err != nil {
		return nil, err
	}
	return []per.IE{ieCU, ieDU, ieSRB, ieRRC}, nil
}

func decodeRRCTransfer(set per.IESet) (ids.GNBCUUEF1APID, ids.GNBDUUEF1APID, ran.SRBID, []byte, error) {
	cu, err := decUint(set, ieGNBCUUEF1APID, 0, maxUEF1APID)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	du, err := decUint(set, ieGNBDUUEF1APID, 0, maxUEF1APID)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	srb, err := decUint(set, ieSRBID, 0, 3)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	container, err := decOctets(set, ieRRCContainer)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	return ids.GNBCUUEF1APID(cu), ids.GNBDUUEF1APID(du), ran.SRBID(srb), container, nil
}

func encodeUEIDs(cu, du uint32) ([]per.IE, error) {
	ieCU, err := ieUint(ieGNBCUUEF1APID, per.CriticalityReject, int64(cu), 0, maxUEF1APID)
	if err != nil {
		return nil, err
	}
	ieDU, err := ieUint(ieGNBDUUEF1APID, per.CriticalityReject, int64(du), 0, maxUEF1APID)
	if err != nil {
		return nil, err
	}
	return []per.IE{ieCU, ieDU}, nil
}

func decodeUEIDs(set per.IESet) (ids.GNBCUUEF1APID, ids.GNBDUUEF1APID, error) {
	cu, err := decUint(set, ieGNBCUUEF1APID, 0, maxUEF1APID)
	if err != nil {
		return 0, 0, err
	}
	du, err := decUint(set, ieGNBDUUEF1APID, 0, maxUEF1APID)
	if err != nil {
		return 0, 0, err
	}
	return ids.GNBCUUEF1APID(cu), ids.GNBDUUEF1APID(du), nil
}

func encodeUEIDsWithCause(cu, du uint32, cause Cause) ([]per.IE, error) {
	out, err := encodeUEIDs(cu, du)
	if err != nil {
		return nil, err
	}
	ieC, err := ieFunc(ieCause, per.CriticalityIgnore, encCause(cause))
	if err != nil {
		return nil, err
	}
	return append(out, ieC), nil
}

func decodeUEIDsWithCause(set per.IESet) (ids.GNBCUUEF1APID, ids.GNBDUUEF1APID, Cause, error) {
	cu, du, err := decodeUEIDs(set)
	if err != nil {
		return 0, 0, Cause{}, err
	}
	cause, err := decCause(set)
	if err != nil {
		return 0, 0, Cause{}, err
	}
	return cu, du, cause, nil
}

func encodeUECtxtSetupRequest(m UEContextSetupRequest) ([]per.IE, error) {
	out, err := encodeUEIDs(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID))
	if err != nil {
		return nil, err
	}
	ieCGI, err := ieFunc(ieNRCGI, per.CriticalityReject, func(w *per.BitWriter) error {
		return encNRCGI(w, m.SpCellNRCGI)
	})
	if err != nil {
		return nil, err
	}
	ieSRBs, err := ieFunc(ieSRBsToSetupList, per.CriticalityReject, encSRBList(m.SRBs))
	if err != nil {
		return nil, err
	}
	ieDRBs, err := ieFunc(ieDRBsToSetupList, per.CriticalityReject, encDRBList(m.DRBs))
	if err != nil {
		return nil, err
	}
	return append(out, ieCGI, ieSRBs, ieDRBs), nil
}

func decodeUECtxtSetupRequest(set per.IESet) (Message, error) {
	var m UEContextSetupRequest
	cu, du, err := decodeUEIDs(set)
	if err != nil {
		return nil, err
	}
	m.GNBCUUEF1APID, m.GNBDUUEF1APID = cu, du
	v, err := set.Get(ieNRCGI)
	if err != nil {
		return nil, err
	}
	if m.SpCellNRCGI, err = decNRCGI(per.NewBitReader(v)); err != nil {
		return nil, err
	}
	v, err = set.Get(ieSRBsToSetupList)
	if err != nil {
		return nil, err
	}
	if m.SRBs, err = decSRBList(v); err != nil {
		return nil, err
	}
	v, err = set.Get(ieDRBsToSetupList)
	if err != nil {
		return nil, err
	}
	if m.DRBs, err = decDRBList(v); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeUECtxtSetupResponse(m UEContextSetupResponse) ([]per.IE, error) {
	out, err := encodeUEIDs(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID))
	if err != nil {
		return nil, err
	}
	ieDU2CU, err := ieOctets(ieDUtoCUContainer, per.CriticalityReject, m.DUtoCUContainer)
	if err != nil {
		return nil, err
	}
	ieSRBsOK, err := ieFunc(ieSRBsSetupList, per.CriticalityIgnore, encSRBIDList(m.SRBsSetup))
	if err != nil {
		return nil, err
	}
	ieDRBsOK, err := ieFunc(ieDRBsSetupList, per.CriticalityIgnore, encDRBIDList(m.DRBsSetup))
	if err != nil {
		return nil, err
	}
	ieSRBsKO, err := ieFunc(ieSRBsFailedList, per.CriticalityIgnore, encSRBIDList(m.SRBsFailed))
	if err != nil {
		return nil, err
	}
	ieDRBsKO, err := ieFunc(ieDRBsFailedList, per.CriticalityIgnore, encDRBIDList(m.DRBsFailed))
	if err != nil {
		return nil, err
	}
	return append(out, ieDU2CU, ieSRBsOK, ieDRBsOK, ieSRBsKO, ieDRBsKO), nil
}

func decodeUECtxtSetupResponse(set per.IESet) (Message, error) {
	var m UEContextSetupResponse
	cu, du, err := decodeUEIDs(set)
	if err != nil {
		return nil, err
	}
	m.GNBCUUEF1APID, m.GNBDUUEF1APID = cu, du
	if m.DUtoCUContainer, err = decOctets(set, ieDUtoCUContainer); err != nil {
		return nil, err
	}
	v, err := set.Get(ieSRBsSetupList)
	if err != nil {
		return nil, err
	}
	if m.SRBsSetup, err = decSRBIDList(v); err != nil {
		return nil, err
	}
	v, err = set.Get(ieDRBsSetupList)
	if err != nil {
		return nil, err
	}
	if m.DRBsSetup, err = decDRBIDList(v); err != nil {
		return nil, err
	}
	v, err = set.Get(ieSRBsFailedList)
	if err != nil {
		return nil, err
	}
	if m.SRBsFailed, err = decSRBIDList(v); err != nil {
		return nil, err
	}
	v, err = set.Get(ieDRBsFailedList)
	if err != nil {
		return nil, err
	}
	if m.DRBsFailed, err = decDRBIDList(v); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeUECtxtModRequest(m UEContextModificationRequest) ([]per.IE, error) {
	out, err := encodeUEIDs(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID))
	if err != nil {
		return nil, err
	}
	ieSRBs, err := ieFunc(ieSRBsToSetupList, per.CriticalityReject, encSRBList(m.SRBs))
	if err != nil {
		return nil, err
	}
	ieDRBs, err := ieFunc(ieDRBsToSetupList, per.CriticalityReject, encDRBList(m.DRBs))
	if err != nil {
		return nil, err
	}
	ieRel, err := ieFunc(ieDRBsToRelease, per.CriticalityReject, encDRBIDList(m.DRBsToRelease))
	if err != nil {
		return nil, err
	}
	return append(out, ieSRBs, ieDRBs, ieRel), nil
}

func decodeUECtxtModRequest(set per.IESet) (Message, error) {
	var m UEContextModificationRequest
	cu, du, err := decodeUEIDs(set)
	if err != nil {
		return nil, err
	}
	m.GNBCUUEF1APID, m.GNBDUUEF1APID = cu, du
	v, err := set.Get(ieSRBsToSetupList)
	if err != nil {
		return nil, err
	}
	if m.SRBs, err = decSRBList(v); err != nil {
		return nil, err
	}
	v, err = set.Get(ieDRBsToSetupList)
	if err != nil {
		return nil, err
	}
	if m.DRBs, err = decDRBList(v); err != nil {
		return nil, err
	}
	v, err = set.Get(ieDRBsToRelease)
	if err != nil {
		return nil, err
	}
	if m.DRBsToRelease, err = decDRBIDList(v); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeUECtxtModResponse(m UEContextModificationResponse) ([]per.IE, error) {
	out, err := encodeUEIDs(uint32(m.GNBCUUEF1APID), uint32(m.GNBDUUEF1APID))
	if err != nil {
		return nil, err
	}
	ieOK, err := ieFunc(ieDRBsSetupList, per.CriticalityIgnore, encDRBIDList(m.DRBsSetup))
	if err != nil {
		return nil, err
	}
	ieKO, err := ieFunc(ieDRBsFailedList, per.CriticalityIgnore, encDRBIDList(m.DRBsFailed))
	if err != nil {
		return nil, err
	}
	return append(out, ieOK, ieKO), nil
}

func decodeUECtxtModResponse(set per.IESet) (Message, error) {
	var m UEContextModificationResponse
	cu, du, err := decodeUEIDs(set)
	if err != nil {
		return nil, err
	}
	m.GNBCUUEF1APID, m.GNBDUUEF1APID = cu, du
	v, err := set.Get(ieDRBsSetupList)
	if err != nil {
		return nil, err
	}
	if m.DRBsSetup, err = decDRBIDList(v); err != nil {
		return nil, err
	}
	v, err = set.Get(ieDRBsFailedList)
	if err != nil {
		return nil, err
	}
	if m.DRBsFailed, err = decDRBIDList(v); err != nil {
		return nil, err
	}
	return m, nil
}
