package ngap

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
	ErrEncode = errors.New("ngap: encode error")
	ErrDecode = errors.New("ngap: decode error")
)

// Protocol IE ids (TS 38.413 §9.4; the transaction id rides a private id).
const (
	ieAMFName              uint16 = 1
	ieAMFUENGAPID          uint16 = 10
	ieCause                uint16 = 15
	iePagingDRX            uint16 = 21
	ieGlobalRANNodeID      uint16 = 27
	ieGUAMI                uint16 = 28
	ieNASPDU               uint16 = 38
	ieSessionFailedList    uint16 = 58
	ieSessionSetupListReq  uint16 = 74
	ieSessionSetupListRes  uint16 = 75
	ieRANNodeName          uint16 = 82
	ieRANUENGAPID          uint16 = 85
	ieRelativeAMFCapacity  uint16 = 86
	ieEstablishmentCause   uint16 = 90
	ieSecurityKey          uint16 = 94
	ieServedGUAMIList      uint16 = 96
	ieSupportedTAList      uint16 = 102
	ieTimeToWait           uint16 = 107
	ieUEContextRequest     uint16 = 112
	ieUESecurityCaps       uint16 = 119
	ieUserLocation         uint16 = 121
	ieTransactionID        uint16 = 250
)

const (
	maxAMFUENGAPID = int64(ids.MaxAMFUENGAPID)
	maxRANUENGAPID = int64(1)<<32 - 1
)

func encodeIE(id uint16, criticality int, enc func(*per.BitWriter) error) (per.IE, error) {
	w := per.NewBitWriter()
	if err := enc(w); err != nil {
		return per.IE{}, fmt.Errorf("%w: IE %d: %v", ErrEncode, id, err)
	}
	return per.IE{ID: id, Criticality: criticality, Value: w.Bytes()}, nil
}

// Pack encodes a PDU into a byte container.
func Pack(pdu PDU) (*bytebuf.Buffer, error) {
	if pdu.Message == nil {
		return nil, fmt.Errorf("%w: empty PDU", ErrEncode)
	}
	body, err := encodeMessage(pdu.Message)
	if err != nil {
		return nil, err
	}
	w := per.NewBitWriter()
	if err := per.WriteChoice(w, int(pdu.Present), 3, true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	w.WriteBytes([]byte{byte(pdu.Message.ProcedureCode())})
	if err := per.WriteEnumerated(w, per.CriticalityReject, 3, false); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if err := per.WriteLengthDeterminant(w, len(body)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	w.WriteBytes(body)
	return bytebuf.FromBytes(w.Bytes()), nil
}

// Unpack decodes a byte container into a PDU. Unknown PDU variants and
// malformed bodies return ErrDecode; nothing partial is delivered.
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
	msg, err := decodeMessage(Present(present), int(codeBytes[0]), body)
	if err != nil {
		return PDU{}, err
	}
	return PDU{Present: Present(present), Message: msg}, nil
}

func encodeMessage(msg Message) ([]byte, error) {
	var (
		ies []per.IE
		err error
	)
	switch m := msg.(type) {
	case NGSetupRequest:
		ies, err = encodeNGSetupRequest(m)
	case NGSetupResponse:
		ies, err = encodeNGSetupResponse(m)
	case NGSetupFailure:
		ies, err = encodeNGSetupFailure(m)
	case InitialUEMessage:
		ies, err = encodeInitialUEMessage(m)
	case UplinkNASTransport:
		ies, err = encodeUplinkNASTransport(m)
	case DownlinkNASTransport:
		ies, err = encodeDownlinkNASTransport(m)
	case InitialContextSetupRequest:
		ies, err = encodeInitialContextSetupRequest(m)
	case InitialContextSetupResponse:
		ies, err = encodeInitialContextSetupResponse(m)
	case InitialContextSetupFailure:
		ies, err = encodeInitialContextSetupFailure(m)
	case PDUSessionResourceSetupRequest:
		ies, err = encodeSessionSetupRequest(m)
	case PDUSessionResourceSetupResponse:
		ies, err = encodeSessionSetupResponse(m)
	case ErrorIndication:
		ies, err = encodeErrorIndication(m)
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", ErrEncode, msg)
	}
	if err != nil {
		return nil, err
	}
	w := per.NewBitWriter()
	per.WriteSequencePreamble(w, true, 0, 0)
	if err := per.WriteIEs(w, ies); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return w.Bytes(), nil
}

func decodeMessage(present Present, code int, body []byte) (Message, error) {
	r := per.NewBitReader(body)
	if _, err := per.ReadSequencePreamble(r, true, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	rawIEs, err := per.ReadIEs(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	set := per.ToSet(rawIEs)

	switch {
	case code == ProcNGSetup && present == PresentInitiatingMessage:
		return decodeNGSetupRequest(set)
	case code == ProcNGSetup && present == PresentSuccessfulOutcome:
		return decodeNGSetupResponse(set)
	case code == ProcNGSetup && present == PresentUnsuccessfulOutcome:
		return decodeNGSetupFailure(set)
	case code == ProcInitialUEMessage && present == PresentInitiatingMessage:
		return decodeInitialUEMessage(set)
	case code == ProcUplinkNASTransport && present == PresentInitiatingMessage:
		return decodeUplinkNASTransport(set)
	case code == ProcDownlinkNASTransport && present == PresentInitiatingMessage:
		return decodeDownlinkNASTransport(set)
	case code == ProcInitialContextSetup && present == PresentInitiatingMessage:
		return decodeInitialContextSetupRequest(set)
	case code == ProcInitialContextSetup && present == PresentSuccessfulOutcome:
		return decodeInitialContextSetupResponse(set)
	case code == ProcInitialContextSetup && present == PresentUnsuccessfulOutcome:
		return decodeInitialContextSetupFailure(set)
	case code == ProcPDUSessionResourceSetup && present == PresentInitiatingMessage:
		return decodeSessionSetupRequest(set)
	case code == ProcPDUSessionResourceSetup && present == PresentSuccessfulOutcome:
		return decodeSessionSetupResponse(set)
	case code == ProcErrorIndication && present == PresentInitiatingMessage:
		return decodeErrorIndication(set)
	default:
		return nil, fmt.Errorf("%w: unknown PDU (present=%d, code=%d)", ErrDecode, present, code)
	}
}

// Field-level helpers.

func encTransactionID(v uint8) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		return per.WriteConstrainedWholeNumber(w, int64(v), 0, 255)
	}
}

func decTransactionID(set per.IESet) (uint8, error) {
	v, err := set.Get(ieTransactionID)
	if err != nil {
		return 0, err
	}
	n, err := per.ReadConstrainedWholeNumber(per.NewBitReader(v), 0, 255)
	return uint8(n), err
}

func encPLMN(w *per.BitWriter, p ran.PLMN) error {
	b, err := p.Encode()
	if err != nil {
		return err
	}
	return per.WriteOctetString(w, b[:], 3, 3, false)
}

func decPLMN(r *per.BitReader) (ran.PLMN, error) {
	b, err := per.ReadOctetString(r, 3, 3, false)
	if err != nil {
		return ran.PLMN{}, err
	}
	return ran.DecodePLMN([3]byte{b[0], b[1], b[2]})
}

func encNRCGI(w *per.BitWriter, cgi ran.NRCGI) error {
	if err := encPLMN(w, cgi.PLMN); err != nil {
		return err
	}
	return per.WriteConstrainedWholeNumber(w, int64(cgi.CellID), 0, int64(ran.MaxNRCellID))
}

func decNRCGI(r *per.BitReader) (ran.NRCGI, error) {
	plmn, err := decPLMN(r)
	if err != nil {
		return ran.NRCGI{}, err
	}
	cell, err := per.ReadConstrainedWholeNumber(r, 0, int64(ran.MaxNRCellID))
	if err != nil {
		return ran.NRCGI{}, err
	}
	return ran.NRCGI{PLMN: plmn, CellID: ran.NRCellID(cell)}, nil
}

func encTAC(w *per.BitWriter, tac ran.TAC) error {
	b := tac.Encode()
	return per.WriteOctetString(w, b[:], 3, 3, false)
}

func decTAC(r *per.BitReader) (ran.TAC, error) {
	b, err := per.ReadOctetString(r, 3, 3, false)
	if err != nil {
		return 0, err
	}
	return ran.DecodeTAC([3]byte{b[0], b[1], b[2]}), nil
}

func encUserLocation(m ran.NRCGI, tac ran.TAC) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		if err := encNRCGI(w, m); err != nil {
			return err
		}
		return encTAC(w, tac)
	}
}

func decUserLocation(set per.IESet) (ran.NRCGI, ran.TAC, error) {
	v, err := set.Get(ieUserLocation)
	if err != nil {
		return ran.NRCGI{}, 0, err
	}
	r := per.NewBitReader(v)
	cgi, err := decNRCGI(r)
	if err != nil {
		return ran.NRCGI{}, 0, err
	}
	tac, err := decTAC(r)
	return cgi, tac, err
}

func encSNSSAI(w *per.BitWriter, s ran.SNSSAI) error {
	optFlags := uint64(0)
	if s.SD != nil {
		optFlags = 1
	}
	per.WriteSequencePreamble(w, false, 1, optFlags)
	if err := per.WriteConstrainedWholeNumber(w, int64(s.SST), 0, 255); err != nil {
		return err
	}
	if s.SD != nil {
		sd := *s.SD
		return per.WriteOctetString(w, []byte{byte(sd >> 16), byte(sd >> 8), byte(sd)}, 3, 3, false)
	}
	return nil
}

func decSNSSAI(r *per.BitReader) (ran.SNSSAI, error) {
	flags, err := per.ReadSequencePreamble(r, false, 1)
	if err != nil {
		return ran.SNSSAI{}, err
	}
	sst, err := per.ReadConstrainedWholeNumber(r, 0, 255)
	if err != nil {
		return ran.SNSSAI{}, err
	}
	out := ran.SNSSAI{SST: uint8(sst)}
	if flags&1 != 0 {
		b, err := per.ReadOctetString(r, 3, 3, false)
		if err != nil {
			return ran.SNSSAI{}, err
		}
		sd := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
		out.SD = &sd
	}
	return out, nil
}

func encCause(c Cause) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		if err := per.WriteChoice(w, int(c.Group), 5, true); err != nil {
			return err
		}
		return per.WriteConstrainedWholeNumber(w, int64(c.Value), 0, 255)
	}
}

func decCause(v []byte) (Cause, error) {
	r := per.NewBitReader(v)
	group, err := per.ReadChoice(r, 5, true)
	if err != nil {
		return Cause{}, err
	}
	val, err := per.ReadConstrainedWholeNumber(r, 0, 255)
	if err != nil {
		return Cause{}, err
	}
	return Cause{Group: CauseGroup(group), Value: uint8(val)}, nil
}

func encGUAMI(w *per.BitWriter, g GUAMI) error {
	if err := encPLMN(w, g.PLMN); err != nil {
		return err
	}
	w.WriteBits(uint64(g.RegionID), 8)
	w.WriteBits(uint64(g.SetID), 10)
	w.WriteBits(uint64(g.Pointer), 6)
	return nil
}

func decGUAMI(r *per.BitReader) (GUAMI, error) {
	plmn, err := decPLMN(r)
	if err != nil {
		return GUAMI{}, err
	}
	region, err := r.ReadBits(8)
	if err != nil {
		return GUAMI{}, err
	}
	set, err := r.ReadBits(10)
	if err != nil {
		return GUAMI{}, err
	}
	ptr, err := r.ReadBits(6)
	if err != nil {
		return GUAMI{}, err
	}
	return GUAMI{PLMN: plmn, RegionID: uint8(region), SetID: uint16(set), Pointer: uint8(ptr)}, nil
}

// Message encoders/decoders.

func encodeNGSetupRequest(m NGSetupRequest) ([]per.IE, error) {
	var ies []per.IE
	add := func(ie per.IE, err error) error {
		if err != nil {
			return err
		}
		ies = append(ies, ie)
		return nil
	}
	if err := add(encodeIE(ieTransactionID, per.CriticalityReject, encTransactionID(m.TransactionID))); err != nil {
		return nil, err
	}
	if err := add(encodeIE(ieGlobalRANNodeID, per.CriticalityReject, func(w *per.BitWriter) error {
		if err := encPLMN(w, m.GlobalGNBID.PLMN); err != nil {
			return err
		}
		w.WriteBits(uint64(m.GlobalGNBID.GNBID), 32)
		return nil
	})); err != nil {
		return nil, err
	}
	if err := add(encodeIE(ieRANNodeName, per.CriticalityIgnore, func(w *per.BitWriter) error {
		return per.WriteOctetString(w, []byte(m.RANNodeName), 0, -1, false)
	})); err != nil {
		return nil, err
	}
	if err := add(encodeIE(ieSupportedTAList, per.CriticalityReject, func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(m.SupportedTAs)), 1, 256); err != nil {
			return err
		}
		for _, ta := range m.SupportedTAs {
			if err := encTAC(w, ta.TAC); err != nil {
				return err
			}
			if err := per.WriteConstrainedWholeNumber(w, int64(len(ta.PLMNs)), 1, 12); err != nil {
				return err
			}
			for _, bp := range ta.PLMNs {
				if err := encPLMN(w, bp.PLMN); err != nil {
					return err
				}
				if err := per.WriteConstrainedWholeNumber(w, int64(len(bp.Slices)), 1, 255); err != nil {
					return err
				}
				for _, sl := range bp.Slices {
					if err := encSNSSAI(w, sl); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})); err != nil {
		return nil, err
	}
	if err := add(encodeIE(iePagingDRX, per.CriticalityIgnore, func(w *per.BitWriter) error {
		return per.WriteEnumerated(w, int(m.PagingDRX), 4, true)
	})); err != nil {
		return nil, err
	}
	return ies, nil
}

func decodeNGSetupRequest(set per.IESet) (Message, error) {
	var m NGSetupRequest
	var err error
	if m.TransactionID, err = decTransactionID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieGlobalRANNodeID)
	if err != nil {
		return nil, err
	}
	r := per.NewBitReader(v)
	if m.GlobalGNBID.PLMN, err = decPLMN(r); err != nil {
		return nil, err
	}
	id, err := r.ReadBits(32)
	if err != nil {
		return nil, err
	}
	m.GlobalGNBID.GNBID = uint32(id)

	if v, ok := set.Lookup(ieRANNodeName); ok {
		name, err := per.ReadOctetString(per.NewBitReader(v), 0, -1, false)
		if err != nil {
			return nil, err
		}
		m.RANNodeName = string(name)
	}

	v, err = set.Get(ieSupportedTAList)
	if err != nil {
		return nil, err
	}
	r = per.NewBitReader(v)
	nTAs, err := per.ReadConstrainedWholeNumber(r, 1, 256)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < nTAs; i++ {
		var ta SupportedTA
		if ta.TAC, err = decTAC(r); err != nil {
			return nil, err
		}
		nPLMNs, err := per.ReadConstrainedWholeNumber(r, 1, 12)
		if err != nil {
			return nil, err
		}
		for j := int64(0); j < nPLMNs; j++ {
			var bp BroadcastPLMN
			if bp.PLMN, err = decPLMN(r); err != nil {
				return nil, err
			}
			nSlices, err := per.ReadConstrainedWholeNumber(r, 1, 255)
			if err != nil {
				return nil, err
			}
			for k := int64(0); k < nSlices; k++ {
				sl, err := decSNSSAI(r)
				if err != nil {
					return nil, err
				}
				bp.Slices = append(bp.Slices, sl)
			}
			ta.PLMNs = append(ta.PLMNs, bp)
		}
		m.SupportedTAs = append(m.SupportedTAs, ta)
	}

	v, err = set.Get(iePagingDRX)
	if err != nil {
		return nil, err
	}
	drx, err := per.ReadEnumerated(per.NewBitReader(v), 4, true)
	if err != nil {
		return nil, err
	}
	m.PagingDRX = PagingDRX(drx)
	return m, nil
}

func encodeNGSetupResponse(m NGSetupResponse) ([]per.IE, error) {
	ieTrans, err := encodeIE(ieTransactionID, per.CriticalityReject, encTransactionID(m.TransactionID))
	if err != nil {
		return nil, err
	}
	ieName, err := encodeIE(ieAMFName, per.CriticalityReject, func(w *per.BitWriter) error {
		return per.WriteOctetString(w, []byte(m.AMFName), 0, -1, false)
	})
	if err != nil {
		return nil, err
	}
	ieGUAMIs, err := encodeIE(ieServedGUAMIList, per.CriticalityReject, func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(m.ServedGUAMIs)), 1, 256); err != nil {
			return err
		}
		for _, g := range m.ServedGUAMIs {
			if err := encGUAMI(w, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ieCap, err := encodeIE(ieRelativeAMFCapacity, per.CriticalityIgnore, func(w *per.BitWriter) error {
		return per.WriteConstrainedWholeNumber(w, int64(m.RelativeAMFCapacity), 0, 255)
	})
	if err != nil {
		return nil, err
	}
	return []per.IE{ieTrans, ieName, ieGUAMIs, ieCap}, nil
}

func decodeNGSetupResponse(set per.IESet) (Message, error) {
	var m NGSetupResponse
	var err error
	if m.TransactionID, err = decTransactionID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieAMFName)
	if err != nil {
		return nil, err
	}
	name, err := per.ReadOctetString(per.NewBitReader(v), 0, -1, false)
	if err != nil {
		return nil, err
	}
	m.AMFName = string(name)

	v, err = set.Get(ieServedGUAMIList)
	if err != nil {
		return nil, err
	}
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 1, 256)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < n; i++ {
		g, err := decGUAMI(r)
		if err != nil {
			return nil, err
		}
		m.ServedGUAMIs = append(m.ServedGUAMIs, g)
	}

	if v, ok := set.Lookup(ieRelativeAMFCapacity); ok {
		c, err := per.ReadConstrainedWholeNumber(per.NewBitReader(v), 0, 255)
		if err != nil {
			return nil, err
		}
		m.RelativeAMFCapacity = uint8(c)
	}
	return m, nil
}

func encodeNGSetupFailure(m NGSetupFailure) ([]per.IE, error) {
	ieTrans, err := encodeIE(ieTransactionID, per.CriticalityReject, encTransactionID(m.TransactionID))
	if err != nil {
		return nil, err
	}
	ieC, err := encodeIE(ieCause, per.CriticalityIgnore, encCause(m.Cause))
	if err != nil {
		return nil, err
	}
	out := []per.IE{ieTrans, ieC}
	if m.TimeToWaitSeconds > 0 {
		ieTTW, err := encodeIE(ieTimeToWait, per.CriticalityIgnore, func(w *per.BitWriter) error {
			return per.WriteConstrainedWholeNumber(w, int64(m.TimeToWaitSeconds), 1, 3600)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ieTTW)
	}
	return out, nil
}

func decodeNGSetupFailure(set per.IESet) (Message, error) {
	var m NGSetupFailure
	var err error
	if m.TransactionID, err = decTransactionID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieCause)
	if err != nil {
		return nil, err
	}
	if m.Cause, err = decCause(v); err != nil {
		return nil, err
	}
	if v, ok := set.Lookup(ieTimeToWait); ok {
		ttw, err := per.ReadConstrainedWholeNumber(per.NewBitReader(v), 1, 3600)
		if err != nil {
			return nil, err
		}
		m.TimeToWaitSeconds = uint16(ttw)
	}
	return m, nil
}

func encRANUEID(v ids.RANUENGAPID) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		return per.WriteConstrainedWholeNumber(w, int64(v), 0, maxRANUENGAPID)
	}
}

func decRANUEID(set per.IESet) (ids.RANUENGAPID, error) {
	v, err := set.Get(ieRANUENGAPID)
	if err != nil {
		return 0, err
	}
	n, err := per.ReadConstrainedWholeNumber(per.NewBitReader(v), 0, maxRANUENGAPID)
	return ids.RANUENGAPID(n), err
}

func encAMFUEID(v ids.AMFUENGAPID) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		return per.WriteConstrainedWholeNumber(w, int64(v), 0, maxAMFUENGAPID)
	}
}

func decAMFUEID(set per.IESet) (ids.AMFUENGAPID, error) {
	v, err := set.Get(ieAMFUENGAPID)
	if err != nil {
		return 0, err
	}
	n, err := per.ReadConstrainedWholeNumber(per.NewBitReader(v), 0, maxAMFUENGAPID)
	return ids.AMFUENGAPID(n), err
}

func encNASPDU(p []byte) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		return per.WriteOctetString(w, p, 0, -1, false)
	}
}

func decNASPDU(v []byte) ([]byte, error) {
	return per.ReadOctetString(per.NewBitReader(v), 0, -1, false)
}

func encodeInitialUEMessage(m InitialUEMessage) ([]per.IE, error) {
	ieRAN, err := encodeIE(ieRANUENGAPID, per.CriticalityReject, encRANUEID(m.RANUENGAPID))
	if err != nil {
		return nil, err
	}
	ieNAS, err := encodeIE(ieNASPDU, per.CriticalityReject, encNASPDU(m.NASPDU))
	if err != nil {
		return nil, err
	}
	ieLoc, err := encodeIE(ieUserLocation, per.CriticalityReject, encUserLocation(m.NRCGI, m.TAC))
	if err != nil {
		return nil, err
	}
	ieEst, err := encodeIE(ieEstablishmentCause, per.CriticalityIgnore, func(w *per.BitWriter) error {
		return per.WriteEnumerated(w, int(m.EstablishmentCause), 5, true)
	})
	if err != nil {
		return nil, err
	}
	out := []per.IE{ieRAN, ieNAS, ieLoc, ieEst}
	if m.UEContextRequest {
		ieCtxt, err := encodeIE(ieUEContextRequest, per.CriticalityIgnore, func(w *per.BitWriter) error {
			return per.WriteEnumerated(w, 0, 1, true)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ieCtxt)
	}
	return out, nil
}

func decodeInitialUEMessage(set per.IESet) (Message, error) {
	var m InitialUEMessage
	var err error
	if m.RANUENGAPID, err = decRANUEID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieNASPDU)
	if err != nil {
		return nil, err
	}
	if m.NASPDU, err = decNASPDU(v); err != nil {
		return nil, err
	}
	if m.NRCGI, m.TAC, err = decUserLocation(set); err != nil {
		return nil, err
	}
	v, err = set.Get(ieEstablishmentCause)
	if err != nil {
		return nil, err
	}
	cause, err := per.ReadEnumerated(per.NewBitReader(v), 5, true)
	if err != nil {
		return nil, err
	}
	m.EstablishmentCause = RRCEstablishmentCause(cause)
	_, m.UEContextRequest = set.Lookup(ieUEContextRequest)
	return m, nil
}

func encodeUplinkNASTransport(m UplinkNASTransport) ([]per.IE, error) {
	ieAMF, err := encodeIE(ieAMFUENGAPID, per.CriticalityReject, encAMFUEID(m.AMFUENGAPID))
	if err != nil {
		return nil, err
	}
	ieRAN, err := encodeIE(ieRANUENGAPID, per.CriticalityReject, encRANUEID(m.RANUENGAPID))
	if err != nil {
		return nil, err
	}
	ieNAS, err := encodeIE(ieNASPDU, per.CriticalityReject, encNASPDU(m.NASPDU))
	if err != nil {
		return nil, err
	}
	ieLoc, err := encodeIE(ieUserLocation, per.CriticalityIgnore, encUserLocation(m.NRCGI, m.TAC))
	if err != nil {
		return nil, err
	}
	return []per.IE{ieAMF, ieRAN, ieNAS, ieLoc}, nil
}

func decodeUplinkNASTransport(set per.IESet) (Message, error) {
	var m UplinkNASTransport
	var err error
	if m.AMFUENGAPID, err = decAMFUEID(set); err != nil {
		return nil, err
	}
	if m.RANUENGAPID, err = decRANUEID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieNASPDU)
	if err != nil {
		return nil, err
	}
	if m.NASPDU, err = decNASPDU(v); err != nil {
		return nil, err
	}
	m.NRCGI, m.TAC, err = decUserLocation(set)
	return m, err
}

func encodeDownlinkNASTransport(m DownlinkNASTransport) ([]per.IE, error) {
	ieAMF, err := encodeIE(ieAMFUENGAPID, per.CriticalityReject, encAMFUEID(m.AMFUENGAPID))
	if err != nil {
		return nil, err
	}
	ieRAN, err := encodeIE(ieRANUENGAPID, per.CriticalityReject, encRANUEID(m.RANUENGAPID))
	if err != nil {
		return nil, err
	}
	ieNAS, err := encodeIE(ieNASPDU, per.CriticalityReject, encNASPDU(m.NASPDU))
	if err != nil {
		return nil, err
	}
	return []per.IE{ieAMF, ieRAN, ieNAS}, nil
}

func decodeDownlinkNASTransport(set per.IESet) (Message, error) {
	var m DownlinkNASTransport
	var err error
	if m.AMFUENGAPID, err = decAMFUEID(set); err != nil {
		return nil, err
	}
	if m.RANUENGAPID, err = decRANUEID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieNASPDU)
	if err != nil {
		return nil, err
	}
	m.NASPDU, err = decNASPDU(v)
	return m, err
}

func encodeInitialContextSetupRequest(m InitialContextSetupRequest) ([]per.IE, error) {
	ieAMF, err := encodeIE(ieAMFUENGAPID, per.CriticalityReject, encAMFUEID(m.AMFUENGAPID))
	if err != nil {
		return nil, err
	}
	ieRAN, err := encodeIE(ieRANUENGAPID, per.CriticalityReject, encRANUEID(m.RANUENGAPID))
	if err != nil {
		return nil, err
	}
	ieG, err := encodeIE(ieGUAMI, per.CriticalityReject, func(w *per.BitWriter) error {
		return encGUAMI(w, m.GUAMI)
	})
	if err != nil {
		return nil, err
	}
	ieCaps, err := encodeIE(ieUESecurityCaps, per.CriticalityReject, func(w *per.BitWriter) error {
		caps := []byte{
			byte(m.UESecurityCapabilities.NRIntegrityAlgorithms >> 8),
			byte(m.UESecurityCapabilities.NRIntegrityAlgorithms),
			byte(m.UESecurityCapabilities.NRCipheringAlgorithms >> 8),
			byte(m.UESecurityCapabilities.NRCipheringAlgorithms),
		}
		return per.WriteOctetString(w, caps, 4, 4, false)
	})
	if err != nil {
		return nil, err
	}
	ieKey, err := encodeIE(ieSecurityKey, per.CriticalityReject, func(w *per.BitWriter) error {
		return per.WriteBitString(w, m.SecurityKey[:], 256, 256, 256, false)
	})
	if err != nil {
		return nil, err
	}
	out := []per.IE{ieAMF, ieRAN, ieG, ieCaps, ieKey}
	if m.NASPDU != nil {
		ieNAS, err := encodeIE(ieNASPDU, per.CriticalityIgnore, encNASPDU(m.NASPDU))
		if err != nil {
			return nil, err
		}
		out = append(out, ieNAS)
	}
	return out, nil
}

func decodeInitialContextSetupRequest(set per.IESet) (Message, error) {
	var m InitialContextSetupRequest
	var err error
	if m.AMFUENGAPID, err = decAMFUEID(set); err != nil {
		return nil, err
	}
	if m.RANUENGAPID, err = decRANUEID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieGUAMI)
	if err != nil {
		return nil, err
	}
	if m.GUAMI, err = decGUAMI(per.NewBitReader(v)); err != nil {
		return nil, err
	}
	v, err = set.Get(ieUESecurityCaps)
	if err != nil {
		return nil, err
	}
	caps, err := per.ReadOctetString(per.NewBitReader(v), 4, 4, false)
	if err != nil {
		return nil, err
	}
	m.UESecurityCapabilities.NRIntegrityAlgorithms = uint16(caps[0])<<8 | uint16(caps[1])
	m.UESecurityCapabilities.NRCipheringAlgorithms = uint16(caps[2])<<8 | uint16(caps[3])

	v, err = set.Get(ieSecurityKey)
	if err != nil {
		return nil, err
	}
	key, nbits, err := per.ReadBitString(per.NewBitReader(v), 256, 256, false)
	if err != nil {
		return nil, err
	}
	if nbits != 256 {
		return nil, fmt.Errorf("%w: security key has %d bits", ErrDecode, nbits)
	}
	copy(m.SecurityKey[:], key)

	if v, ok := set.Lookup(ieNASPDU); ok {
		if m.NASPDU, err = decNASPDU(v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func encodeInitialContextSetupResponse(m InitialContextSetupResponse) ([]per.IE, error) {
	ieAMF, err := encodeIE(ieAMFUENGAPID, per.CriticalityIgnore, encAMFUEID(m.AMFUENGAPID))
	if err != nil {
		return nil, err
	}
	ieRAN, err := encodeIE(ieRANUENGAPID, per.CriticalityIgnore, encRANUEID(m.RANUENGAPID))
	if err != nil {
		return nil, err
	}
	return []per.IE{ieAMF, ieRAN}, nil
}

func decodeInitialContextSetupResponse(set per.IESet) (Message, error) {
	var m InitialContextSetupResponse
	var err error
	if m.AMFUENGAPID, err = decAMFUEID(set); err != nil {
		return nil, err
	}
	m.RANUENGAPID, err = decRANUEID(set)
	return m, err
}

func encodeInitialContextSetupFailure(m InitialContextSetupFailure) ([]per.IE, error) {
	ieAMF, err := encodeIE(ieAMFUENGAPID, per.CriticalityIgnore, encAMFUEID(m.AMFUENGAPID))
	if err != nil {
		return nil, err
	}
	ieRAN, err := encodeIE(ieRANUENGAPID, per.CriticalityIgnore, encRANUEID(m.RANUENGAPID))
	if err != nil {
		return nil, err
	}
	ieC, err := encodeIE(ieCause, per.CriticalityIgnore, encCause(m.Cause))
	if err != nil {
		return nil, err
	}
	return []per.IE{ieAMF, ieRAN, ieC}, nil
}

func decodeInitialContextSetupFailure(set per.IESet) (Message, error) {
	var m InitialContextSetupFailure
	var err error
	if m.AMFUENGAPID, err = decAMFUEID(set); err != nil {
		return nil, err
	}
	if m.RANUENGAPID, err = decRANUEID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieCause)
	if err != nil {
		return nil, err
	}
	m.Cause, err = decCause(v)
	return m, err
}

func encGTPTunnel(w *per.BitWriter, t GTPTunnel) error {
	if err := per.WriteOctetString(w, t.TransportLayerAddress, 0, 16, false); err != nil {
		return err
	}
	w.WriteBits(uint64(t.TEID), 32)
	return nil
}

func decGTPTunnel(r *per.BitReader) (GTPTunnel, error) {
	addr, err := per.ReadOctetString(r, 0, 16, false)
	if err != nil {
		return GTPTunnel{}, err
	}
	teid, err := r.ReadBits(32)
	if err != nil {
		return GTPTunnel{}, err
	}
	return GTPTunnel{TransportLayerAddress: addr, TEID: uint32(teid)}, nil
}

func encQoSCharacteristics(w *per.BitWriter, q QoSCharacteristics) error {
	switch {
	case q.NonDynamic5QI != nil:
		if err := per.WriteChoice(w, 0, 2, true); err != nil {
			return err
		}
		return per.WriteConstrainedWholeNumber(w, int64(*q.NonDynamic5QI), 0, 255)
	case q.Dynamic5QI != nil:
		if err := per.WriteChoice(w, 1, 2, true); err != nil {
			return err
		}
		opt := uint64(0)
		if q.Dynamic5QI.FiveQI != nil {
			opt = 1
		}
		per.WriteSequencePreamble(w, false, 1, opt)
		if err := per.WriteConstrainedWholeNumber(w, int64(q.Dynamic5QI.PriorityLevel), 0, 127); err != nil {
			return err
		}
		if q.Dynamic5QI.FiveQI != nil {
			return per.WriteConstrainedWholeNumber(w, int64(*q.Dynamic5QI.FiveQI), 0, 255)
		}
		return nil
	default:
		return fmt.Errorf("QoS characteristics with neither non-dynamic nor dynamic 5QI")
	}
}

func decQoSCharacteristics(r *per.BitReader) (QoSCharacteristics, error) {
	arm, err := per.ReadChoice(r, 2, true)
	if err != nil {
		return QoSCharacteristics{}, err
	}
	if arm == 0 {
		v, err := per.ReadConstrainedWholeNumber(r, 0, 255)
		if err != nil {
			return QoSCharacteristics{}, err
		}
		q := ran.FiveQI(v)
		return QoSCharacteristics{NonDynamic5QI: &q}, nil
	}
	flags, err := per.ReadSequencePreamble(r, false, 1)
	if err != nil {
		return QoSCharacteristics{}, err
	}
	prio, err := per.ReadConstrainedWholeNumber(r, 0, 127)
	if err != nil {
		return QoSCharacteristics{}, err
	}
	dyn := &Dynamic5QI{PriorityLevel: uint8(prio)}
	if flags&1 != 0 {
		v, err := per.ReadConstrainedWholeNumber(r, 0, 255)
		if err != nil {
			return QoSCharacteristics{}, err
		}
		q := ran.FiveQI(v)
		dyn.FiveQI = &q
	}
	return QoSCharacteristics{Dynamic5QI: dyn}, nil
}

func encodeSessionSetupRequest(m PDUSessionResourceSetupRequest) ([]per.IE, error) {
	ieAMF, err := encodeIE(ieAMFUENGAPID, per.CriticalityReject, encAMFUEID(m.AMFUENGAPID))
	if err != nil {
		return nil, err
	}
	ieRAN, err := encodeIE(ieRANUENGAPID, per.CriticalityReject, encRANUEID(m.RANUENGAPID))
	if err != nil {
		return nil, err
	}
	ieList, err := encodeIE(ieSessionSetupListReq, per.CriticalityReject, func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(m.Sessions)), 1, 256); err != nil {
			return err
		}
		for _, s := range m.Sessions {
			if err := per.WriteConstrainedWholeNumber(w, int64(s.PDUSessionID), 0, 255); err != nil {
				return err
			}
			if err := per.WriteOctetString(w, s.NASPDU, 0, -1, false); err != nil {
				return err
			}
			if err := encSNSSAI(w, s.SNSSAI); err != nil {
				return err
			}
			if err := encGTPTunnel(w, s.ULNGUTunnel); err != nil {
				return err
			}
			if err := per.WriteConstrainedWholeNumber(w, int64(len(s.QoSFlows)), 1, 64); err != nil {
				return err
			}
			for _, f := range s.QoSFlows {
				if err := per.WriteConstrainedWholeNumber(w, int64(f.QFI), 0, 63); err != nil {
					return err
				}
				if err := encQoSCharacteristics(w, f.Characteristics); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []per.IE{ieAMF, ieRAN, ieList}, nil
}

func decodeSessionSetupRequest(set per.IESet) (Message, error) {
	var m PDUSessionResourceSetupRequest
	var err error
	if m.AMFUENGAPID, err = decAMFUEID(set); err != nil {
		return nil, err
	}
	if m.RANUENGAPID, err = decRANUEID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieSessionSetupListReq)
	if err != nil {
		return nil, err
	}
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 1, 256)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < n; i++ {
		var s PDUSessionResourceSetupItem
		id, err := per.ReadConstrainedWholeNumber(r, 0, 255)
		if err != nil {
			return nil, err
		}
		s.PDUSessionID = ran.PDUSessionID(id)
		if s.NASPDU, err = per.ReadOctetString(r, 0, -1, false); err != nil {
			return nil, err
		}
		if s.SNSSAI, err = decSNSSAI(r); err != nil {
			return nil, err
		}
		if s.ULNGUTunnel, err = decGTPTunnel(r); err != nil {
			return nil, err
		}
		nFlows, err := per.ReadConstrainedWholeNumber(r, 1, 64)
		if err != nil {
			return nil, err
		}
		for j := int64(0); j < nFlows; j++ {
			var f QoSFlowSetupItem
			qfi, err := per.ReadConstrainedWholeNumber(r, 0, 63)
			if err != nil {
				return nil, err
			}
			f.QFI = ran.QoSFlowID(qfi)
			if f.Characteristics, err = decQoSCharacteristics(r); err != nil {
				return nil, err
			}
			s.QoSFlows = append(s.QoSFlows, f)
		}
		m.Sessions = append(m.Sessions, s)
	}
	return m, nil
}

func encodeSessionSetupResponse(m PDUSessionResourceSetupResponse) ([]per.IE, error) {
	ieAMF, err := encodeIE(ieAMFUENGAPID, per.CriticalityIgnore, encAMFUEID(m.AMFUENGAPID))
	if err != nil {
		return nil, err
	}
	ieRAN, err := encodeIE(ieRANUENGAPID, per.CriticalityIgnore, encRANUEID(m.RANUENGAPID))
	if err != nil {
		return nil, err
	}
	out := []per.IE{ieAMF, ieRAN}
	if len(m.Succeeded) > 0 {
		ieOK, err := encodeIE(ieSessionSetupListRes, per.CriticalityIgnore, func(w *per.BitWriter) error {
			if err := per.WriteConstrainedWholeNumber(w, int64(len(m.Succeeded)), 1, 256); err != nil {
				return err
			}
			for _, s := range m.Succeeded {
				if err := per.WriteConstrainedWholeNumber(w, int64(s.PDUSessionID), 0, 255); err != nil {
					return err
				}
				if err := encGTPTunnel(w, s.DLNGUTunnel); err != nil {
					return err
				}
				if err := per.WriteConstrainedWholeNumber(w, int64(len(s.AcceptedQFIs)), 1, 64); err != nil {
					return err
				}
				for _, qfi := range s.AcceptedQFIs {
					if err := per.WriteConstrainedWholeNumber(w, int64(qfi), 0, 63); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ieOK)
	}
	if len(m.Failed) > 0 {
		ieFail, err := encodeIE(ieSessionFailedList, per.CriticalityIgnore, func(w *per.BitWriter) error {
			if err := per.WriteConstrainedWholeNumber(w, int64(len(m.Failed)), 1, 256); err != nil {
				return err
			}
			for _, s := range m.Failed {
				if err := per.WriteConstrainedWholeNumber(w, int64(s.PDUSessionID), 0, 255); err != nil {
					return err
				}
				if err := encCause(s.Cause)(w); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ieFail)
	}
	return out, nil
}

func decodeSessionSetupResponse(set per.IESet) (Message, error) {
	var m PDUSessionResourceSetupResponse
	var err error
	if m.AMFUENGAPID, err = decAMFUEID(set); err != nil {
		return nil, err
	}
	if m.RANUENGAPID, err = decRANUEID(set); err != nil {
		return nil, err
	}
	if v, ok := set.Lookup(ieSessionSetupListRes); ok {
		r := per.NewBitReader(v)
		n, err := per.ReadConstrainedWholeNumber(r, 1, 256)
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < n; i++ {
			var s PDUSessionResourceSetupResponseItem
			id, err := per.ReadConstrainedWholeNumber(r, 0, 255)
			if err != nil {
				return nil, err
			}
			s.PDUSessionID = ran.PDUSessionID(id)
			if s.DLNGUTunnel, err = decGTPTunnel(r); err != nil {
				return nil, err
			}
			nQFIs, err := per.ReadConstrainedWholeNumber(r, 1, 64)
			if err != nil {
				return nil, err
			}
			for j := int64(0); j < nQFIs; j++ {
				qfi, err := per.ReadConstrainedWholeNumber(r, 0, 63)
				if err != nil {
					return nil, err
				}
				s.AcceptedQFIs = append(s.AcceptedQFIs, ran.QoSFlowID(qfi))
			}
			m.Succeeded = append(m.Succeeded, s)
		}
	}
	if v, ok := set.Lookup(ieSessionFailedList); ok {
		r := per.NewBitReader(v)
		n, err := per.ReadConstrainedWholeNumber(r, 1, 256)
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < n; i++ {
			var s PDUSessionResourceFailedItem
			id, err := per.ReadConstrainedWholeNumber(r, 0, 255)
			if err != nil {
				return nil, err
			}
			s.PDUSessionID = ran.PDUSessionID(id)
			group, err := per.ReadChoice(r, 5, true)
			if err != nil {
				return nil, err
			}
			val, err := per.ReadConstrainedWholeNumber(r, 0, 255)
			if err != nil {
				return nil, err
			}
			s.Cause = Cause{Group: CauseGroup(group), Value: uint8(val)}
			m.Failed = append(m.Failed, s)
		}
	}
	return m, nil
}

func encodeErrorIndication(m ErrorIndication) ([]per.IE, error) {
	var out []per.IE
	if m.AMFUENGAPID != ids.InvalidAMFUENGAPID {
		ieAMF, err := encodeIE(ieAMFUENGAPID, per.CriticalityIgnore, encAMFUEID(m.AMFUENGAPID))
		if err != nil {
			return nil, err
		}
		out = append(out, ieAMF)
	}
	ieRAN, err := encodeIE(ieRANUENGAPID, per.CriticalityIgnore, encRANUEID(m.RANUENGAPID))
	if err != nil {
		return nil, err
	}
	ieC, err := encodeIE(ieCause, per.CriticalityIgnore, encCause(m.Cause))
	if err != nil {
		return nil, err
	}
	return append(out, ieRAN, ieC), nil
}

func decodeErrorIndication(set per.IESet) (Message, error) {
	m := ErrorIndication{AMFUENGAPID: ids.InvalidAMFUENGAPID}
	var err error
	if _, ok := set.Lookup(ieAMFUENGAPID); ok {
		if m.AMFUENGAPID, err = decAMFUEID(set); err != nil {
			return nil, err
		}
	}
	if m.RANUENGAPID, err = decRANUEID(set); err != nil {
		return nil, err
	}
	v, err := set.Get(ieCause)
	if err != nil {
		return nil, err
	}
	m.Cause, err = decCause(v)
	return m, err
}
