package e1ap

import (
	"errors"
	"fmt"

	"github.com/your-org/gnb/common/bytebuf"
	"github.com/your-org/gnb/common/per"
	"github.com/your-org/gnb/common/ran"
)

// Codec errors.
var (
	ErrEncode = errors.New("e1ap: encode error")
	ErrDecode = errors.New("e1ap: decode error")
)

// Protocol IE ids (TS 37.483 §9.4).
const (
	ieCause           uint16 = 0
	ieGNBCUCPUEE1APID uint16 = 2
	ieGNBCUUPUEE1APID uint16 = 3
	ieGNBCUUPID       uint16 = 7
	ieGNBCUUPName     uint16 = 8
	ieGNBCUCPName     uint16 = 9
	ieSessionList     uint16 = 15
	ieSessionSetup    uint16 = 16
	ieTransactionID   uint16 = 57
)

const maxUEE1APID = int64(1)<<32 - 1

func ieUint(id uint16, v, min, max int64) (per.IE, error) {
	w := per.NewBitWriter()
	if err := per.WriteConstrainedWholeNumber(w, v, min, max); err != nil {
		return per.IE{}, fmt.Errorf("%w: IE %d: %v", ErrEncode, id, err)
	}
	return per.IE{ID: id, Criticality: per.CriticalityReject, Value: w.Bytes()}, nil
}

func decUint(set per.IESet, id uint16, min, max int64) (int64, error) {
	v, err := set.Get(id)
	if err != nil {
		return 0, err
	}
	return per.ReadConstrainedWholeNumber(per.NewBitReader(v), min, max)
}

func ieFunc(id uint16, enc func(*per.BitWriter) error) (per.IE, error) {
	w := per.NewBitWriter()
	if err := enc(w); err != nil {
		return per.IE{}, fmt.Errorf("%w: IE %d: %v", ErrEncode, id, err)
	}
	return per.IE{ID: id, Criticality: per.CriticalityReject, Value: w.Bytes()}, nil
}

func encSNSSAI(w *per.BitWriter, s ran.SNSSAI) error {
	opt := uint64(0)
	if s.SD != nil {
		opt = 1
	}
	per.WriteSequencePreamble(w, false, 1, opt)
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

func encSessionsToSetup(sessions []SessionToSetup) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(sessions)), 0, 256); err != nil {
			return err
		}
		for _, s := range sessions {
			if err := per.WriteConstrainedWholeNumber(w, int64(s.PDUSessionID), 0, 255); err != nil {
				return err
			}
			if err := encSNSSAI(w, s.SNSSAI); err != nil {
				return err
			}
			if err := per.WriteOctetString(w, s.ULTunnelAddress, 0, 16, false); err != nil {
				return err
			}
			w.WriteBits(uint64(s.ULTEID), 32)
			if err := per.WriteConstrainedWholeNumber(w, int64(len(s.DRBs)), 0, ran.MaxNofDRBs); err != nil {
				return err
			}
			for _, d := range s.DRBs {
				if err := per.WriteConstrainedWholeNumber(w, int64(d.DRBID), 1, ran.MaxNofDRBs); err != nil {
					return err
				}
				if err := per.WriteConstrainedWholeNumber(w, int64(d.FiveQI), 0, 255); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

func decSessionsToSetup(v []byte) ([]SessionToSetup, error) {
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 0, 256)
	if err != nil {
		return nil, err
	}
	var out []SessionToSetup
	for i := int64(0); i < n; i++ {
		var s SessionToSetup
		id, err := per.ReadConstrainedWholeNumber(r, 0, 255)
		if err != nil {
			return nil, err
		}
		s.PDUSessionID = ran.PDUSessionID(id)
		if s.SNSSAI, err = decSNSSAI(r); err != nil {
			return nil, err
		}
		if s.ULTunnelAddress, err = per.ReadOctetString(r, 0, 16, false); err != nil {
			return nil, err
		}
		teid, err := r.ReadBits(32)
		if err != nil {
			return nil, err
		}
		s.ULTEID = uint32(teid)
		nDRBs, err := per.ReadConstrainedWholeNumber(r, 0, ran.MaxNofDRBs)
		if err != nil {
			return nil, err
		}
		for j := int64(0); j < nDRBs; j++ {
			drb, err := per.ReadConstrainedWholeNumber(r, 1, ran.MaxNofDRBs)
			if err != nil {
				return nil, err
			}
			q, err := per.ReadConstrainedWholeNumber(r, 0, 255)
			if err != nil {
				return nil, err
			}
			s.DRBs = append(s.DRBs, DRBToSetup{DRBID: ran.DRBID(drb), FiveQI: ran.FiveQI(q)})
		}
		out = append(out, s)
	}
	return out, nil
}

func encSessionsSetup(sessions []SessionSetup) func(*per.BitWriter) error {
	return func(w *per.BitWriter) error {
		if err := per.WriteConstrainedWholeNumber(w, int64(len(sessions)), 0, 256); err != nil {
			return err
		}
		for _, s := range sessions {
			if err := per.WriteConstrainedWholeNumber(w, int64(s.PDUSessionID), 0, 255); err != nil {
				return err
			}
			if err := per.WriteOctetString(w, s.DLTunnelAddress, 0, 16, false); err != nil {
				return err
			}
			w.WriteBits(uint64(s.DLTEID), 32)
		}
		return nil
	}
}

func decSessionsSetup(v []byte) ([]SessionSetup, error) {
	r := per.NewBitReader(v)
	n, err := per.ReadConstrainedWholeNumber(r, 0, 256)
	if err != nil {
		return nil, err
	}
	var out []SessionSetup
	for i := int64(0); i < n; i++ {
		var s SessionSetup
		id, err := per.ReadConstrainedWholeNumber(r, 0, 255)
		if err != nil {
			return nil, err
		}
		s.PDUSessionID = ran.PDUSessionID(id)
		if s.DLTunnelAddress, err = per.ReadOctetString(r, 0, 16, false); err != nil {
			return nil, err
		}
		teid, err := r.ReadBits(32)
		if err != nil {
			return nil, err
		}
		s.DLTEID = uint32(teid)
		out = append(out, s)
	}
	return out, nil
}

func encCauseIE(c Cause) (per.IE, error) {
	return ieFunc(ieCause, func(w *per.BitWriter) error {
		if err := per.WriteChoice(w, int(c.Group), 4, true); err != nil {
			return err
		}
		return per.WriteConstrainedWholeNumber(w, int64(c.Value), 0, 255)
	})
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
	return Cause{Group: uint8(group), Value: uint8(val)}, nil
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
	case GNBCUUPE1SetupRequest:
		ieTrans, err := ieUint(ieTransactionID, int64(m.TransactionID), 0, 255)
		if err != nil {
			return nil, err
		}
		ieID, err := ieFunc(ieGNBCUUPID, func(w *per.BitWriter) error {
			w.WriteBits(m.GNBCUUPID, 64)
			return nil
		})
		if err != nil {
			return nil, err
		}
		ieName, err := ieFunc(ieGNBCUUPName, func(w *per.BitWriter) error {
			return per.WriteOctetString(w, []byte(m.GNBCUUPName), 0, -1, false)
		})
		if err != nil {
			return nil, err
		}
		return []per.IE{ieTrans, ieID, ieName}, nil
	case GNBCUUPE1SetupResponse:
		ieTrans, err := ieUint(ieTransactionID, int64(m.TransactionID), 0, 255)
		if err != nil {
			return nil, err
		}
		ieName, err := ieFunc(ieGNBCUCPName, func(w *per.BitWriter) error {
			return per.WriteOctetString(w, []byte(m.GNBCUCPName), 0, -1, false)
		})
		if err != nil {
			return nil, err
		}
		return []per.IE{ieTrans, ieName}, nil
	case GNBCUUPE1SetupFailure:
		ieTrans, err := ieUint(ieTransactionID, int64(m.TransactionID), 0, 255)
		if err != nil {
			return nil, err
		}
		ieC, err := encCauseIE(m.Cause)
		if err != nil {
			return nil, err
		}
		return []per.IE{ieTrans, ieC}, nil
	case BearerContextSetupRequest:
		ieCP, err := ieUint(ieGNBCUCPUEE1APID, int64(m.GNBCUCPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieS, err := ieFunc(ieSessionList, encSessionsToSetup(m.Sessions))
		if err != nil {
			return nil, err
		}
		return []per.IE{ieCP, ieS}, nil
	case BearerContextSetupResponse:
		ieCP, err := ieUint(ieGNBCUCPUEE1APID, int64(m.GNBCUCPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieUP, err := ieUint(ieGNBCUUPUEE1APID, int64(m.GNBCUUPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieS, err := ieFunc(ieSessionSetup, encSessionsSetup(m.Sessions))
		if err != nil {
			return nil, err
		}
		return []per.IE{ieCP, ieUP, ieS}, nil
	case BearerContextSetupFailure:
		ieCP, err := ieUint(ieGNBCUCPUEE1APID, int64(m.GNBCUCPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieC, err := encCauseIE(m.Cause)
		if err != nil {
			return nil, err
		}
		return []per.IE{ieCP, ieC}, nil
	case BearerContextModificationRequest:
		ieCP, err := ieUint(ieGNBCUCPUEE1APID, int64(m.GNBCUCPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieUP, err := ieUint(ieGNBCUUPUEE1APID, int64(m.GNBCUUPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieS, err := ieFunc(ieSessionList, encSessionsToSetup(m.Sessions))
		if err != nil {
			return nil, err
		}
		return []per.IE{ieCP, ieUP, ieS}, nil
	case BearerContextModificationResponse:
		ieCP, err := ieUint(ieGNBCUCPUEE1APID, int64(m.GNBCUCPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieUP, err := ieUint(ieGNBCUUPUEE1APID, int64(m.GNBCUUPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieS, err := ieFunc(ieSessionSetup, encSessionsSetup(m.Sessions))
		if err != nil {
			return nil, err
		}
		return []per.IE{ieCP, ieUP, ieS}, nil
	case BearerContextModificationFailure:
		ieCP, err := ieUint(ieGNBCUCPUEE1APID, int64(m.GNBCUCPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieUP, err := ieUint(ieGNBCUUPUEE1APID, int64(m.GNBCUUPUEE1APID), 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		ieC, err := encCauseIE(m.Cause)
		if err != nil {
			return nil, err
		}
		return []per.IE{ieCP, ieUP, ieC}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", ErrEncode, msg)
	}
}

func decodeMessage(present Present, code int, set per.IESet) (Message, error) {
	switch {
	case code == ProcGNBCUUPE1Setup && present == PresentInitiatingMessage:
		t, err := decUint(set, ieTransactionID, 0, 255)
		if err != nil {
			return nil, err
		}
		v, err := set.Get(ieGNBCUUPID)
		if err != nil {
			return nil, err
		}
		id, err := per.NewBitReader(v).ReadBits(64)
		if err != nil {
			return nil, err
		}
		v, err = set.Get(ieGNBCUUPName)
		if err != nil {
			return nil, err
		}
		name, err := per.ReadOctetString(per.NewBitReader(v), 0, -1, false)
		if err != nil {
			return nil, err
		}
		return GNBCUUPE1SetupRequest{TransactionID: uint8(t), GNBCUUPID: id, GNBCUUPName: string(name)}, nil
	case code == ProcGNBCUUPE1Setup && present == PresentSuccessfulOutcome:
		t, err := decUint(set, ieTransactionID, 0, 255)
		if err != nil {
			return nil, err
		}
		v, err := set.Get(ieGNBCUCPName)
		if err != nil {
			return nil, err
		}
		name, err := per.ReadOctetString(per.NewBitReader(v), 0, -1, false)
		if err != nil {
			return nil, err
		}
		return GNBCUUPE1SetupResponse{TransactionID: uint8(t), GNBCUCPName: string(name)}, nil
	case code == ProcGNBCUUPE1Setup && present == PresentUnsuccessfulOutcome:
		t, err := decUint(set, ieTransactionID, 0, 255)
		if err != nil {
			return nil, err
		}
		cause, err := decCause(set)
		if err != nil {
			return nil, err
		}
		return GNBCUUPE1SetupFailure{TransactionID: uint8(t), Cause: cause}, nil
	case code == ProcBearerContextSetup && present == PresentInitiatingMessage:
		cp, err := decUint(set, ieGNBCUCPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		v, err := set.Get(ieSessionList)
		if err != nil {
			return nil, err
		}
		sessions, err := decSessionsToSetup(v)
		if err != nil {
			return nil, err
		}
		return BearerContextSetupRequest{GNBCUCPUEE1APID: uint32(cp), Sessions: sessions}, nil
	case code == ProcBearerContextSetup && present == PresentSuccessfulOutcome:
		cp, err := decUint(set, ieGNBCUCPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		up, err := decUint(set, ieGNBCUUPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		v, err := set.Get(ieSessionSetup)
		if err != nil {
			return nil, err
		}
		sessions, err := decSessionsSetup(v)
		if err != nil {
			return nil, err
		}
		return BearerContextSetupResponse{GNBCUCPUEE1APID: uint32(cp), GNBCUUPUEE1APID: uint32(up), Sessions: sessions}, nil
	case code == ProcBearerContextSetup && present == PresentUnsuccessfulOutcome:
		cp, err := decUint(set, ieGNBCUCPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		cause, err := decCause(set)
		if err != nil {
			return nil, err
		}
		return BearerContextSetupFailure{GNBCUCPUEE1APID: uint32(cp), Cause: cause}, nil
	case code == ProcBearerContextModification && present == PresentInitiatingMessage:
		cp, err := decUint(set, ieGNBCUCPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		up, err := decUint(set, ieGNBCUUPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		v, err := set.Get(ieSessionList)
		if err != nil {
			return nil, err
		}
		sessions, err := decSessionsToSetup(v)
		if err != nil {
			return nil, err
		}
		return BearerContextModificationRequest{GNBCUCPUEE1APID: uint32(cp), GNBCUUPUEE1APID: uint32(up), Sessions: sessions}, nil
	case code == ProcBearerContextModification && present == PresentSuccessfulOutcome:
		cp, err := decUint(set, ieGNBCUCPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		up, err := decUint(set, ieGNBCUUPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		v, err := set.Get(ieSessionSetup)
		if err != nil {
			return nil, err
		}
		sessions, err := decSessionsSetup(v)
		if err != nil {
			return nil, err
		}
		return BearerContextModificationResponse{GNBCUCPUEE1APID: uint32(cp), GNBCUUPUEE1APID: uint32(up), Sessions: sessions}, nil
	case code == ProcBearerContextModification && present == PresentUnsuccessfulOutcome:
		cp, err := decUint(set, ieGNBCUCPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		up, err := decUint(set, ieGNBCUUPUEE1APID, 0, maxUEE1APID)
		if err != nil {
			return nil, err
		}
		cause, err := decCause(set)
		if err != nil {
			return nil, err
		}
		return BearerContextModificationFailure{GNBCUCPUEE1APID: uint32(cp), GNBCUUPUEE1APID: uint32(up), Cause: cause}, nil
	default:
		return nil, fmt.Errorf("%w: unknown PDU (present=%d, code=%d)", ErrDecode, present, code)
	}
}
