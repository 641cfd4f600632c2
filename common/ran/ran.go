// Package ran holds the RAN-level value types shared by the CU-CP and the
// DU: radio identifiers, QoS identifiers, PLMN/NR-CGI encodings and slot
// arithmetic.
package ran

import (
	"errors"
	"fmt"
)

// RNTI is a cell-local 16-bit radio network temporary identifier.
type RNTI uint16

// C-RNTI validity bounds per TS 38.321.
const (
	MinCRNTI RNTI = 0x0001
	MaxCRNTI RNTI = 0xffef
)

// IsCRNTI reports whether the RNTI falls in the valid C-RNTI range.
func (r RNTI) IsCRNTI() bool {
	return r >= MinCRNTI && r <= MaxCRNTI
}

// FiveQI is the 5G QoS identifier classifying a QoS flow.
type FiveQI uint16

// QoSFlowID identifies a QoS flow within a PDU session.
type QoSFlowID uint8

// PDUSessionID identifies a PDU session between UE and core.
type PDUSessionID uint16

// DRBID identifies a data radio bearer. Valid range is 1..MaxNofDRBs.
type DRBID uint8

// MaxNofDRBs is the number of DRB identities available per UE.
const MaxNofDRBs = 32

// Valid reports whether the DRB-ID is in 1..MaxNofDRBs.
func (d DRBID) Valid() bool {
	return d >= 1 && d <= MaxNofDRBs
}

// SRBID identifies a signalling radio bearer (0..3).
type SRBID uint8

const (
	SRB0 SRBID = 0
	SRB1 SRBID = 1
	SRB2 SRBID = 2
	SRB3 SRBID = 3
)

// LCID is a logical channel identifier on DL-SCH/UL-SCH.
type LCID uint8

const (
	// LCIDSrb0 is the CCCH.
	LCIDSrb0 LCID = 0
	// LCIDSrb1 carries SRB1.
	LCIDSrb1 LCID = 1
	// MaxSDULCID is the highest LCID carrying a radio bearer.
	MaxSDULCID LCID = 32
	// NofLCIDs is the size of the LCID space on DL-SCH.
	NofLCIDs = 64
)

// LCGID is an uplink logical channel group identifier (0..7).
type LCGID uint8

// MaxNofLCGs is the number of UL logical channel groups.
const MaxNofLCGs = 8

// TAGID is a timing advance group identifier.
type TAGID uint8

// MaxNofTAGs is the number of timing advance groups per cell group.
const MaxNofTAGs = 4

// SNSSAI is the single network slice selection assistance information.
type SNSSAI struct {
	SST uint8
	// SD is the 24-bit slice differentiator; nil when absent.
	SD *uint32
}

// PLMN is a mobile country code plus mobile network code pair.
type PLMN struct {
	MCC string
	MNC string
}

var errBadPLMN = errors.New("ran: malformed PLMN")

// Encode packs the PLMN into the 3-octet BCD-reversed wire form of
// TS 38.413: MCC "001" MNC "01" encodes as 00 f1 10.
func (p PLMN) Encode() ([3]byte, error) {
	var out [3]byte
	if len(p.MCC) != 3 || (len(p.MNC) != 2 && len(p.MNC) != 3) {
		return out, fmt.Errorf("%w: mcc=%q mnc=%q", errBadPLMN, p.MCC, p.MNC)
	}
	digit := func(c byte) (byte, error) {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: non-digit %q", errBadPLMN, c)
		}
		return c - '0', nil
	}
	var d [6]byte
	for i := 0; i < 3; i++ {
		v, err := digit(p.MCC[i])
		if err != nil {
			return out, err
		}
		d[i] = v
	}
	for i := 0; i < len(p.MNC); i++ {
		v, err := digit(p.MNC[i])
		if err != nil {
			return out, err
		}
		d[3+i] = v
	}
	out[0] = d[1]<<4 | d[0]
	if len(p.MNC) == 2 {
		out[1] = 0xf0 | d[2]
		out[2] = d[4]<<4 | d[3]
	} else {
		out[1] = d[5]<<4 | d[2]
		out[2] = d[4]<<4 | d[3]
	}
	return out, nil
}

// DecodePLMN unpacks the 3-octet BCD-reversed wire form.
func DecodePLMN(b [3]byte) (PLMN, error) {
	digit := func(v byte) (byte, error) {
		if v > 9 {
			return 0, fmt.Errorf("%w: nibble %#x", errBadPLMN, v)
		}
		return '0' + v, nil
	}
	var p PLMN
	m1, err := digit(b[0] & 0x0f)
	if err != nil {
		return p, err
	}
	m2, err := digit(b[0] >> 4)
	if err != nil {
		return p, err
	}
	m3, err := digit(b[1] & 0x0f)
	if err != nil {
		return p, err
	}
	p.MCC = string([]byte{m1, m2, m3})
	n1, err := digit(b[2] & 0x0f)
	if err != nil {
		return p, err
	}
	n2, err := digit(b[2] >> 4)
	if err != nil {
		return p, err
	}
	if b[1]>>4 == 0x0f {
		p.MNC = string([]byte{n1, n2})
	} else {
		n3, err := digit(b[1] >> 4)
		if err != nil {
			return p, err
		}
		p.MNC = string([]byte{n1, n2, n3})
	}
	return p, nil
}

// NRCellID is the 36-bit NR cell identity.
type NRCellID uint64

// MaxNRCellID bounds the 36-bit identity space.
const MaxNRCellID NRCellID = (1 << 36) - 1

// NRCGI is the NR cell global identifier: PLMN plus 36-bit cell identity.
type NRCGI struct {
	PLMN   PLMN
	CellID NRCellID
}

// Packed returns a stable map key for the NR-CGI, used by the cell
// registries for inbound F1AP lookups.
func (c NRCGI) Packed() (uint64, error) {
	plmn, err := c.PLMN.Encode()
	if err != nil {
		return 0, err
	}
	if c.CellID > MaxNRCellID {
		return 0, fmt.Errorf("ran: NR cell id %#x exceeds 36 bits", uint64(c.CellID))
	}
	key := uint64(plmn[0])<<56 | uint64(plmn[1])<<48 | uint64(plmn[2])<<40
	return key | uint64(c.CellID), nil
}

// TAC is the 3-octet 5GS tracking area code.
type TAC uint32

// Encode returns the 3-octet big-endian wire form.
func (t TAC) Encode() [3]byte {
	return [3]byte{byte(t >> 16), byte(t >> 8), byte(t)}
}

// DecodeTAC unpacks the 3-octet wire form.
func DecodeTAC(b [3]byte) TAC {
	return TAC(uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]))
}

// SubcarrierSpacing enumerates the NR subcarrier spacings.
type SubcarrierSpacing uint8

const (
	SCS15kHz SubcarrierSpacing = iota
	SCS30kHz
	SCS60kHz
	SCS120kHz
)

// Numerology returns μ as defined in TS 38.211.
func (s SubcarrierSpacing) Numerology() uint8 {
	return uint8(s)
}

// KHz returns the spacing in kHz.
func (s SubcarrierSpacing) KHz() uint32 {
	return 15 << uint32(s)
}

// SlotPoint is a monotone slot counter within one numerology.
type SlotPoint struct {
	Numerology uint8
	Count      uint32
}

// Add returns the slot n slots later.
func (s SlotPoint) Add(n int) SlotPoint {
	return SlotPoint{Numerology: s.Numerology, Count: uint32(int(s.Count) + n)}
}

// Sub returns the signed slot distance s - other.
func (s SlotPoint) Sub(other SlotPoint) int {
	return int(int32(s.Count - other.Count))
}

func (s SlotPoint) String() string {
	return fmt.Sprintf("mu%d.%d", s.Numerology, s.Count)
}
