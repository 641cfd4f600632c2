// Package mac implements the DU's MAC-layer logical channel bookkeeping:
// downlink buffer state and MAC CE queueing with subPDU packing into a
// transport block, and uplink buffer status per logical channel group.
package mac

import "github.com/your-org/gnb/common/ran"

// LCIDDLSCH is an LCID value on DL-SCH, covering both radio bearer logical
// channels and MAC CEs (TS 38.321, Table 6.2.1-1).
type LCIDDLSCH uint8

const (
	// LCIDCCCH carries SRB0.
	LCIDCCCH LCIDDLSCH = 0

	// MinReservedLCID..MaxReservedLCID are reserved values.
	MinReservedLCID LCIDDLSCH = 33
	MaxReservedLCID LCIDDLSCH = 51

	LCIDRecommendedBitRate LCIDDLSCH = 0b101111

	LCIDSCellActivation4Octet LCIDDLSCH = 0b111001
	LCIDSCellActivation1Octet LCIDDLSCH = 0b111010
	LCIDLongDRXCommand        LCIDDLSCH = 0b111011
	LCIDDRXCommand            LCIDDLSCH = 0b111100
	LCIDTACommand             LCIDDLSCH = 0b111101
	LCIDUEConResID            LCIDDLSCH = 0b111110
	LCIDPadding               LCIDDLSCH = 0b111111
)

// IsCE reports whether the LCID designates a MAC CE.
func (l LCIDDLSCH) IsCE() bool {
	return l >= LCIDRecommendedBitRate && l <= LCIDPadding
}

// IsSDU reports whether the LCID designates a radio bearer logical channel.
func (l LCIDDLSCH) IsSDU() bool {
	return l <= LCIDDLSCH(ran.MaxSDULCID)
}

// IsValid reports false for all reserved values.
func (l LCIDDLSCH) IsValid() bool {
	return l <= LCIDPadding && (l < MinReservedLCID || l > MaxReservedLCID)
}

// SizeofCE returns the fixed CE payload size in bytes (TS 38.321 §6.1.3).
func (l LCIDDLSCH) SizeofCE() int {
	switch l {
	case LCIDSCellActivation4Octet:
		return 4
	case LCIDSCellActivation1Octet:
		return 1
	case LCIDLongDRXCommand, LCIDDRXCommand:
		return 0
	case LCIDTACommand:
		return 1
	case LCIDUEConResID:
		return 6
	}
	return 0
}

// MAC subheader sizing (TS 38.321 §6.1).
const (
	FixedSizeCESubheaderSize  = 1
	SDUSubheaderLengthThres   = 256
	MinSDUSubheaderSize       = 2
	MaxSDUSubheaderSize       = 3
)

// SubheaderSize derives the MAC SDU subheader size for a payload.
func SubheaderSize(payload int) int {
	switch {
	case payload == 0:
		return 0
	case payload >= SDUSubheaderLengthThres:
		return MaxSDUSubheaderSize
	default:
		return MinSDUSubheaderSize
	}
}

// RequiredBytes returns the MAC SDU total size including its subheader.
func RequiredBytes(payload int) int {
	return payload + SubheaderSize(payload)
}

// sduPayloadSize recovers the payload size from a total (payload plus
// subheader) size.
func sduPayloadSize(total int) int {
	if total == 0 {
		return 0
	}
	size := total - MinSDUSubheaderSize
	if size < SDUSubheaderLengthThres {
		return size
	}
	return size - 1
}

// TACommandPayload is the payload of a Timing Advance Command MAC CE.
type TACommandPayload struct {
	TAGID ran.TAGID
	// TACmd is the quantized Timing Advance Command, 0..63.
	TACmd uint8
}

// CE is one queued MAC control element.
type CE struct {
	LCID LCIDDLSCH
	// Payload carries the CE-specific content, e.g. TACommandPayload.
	Payload any
}

// SubPDU describes one scheduled MAC subPDU: a CE or an SDU slice of a
// logical channel.
type SubPDU struct {
	LCID LCIDDLSCH
	// SchedBytes is the payload size without the subheader.
	SchedBytes int
	// CEPayload is set for CE subPDUs.
	CEPayload any
}
