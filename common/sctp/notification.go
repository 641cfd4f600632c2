package sctp

import (
	"encoding/binary"
	"fmt"
)

// Kernel notification types (linux/sctp.h).
const (
	snTypeAssocChange   uint16 = 0x8001
	snTypeShutdownEvent uint16 = 0x8005
)

// AssocState enumerates sctp_assoc_change states.
type AssocState uint16

const (
	AssocCommUp AssocState = iota
	AssocCommLost
	AssocRestart
	AssocShutdownComp
	AssocCantStrAssoc
)

func (s AssocState) String() string {
	switch s {
	case AssocCommUp:
		return "COMM_UP"
	case AssocCommLost:
		return "COMM_LOST"
	case AssocRestart:
		return "RESTART"
	case AssocShutdownComp:
		return "SHUTDOWN_COMP"
	case AssocCantStrAssoc:
		return "CANT_STR_ASSOC"
	}
	return fmt.Sprintf("state(%d)", uint16(s))
}

// AssocChange mirrors struct sctp_assoc_change.
type AssocChange struct {
	State           AssocState
	Error           uint16
	OutboundStreams uint16
	InboundStreams  uint16
	AssocID         uint32
}

// ShutdownEvent mirrors struct sctp_shutdown_event.
type ShutdownEvent struct {
	AssocID uint32
}

// parseNotification decodes a raw kernel notification payload. The header
// is struct sctp_notification: sn_type, sn_flags, sn_length (all host
// order, which on the supported platforms is little-endian).
func parseNotification(payload []byte) (any, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("notification too short: %d bytes", len(payload))
	}
	snType := binary.LittleEndian.Uint16(payload[0:2])
	snLength := binary.LittleEndian.Uint32(payload[4:8])
	if int(snLength) > len(payload) {
		return nil, fmt.Errorf("notification truncated: header says %d bytes, have %d", snLength, len(payload))
	}
	switch snType {
	case snTypeAssocChange:
		// sctp_assoc_change: header(8) + state(2) + error(2) +
		// outbound(2) + inbound(2) + assoc_id(4).
		if len(payload) < 20 {
			return nil, fmt.Errorf("assoc change too short: %d bytes", len(payload))
		}
		return &AssocChange{
			State:           AssocState(binary.LittleEndian.Uint16(payload[8:10])),
			Error:           binary.LittleEndian.Uint16(payload[10:12]),
			OutboundStreams: binary.LittleEndian.Uint16(payload[12:14]),
			InboundStreams:  binary.LittleEndian.Uint16(payload[14:16]),
			AssocID:         binary.LittleEndian.Uint32(payload[16:20]),
		}, nil
	case snTypeShutdownEvent:
		if len(payload) < 12 {
			return nil, fmt.Errorf("shutdown event too short: %d bytes", len(payload))
		}
		return &ShutdownEvent{
			AssocID: binary.LittleEndian.Uint32(payload[8:12]),
		}, nil
	default:
		return nil, fmt.Errorf("unhandled notification type %#x", snType)
	}
}
