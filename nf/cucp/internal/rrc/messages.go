// Package rrc implements the CU-CP's per-UE RRC state machine: connection
// setup, the security mode procedure, reconfiguration and release, with
// the SRB notifier plumbing towards F1 and NGAP.
package rrc

import (
	"errors"
	"fmt"

	"github.com/your-org/gnb/common/per"
	"github.com/your-org/gnb/common/ran"
)

// ErrDecodeMessage marks an undecodable RRC container.
var ErrDecodeMessage = errors.New("rrc: decode error")

// MessageType discriminates the RRC messages carried in containers.
type MessageType uint8

const (
	MsgRRCSetupRequest MessageType = iota
	MsgRRCSetup
	MsgRRCSetupComplete
	MsgSecurityModeCommand
	MsgSecurityModeComplete
	MsgSecurityModeFailure
	MsgRRCReconfiguration
	MsgRRCReconfigurationComplete
	MsgULInformationTransfer
	MsgDLInformationTransfer
	MsgRRCRelease
	nofMessageTypes
)

func (t MessageType) String() string {
	switch t {
	case MsgRRCSetupRequest:
		return "RRCSetupRequest"
	case MsgRRCSetup:
		return "RRCSetup"
	case MsgRRCSetupComplete:
		return "RRCSetupComplete"
	case MsgSecurityModeCommand:
		return "SecurityModeCommand"
	case MsgSecurityModeComplete:
		return "SecurityModeComplete"
	case MsgSecurityModeFailure:
		return "SecurityModeFailure"
	case MsgRRCReconfiguration:
		return "RRCReconfiguration"
	case MsgRRCReconfigurationComplete:
		return "RRCReconfigurationComplete"
	case MsgULInformationTransfer:
		return "ULInformationTransfer"
	case MsgDLInformationTransfer:
		return "DLInformationTransfer"
	case MsgRRCRelease:
		return "RRCRelease"
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// Message is one decoded RRC message: a discriminator and its payload.
type Message struct {
	Type MessageType
	// Payload carries the message-specific octets: the NAS PDU for
	// setup-complete and information transfer, the algorithm pair for
	// the security mode command, the packed reconfiguration otherwise.
	Payload []byte
}

// PackMessage encodes a message into an RRC container.
func PackMessage(msg Message) ([]byte, error) {
	w := per.NewBitWriter()
	if err := per.WriteChoice(w, int(msg.Type), int(nofMessageTypes), true); err != nil {
		return nil, err
	}
	if err := per.WriteOctetString(w, msg.Payload, 0, -1, false); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// UnpackMessage decodes an RRC container.
func UnpackMessage(container []byte) (Message, error) {
	r := per.NewBitReader(container)
	t, err := per.ReadChoice(r, int(nofMessageTypes), true)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
	}
	payload, err := per.ReadOctetString(r, 0, -1, false)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
	}
	return Message{Type: MessageType(t), Payload: payload}, nil
}

// DRBConfigItem is one DRB of a reconfiguration's radio bearer config.
type DRBConfigItem struct {
	DRBID  ran.DRBID
	FiveQI ran.FiveQI
}

// ReconfigurationRequest is the higher-level input the reconfiguration
// container is built from.
type ReconfigurationRequest struct {
	DRBsToAdd     []DRBConfigItem
	DRBsToRelease []ran.DRBID
	// NASPDUs are piggy-backed for the UE.
	NASPDUs [][]byte
	// MasterCellGroup is the packed cell group config; nil when absent.
	MasterCellGroup []byte
}

// PackReconfiguration builds the RRCReconfiguration payload.
func PackReconfiguration(req ReconfigurationRequest) ([]byte, error) {
	w := per.NewBitWriter()
	if err := per.WriteConstrainedWholeNumber(w, int64(len(req.DRBsToAdd)), 0, ran.MaxNofDRBs); err != nil {
		return nil, err
	}
	for _, d := range req.DRBsToAdd {
		if err := per.WriteConstrainedWholeNumber(w, int64(d.DRBID), 1, ran.MaxNofDRBs); err != nil {
			return nil, err
		}
		if err := per.WriteConstrainedWholeNumber(w, int64(d.FiveQI), 0, 255); err != nil {
			return nil, err
		}
	}
	if err := per.WriteConstrainedWholeNumber(w, int64(len(req.DRBsToRelease)), 0, ran.MaxNofDRBs); err != nil {
		return nil, err
	}
	for _, id := range req.DRBsToRelease {
		if err := per.WriteConstrainedWholeNumber(w, int64(id), 1, ran.MaxNofDRBs); err != nil {
			return nil, err
		}
	}
	if err := per.WriteConstrainedWholeNumber(w, int64(len(req.NASPDUs)), 0, 16); err != nil {
		return nil, err
	}
	for _, nas := range req.NASPDUs {
		if err := per.WriteOctetString(w, nas, 0, -1, false); err != nil {
			return nil, err
		}
	}
	if err := per.WriteOctetString(w, req.MasterCellGroup, 0, -1, false); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// UnpackReconfiguration decodes the RRCReconfiguration payload.
func UnpackReconfiguration(payload []byte) (ReconfigurationRequest, error) {
	r := per.NewBitReader(payload)
	var req ReconfigurationRequest

	n, err := per.ReadConstrainedWholeNumber(r, 0, ran.MaxNofDRBs)
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
	}
	for i := int64(0); i < n; i++ {
		id, err := per.ReadConstrainedWholeNumber(r, 1, ran.MaxNofDRBs)
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
		}
		q, err := per.ReadConstrainedWholeNumber(r, 0, 255)
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
		}
		req.DRBsToAdd = append(req.DRBsToAdd, DRBConfigItem{DRBID: ran.DRBID(id), FiveQI: ran.FiveQI(q)})
	}

	n, err = per.ReadConstrainedWholeNumber(r, 0, ran.MaxNofDRBs)
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
	}
	for i := int64(0); i < n; i++ {
		id, err := per.ReadConstrainedWholeNumber(r, 1, ran.MaxNofDRBs)
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
		}
		req.DRBsToRelease = append(req.DRBsToRelease, ran.DRBID(id))
	}

	n, err = per.ReadConstrainedWholeNumber(r, 0, 16)
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
	}
	for i := int64(0); i < n; i++ {
		nas, err := per.ReadOctetString(r, 0, -1, false)
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
		}
		req.NASPDUs = append(req.NASPDUs, nas)
	}

	mcg, err := per.ReadOctetString(r, 0, -1, false)
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrDecodeMessage, err)
	}
	req.MasterCellGroup = mcg
	return req, nil
}
