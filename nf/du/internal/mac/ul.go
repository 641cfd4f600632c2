package mac

import (
	"sync/atomic"

	"github.com/your-org/gnb/common/ran"
)

// rlcHeaderSizeEstimate is the estimated upper layer header cost added to
// BSR-reported bytes for LCGs other than 0.
const rlcHeaderSizeEstimate = 3

// BSRReport is one decoded buffer status report entry.
type BSRReport struct {
	LCGID ran.LCGID
	Bytes int
}

// ULBSRIndication carries the reported LCG occupancies of one BSR.
type ULBSRIndication struct {
	Reported []BSRReport
}

// ULLogicalChannelManager tracks a UE's uplink buffer state per logical
// channel group and the pending scheduling request. The SR flag is atomic:
// it is set on the PHY indication path and cleared by the scheduler.
type ULLogicalChannelManager struct {
	groups    [ran.MaxNofLCGs]ulGroup
	srPending atomic.Bool
}

type ulGroup struct {
	active   bool
	bufBytes int
}

// NewULLogicalChannelManager returns a manager with LCG-0 active.
func NewULLogicalChannelManager() *ULLogicalChannelManager {
	m := &ULLogicalChannelManager{}
	m.SetStatus(0, true)
	return m
}

// SetStatus activates or deactivates a logical channel group.
func (m *ULLogicalChannelManager) SetStatus(lcg ran.LCGID, active bool) {
	m.groups[lcg].active = active
}

// Configure activates exactly the given groups.
func (m *ULLogicalChannelManager) Configure(lcgs []ran.LCGID) {
	for i := 1; i < len(m.groups); i++ {
		m.groups[i].active = false
	}
	for _, lcg := range lcgs {
		m.SetStatus(lcg, true)
	}
}

// IsActive reports whether the group is activated for UL.
func (m *ULLogicalChannelManager) IsActive(lcg ran.LCGID) bool {
	return m.groups[lcg].active
}

// IsAnyActive reports whether at least one group is active.
func (m *ULLogicalChannelManager) IsAnyActive() bool {
	for i := range m.groups {
		if m.groups[i].active {
			return true
		}
	}
	return false
}

// HasPendingBytes reports whether any active group has reported data.
func (m *ULLogicalChannelManager) HasPendingBytes() bool {
	for i := range m.groups {
		if m.groups[i].active && m.groups[i].bufBytes > 0 {
			return true
		}
	}
	return false
}

// PendingBytesFor returns the last reported occupancy of the group plus
// the estimated upper layer header and subPDU subheader costs.
func (m *ULLogicalChannelManager) PendingBytesFor(lcg ran.LCGID) int {
	if !m.IsActive(lcg) {
		return 0
	}
	// The RLC and MAC header sizes are not part of the reported buffer
	// size (TS 38.321 §6.1.3.1); estimate them here.
	payload := m.groups[lcg].bufBytes
	if payload > 0 && lcg != 0 {
		payload += rlcHeaderSizeEstimate
	}
	return RequiredBytes(payload)
}

// PendingBytes returns the total estimated pending UL bytes.
func (m *ULLogicalChannelManager) PendingBytes() int {
	bytes := 0
	for i := range m.groups {
		bytes += m.PendingBytesFor(ran.LCGID(i))
	}
	return bytes
}

// HandleBSRIndication replaces the stored occupancy of each reported LCG.
func (m *ULLogicalChannelManager) HandleBSRIndication(ind ULBSRIndication) {
	for _, rep := range ind.Reported {
		m.groups[rep.LCGID].bufBytes = rep.Bytes
	}
}

// HandleSRIndication records a scheduling request. The indication is
// dropped when no group is active.
func (m *ULLogicalChannelManager) HandleSRIndication() {
	if !m.IsAnyActive() {
		return
	}
	m.srPending.Store(true)
}

// HasPendingSR reports whether a scheduling request awaits handling.
func (m *ULLogicalChannelManager) HasPendingSR() bool {
	return m.srPending.Load()
}

// ResetSRIndication clears the pending scheduling request.
func (m *ULLogicalChannelManager) ResetSRIndication() {
	m.srPending.Store(false)
}

// Deactivate clears all groups and the SR, preparing for UE removal.
func (m *ULLogicalChannelManager) Deactivate() {
	for i := range m.groups {
		m.groups[i].active = false
	}
	m.ResetSRIndication()
}
