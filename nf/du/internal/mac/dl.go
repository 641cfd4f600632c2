package mac

import (
	"github.com/your-org/gnb/common/ran"
)

// MaxSubPDUsPerTB bounds the subPDU list of one transport block.
const MaxSubPDUsPerTB = 16

// DLLogicalChannelManager tracks a UE's downlink buffer state per LCID and
// its queue of pending MAC CEs, and packs subPDUs into transport blocks.
//
// The UE Contention Resolution Identity CE is tracked separately: it is
// only transmitted together with pending SRB0 or SRB1 data.
type DLLogicalChannelManager struct {
	channels      [ran.NofLCIDs]dlChannel
	pendingConRes bool
	pendingCEs    []CE
}

type dlChannel struct {
	active   bool
	bufBytes int
}

// NewDLLogicalChannelManager returns a manager with SRB0 active.
func NewDLLogicalChannelManager() *DLLogicalChannelManager {
	m := &DLLogicalChannelManager{}
	m.SetStatus(ran.LCIDSrb0, true)
	return m
}

// SetStatus activates or deactivates a logical channel.
func (m *DLLogicalChannelManager) SetStatus(lcid ran.LCID, active bool) {
	m.channels[lcid].active = active
}

// Configure activates exactly the given channels (SRB0 stays active).
func (m *DLLogicalChannelManager) Configure(lcids []ran.LCID) {
	for i := 1; i < len(m.channels); i++ {
		m.channels[i].active = false
	}
	for _, lcid := range lcids {
		m.SetStatus(lcid, true)
	}
}

// IsActive reports whether the channel is activated for DL.
func (m *DLLogicalChannelManager) IsActive(lcid ran.LCID) bool {
	return m.channels[lcid].active
}

// HandleDLBufferStatusIndication replaces the buffer occupancy for a LCID.
func (m *DLLogicalChannelManager) HandleDLBufferStatusIndication(lcid ran.LCID, bytes int) {
	m.channels[lcid].bufBytes = bytes
}

// HandleMACCEIndication enqueues a MAC CE for transmission.
func (m *DLLogicalChannelManager) HandleMACCEIndication(ce CE) {
	if ce.LCID == LCIDUEConResID {
		m.pendingConRes = true
		return
	}
	m.pendingCEs = append(m.pendingCEs, ce)
}

// IsConResPending reports whether the UE Contention Resolution Identity CE
// is due: it is only sent when SRB0 or SRB1 has pending data.
func (m *DLLogicalChannelManager) IsConResPending() bool {
	return m.pendingConRes &&
		(m.HasPendingBytesFor(ran.LCIDSrb0) || m.HasPendingBytesFor(ran.LCIDSrb1))
}

// HasPendingCEs reports whether any CE is due for scheduling.
func (m *DLLogicalChannelManager) HasPendingCEs() bool {
	return m.IsConResPending() || len(m.pendingCEs) > 0
}

// HasPendingBytes reports whether the UE has pending data, excluding SRB0.
func (m *DLLogicalChannelManager) HasPendingBytes() bool {
	if m.HasPendingCEs() {
		return true
	}
	for i := 1; i < len(m.channels); i++ {
		if m.channels[i].active && m.channels[i].bufBytes > 0 {
			return true
		}
	}
	return false
}

// HasPendingBytesFor reports whether one channel has pending data.
func (m *DLLogicalChannelManager) HasPendingBytesFor(lcid ran.LCID) bool {
	return m.PendingBytesFor(lcid) > 0
}

// PendingBytesFor returns the channel's buffer status including the MAC
// subheader cost, zero for inactive channels.
func (m *DLLogicalChannelManager) PendingBytesFor(lcid ran.LCID) int {
	if !m.IsActive(lcid) {
		return 0
	}
	return RequiredBytes(m.channels[lcid].bufBytes)
}

// PendingBytes returns the total pending DL bytes including subheaders,
// excluding SRB0 and the UE Contention Resolution Identity CE.
func (m *DLLogicalChannelManager) PendingBytes() int {
	bytes := m.PendingCEBytes()
	for i := 1; i < len(m.channels); i++ {
		bytes += m.PendingBytesFor(ran.LCID(i))
	}
	return bytes
}

// PendingCEBytes returns the subheader-inclusive size of all pending CEs.
func (m *DLLogicalChannelManager) PendingCEBytes() int {
	bytes := m.PendingConResCEBytes()
	for _, ce := range m.pendingCEs {
		bytes += FixedSizeCESubheaderSize + ce.LCID.SizeofCE()
	}
	return bytes
}

// PendingConResCEBytes returns the subheader-inclusive UE-ContRes CE size,
// zero when it is not due.
func (m *DLLogicalChannelManager) PendingConResCEBytes() int {
	if !m.IsConResPending() {
		return 0
	}
	return FixedSizeCESubheaderSize + LCIDUEConResID.SizeofCE()
}

// maxPrioLCID returns the highest priority active LCID with pending data.
// Prioritization is by ascending LCID.
func (m *DLLogicalChannelManager) maxPrioLCID() (ran.LCID, bool) {
	for i := 0; i < len(m.channels); i++ {
		if m.channels[i].active && m.channels[i].bufBytes > 0 {
			return ran.LCID(i), true
		}
	}
	return 0, false
}

// AllocateMACSDU allocates the highest priority MAC SDU within remBytes.
// It returns the subPDU and the allocated bytes including the subheader;
// zero when nothing fits or nothing is pending.
func (m *DLLogicalChannelManager) AllocateMACSDU(remBytes int) (SubPDU, int) {
	lcid, ok := m.maxPrioLCID()
	if !ok {
		return SubPDU{LCID: LCIDDLSCH(MinReservedLCID)}, 0
	}
	return m.allocateSDU(lcid, remBytes)
}

func (m *DLLogicalChannelManager) allocateSDU(lcid ran.LCID, remBytes int) (SubPDU, int) {
	lchBytes := m.PendingBytesFor(lcid)
	if lchBytes == 0 || remBytes <= MinSDUSubheaderSize {
		return SubPDU{LCID: LCIDDLSCH(MinReservedLCID)}, 0
	}

	allocBytes := min(remBytes, lchBytes)

	// If this is the last subPDU of the TB, absorb the leftover bytes
	// instead of padding them.
	leftover := remBytes - allocBytes
	if leftover > 0 && (leftover <= MaxSDUSubheaderSize || m.PendingBytes() == 0) {
		allocBytes += leftover
	}
	if allocBytes == SDUSubheaderLengthThres+MinSDUSubheaderSize {
		// A 258-byte subPDU cannot be formed: a 255-byte payload takes a
		// 2-byte subheader (257 bytes) and a 256-byte payload a 3-byte one
		// (259 bytes).
		allocBytes--
	}
	sduSize := sduPayloadSize(allocBytes)

	m.channels[lcid].bufBytes -= min(sduSize, m.channels[lcid].bufBytes)

	return SubPDU{LCID: LCIDDLSCH(lcid), SchedBytes: sduSize}, allocBytes
}

// AllocateMACCE allocates the next pending MAC CE within remBytes,
// starting with the UE Contention Resolution Identity CE when due.
func (m *DLLogicalChannelManager) AllocateMACCE(remBytes int) (SubPDU, int) {
	if subPDU, alloc := m.AllocateConResCE(remBytes); alloc > 0 {
		return subPDU, alloc
	}
	if len(m.pendingCEs) == 0 {
		return SubPDU{LCID: LCIDDLSCH(MinReservedLCID)}, 0
	}
	ce := m.pendingCEs[0]
	ceSize := ce.LCID.SizeofCE()
	allocBytes := ceSize + FixedSizeCESubheaderSize
	if remBytes < allocBytes {
		return SubPDU{LCID: LCIDDLSCH(MinReservedLCID)}, 0
	}
	m.pendingCEs = m.pendingCEs[1:]
	return SubPDU{LCID: ce.LCID, SchedBytes: ceSize, CEPayload: ce.Payload}, allocBytes
}

// AllocateConResCE allocates the UE Contention Resolution Identity CE when
// it is pending and fits.
func (m *DLLogicalChannelManager) AllocateConResCE(remBytes int) (SubPDU, int) {
	if !m.pendingConRes {
		return SubPDU{LCID: LCIDDLSCH(MinReservedLCID)}, 0
	}
	ceSize := LCIDUEConResID.SizeofCE()
	allocBytes := ceSize + FixedSizeCESubheaderSize
	if remBytes < allocBytes {
		return SubPDU{LCID: LCIDDLSCH(MinReservedLCID)}, 0
	}
	m.pendingConRes = false
	return SubPDU{LCID: LCIDUEConResID, SchedBytes: ceSize}, allocBytes
}

// TBInfo accumulates the subPDUs scheduled into one transport block.
type TBInfo struct {
	SubPDUs []SubPDU
}

func (tb *TBInfo) full() bool {
	return len(tb.SubPDUs) >= MaxSubPDUsPerTB
}

// AllocateMACSDUs packs pending MAC SDUs into the TB within totalTBS bytes.
// It returns the total allocated bytes including subheaders.
func AllocateMACSDUs(tb *TBInfo, m *DLLogicalChannelManager, totalTBS int) int {
	remTBS := totalTBS
	for remTBS > MaxSDUSubheaderSize && !tb.full() {
		subPDU, allocBytes := m.AllocateMACSDU(remTBS)
		if allocBytes == 0 {
			break
		}
		tb.SubPDUs = append(tb.SubPDUs, subPDU)
		remTBS -= allocBytes
	}
	return totalTBS - remTBS
}

// AllocateMACCEs packs pending MAC CEs into the TB within totalTBS bytes.
func AllocateMACCEs(tb *TBInfo, m *DLLogicalChannelManager, totalTBS int) int {
	remTBS := totalTBS
	for m.HasPendingCEs() && !tb.full() {
		subPDU, allocBytes := m.AllocateMACCE(remTBS)
		if allocBytes == 0 {
			break
		}
		tb.SubPDUs = append(tb.SubPDUs, subPDU)
		remTBS -= allocBytes
	}
	return totalTBS - remTBS
}

// AllocateConResCE packs the pending UE Contention Resolution Identity CE
// into the TB when due.
func AllocateConResCE(tb *TBInfo, m *DLLogicalChannelManager, totalTBS int) int {
	if tb.full() {
		return 0
	}
	subPDU, allocBytes := m.AllocateConResCE(totalTBS)
	if allocBytes == 0 {
		return 0
	}
	tb.SubPDUs = append(tb.SubPDUs, subPDU)
	return allocBytes
}
