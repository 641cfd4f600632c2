// Package sched implements the per-UE scheduler candidate search: lazy
// iteration over (HARQ, SearchSpace, time-domain resource, RNTI config)
// tuples that can carry a PDSCH or PUSCH grant on a given PDCCH slot.
package sched

import (
	"github.com/your-org/gnb/common/ran"
)

// SymbolInterval is a half-open range of OFDM symbols [Start, Stop).
type SymbolInterval struct {
	Start uint8
	Stop  uint8
}

// Length returns the number of symbols in the interval.
func (i SymbolInterval) Length() int {
	return int(i.Stop) - int(i.Start)
}

// TimeDomainResource is one entry of a PDSCH or PUSCH time-domain
// resource allocation list. K is k0 for PDSCH and k2 for PUSCH.
type TimeDomainResource struct {
	K       int
	Symbols SymbolInterval
}

// RNTIConfigType selects the DCI RNTI configuration of a grant.
type RNTIConfigType uint8

const (
	RNTIConfigCRNTIF10 RNTIConfigType = iota
	RNTIConfigCRNTIF11
	RNTIConfigTCRNTIF10
)

// SearchSpace is one PDCCH search space of the UE's configuration.
type SearchSpace struct {
	ID uint8
	// Common marks a common search space (usable for TC-RNTI).
	Common bool
	// FirstSymbol is the first PDCCH monitoring symbol.
	FirstSymbol uint8
	// CORESETDuration is the associated CORESET's symbol count.
	CORESETDuration uint8
	// MonitoringPeriodSlots and MonitoringOffset define the slots in
	// which the search space is monitored.
	MonitoringPeriodSlots int
	MonitoringOffset      int
	// SupportsDCIF11 selects C-RNTI format 1_1/0_1 over 1_0/0_0.
	SupportsDCIF11 bool
	// PDSCHTimeDomain and PUSCHTimeDomain are the applicable
	// time-domain resource lists.
	PDSCHTimeDomain []TimeDomainResource
	PUSCHTimeDomain []TimeDomainResource
}

// ActiveAt reports whether the search space is monitored in the slot.
func (ss *SearchSpace) ActiveAt(slot ran.SlotPoint) bool {
	if ss.MonitoringPeriodSlots <= 1 {
		return true
	}
	return (int(slot.Count)-ss.MonitoringOffset)%ss.MonitoringPeriodSlots == 0
}

// dlRNTIType returns the RNTI configuration this search space produces
// for a downlink newTx.
func (ss *SearchSpace) dlRNTIType() RNTIConfigType {
	if ss.SupportsDCIF11 {
		return RNTIConfigCRNTIF11
	}
	return RNTIConfigCRNTIF10
}

// AllocParams records the parameters of a HARQ's previous transmission.
type AllocParams struct {
	NofSymbols int
	RNTIType   RNTIConfigType
	IsFallback bool
	// SlotAck orders retransmission candidates oldest-first.
	SlotAck ran.SlotPoint
}

// HARQ is one HARQ process of the UE.
type HARQ struct {
	ID          uint8
	PendingReTx bool
	// LastAlloc is nil for an empty process.
	LastAlloc *AllocParams
}

// Empty reports whether the process carries no transmission.
func (h *HARQ) Empty() bool {
	return h.LastAlloc == nil
}

// SlotPattern gives the per-slot DL and UL symbol counts of the TDD
// configuration, repeating with the pattern length.
type SlotPattern struct {
	DLSymbolsPerSlot []int
	ULSymbolsPerSlot []int
}

// DLSymbols returns the DL symbol count of the slot.
func (p SlotPattern) DLSymbols(slot ran.SlotPoint) int {
	if len(p.DLSymbolsPerSlot) == 0 {
		return 0
	}
	return p.DLSymbolsPerSlot[int(slot.Count)%len(p.DLSymbolsPerSlot)]
}

// ULSymbols returns the UL symbol count of the slot.
func (p SlotPattern) ULSymbols(slot ran.SlotPoint) int {
	if len(p.ULSymbolsPerSlot) == 0 {
		return 0
	}
	return p.ULSymbolsPerSlot[int(slot.Count)%len(p.ULSymbolsPerSlot)]
}

// SlotSet is a set of slots with no allocation space left.
type SlotSet map[uint32]struct{}

// Add inserts a slot.
func (s SlotSet) Add(slot ran.SlotPoint) {
	s[slot.Count] = struct{}{}
}

// Contains reports membership.
func (s SlotSet) Contains(slot ran.SlotPoint) bool {
	if s == nil {
		return false
	}
	_, ok := s[slot.Count]
	return ok
}

// UE is the scheduler's view of one UE on one cell.
type UE struct {
	// OnCell is false while the UE is not configured on the cell.
	OnCell bool
	// Fallback marks a UE whose contention resolution is still pending;
	// its newTx grants use TC-RNTI on common search spaces.
	Fallback bool
	// PendingDLNewTxBytes and PendingULNewTxBytes gate newTx searches.
	PendingDLNewTxBytes int
	PendingULNewTxBytes int
	// SearchSpaces is the dedicated configuration, in configuration
	// order.
	SearchSpaces []*SearchSpace
	DLHARQs      []*HARQ
	ULHARQs      []*HARQ
	Pattern      SlotPattern
}

// hasCommonSearchSpace reports whether the dedicated configuration
// contains at least one common search space.
func (ue *UE) hasCommonSearchSpace() bool {
	for _, ss := range ue.SearchSpaces {
		if ss.Common {
			return true
		}
	}
	return false
}

// activeSearchSpaces returns the search spaces usable in the PDCCH slot
// for the preferred RNTI configuration, in configuration order.
func (ue *UE) activeSearchSpaces(pdcchSlot ran.SlotPoint, preferred *RNTIConfigType) []*SearchSpace {
	restrictToCommon := preferred != nil && *preferred == RNTIConfigTCRNTIF10
	useMonitoring := ue.hasCommonSearchSpace()
	var out []*SearchSpace
	for _, ss := range ue.SearchSpaces {
		if restrictToCommon && !ss.Common {
			continue
		}
		if useMonitoring && !ss.ActiveAt(pdcchSlot) {
			continue
		}
		out = append(out, ss)
	}
	return out
}

// Candidate is one valid allocation parameter tuple.
type Candidate struct {
	HARQ         *HARQ
	SearchSpace  *SearchSpace
	TimeResIndex int
	RNTIConfig   RNTIConfigType
}

// TimeRes returns the candidate's time-domain resource.
func (c Candidate) TimeRes(dl bool) TimeDomainResource {
	if dl {
		return c.SearchSpace.PDSCHTimeDomain[c.TimeResIndex]
	}
	return c.SearchSpace.PUSCHTimeDomain[c.TimeResIndex]
}
