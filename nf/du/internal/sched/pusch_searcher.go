package sched

import (
	"sort"

	"go.uber.org/zap"

	"github.com/your-org/gnb/common/ran"
)

// PUSCHSearcher lazily yields valid PUSCH allocation parameter tuples.
// It mirrors the PDSCH searcher with the uplink validity rules: the
// PUSCH slot must be UL-enabled, the resource must span the slot's full
// UL symbol count, and only time-domain indices whose (k2, direction)
// pair is admissible are visited.
type PUSCHSearcher struct {
	ue        *UE
	isReTx    bool
	pdcchSlot ran.SlotPoint
	fullSlots SlotSet
	logger    *zap.Logger

	harqs    []*HARQ
	ssList   []*SearchSpace
	ssOfHARQ *HARQ

	harqIdx int
	ssIdx   int
	timeRes int
	started bool
}

// NewPUSCHSearcher builds a searcher over the UE's UL HARQs.
func NewPUSCHSearcher(ue *UE, isReTx bool, pdcchSlot ran.SlotPoint, fullSlots SlotSet, logger *zap.Logger) *PUSCHSearcher {
	s := &PUSCHSearcher{
		ue:        ue,
		isReTx:    isReTx,
		pdcchSlot: pdcchSlot,
		fullSlots: fullSlots,
		logger:    logger,
	}
	if !ue.OnCell {
		return s
	}
	if isReTx {
		for _, h := range ue.ULHARQs {
			if h.PendingReTx && h.LastAlloc != nil && !h.LastAlloc.IsFallback {
				s.harqs = append(s.harqs, h)
			}
		}
		sort.SliceStable(s.harqs, func(i, j int) bool {
			return s.harqs[i].LastAlloc.SlotAck.Sub(s.harqs[j].LastAlloc.SlotAck) < 0
		})
		return s
	}
	if ue.PendingULNewTxBytes == 0 {
		return s
	}
	for _, h := range ue.ULHARQs {
		if h.Empty() {
			s.harqs = append(s.harqs, h)
			return s
		}
	}
	logger.Debug("PUSCH allocation skipped: no available HARQs for new transmissions")
	return s
}

// Next yields the next valid candidate, or false when exhausted.
func (s *PUSCHSearcher) Next() (Candidate, bool) {
	if !s.started {
		s.started = true
	} else {
		s.timeRes++
	}
	for ; s.harqIdx < len(s.harqs); s.harqIdx++ {
		s.generateSSCandidates()
		for ; s.ssIdx < len(s.ssList); s.ssIdx++ {
			ss := s.ssList[s.ssIdx]
			for ; s.timeRes < len(ss.PUSCHTimeDomain); s.timeRes++ {
				if s.valid(ss, ss.PUSCHTimeDomain[s.timeRes]) {
					return Candidate{
						HARQ:         s.harqs[s.harqIdx],
						SearchSpace:  ss,
						TimeResIndex: s.timeRes,
						RNTIConfig:   s.candidateRNTIType(),
					}, true
				}
			}
			s.timeRes = 0
		}
		s.ssIdx = 0
		s.ssOfHARQ = nil
	}
	return Candidate{}, false
}

func (s *PUSCHSearcher) generateSSCandidates() {
	h := s.harqs[s.harqIdx]
	if s.ssOfHARQ == h {
		return
	}
	s.ssOfHARQ = h

	var preferred *RNTIConfigType
	if s.isReTx {
		preferred = &h.LastAlloc.RNTIType
	} else if s.ue.Fallback {
		tc := RNTIConfigTCRNTIF10
		preferred = &tc
	}
	s.ssList = s.ue.activeSearchSpaces(s.pdcchSlot, preferred)
}

func (s *PUSCHSearcher) candidateRNTIType() RNTIConfigType {
	h := s.harqs[s.harqIdx]
	if !h.Empty() {
		return h.LastAlloc.RNTIType
	}
	return RNTIConfigCRNTIF10
}

func (s *PUSCHSearcher) valid(ss *SearchSpace, td TimeDomainResource) bool {
	puschSlot := s.pdcchSlot.Add(td.K)

	// Admissible (k2, slot-direction): the target slot must be
	// UL-enabled at all.
	ulSymbols := s.ue.Pattern.ULSymbols(puschSlot)
	if ulSymbols == 0 {
		return false
	}

	// Full-UL requirement: the resource spans the slot's whole UL range.
	if td.Symbols.Length() != ulSymbols {
		return false
	}

	if s.isReTx {
		last := s.harqs[s.harqIdx].LastAlloc
		if td.Symbols.Length() != last.NofSymbols {
			return false
		}
	}

	if s.fullSlots.Contains(puschSlot) {
		return false
	}

	return true
}
