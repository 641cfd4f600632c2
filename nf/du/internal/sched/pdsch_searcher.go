package sched

import (
	"sort"

	"go.uber.org/zap"

	"github.com/your-org/gnb/common/ran"
)

// PDSCHSearcher lazily yields valid PDSCH allocation parameter tuples for
// one UE on one PDCCH slot. Candidates are computed on demand as the
// caller advances; iteration order is HARQ, then SearchSpace in
// configuration order, then time-domain resource index.
type PDSCHSearcher struct {
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

// NewPDSCHSearcher builds a searcher. For a newTx search the UE must have
// pending newTx bytes and an empty HARQ; for a reTx search only HARQs with
// a pending retransmission are considered, oldest acknowledgement first.
func NewPDSCHSearcher(ue *UE, isReTx bool, pdcchSlot ran.SlotPoint, fullSlots SlotSet, logger *zap.Logger) *PDSCHSearcher {
	s := &PDSCHSearcher{
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
		for _, h := range ue.DLHARQs {
			if h.PendingReTx && h.LastAlloc != nil && !h.LastAlloc.IsFallback {
				s.harqs = append(s.harqs, h)
			}
		}
		sort.SliceStable(s.harqs, func(i, j int) bool {
			return s.harqs[i].LastAlloc.SlotAck.Sub(s.harqs[j].LastAlloc.SlotAck) < 0
		})
		return s
	}
	if ue.PendingDLNewTxBytes == 0 {
		return s
	}
	for _, h := range ue.DLHARQs {
		if h.Empty() {
			s.harqs = append(s.harqs, h)
			return s
		}
	}
	logger.Debug("PDSCH allocation skipped: no available HARQs for new transmissions")
	return s
}

// Next yields the next valid candidate. It returns false when the search
// space is exhausted.
func (s *PDSCHSearcher) Next() (Candidate, bool) {
	if !s.started {
		s.started = true
	} else {
		s.timeRes++
	}
	for ; s.harqIdx < len(s.harqs); s.harqIdx++ {
		s.generateSSCandidates()
		for ; s.ssIdx < len(s.ssList); s.ssIdx++ {
			ss := s.ssList[s.ssIdx]
			for ; s.timeRes < len(ss.PDSCHTimeDomain); s.timeRes++ {
				if s.valid(ss, ss.PDSCHTimeDomain[s.timeRes]) {
					return Candidate{
						HARQ:         s.harqs[s.harqIdx],
						SearchSpace:  ss,
						TimeResIndex: s.timeRes,
						RNTIConfig:   s.candidateRNTIType(ss),
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

// generateSSCandidates recomputes the search space list when the HARQ
// candidate changes; the preferred RNTI type follows the HARQ's previous
// allocation (reTx) or the UE's fallback state (newTx).
func (s *PDSCHSearcher) generateSSCandidates() {
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

func (s *PDSCHSearcher) candidateRNTIType(ss *SearchSpace) RNTIConfigType {
	h := s.harqs[s.harqIdx]
	if !h.Empty() {
		return h.LastAlloc.RNTIType
	}
	if s.ue.Fallback {
		return RNTIConfigTCRNTIF10
	}
	return ss.dlRNTIType()
}

func (s *PDSCHSearcher) valid(ss *SearchSpace, td TimeDomainResource) bool {
	pdschSlot := s.pdcchSlot.Add(td.K)

	// The PDSCH slot must be DL-enabled and fit the resource's symbols.
	if s.ue.Pattern.DLSymbols(pdschSlot) < int(td.Symbols.Stop) {
		return false
	}

	// The PDSCH symbols must not overlap the CORESET.
	if td.Symbols.Start < ss.FirstSymbol+ss.CORESETDuration {
		return false
	}

	// A retransmission reuses the original transmission's symbol count.
	if s.isReTx && td.Symbols.Length() != s.harqs[s.harqIdx].LastAlloc.NofSymbols {
		return false
	}

	// Skip slots the caller already filled.
	if s.fullSlots.Contains(pdschSlot) {
		return false
	}

	return true
}
