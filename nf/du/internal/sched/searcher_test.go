package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/gnb/common/ran"
)

const fullSlotSymbols = 14

// allDLPattern has every slot fully DL and fully UL (FDD-like test setup).
func allDLPattern() SlotPattern {
	return SlotPattern{
		DLSymbolsPerSlot: []int{fullSlotSymbols},
		ULSymbolsPerSlot: []int{fullSlotSymbols},
	}
}

func testSearchSpace() *SearchSpace {
	return &SearchSpace{
		ID:              2,
		FirstSymbol:     0,
		CORESETDuration: 2,
		PDSCHTimeDomain: []TimeDomainResource{
			{K: 0, Symbols: SymbolInterval{Start: 2, Stop: 14}},
			{K: 1, Symbols: SymbolInterval{Start: 2, Stop: 10}},
			{K: 0, Symbols: SymbolInterval{Start: 0, Stop: 14}}, // overlaps CORESET
		},
		PUSCHTimeDomain: []TimeDomainResource{
			{K: 4, Symbols: SymbolInterval{Start: 0, Stop: 14}},
			{K: 4, Symbols: SymbolInterval{Start: 0, Stop: 7}}, // not full UL
		},
	}
}

func testUE() *UE {
	return &UE{
		OnCell:              true,
		PendingDLNewTxBytes: 100,
		PendingULNewTxBytes: 100,
		SearchSpaces:        []*SearchSpace{testSearchSpace()},
		DLHARQs:             []*HARQ{{ID: 0}, {ID: 1}},
		ULHARQs:             []*HARQ{{ID: 0}},
		Pattern:             allDLPattern(),
	}
}

func collectPDSCH(s *PDSCHSearcher) []Candidate {
	var out []Candidate
	for {
		c, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

func collectPUSCH(s *PUSCHSearcher) []Candidate {
	var out []Candidate
	for {
		c, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

func slot(n uint32) ran.SlotPoint {
	return ran.SlotPoint{Count: n}
}

func TestPDSCH_EmptyWhenNothingPending(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	ue := testUE()
	ue.PendingDLNewTxBytes = 0
	s := NewPDSCHSearcher(ue, false, slot(0), nil, logger)
	_, ok := s.Next()
	assert.False(t, ok)

	// No HARQ with pending reTx either.
	s = NewPDSCHSearcher(testUE(), true, slot(0), nil, logger)
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestPDSCH_EmptyWhenOffCell(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	ue.OnCell = false
	s := NewPDSCHSearcher(ue, false, slot(0), nil, logger)
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestPDSCH_CandidatesSatisfyPredicates(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	pdcch := slot(8)

	cands := collectPDSCH(NewPDSCHSearcher(ue, false, pdcch, nil, logger))
	require.NotEmpty(t, cands)
	for _, c := range cands {
		td := c.TimeRes(true)
		target := pdcch.Add(td.K)
		assert.LessOrEqual(t, int(td.Symbols.Stop), ue.Pattern.DLSymbols(target))
		assert.GreaterOrEqual(t, td.Symbols.Start, c.SearchSpace.FirstSymbol+c.SearchSpace.CORESETDuration)
	}
	// Resource 2 overlaps the CORESET and never appears.
	for _, c := range cands {
		assert.NotEqual(t, 2, c.TimeResIndex)
	}
}

func TestPDSCH_NewTxUsesSingleEmptyHARQ(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	ue.DLHARQs[0].LastAlloc = &AllocParams{NofSymbols: 12, RNTIType: RNTIConfigCRNTIF10}

	cands := collectPDSCH(NewPDSCHSearcher(ue, false, slot(0), nil, logger))
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.Same(t, ue.DLHARQs[1], c.HARQ)
	}
}

func TestPDSCH_ReTxMatchesPreviousAllocation(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	ue.DLHARQs[0].PendingReTx = true
	ue.DLHARQs[0].LastAlloc = &AllocParams{
		NofSymbols: 8, // matches only resource 1 (symbols 2..10)
		RNTIType:   RNTIConfigCRNTIF10,
		SlotAck:    slot(4),
	}

	cands := collectPDSCH(NewPDSCHSearcher(ue, true, slot(0), nil, logger))
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.Equal(t, 1, c.TimeResIndex)
		assert.Equal(t, 8, c.TimeRes(true).Symbols.Length())
		assert.Equal(t, RNTIConfigCRNTIF10, c.RNTIConfig)
	}
}

func TestPDSCH_ReTxOrderedOldestAckFirst(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	ue.DLHARQs[0].PendingReTx = true
	ue.DLHARQs[0].LastAlloc = &AllocParams{NofSymbols: 12, RNTIType: RNTIConfigCRNTIF10, SlotAck: slot(20)}
	ue.DLHARQs[1].PendingReTx = true
	ue.DLHARQs[1].LastAlloc = &AllocParams{NofSymbols: 12, RNTIType: RNTIConfigCRNTIF10, SlotAck: slot(10)}

	cands := collectPDSCH(NewPDSCHSearcher(ue, true, slot(0), nil, logger))
	require.NotEmpty(t, cands)
	assert.Same(t, ue.DLHARQs[1], cands[0].HARQ)
	assert.Same(t, ue.DLHARQs[0], cands[len(cands)-1].HARQ)
}

func TestPDSCH_SkipsFullSlots(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	pdcch := slot(0)

	full := SlotSet{}
	full.Add(pdcch) // k0=0 targets land here

	cands := collectPDSCH(NewPDSCHSearcher(ue, false, pdcch, full, logger))
	for _, c := range cands {
		assert.False(t, full.Contains(pdcch.Add(c.TimeRes(true).K)))
	}
	// Only the k0=1 resource survives.
	require.NotEmpty(t, cands)
	assert.Equal(t, 1, cands[0].TimeResIndex)
}

func TestPDSCH_FallbackPrefersCommonSearchSpace(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	common := testSearchSpace()
	common.ID = 1
	common.Common = true
	ue.SearchSpaces = append(ue.SearchSpaces, common)
	ue.Fallback = true

	cands := collectPDSCH(NewPDSCHSearcher(ue, false, slot(0), nil, logger))
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.True(t, c.SearchSpace.Common)
		assert.Equal(t, RNTIConfigTCRNTIF10, c.RNTIConfig)
	}
}

func TestPDSCH_DLDisabledTargetSlotSkipped(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	// Slot 1 has no DL symbols; k0=1 from slot 0 is invalid, k0=0 on
	// slot 0 stays valid.
	ue.Pattern = SlotPattern{
		DLSymbolsPerSlot: []int{fullSlotSymbols, 0},
		ULSymbolsPerSlot: []int{0, fullSlotSymbols},
	}

	cands := collectPDSCH(NewPDSCHSearcher(ue, false, slot(0), nil, logger))
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.Equal(t, 0, c.TimeRes(true).K)
	}
}

func TestPUSCH_EmptyWhenNothingPending(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	ue.PendingULNewTxBytes = 0
	s := NewPUSCHSearcher(ue, false, slot(0), nil, logger)
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestPUSCH_FullULRequirement(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()

	cands := collectPUSCH(NewPUSCHSearcher(ue, false, slot(0), nil, logger))
	require.NotEmpty(t, cands)
	for _, c := range cands {
		td := c.TimeRes(false)
		target := slot(0).Add(td.K)
		assert.Equal(t, ue.Pattern.ULSymbols(target), td.Symbols.Length())
		// Resource 1 spans half the slot and never appears.
		assert.Equal(t, 0, c.TimeResIndex)
	}
}

func TestPUSCH_ULDisabledTargetSkipped(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	// k2=4 from slot 0 lands on slot 4, which has no UL symbols.
	ue.Pattern = SlotPattern{
		DLSymbolsPerSlot: []int{fullSlotSymbols},
		ULSymbolsPerSlot: []int{0, 0, 0, 0, 0},
	}

	s := NewPUSCHSearcher(ue, false, slot(0), nil, logger)
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestPUSCH_SkipsFullSlots(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ue := testUE()
	full := SlotSet{}
	full.Add(slot(4)) // k2=4 target

	s := NewPUSCHSearcher(ue, false, slot(0), full, logger)
	_, ok := s.Next()
	assert.False(t, ok)
}
