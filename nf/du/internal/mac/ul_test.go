package mac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUL_DefaultState(t *testing.T) {
	m := NewULLogicalChannelManager()
	assert.True(t, m.IsActive(0))
	assert.False(t, m.IsActive(1))
	assert.True(t, m.IsAnyActive())
	assert.False(t, m.HasPendingBytes())
}

func TestUL_BSRReplacesOccupancy(t *testing.T) {
	m := NewULLogicalChannelManager()
	m.SetStatus(2, true)

	m.HandleBSRIndication(ULBSRIndication{Reported: []BSRReport{{LCGID: 0, Bytes: 100}, {LCGID: 2, Bytes: 50}}})
	assert.True(t, m.HasPendingBytes())

	m.HandleBSRIndication(ULBSRIndication{Reported: []BSRReport{{LCGID: 0, Bytes: 10}}})
	// LCG 0 replaced, LCG 2 untouched.
	assert.Equal(t, RequiredBytes(10), m.PendingBytesFor(0))
	assert.Equal(t, RequiredBytes(50+rlcHeaderSizeEstimate), m.PendingBytesFor(2))
}

func TestUL_HeaderEstimateOnlyForHigherLCGs(t *testing.T) {
	m := NewULLogicalChannelManager()
	m.SetStatus(1, true)
	m.HandleBSRIndication(ULBSRIndication{Reported: []BSRReport{{LCGID: 0, Bytes: 10}, {LCGID: 1, Bytes: 10}}})

	assert.Equal(t, 10+2, m.PendingBytesFor(0))
	assert.Equal(t, 10+3+2, m.PendingBytesFor(1))

	// Empty buffers cost nothing.
	m.HandleBSRIndication(ULBSRIndication{Reported: []BSRReport{{LCGID: 1, Bytes: 0}}})
	assert.Equal(t, 0, m.PendingBytesFor(1))
}

func TestUL_InactiveGroupReportsZero(t *testing.T) {
	m := NewULLogicalChannelManager()
	m.HandleBSRIndication(ULBSRIndication{Reported: []BSRReport{{LCGID: 5, Bytes: 99}}})
	assert.Equal(t, 0, m.PendingBytesFor(5))
	assert.False(t, m.HasPendingBytes())
}

func TestUL_SRIndication(t *testing.T) {
	m := NewULLogicalChannelManager()
	m.HandleSRIndication()
	assert.True(t, m.HasPendingSR())
	m.ResetSRIndication()
	assert.False(t, m.HasPendingSR())
}

func TestUL_SRDroppedWhenNoGroupActive(t *testing.T) {
	m := NewULLogicalChannelManager()
	m.Deactivate()
	m.HandleSRIndication()
	assert.False(t, m.HasPendingSR())
}

func TestUL_DeactivateClearsEverything(t *testing.T) {
	m := NewULLogicalChannelManager()
	m.SetStatus(3, true)
	m.HandleSRIndication()
	m.Deactivate()

	assert.False(t, m.IsAnyActive())
	assert.False(t, m.HasPendingSR())
}
