package sctp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assocChangePayload(state AssocState) []byte {
	p := make([]byte, 20)
	binary.LittleEndian.PutUint16(p[0:2], snTypeAssocChange)
	binary.LittleEndian.PutUint32(p[4:8], 20)
	binary.LittleEndian.PutUint16(p[8:10], uint16(state))
	binary.LittleEndian.PutUint16(p[12:14], 2)
	binary.LittleEndian.PutUint16(p[14:16], 2)
	binary.LittleEndian.PutUint32(p[16:20], 7)
	return p
}

func TestParseNotification_AssocChange(t *testing.T) {
	n, err := parseNotification(assocChangePayload(AssocCommUp))
	require.NoError(t, err)
	ac, ok := n.(*AssocChange)
	require.True(t, ok)
	assert.Equal(t, AssocCommUp, ac.State)
	assert.Equal(t, uint32(7), ac.AssocID)
	assert.Equal(t, uint16(2), ac.OutboundStreams)
}

func TestParseNotification_ShutdownEvent(t *testing.T) {
	p := make([]byte, 12)
	binary.LittleEndian.PutUint16(p[0:2], snTypeShutdownEvent)
	binary.LittleEndian.PutUint32(p[4:8], 12)
	binary.LittleEndian.PutUint32(p[8:12], 3)

	n, err := parseNotification(p)
	require.NoError(t, err)
	se, ok := n.(*ShutdownEvent)
	require.True(t, ok)
	assert.Equal(t, uint32(3), se.AssocID)
}

func TestParseNotification_Malformed(t *testing.T) {
	_, err := parseNotification([]byte{1, 2, 3})
	assert.Error(t, err)

	// Unknown type.
	p := make([]byte, 8)
	binary.LittleEndian.PutUint16(p[0:2], 0x7777)
	binary.LittleEndian.PutUint32(p[4:8], 8)
	_, err = parseNotification(p)
	assert.Error(t, err)

	// Truncated against its own header.
	p = assocChangePayload(AssocCommLost)
	binary.LittleEndian.PutUint32(p[4:8], 64)
	_, err = parseNotification(p)
	assert.Error(t, err)
}

func TestAssocStateStrings(t *testing.T) {
	assert.Equal(t, "COMM_UP", AssocCommUp.String())
	assert.Equal(t, "COMM_LOST", AssocCommLost.String())
	assert.Equal(t, "SHUTDOWN_COMP", AssocShutdownComp.String())
	assert.Equal(t, "CANT_STR_ASSOC", AssocCantStrAssoc.String())
}

func TestHostToNetPPID(t *testing.T) {
	// NGAP's PPID 60 appears as 0x3c000000 in sndrcvinfo (gnbsim uses the
	// same literal).
	assert.Equal(t, uint32(0x3c000000), hostToNetPPID(PPIDNGAP))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "connected", StateConnected.String())
}
