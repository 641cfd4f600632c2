package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCUCPUEID_Derivation(t *testing.T) {
	assert.Equal(t, CUCPUEID(0), NewCUCPUEID(0, 0))
	assert.Equal(t, CUCPUEID(MaxNofUEs), NewCUCPUEID(1, 0))
	assert.Equal(t, CUCPUEID(MaxNofUEs+41), NewCUCPUEID(1, 41))
}

func TestCUCPUEID_DerivationIsTotal(t *testing.T) {
	for du := DUIndex(0); du < MaxNofDUs; du++ {
		for _, ue := range []UEIndex{0, 1, 41, MaxNofUEs - 1} {
			id := NewCUCPUEID(du, ue)
			assert.Equal(t, ue, id.UEIndexOf())
			assert.Equal(t, du, id.DUIndexOf())
			assert.True(t, id.Valid())
		}
	}
}

func TestCUCPUEID_RANUENGAPID(t *testing.T) {
	id := NewCUCPUEID(1, 7)
	assert.Equal(t, RANUENGAPID(uint64(id)), id.RANUENGAPIDOf())
}

func TestValidity(t *testing.T) {
	assert.False(t, InvalidUEIndex.Valid())
	assert.False(t, InvalidDUIndex.Valid())
	assert.False(t, InvalidCUCPUEID.Valid())
	assert.True(t, UEIndex(0).Valid())
	assert.True(t, CUCPUEID(MaxNofCUUEs-1).Valid())
}
