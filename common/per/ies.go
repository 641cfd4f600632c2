package per

import "fmt"

// Criticality values carried with every protocol IE.
const (
	CriticalityReject = 0
	CriticalityIgnore = 1
	CriticalityNotify = 2
)

// IE is one protocol information element: a numeric id, a criticality and
// an open-type value (the IE body encoded separately and length-wrapped).
type IE struct {
	ID          uint16
	Criticality int
	Value       []byte
}

// maxProtocolIEs bounds the protocolIEs container per message.
const maxProtocolIEs = 65535

// WriteIEs encodes a protocolIEs container: a length-constrained count
// followed by each IE as (id, criticality, open-type value).
func WriteIEs(w *BitWriter, ies []IE) error {
	if err := WriteConstrainedWholeNumber(w, int64(len(ies)), 0, maxProtocolIEs); err != nil {
		return err
	}
	for _, ie := range ies {
		w.WriteBytes([]byte{byte(ie.ID >> 8), byte(ie.ID)})
		if err := WriteEnumerated(w, ie.Criticality, 3, false); err != nil {
			return err
		}
		if err := WriteLengthDeterminant(w, len(ie.Value)); err != nil {
			return err
		}
		w.WriteBytes(ie.Value)
	}
	return nil
}

// ReadIEs decodes a protocolIEs container. IE order is preserved.
func ReadIEs(r *BitReader) ([]IE, error) {
	count, err := ReadConstrainedWholeNumber(r, 0, maxProtocolIEs)
	if err != nil {
		return nil, err
	}
	ies := make([]IE, 0, count)
	for i := int64(0); i < count; i++ {
		idBytes, err := r.ReadBytes(2)
		if err != nil {
			return nil, err
		}
		crit, err := ReadEnumerated(r, 3, false)
		if err != nil {
			return nil, err
		}
		n, err := ReadLengthDeterminant(r)
		if err != nil {
			return nil, err
		}
		value, err := r.ReadBytes(n)
		if err != nil {
			return nil, err
		}
		ies = append(ies, IE{
			ID:          uint16(idBytes[0])<<8 | uint16(idBytes[1]),
			Criticality: crit,
			Value:       value,
		})
	}
	return ies, nil
}

// IESet indexes a decoded container by IE id for field extraction.
type IESet map[uint16][]byte

// ToSet indexes IEs by id. Duplicate ids keep the first occurrence.
func ToSet(ies []IE) IESet {
	set := make(IESet, len(ies))
	for _, ie := range ies {
		if _, ok := set[ie.ID]; !ok {
			set[ie.ID] = ie.Value
		}
	}
	return set
}

// Get returns the mandatory IE with the given id.
func (s IESet) Get(id uint16) ([]byte, error) {
	v, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("%w: missing mandatory IE %d", ErrDecode, id)
	}
	return v, nil
}

// Lookup returns the optional IE with the given id.
func (s IESet) Lookup(id uint16) ([]byte, bool) {
	v, ok := s[id]
	return v, ok
}
