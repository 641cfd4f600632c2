package rrc

import (
	"errors"
)

// ErrSecurityNegotiationFailed marks a capability set with no mutually
// supported integrity algorithm.
var ErrSecurityNegotiationFailed = errors.New("rrc: security negotiation failed")

// IntegrityAlgorithm enumerates the NR integrity protection algorithms.
type IntegrityAlgorithm uint8

const (
	NIA0 IntegrityAlgorithm = iota
	NIA1
	NIA2
	NIA3
)

// CipheringAlgorithm enumerates the NR ciphering algorithms.
type CipheringAlgorithm uint8

const (
	NEA0 CipheringAlgorithm = iota
	NEA1
	NEA2
	NEA3
)

// SecurityContext is a UE's AS security state.
type SecurityContext struct {
	// KgNB holds the key with the first transmitted ASN.1 octet at byte
	// index 31 and the last at index 0.
	KgNB      [32]byte
	Integrity IntegrityAlgorithm
	Ciphering CipheringAlgorithm
	Enabled   bool
}

// CopyKgNB converts the 256-bit wire bitstring into internal storage: a
// byte-wise reversal.
func CopyKgNB(wire [32]byte) [32]byte {
	var out [32]byte
	for i := range wire {
		out[len(wire)-1-i] = wire[i]
	}
	return out
}

// capability bitstrings are 16-bit big-endian; only the first three bits
// are meaningful (algorithm 1, 2, 3 in transmission order).
func capSupports(caps uint16, alg uint8) bool {
	if alg < 1 || alg > 3 {
		return false
	}
	return caps&(1<<(16-alg)) != 0
}

// SelectAlgorithms negotiates the strongest mutually supported pair.
// NIA2/NEA2 are preferred, then 1, then 3; ciphering falls back to NEA0,
// integrity has no null fallback and fails the negotiation.
func SelectAlgorithms(integrityCaps, cipheringCaps uint16) (IntegrityAlgorithm, CipheringAlgorithm, error) {
	var integrity IntegrityAlgorithm
	switch {
	case capSupports(integrityCaps, 2):
		integrity = NIA2
	case capSupports(integrityCaps, 1):
		integrity = NIA1
	case capSupports(integrityCaps, 3):
		integrity = NIA3
	default:
		return 0, 0, ErrSecurityNegotiationFailed
	}

	ciphering := NEA0
	switch {
	case capSupports(cipheringCaps, 2):
		ciphering = NEA2
	case capSupports(cipheringCaps, 1):
		ciphering = NEA1
	case capSupports(cipheringCaps, 3):
		ciphering = NEA3
	}
	return integrity, ciphering, nil
}
