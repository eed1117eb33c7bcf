package raft

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// MathRandom is a seedable Random backed by math/rand, suitable for
// reproducible tests (spec §9: "for reproducible tests, the host
// supplies a seedable generator").
type MathRandom struct {
	r *mrand.Rand
}

// NewMathRandom seeds an independent generator. Seed per node, never
// per group, so election timeouts are independent across the cluster.
func NewMathRandom(seed int64) *MathRandom {
	return &MathRandom{r: mrand.New(mrand.NewSource(seed))}
}

func (m *MathRandom) Uint32() uint32 { return m.r.Uint32() }

// CryptoRandom is a Random backed by the OS CSPRNG, for production use
// (spec §9: "for production, a cryptographic or OS generator").
type CryptoRandom struct{}

func NewCryptoRandom() CryptoRandom { return CryptoRandom{} }

func (CryptoRandom) Uint32() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken; a
		// degraded-but-deterministic fallback is safer than propagating
		// a panic into a hot path with no recovery.
		return 0
	}
	return binary.BigEndian.Uint32(buf[:])
}
