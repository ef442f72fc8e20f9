package rng

import (
	crand "crypto/rand"
	"math"
	"math/big"
)

// Source draws uniform integers for hazard placement. Implementations return
// values in [0, bound) and are intended for single-goroutine use; callers
// serialize access themselves.
type Source interface {
	NextInt(bound int) int
}

// Crypto returns a Source backed by crypto/rand, used for rounds played
// outside the provably fair flow.
func Crypto() Source {
	return cryptoSource{}
}

type cryptoSource struct{}

func (cryptoSource) NextInt(bound int) int {
	if bound <= 1 {
		return 0
	}
	n, err := crand.Int(crand.Reader, big.NewInt(int64(bound)))
	if err != nil {
		// Fallback should never happen with crypto/rand
		return 0
	}
	return int(n.Int64())
}

// Seeded returns a deterministic Source driven by the HMAC float stream for
// (serverSeed, clientSeed, nonce). Two sources built from the same triple
// produce the same draw sequence.
func Seeded(serverSeed, clientSeed string, nonce uint64) Source {
	return &seededSource{stream: NewStream(serverSeed, clientSeed, nonce)}
}

type seededSource struct {
	stream *Stream
}

func (s *seededSource) NextInt(bound int) int {
	if bound <= 1 {
		return 0
	}
	return intFromFloat(s.stream.NextFloat(), bound)
}

// intFromFloat maps f in [0, 1) onto [0, bound) via floor(f * bound). The
// upper edge is unreachable in exact arithmetic but clamped anyway.
func intFromFloat(f float64, bound int) int {
	n := int(math.Floor(f * float64(bound)))
	if n >= bound {
		n = bound - 1
	}
	return n
}
