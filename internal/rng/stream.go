// Package rng provides the randomness sources behind hazard placement: a
// crypto/rand backed production source and a deterministic HMAC-SHA256
// float stream for provably fair rounds.
package rng

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"
)

// Stream yields bytes from HMAC-SHA256(serverSeed, "clientSeed:nonce:round"),
// 32 bytes per hashing round, advancing the round counter as the buffer
// drains. The byte sequence is fully determined by (serverSeed, clientSeed,
// nonce), which is what makes a round verifiable after the server seed is
// revealed.
type Stream struct {
	serverSeed string
	clientSeed string
	nonce      uint64
	round      uint64
	pos        int
	buf        [32]byte
}

// NewStream creates a stream positioned at the first byte of hashing round 0.
func NewStream(serverSeed, clientSeed string, nonce uint64) *Stream {
	s := &Stream{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
	s.fill()
	return s
}

// NextByte returns the next byte, refilling the buffer from the following
// hashing round when the current one is exhausted.
func (s *Stream) NextByte() byte {
	if s.pos >= len(s.buf) {
		s.round++
		s.pos = 0
		s.fill()
	}
	b := s.buf[s.pos]
	s.pos++
	return b
}

// NextFloat consumes exactly 4 bytes and maps them into [0, 1).
func (s *Stream) NextFloat() float64 {
	b0 := s.NextByte()
	b1 := s.NextByte()
	b2 := s.NextByte()
	b3 := s.NextByte()

	return bytesToFloat([4]byte{b0, b1, b2, b3})
}

func (s *Stream) fill() {
	h := hmac.New(sha256.New, []byte(s.serverSeed))
	fmt.Fprintf(h, "%s:%d:%d", s.clientSeed, s.nonce, s.round)
	copy(s.buf[:], h.Sum(nil))
}

// bytesToFloat converts exactly 4 bytes to a float in [0, 1) using the
// formula b0/256 + b1/256^2 + b2/256^3 + b3/256^4.
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		divider := math.Pow(256, float64(i+1))
		result += float64(b) / divider
	}
	return result
}

// Floats generates count floats for the given seed triple, starting from the
// beginning of the stream.
func Floats(serverSeed, clientSeed string, nonce uint64, count int) []float64 {
	s := NewStream(serverSeed, clientSeed, nonce)
	floats := make([]float64, count)
	for i := range floats {
		floats[i] = s.NextFloat()
	}
	return floats
}
