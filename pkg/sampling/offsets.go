// Package sampling implements the blockhash-seeded offset generator (spec
// §4.B) and the fixed-width sample hasher (spec §4.D) that together turn an
// encrypted segment into a mining-proof digest.
package sampling

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// Generator draws uniform offsets over [0, bound) from a ChaCha20 keystream
// seeded by a turn blockhash. A fresh Generator must be constructed for
// every turn: offsets from previous iterations are discarded (spec §4.B).
type Generator struct {
	stream *chacha20.Cipher
}

// NewGenerator seeds a stream cipher PRNG from the 32-byte turn blockhash.
func NewGenerator(blockhash [32]byte) (*Generator, error) {
	var nonce [chacha20.NonceSize]byte

	stream, err := chacha20.NewUnauthenticatedCipher(blockhash[:], nonce[:])
	if err != nil {
		return nil, fmt.Errorf("sampling: seed PRNG: %w", err)
	}

	return &Generator{stream: stream}, nil
}

// Offsets draws n u64 offsets, each uniform over [0, bound), via rejection
// sampling against the keystream (gen_range). bound must be > 0.
func (g *Generator) Offsets(n int, bound uint64) ([]uint64, error) {
	if bound == 0 {
		return nil, fmt.Errorf("sampling: bound must be > 0")
	}

	offsets := make([]uint64, n)
	for i := range offsets {
		v, err := g.genRange(bound)
		if err != nil {
			return nil, err
		}
		offsets[i] = v
	}
	return offsets, nil
}

// genRange draws a single uniform value in [0, bound) by rejecting
// keystream draws that would bias the distribution, matching the
// rand::Rng::gen_range contract the original sampler relies on.
func (g *Generator) genRange(bound uint64) (uint64, error) {
	limit := (^uint64(0)) - (^uint64(0))%bound

	for {
		v := g.next64()
		if v < limit {
			return v % bound, nil
		}
	}
}

func (g *Generator) next64() uint64 {
	var buf [8]byte
	zero := buf
	g.stream.XORKeyStream(buf[:], zero[:])
	return binary.LittleEndian.Uint64(buf[:])
}
