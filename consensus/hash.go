package consensus

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashU64 is the fixed, stable 64-bit hash used throughout the simulator
// wherever the protocol needs a deterministic derivation from an integer
// seed: leader selection (hash(slot) mod N) and the subcommittee draw's
// hash chain. A single hash family is used for both so the determinism
// contract rests on one well-tested implementation rather than two.
func HashU64(x uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], x)
	return xxhash.Sum64(buf[:])
}
