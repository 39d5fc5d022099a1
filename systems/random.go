package systems

import (
	"math/rand"
	"time"
)

// NewSource builds the run's randomness source. Seed 0 selects a time-based seed.
// The returned seed is the one actually used, for logging.
func NewSource(seed int64) (*rand.Rand, int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)), seed
}

// laneHash mixes (seed, lane, tick) into a well-distributed uint32.
// Stateless, so every lane can draw independently without shared RNG state.
func laneHash(seed, lane, tick uint32) uint32 {
	h := lane*374761393 + tick*668265263 + seed*1442695041
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return h
}
