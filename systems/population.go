package systems

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/mould/components"
)

// SpawnAgents creates n agents at uniform random positions with uniform
// random unit headings.
func SpawnAgents(n int, rng *rand.Rand) []components.Agent {
	agents := make([]components.Agent, n)
	for i := range agents {
		angle := rng.Float64() * 2 * math.Pi
		sin, cos := math.Sincos(angle)
		agents[i] = components.Agent{
			Pos: components.Position{X: wrap01(rng.Float32()), Y: wrap01(rng.Float32())},
			Dir: components.Heading{X: float32(cos), Y: float32(sin)},
		}
	}
	return agents
}
