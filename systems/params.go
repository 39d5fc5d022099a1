package systems

import "github.com/pthm-cable/mould/config"

// Params are the per-run constants shared by both stages.
// Field order mirrors the uniform block in the compute shaders.
type Params struct {
	ResX, ResY    int32
	AgentCount    int32
	SensorSize    int32
	AgentSpeed    float32
	TurnSpeed     float32
	SensorSpan    float32
	SensorRange   float32
	DepositAmount float32
	DiffuseRate   float32
	EvaporateRate float32
	Seed          uint32
}

// Uniforms are Params plus the values that change every tick.
type Uniforms struct {
	Params
	DT   float32 // seconds since the previous tick
	Tick uint32  // tick index, feeds the per-lane hash
}

// NewParams extracts stage parameters from a loaded config.
// seed is the run's hash seed, drawn once from the run's randomness source.
func NewParams(cfg *config.Config, seed uint32) Params {
	return Params{
		ResX:          int32(cfg.Simulation.ResX),
		ResY:          int32(cfg.Simulation.ResY),
		AgentCount:    int32(cfg.Simulation.AgentCount),
		SensorSize:    int32(cfg.Agents.SensorSize),
		AgentSpeed:    cfg.Derived.Speed32,
		TurnSpeed:     cfg.Derived.TurnSpeed32,
		SensorSpan:    cfg.Derived.SensorSpan32,
		SensorRange:   cfg.Derived.SensorRange32,
		DepositAmount: cfg.Derived.Deposit32,
		DiffuseRate:   cfg.Derived.Diffuse32,
		EvaporateRate: cfg.Derived.Evaporate32,
		Seed:          seed,
	}
}
