package main

import (
	"github.com/pthm-cable/mould/config"
)

// ParamSpec is one tunable config value and its search range.
type ParamSpec struct {
	Name     string
	Path     string // config path, for reports
	Min, Max float64

	// field addresses the value inside a config
	field func(*config.Config) *float64
}

// ParamVector is the ordered set of tuned parameters. The optimizer works in
// the normalized space where every range maps to [0,1].
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector returns the steering and trail parameters the tuner searches.
func NewParamVector() *ParamVector {
	return &ParamVector{Specs: []ParamSpec{
		{"speed", "agents.speed", 0.02, 0.3, func(c *config.Config) *float64 { return &c.Agents.Speed }},
		{"turn_speed", "agents.turn_speed", 1, 30, func(c *config.Config) *float64 { return &c.Agents.TurnSpeed }},
		{"sensor_span", "agents.sensor_span", 0.1, 1.4, func(c *config.Config) *float64 { return &c.Agents.SensorSpan }},
		{"sensor_range", "agents.sensor_range", 0.003, 0.06, func(c *config.Config) *float64 { return &c.Agents.SensorRange }},
		{"diffuse_rate", "trail.diffuse_rate", 0.5, 20, func(c *config.Config) *float64 { return &c.Trail.DiffuseRate }},
		{"evaporate_rate", "trail.evaporate_rate", 0.05, 2, func(c *config.Config) *float64 { return &c.Trail.EvaporateRate }},
	}}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// Names returns the parameter names in vector order.
func (pv *ParamVector) Names() []string {
	names := make([]string, len(pv.Specs))
	for i, s := range pv.Specs {
		names[i] = s.Name
	}
	return names
}

// Normalize maps raw values onto [0,1] per range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		out[i] = (raw[i] - s.Min) / (s.Max - s.Min)
	}
	return out
}

// Denormalize maps [0,1] values back onto the parameter ranges.
func (pv *ParamVector) Denormalize(norm []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		out[i] = s.Min + norm[i]*(s.Max-s.Min)
	}
	return out
}

// Clamp limits raw values to their ranges.
func (pv *ParamVector) Clamp(raw []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		out[i] = min(max(raw[i], s.Min), s.Max)
	}
	return out
}

// ApplyToConfig writes clamped raw values into cfg and refreshes its derived
// values.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, raw []float64) error {
	for i, v := range pv.Clamp(raw) {
		*pv.Specs[i].field(cfg) = v
	}
	return cfg.Refresh()
}

// ExtractFromConfig reads the raw values out of cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		out[i] = *s.field(cfg)
	}
	return out
}
