// Package shaders embeds the GLSL sources of the simulation kernels and the
// display program.
package shaders

import _ "embed"

// Program names. Devices resolve kernels by these names.
const (
	AgentUpdate = "agent_update"
	TrailUpdate = "trail_update"
	Colormap    = "colormap"
)

//go:embed agent_update.comp
var AgentUpdateSource string

//go:embed trail_update.comp
var TrailUpdateSource string

//go:embed colormap.fs
var ColormapFragment string
