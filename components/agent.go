// Package components defines the plain data types shared by the simulation
// stages and the parallel devices.
package components

import "unsafe"

// Position is a point in normalized field space, [0,1) on both axes.
type Position struct {
	X, Y float32
}

// Heading is a unit direction vector.
type Heading struct {
	X, Y float32
}

// Agent is one mobile trail-follower.
// The layout matches std430 {vec2 pos; vec2 dir;} so a population slice can be
// uploaded to a storage buffer without repacking.
type Agent struct {
	Pos Position
	Dir Heading
}

// AgentSize is the size of one Agent in bytes.
const AgentSize = int(unsafe.Sizeof(Agent{}))
