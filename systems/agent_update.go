package systems

import (
	"math"

	"github.com/pthm-cable/mould/components"
)

// Sensor slots, in tie-break order.
const (
	sensorForward = iota
	sensorLeft
	sensorRight
	numSensors
)

// UpdateAgent runs one lane of the agent stage: sense the read grid, steer,
// move, wrap and deposit into the deposit grid. Lanes at or past
// len(agents) do nothing. read and deposit must be different grids.
func UpdateAgent(lane int, agents []components.Agent, read, deposit *Grid, u *Uniforms) {
	if lane < 0 || lane >= len(agents) {
		return
	}
	a := &agents[lane]

	// Repeated rotate calls let the stored heading drift off unit length.
	dir := normalizeDir(a.Dir)
	scores := senseAll(a.Pos, dir, read, u)
	pick := chooseSensor(scores, u.Seed, uint32(lane), u.Tick)

	var offset float32
	switch pick {
	case sensorLeft:
		offset = u.SensorSpan
	case sensorRight:
		offset = -u.SensorSpan
	}
	if offset != 0 {
		dir = rotate(dir, offset*clamp01(u.TurnSpeed*u.DT))
	}

	step := u.AgentSpeed * u.DT
	a.Pos.X = wrap01(a.Pos.X + dir.X*step)
	a.Pos.Y = wrap01(a.Pos.Y + dir.Y*step)
	a.Dir = dir

	if u.DepositAmount > 0 {
		cx, cy := deposit.Cell(a.Pos.X, a.Pos.Y)
		deposit.DepositMax(cy*deposit.W+cx, u.DepositAmount)
	}
}

// senseAll samples the forward, left and right sensors.
func senseAll(pos components.Position, dir components.Heading, read *Grid, u *Uniforms) [numSensors]float32 {
	var scores [numSensors]float32
	scores[sensorForward] = sense(pos, dir, read, u)
	scores[sensorLeft] = sense(pos, rotate(dir, u.SensorSpan), read, u)
	scores[sensorRight] = sense(pos, rotate(dir, -u.SensorSpan), read, u)
	return scores
}

func sense(pos components.Position, dir components.Heading, read *Grid, u *Uniforms) float32 {
	sx := pos.X + dir.X*u.SensorRange
	sy := pos.Y + dir.Y*u.SensorRange
	cx, cy := read.Cell(wrap01(sx), wrap01(sy))
	return read.SampleWindow(cx, cy, int(u.SensorSize))
}

// chooseSensor returns the highest-scoring sensor. Ties are broken by the
// lane hash so the choice is reproducible per (seed, lane, tick) but differs
// between agents.
func chooseSensor(scores [numSensors]float32, seed, lane, tick uint32) int {
	best := scores[0]
	for _, s := range scores[1:] {
		if s > best {
			best = s
		}
	}

	var tied [numSensors]int
	n := 0
	for i, s := range scores {
		if s == best {
			tied[n] = i
			n++
		}
	}
	if n == 1 {
		return tied[0]
	}
	return tied[laneHash(seed, lane, tick)%uint32(n)]
}

// rotate turns a heading by angle radians (counter-clockwise).
func rotate(d components.Heading, angle float32) components.Heading {
	sin, cos := math.Sincos(float64(angle))
	x, y := float64(d.X), float64(d.Y)
	return components.Heading{
		X: float32(x*cos - y*sin),
		Y: float32(x*sin + y*cos),
	}
}

// normalizeDir rescales a heading to unit length; degenerate headings
// point along +X.
func normalizeDir(d components.Heading) components.Heading {
	l := math.Hypot(float64(d.X), float64(d.Y))
	if !(l > 1e-12) || math.IsInf(l, 0) {
		return components.Heading{X: 1, Y: 0}
	}
	return components.Heading{X: float32(float64(d.X) / l), Y: float32(float64(d.Y) / l)}
}
