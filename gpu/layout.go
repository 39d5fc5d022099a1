package gpu

import (
	"fmt"
	"regexp"
	"strconv"
)

var localSizeRe = regexp.MustCompile(`layout\s*\(([^)]*)\)\s*in\s*;`)

var localDimRe = regexp.MustCompile(`local_size_([xyz])\s*=\s*(\d+)`)

// ParseLocalSize extracts the lane-group shape declared by a compute
// shader's `layout(local_size_x = .., ...) in;` qualifier. Missing
// dimensions default to 1, as in GLSL.
func ParseLocalSize(source string) (GroupSize, error) {
	m := localSizeRe.FindStringSubmatch(source)
	if m == nil {
		return GroupSize{}, fmt.Errorf("%w: no local_size layout qualifier", ErrCompile)
	}

	g := GroupSize{X: 1, Y: 1, Z: 1}
	for _, dim := range localDimRe.FindAllStringSubmatch(m[1], -1) {
		v, err := strconv.Atoi(dim[2])
		if err != nil || v <= 0 {
			return GroupSize{}, fmt.Errorf("%w: local_size_%s must be a positive integer, got %q", ErrCompile, dim[1], dim[2])
		}
		switch dim[1] {
		case "x":
			g.X = v
		case "y":
			g.Y = v
		case "z":
			g.Z = v
		}
	}
	return g, nil
}

// SetLocalSize rewrites the layout qualifier of a compute shader so the
// lane-group shape chosen in config is the one compiled. Dimensions <= 0
// are written as 1.
func SetLocalSize(source string, g GroupSize) (string, error) {
	if !localSizeRe.MatchString(source) {
		return "", fmt.Errorf("%w: no local_size layout qualifier", ErrCompile)
	}
	dim := func(v int) int {
		if v <= 0 {
			return 1
		}
		return v
	}
	qualifier := fmt.Sprintf("layout(local_size_x = %d, local_size_y = %d, local_size_z = %d) in;", dim(g.X), dim(g.Y), dim(g.Z))
	return localSizeRe.ReplaceAllLiteralString(source, qualifier), nil
}
