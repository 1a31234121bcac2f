package geometry

import (
	"fmt"
	"math"
	"strings"
)

// Direction selects which way a turn is allowed to go.
type Direction int

const (
	Fastest Direction = iota // shortest path
	CW                       // clockwise only, error >= 0
	CCW                      // counter-clockwise only, error <= 0
)

func (d Direction) String() string {
	switch d {
	case CW:
		return "cw"
	case CCW:
		return "ccw"
	default:
		return "fastest"
	}
}

// ParseDirection maps "fastest", "cw" or "ccw" (any case) to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fastest":
		return Fastest, nil
	case "cw":
		return CW, nil
	case "ccw":
		return CCW, nil
	}
	return Fastest, fmt.Errorf("unknown turn direction %q (want fastest, cw or ccw)", s)
}

// ToRad converts degrees to radians.
func ToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// ToDeg converts radians to degrees.
func ToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Reduce180 wraps an angle into (-180, 180].
func Reduce180(angle float64) float64 {
	a := math.Mod(angle, 360)
	if a <= -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return a
}

// Reduce90 wraps an angle into (-90, 90]. Angles pointing backwards
// map onto their reflection, so "behind" reads as "ahead, reversed".
func Reduce90(angle float64) float64 {
	a := math.Mod(angle, 180)
	if a <= -90 {
		a += 180
	} else if a > 90 {
		a -= 180
	}
	return a
}

// Reduce360 wraps an angle into [0, 360).
func Reduce360(angle float64) float64 {
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// AngleError normalizes a heading delta for the given direction preference.
func AngleError(err float64, dir Direction) float64 {
	switch dir {
	case CW:
		return Reduce360(err)
	case CCW:
		e := Reduce360(err)
		if e > 0 {
			e -= 360
		}
		return e
	default:
		return Reduce180(err)
	}
}

// Sign returns -1 for negative values and 1 otherwise.
func Sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
