package geometry

import (
	"math"

	"github.com/golang/geo/r2"
)

// Point is a field coordinate in inches.
type Point = r2.Point

// Distance returns the euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return a.Sub(b).Norm()
}

// Bearing returns the heading (0 = +Y, clockwise positive) that points
// from `from` toward `to`, in degrees.
func Bearing(from, to Point) float64 {
	return ToDeg(math.Atan2(to.X-from.X, to.Y-from.Y))
}

// LineCircleIntersections returns the points where the segment p1-p2
// meets the circle of radius r around center. Points outside the segment
// are dropped; a tangent may produce two nearly identical points.
func LineCircleIntersections(center Point, r float64, p1, p2 Point) []Point {
	d := p2.Sub(p1)
	f := p1.Sub(center)

	a := d.Dot(d)
	b := 2 * f.Dot(d)
	c := f.Dot(f) - r*r
	if a == 0 {
		return nil
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return nil
	}
	sq := math.Sqrt(disc)
	var out []Point
	for _, t := range []float64{(-b - sq) / (2 * a), (-b + sq) / (2 * a)} {
		if t >= 0 && t <= 1 {
			out = append(out, p1.Add(d.Mul(t)))
		}
	}
	return out
}

// IsLineSettled reports whether the robot at current has crossed the line
// through target perpendicular to the heading angle (degrees).
func IsLineSettled(target Point, angle float64, current Point) bool {
	a := ToRad(angle)
	return (target.Y-current.Y)*math.Cos(a) <= -(target.X-current.X)*math.Sin(a)
}
