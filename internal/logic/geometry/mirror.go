package geometry

// Mirror holds the field-side reflection toggles. The zero value mirrors nothing.
type Mirror struct {
	Angles bool
	X      bool
	Y      bool
}

// MirrorAngle reflects a heading across the Y axis (360 - a). It is not
// reduced so that applying it twice returns the input exactly.
func MirrorAngle(a float64) float64 {
	return 360 - a
}

// MirrorDirection swaps CW and CCW.
func MirrorDirection(d Direction) Direction {
	switch d {
	case CW:
		return CCW
	case CCW:
		return CW
	}
	return d
}

// Angle applies the angle toggle.
func (m Mirror) Angle(a float64) float64 {
	if m.Angles {
		return MirrorAngle(a)
	}
	return a
}

// Direction applies the angle toggle to a turn preference.
func (m Mirror) Direction(d Direction) Direction {
	if m.Angles {
		return MirrorDirection(d)
	}
	return d
}

// MirrorX applies the X toggle.
func (m Mirror) MirrorX(x float64) float64 {
	if m.X {
		return -x
	}
	return x
}

// MirrorY applies the Y toggle.
func (m Mirror) MirrorY(y float64) float64 {
	if m.Y {
		return -y
	}
	return y
}

// Point applies both coordinate toggles.
func (m Mirror) Point(p Point) Point {
	return Point{X: m.MirrorX(p.X), Y: m.MirrorY(p.Y)}
}
