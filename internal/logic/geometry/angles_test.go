package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce180(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{-180, 180},
		{190, -170},
		{-190, 170},
		{540, 180},
		{-725, -5},
		{359, -1},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, Reduce180(tc.in), 1e-9, "Reduce180(%v)", tc.in)
	}
}

func TestReduce90(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{90, 90},
		{-90, 90},
		{100, -80},
		{-100, 80},
		{180, 0},
		{135, -45},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, Reduce90(tc.in), 1e-9, "Reduce90(%v)", tc.in)
	}
}

func TestReduce360(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{-1, 359},
		{725, 5},
		{-360, 0},
		{-1e-15, 0},
	}
	for _, tc := range cases {
		got := Reduce360(tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, "Reduce360(%v)", tc.in)
		assert.True(t, got >= 0 && got < 360, "Reduce360(%v) = %v out of [0,360)", tc.in, got)
	}
}

func TestAngleError_FastestIsPeriodic(t *testing.T) {
	for x := -720.0; x <= 720; x += 7.5 {
		base := AngleError(x, Fastest)
		require.True(t, base > -180 && base <= 180, "AngleError(%v) = %v", x, base)
		for k := -3; k <= 3; k++ {
			assert.InDelta(t, base, AngleError(x+360*float64(k), Fastest), 1e-9)
		}
	}
}

func TestAngleError_ForcedDirections(t *testing.T) {
	for x := -720.0; x <= 720; x += 11.25 {
		assert.GreaterOrEqual(t, AngleError(x, CW), 0.0, "CW error for %v", x)
		assert.LessOrEqual(t, AngleError(x, CCW), 0.0, "CCW error for %v", x)
	}
	assert.InDelta(t, 350, AngleError(-10, CW), 1e-9)
	assert.InDelta(t, -350, AngleError(10, CCW), 1e-9)
	assert.InDelta(t, 100, AngleError(90-350, Fastest), 1e-9)
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"": Fastest, "fastest": Fastest, "CW": CW, " ccw ": CCW} {
		got, err := ParseDirection(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "ParseDirection(%q)", in)
	}
	_, err := ParseDirection("left")
	assert.Error(t, err)
}

func TestMirror_Involutive(t *testing.T) {
	m := Mirror{Angles: true, X: true, Y: true}
	for _, v := range []float64{0, 12.5, -30, 90, 359.9, 720} {
		assert.InDelta(t, v, m.Angle(m.Angle(v)), 1e-9)
		assert.Equal(t, v, m.MirrorX(m.MirrorX(v)))
		assert.Equal(t, v, m.MirrorY(m.MirrorY(v)))
	}
	for _, d := range []Direction{Fastest, CW, CCW} {
		assert.Equal(t, d, m.Direction(m.Direction(d)))
	}
	assert.Equal(t, CCW, m.Direction(CW))
	assert.Equal(t, Point{X: -3, Y: -4}, m.Point(Point{X: 3, Y: 4}))

	var none Mirror
	assert.Equal(t, 30.0, none.Angle(30))
	assert.Equal(t, CW, none.Direction(CW))
}

func TestBearing(t *testing.T) {
	origin := Point{}
	assert.InDelta(t, 0, Bearing(origin, Point{X: 0, Y: 10}), 1e-9)
	assert.InDelta(t, 90, Bearing(origin, Point{X: 10, Y: 0}), 1e-9)
	assert.InDelta(t, 180, Bearing(origin, Point{X: 0, Y: -10}), 1e-9)
	assert.InDelta(t, -45, Bearing(origin, Point{X: -10, Y: 10}), 1e-9)
}
