//nolint:funlen // ok for tests
package geometry

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"
	"gotest.tools/v3/assert"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func rectangle() []Coordinate {
	return []Coordinate{
		{Lon: 0, Lat: 0},
		{Lon: 10, Lat: 0},
		{Lon: 10, Lat: 10},
		{Lon: 0, Lat: 10},
	}
}

func circle(n int) []Coordinate {
	ret := make([]Coordinate, n)
	for i := range n {
		a := 2 * math.Pi * float64(i) / float64(n)
		ret[i] = Coordinate{Lon: 50.5 + 0.01*math.Cos(a), Lat: 26.0 + 0.01*math.Sin(a)}
	}
	return ret
}

func TestBuildPathTooFewPoints(t *testing.T) {
	for _, coords := range [][]Coordinate{nil, {}, {{Lon: 1, Lat: 2}}} {
		_, err := BuildPath(coords)
		assert.ErrorIs(t, err, ErrTooFewPoints)
	}
}

func TestBuildPathRectangle(t *testing.T) {
	p, err := BuildPath(rectangle())
	assert.NilError(t, err)

	assert.DeepEqual(t, []Point{
		{X: 20, Y: 280},
		{X: 380, Y: 280},
		{X: 380, Y: 20},
		{X: 20, Y: 20},
	}, p.Points(), approx)
	assert.Equal(t, 1240.0, p.TotalLength())
}

func TestBuildPathDeterministic(t *testing.T) {
	a, err := BuildPath(circle(24))
	assert.NilError(t, err)
	b, err := BuildPath(circle(24))
	assert.NilError(t, err)
	assert.DeepEqual(t, a.Points(), b.Points())
	assert.Equal(t, a.SVG(), b.SVG())
}

func TestBuildPathCustomViewport(t *testing.T) {
	p, err := BuildPath(rectangle(), WithViewport(Viewport{Width: 100, Height: 100, Padding: 0}))
	assert.NilError(t, err)
	assert.DeepEqual(t, []Point{
		{X: 0, Y: 100},
		{X: 100, Y: 100},
		{X: 100, Y: 0},
		{X: 0, Y: 0},
	}, p.Points(), approx)
	assert.Equal(t, 400.0, p.TotalLength())
}

func TestPointAtFraction(t *testing.T) {
	p, err := BuildPath(rectangle())
	assert.NilError(t, err)

	tests := []struct {
		name string
		f    float64
		want Point
	}{
		{name: "start", f: 0, want: Point{X: 20, Y: 280}},
		{name: "quarter", f: 0.25, want: Point{X: 330, Y: 280}},
		{name: "half hits vertex", f: 0.5, want: Point{X: 380, Y: 20}},
		{name: "three quarters", f: 0.75, want: Point{X: 70, Y: 20}},
		{name: "one wraps to start", f: 1, want: Point{X: 20, Y: 280}},
		{name: "negative wraps", f: -0.25, want: Point{X: 70, Y: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.DeepEqual(t, tt.want, p.PointAtFraction(tt.f), approx)
		})
	}
}

func TestPointAtFractionFirstVertex(t *testing.T) {
	p, err := BuildPath(circle(36))
	assert.NilError(t, err)
	first := p.Points()[0]
	assert.DeepEqual(t, first, p.PointAtFraction(0), approx)

	// approaching 1 approaches the first vertex again
	near := p.PointAtFraction(1 - 1e-9)
	assert.Assert(t, distance(first, near) < 1e-6, "distance %v", distance(first, near))
}

func TestPointAtFractionContinuous(t *testing.T) {
	for name, coords := range map[string][]Coordinate{
		"rectangle": rectangle(),
		"circle":    circle(36),
	} {
		t.Run(name, func(t *testing.T) {
			p, err := BuildPath(coords)
			assert.NilError(t, err)
			const steps = 2000
			maxStep := p.TotalLength()/steps + 1e-9
			prev := p.PointAtFraction(0)
			for i := 1; i <= steps; i++ {
				cur := p.PointAtFraction(float64(i) / steps)
				d := distance(prev, cur)
				assert.Assert(t, d <= maxStep, "step %d: moved %v > %v", i, d, maxStep)
				prev = cur
			}
		})
	}
}

func TestDegeneratePath(t *testing.T) {
	same := []Coordinate{{Lon: 5, Lat: 5}, {Lon: 5, Lat: 5}, {Lon: 5, Lat: 5}}
	p, err := BuildPath(same)
	assert.NilError(t, err)

	assert.Equal(t, 0.0, p.TotalLength())
	want := Point{X: 200, Y: 150}
	for _, f := range []float64{0, 0.3, 0.99, math.NaN()} {
		got := p.PointAtFraction(f)
		assert.Assert(t, !math.IsNaN(got.X) && !math.IsNaN(got.Y))
		assert.DeepEqual(t, want, got)
	}
}

func TestZeroSpanAxis(t *testing.T) {
	// all points on the same latitude: the path collapses onto the vertical centre
	p, err := BuildPath([]Coordinate{{Lon: 0, Lat: 1}, {Lon: 10, Lat: 1}})
	assert.NilError(t, err)
	assert.DeepEqual(t, []Point{{X: 20, Y: 150}, {X: 380, Y: 150}}, p.Points(), approx)
	assert.Equal(t, 720.0, p.TotalLength())
	assert.DeepEqual(t, Point{X: 380, Y: 150}, p.PointAtFraction(0.5), approx)
}

func TestSVG(t *testing.T) {
	p, err := BuildPath(rectangle())
	assert.NilError(t, err)
	assert.Equal(t, "M 20.00 280.00 L 380.00 280.00 L 380.00 20.00 L 20.00 20.00 Z", p.SVG())
}
