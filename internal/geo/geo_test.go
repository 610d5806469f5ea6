package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func bound(x0, y0, x1, y1 float64) orb.Bound {
	return orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}}
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestRepresentativePoint(t *testing.T) {
	tests := []struct {
		name string
		g    orb.Geometry
		want orb.Point
	}{
		{"nil", nil, orb.Point{0, 0}},
		{"point", orb.Point{8.5, 47.3}, orb.Point{8.5, 47.3}},
		{"square", square(0, 0, 2, 2), orb.Point{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepresentativePoint(tt.g)
			if !almost(got[0], tt.want[0]) || !almost(got[1], tt.want[1]) {
				t.Errorf("RepresentativePoint() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTileAt(t *testing.T) {
	tile := TileAt(orb.Point{0, 0}, 1)
	if tile.X != 1 || tile.Y != 1 || tile.Z != 1 {
		t.Errorf("TileAt(0,0,1) = %+v, want 1/1/1", tile)
	}
	// Poles are clamped into the grid instead of overflowing.
	north := TileAt(orb.Point{0, 90}, 3)
	if north.Y != 0 {
		t.Errorf("north pole tile Y = %d, want 0", north.Y)
	}
	z0 := TileAt(orb.Point{170, -80}, 0)
	if z0.X != 0 || z0.Y != 0 {
		t.Errorf("zoom 0 tile = %+v, want 0/0", z0)
	}
}

func TestArea(t *testing.T) {
	withHole := orb.Polygon{
		orb.Ring{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		orb.Ring{{1, 1}, {1, 2}, {2, 2}, {2, 1}, {1, 1}},
	}
	if got := Area(withHole); !almost(got, 15) {
		t.Errorf("Area(with hole) = %v, want 15", got)
	}
	mp := orb.MultiPolygon{square(0, 0, 1, 1), square(2, 2, 4, 4)}
	if got := Area(mp); !almost(got, 5) {
		t.Errorf("Area(multipolygon) = %v, want 5", got)
	}
	if Area(orb.Point{1, 1}) != 0 {
		t.Error("points have no area")
	}
}

func TestOutsidePercent(t *testing.T) {
	geom := square(0, 0, 10, 10)
	tests := []struct {
		name   string
		bounds []orb.Bound
		want   float64
	}{
		{"fully covered", []orb.Bound{bound(-1, -1, 11, 11)}, 0},
		{"half covered", []orb.Bound{bound(0, 0, 5, 10)}, 50},
		{"disjoint", []orb.Bound{bound(20, 20, 30, 30)}, 100},
		{"no bounds", nil, 100},
		{"union of two halves", []orb.Bound{bound(0, 0, 5, 10), bound(5, 0, 10, 10)}, 0},
		{"overlapping boxes", []orb.Bound{bound(0, 0, 6, 10), bound(4, 0, 8, 10)}, 20},
		{"duplicates", []orb.Bound{bound(0, 0, 5, 10), bound(0, 0, 5, 10)}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OutsidePercent(geom, tt.bounds)
			if !ok {
				t.Fatal("OutsidePercent() not ok")
			}
			if !almost(got, tt.want) {
				t.Errorf("OutsidePercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutsidePercentNoArea(t *testing.T) {
	if _, ok := OutsidePercent(orb.Point{1, 1}, []orb.Bound{bound(0, 0, 2, 2)}); ok {
		t.Error("a point has no area to compare")
	}
}

func TestOutsidePercentDoesNotMutateInput(t *testing.T) {
	geom := square(0, 0, 10, 10)
	before := orb.Clone(geom).(orb.Polygon)
	_, _ = OutsidePercent(geom, []orb.Bound{bound(0, 0, 5, 5)})
	if !geom.Equal(before) {
		t.Error("input geometry was modified")
	}
}
