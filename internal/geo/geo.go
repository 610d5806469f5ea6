// Package geo holds the planar geometry the checkers need: a test point
// for tile probing and the share of a coverage area outside layer extents.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
)

// maxMercatorLat is the latitude limit of the Web-Mercator tile grid.
const maxMercatorLat = 85.05112878

// maxUnionBounds caps the inclusion-exclusion expansion (2^n terms).
const maxUnionBounds = 10

// RepresentativePoint returns the planar centroid of g, or (0,0) for nil.
func RepresentativePoint(g orb.Geometry) orb.Point {
	if g == nil {
		return orb.Point{0, 0}
	}
	if p, ok := g.(orb.Point); ok {
		return p
	}
	c, _ := planar.CentroidArea(g)
	if math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return orb.Point{0, 0}
	}
	return c
}

// TileAt returns the XYZ tile containing p at zoom z.
func TileAt(p orb.Point, z int) maptile.Tile {
	lon := math.Max(-180, math.Min(180, p.Lon()))
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat()))
	return maptile.At(orb.Point{lon, lat}, maptile.Zoom(z))
}

// Area is the planar area of g. Holes are subtracted; points and lines
// have no area.
func Area(g orb.Geometry) float64 {
	switch v := g.(type) {
	case orb.Polygon:
		return polygonArea(v)
	case orb.MultiPolygon:
		var a float64
		for _, p := range v {
			a += polygonArea(p)
		}
		return a
	case orb.Collection:
		var a float64
		for _, c := range v {
			a += Area(c)
		}
		return a
	case orb.Bound:
		return (v.Max[0] - v.Min[0]) * (v.Max[1] - v.Min[1])
	default:
		return 0
	}
}

func polygonArea(p orb.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	a := math.Abs(planar.Area(p[0]))
	for _, hole := range p[1:] {
		a -= math.Abs(planar.Area(hole))
	}
	return math.Max(a, 0)
}

// OutsidePercent returns how much of g's area (in percent) lies outside the
// union of bounds. ok is false when g has no area to compare.
func OutsidePercent(g orb.Geometry, bounds []orb.Bound) (pct float64, ok bool) {
	total := Area(g)
	if total <= 0 {
		return 0, false
	}
	bounds = dedupe(bounds)
	if len(bounds) == 0 {
		return 100, true
	}

	var inside float64
	if len(bounds) > maxUnionBounds {
		// Too many boxes for an exact union; use the best single box.
		for _, b := range bounds {
			inside = math.Max(inside, clippedArea(g, b))
		}
	} else {
		inside = unionArea(g, bounds)
	}

	pct = (total - inside) / total * 100
	return math.Max(0, math.Min(100, pct)), true
}

// unionArea computes area(g ∩ (b1 ∪ … ∪ bn)) by inclusion-exclusion. The
// intersection of boxes is itself a box, so every term is a single clip.
func unionArea(g orb.Geometry, bounds []orb.Bound) float64 {
	n := len(bounds)
	var sum float64
	for mask := 1; mask < 1<<n; mask++ {
		inter, ok := intersectMask(bounds, mask)
		if !ok {
			continue
		}
		a := clippedArea(g, inter)
		if bitCount(mask)%2 == 1 {
			sum += a
		} else {
			sum -= a
		}
	}
	return sum
}

func intersectMask(bounds []orb.Bound, mask int) (orb.Bound, bool) {
	var out orb.Bound
	first := true
	for i, b := range bounds {
		if mask&(1<<i) == 0 {
			continue
		}
		if first {
			out = b
			first = false
			continue
		}
		var ok bool
		out, ok = intersect(out, b)
		if !ok {
			return orb.Bound{}, false
		}
	}
	return out, !first
}

func intersect(a, b orb.Bound) (orb.Bound, bool) {
	lo := orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])}
	hi := orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])}
	if lo[0] >= hi[0] || lo[1] >= hi[1] {
		return orb.Bound{}, false
	}
	return orb.Bound{Min: lo, Max: hi}, true
}

func clippedArea(g orb.Geometry, b orb.Bound) float64 {
	if !g.Bound().Intersects(b) {
		return 0
	}
	c := clip.Geometry(b, orb.Clone(g))
	if c == nil {
		return 0
	}
	return Area(c)
}

func dedupe(bounds []orb.Bound) []orb.Bound {
	out := make([]orb.Bound, 0, len(bounds))
	for _, b := range bounds {
		if b.Min[0] >= b.Max[0] || b.Min[1] >= b.Max[1] {
			continue
		}
		dup := false
		for _, o := range out {
			if o.Equal(b) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, b)
		}
	}
	return out
}

func bitCount(v int) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}
