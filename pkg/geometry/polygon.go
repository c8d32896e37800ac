package geometry

import (
	"math"
	"sort"
)

// Polygon is a closed sequence of vertices; the last vertex connects back to
// the first.
type Polygon []Point2D

// RectPolygon returns the w x h rectangle with a corner at the origin, with
// positive orientation.
func RectPolygon(w, h float64) Polygon {
	return Polygon{{0, 0}, {w, 0}, {w, h}, {0, h}}
}

// SignedArea returns the shoelace area; positive for the vertex order used by
// RectPolygon.
func (p Polygon) SignedArea() float64 {
	if len(p) < 3 {
		return 0
	}
	var sum float64
	for i := range p {
		j := (i + 1) % len(p)
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return sum / 2
}

// Area returns the enclosed area.
func (p Polygon) Area() float64 {
	return math.Abs(p.SignedArea())
}

// Oriented returns p with positive orientation, reversing a copy if needed.
func (p Polygon) Oriented() Polygon {
	out := make(Polygon, len(p))
	copy(out, p)
	if p.SignedArea() < 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Transform maps every vertex through t.
func (p Polygon) Transform(t AffineTransform) Polygon {
	out := make(Polygon, len(p))
	for i, v := range p {
		out[i] = t.Apply(v)
	}
	return out
}

// Contains tests whether pt lies inside p by ray casting.
func (p Polygon) Contains(pt Point2D) bool {
	if len(p) < 3 {
		return false
	}
	inside := false
	for i := range p {
		a, b := p[i], p[(i+1)%len(p)]
		if (a.Y > pt.Y) != (b.Y > pt.Y) &&
			pt.X < (b.X-a.X)*(pt.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

// ClipConvex returns the part of p inside the convex polygon clip
// (Sutherland-Hodgman). Both are reoriented first. The result is nil when
// they do not overlap.
func (p Polygon) ClipConvex(clip Polygon) Polygon {
	if len(p) < 3 || len(clip) < 3 {
		return nil
	}
	out := p.Oriented()
	clip = clip.Oriented()
	for i := range clip {
		if len(out) == 0 {
			return nil
		}
		out = clipEdge(out, clip[i], clip[(i+1)%len(clip)])
	}
	if len(out) < 3 {
		return nil
	}
	return out
}

func clipEdge(p Polygon, e1, e2 Point2D) Polygon {
	var out Polygon
	for i := range p {
		cur, next := p[i], p[(i+1)%len(p)]
		curIn := cross(e1, e2, cur) >= 0
		nextIn := cross(e1, e2, next) >= 0
		if curIn {
			out = append(out, cur)
		}
		if curIn != nextIn {
			if x, ok := intersectLines(cur, next, e1, e2); ok {
				out = append(out, x)
			}
		}
	}
	return out
}

func intersectLines(p1, p2, e1, e2 Point2D) (Point2D, bool) {
	denom := (p1.X-p2.X)*(e1.Y-e2.Y) - (p1.Y-p2.Y)*(e1.X-e2.X)
	if math.Abs(denom) < 1e-12 {
		return Point2D{}, false
	}
	t := ((p1.X-e1.X)*(e1.Y-e2.Y) - (p1.Y-e1.Y)*(e1.X-e2.X)) / denom
	return Point2D{X: p1.X + t*(p2.X-p1.X), Y: p1.Y + t*(p2.Y-p1.Y)}, true
}

// ConvexHull returns the convex hull of pts with positive orientation
// (monotone chain). Fewer than three distinct points give a degenerate hull
// with zero area.
func ConvexHull(pts []Point2D) Polygon {
	s := make([]Point2D, len(pts))
	copy(s, pts)
	sort.Slice(s, func(i, j int) bool {
		if s[i].X != s[j].X {
			return s[i].X < s[j].X
		}
		return s[i].Y < s[j].Y
	})
	if len(s) < 3 {
		return Polygon(s)
	}

	hull := make(Polygon, 0, 2*len(s))
	for _, p := range s {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(s) - 2; i >= 0; i-- {
		p := s[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// cross is the z component of (a-o) x (b-o).
func cross(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
