// Package points holds the paired landmark points marked in two images.
package points

import (
	"encoding/json"
	"fmt"
	"strings"

	"piescope/internal/fault"
	"piescope/pkg/geometry"
)

// LandmarkPoint is one confirmed correspondence between a pixel location in
// image A and the matching location in image B.
type LandmarkPoint struct {
	ID int     `json:"point_id" yaml:"point_id"`
	AX float64 `json:"a_x" yaml:"a_x"`
	AY float64 `json:"a_y" yaml:"a_y"`
	BX float64 `json:"b_x" yaml:"b_x"`
	BY float64 `json:"b_y" yaml:"b_y"`
}

// A returns the image A location.
func (p LandmarkPoint) A() geometry.Point2D { return geometry.Point2D{X: p.AX, Y: p.AY} }

// B returns the image B location.
func (p LandmarkPoint) B() geometry.Point2D { return geometry.Point2D{X: p.BX, Y: p.BY} }

// Set is an ordered snapshot of landmark points in insertion order.
type Set []LandmarkPoint

// Sources returns the image A locations in order.
func (s Set) Sources() []geometry.Point2D {
	out := make([]geometry.Point2D, len(s))
	for i, p := range s {
		out[i] = p.A()
	}
	return out
}

// Targets returns the image B locations in order.
func (s Set) Targets() []geometry.Point2D {
	out := make([]geometry.Point2D, len(s))
	for i, p := range s {
		out[i] = p.B()
	}
	return out
}

// String renders the set as a single-line list of point dictionaries.
func (s Set) String() string {
	if s == nil {
		s = Set{}
	}
	data, err := json.Marshal([]LandmarkPoint(s))
	if err != nil {
		// float64 fields only fail on NaN/Inf, which Add rejects
		return "[]"
	}
	return string(data)
}

// ParseSet reads the representation produced by Set.String.
func ParseSet(line string) (Set, error) {
	var s Set
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &s); err != nil {
		return nil, fmt.Errorf("parse point set: %w", err)
	}
	if s == nil {
		s = Set{}
	}
	return s, nil
}

// Store is the mutable, ordered collection of landmark points owned by a
// single correlation session. It is not safe for concurrent use.
type Store struct {
	points []LandmarkPoint
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Add appends a new point pair and returns its id. Ids are max existing id + 1,
// or 1 for an empty store. Non-finite coordinates fail with InvalidCoordinate.
func (s *Store) Add(ax, ay, bx, by float64) (int, error) {
	a := geometry.Point2D{X: ax, Y: ay}
	b := geometry.Point2D{X: bx, Y: by}
	if !a.IsFinite() || !b.IsFinite() {
		return 0, &fault.Error{
			Kind:   fault.KindInvalidCoordinate,
			Op:     "add point",
			Detail: fmt.Sprintf("a=(%v, %v) b=(%v, %v)", ax, ay, bx, by),
			Points: len(s.points),
		}
	}

	id := 1
	for _, p := range s.points {
		if p.ID >= id {
			id = p.ID + 1
		}
	}
	s.points = append(s.points, LandmarkPoint{ID: id, AX: ax, AY: ay, BX: bx, BY: by})
	return id, nil
}

// Remove deletes the point with the given id. It reports whether a point was
// removed; removing an unknown id is a no-op.
func (s *Store) Remove(id int) bool {
	for i, p := range s.points {
		if p.ID == id {
			s.points = append(s.points[:i], s.points[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the points in insertion order.
func (s *Store) List() Set {
	out := make(Set, len(s.points))
	copy(out, s.points)
	return out
}

// Count returns the number of stored points.
func (s *Store) Count() int {
	return len(s.points)
}

// Reset removes all points.
func (s *Store) Reset() {
	s.points = nil
}

// Load replaces the contents with ps, keeping its ids. Ids must be positive
// and unique and coordinates finite; on error the store is unchanged.
func (s *Store) Load(ps Set) error {
	seen := make(map[int]bool, len(ps))
	for _, p := range ps {
		if !p.A().IsFinite() || !p.B().IsFinite() {
			return &fault.Error{
				Kind:   fault.KindInvalidCoordinate,
				Op:     "load points",
				Detail: fmt.Sprintf("point %d: a=(%v, %v) b=(%v, %v)", p.ID, p.AX, p.AY, p.BX, p.BY),
				Points: len(ps),
			}
		}
		if p.ID <= 0 || seen[p.ID] {
			return fmt.Errorf("load points: invalid or duplicate id %d", p.ID)
		}
		seen[p.ID] = true
	}
	s.points = make([]LandmarkPoint, len(ps))
	copy(s.points, ps)
	return nil
}
