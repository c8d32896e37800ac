package points

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"piescope/internal/fault"
)

// LoadFile reads a point set from a YAML (or JSON) list of points. Entries
// without a point_id are numbered after the largest id present.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.IO("read points", err)
	}
	var ps Set
	if err := yaml.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("parse points %s: %w", path, err)
	}

	next := 1
	for _, p := range ps {
		if p.ID >= next {
			next = p.ID + 1
		}
	}
	for i := range ps {
		if ps[i].ID == 0 {
			ps[i].ID = next
			next++
		}
	}
	return ps, nil
}

// SaveFile writes the set as YAML.
func (s Set) SaveFile(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode points: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fault.IO("write points", err)
	}
	return nil
}
