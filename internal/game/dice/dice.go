package dice

import (
	"fmt"
	"sort"
	"strings"
)

// Type is the face of a die. Void, Omni and Energy only appear in requirements
// except Omni, which is also a rollable face.
type Type int

const (
	Void Type = iota
	Cryo
	Hydro
	Pyro
	Electro
	Anemo
	Geo
	Dendro
	Omni
	Energy
)

// Aligned shares the Omni value: in a requirement it means "N dice of the same type".
const Aligned = Omni

var typeNames = map[Type]string{
	Void:    "VOID",
	Cryo:    "CRYO",
	Hydro:   "HYDRO",
	Pyro:    "PYRO",
	Electro: "ELECTRO",
	Anemo:   "ANEMO",
	Geo:     "GEO",
	Dendro:  "DENDRO",
	Omni:    "OMNI",
	Energy:  "ENERGY",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DICE_%d", int(t))
}

// ParseType parses a die name such as "pyro" or "OMNI".
func ParseType(s string) (Type, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if upper == "ALIGNED" {
		return Aligned, nil
	}
	for t, name := range typeNames {
		if name == upper {
			return t, nil
		}
	}
	return Void, fmt.Errorf("unknown dice type: %q", s)
}

// IsElement reports whether t is one of the seven elemental faces.
func (t Type) IsElement() bool {
	return t >= Cryo && t <= Dendro
}

// Sort orders dice for display and for the default selection algorithm:
// omni first, then the preferred elements (the player's characters, active first),
// then by how many of that face the player holds, then by face value.
func Sort(values []Type, preferred []Type) []Type {
	counts := make(map[Type]int, len(values))
	for _, d := range values {
		counts[d]++
	}
	isPreferred := func(d Type) bool {
		for _, p := range preferred {
			if p == d {
				return true
			}
		}
		return false
	}
	rank := func(d Type) [4]int {
		r := [4]int{0, 0, -counts[d], int(d)}
		if d == Omni {
			r[0] = -1
		}
		if isPreferred(d) {
			r[1] = -1
		}
		return r
	}

	result := make([]Type, len(values))
	copy(result, values)
	sort.SliceStable(result, func(i, j int) bool {
		a, b := rank(result[i]), rank(result[j])
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return result
}

// Remove deletes each die in used from values, one occurrence at a time.
// It reports false if some die is missing.
func Remove(values []Type, used []Type) ([]Type, bool) {
	remaining := make([]Type, len(values))
	copy(remaining, values)
	for _, d := range used {
		idx := indexOf(remaining, d)
		if idx == -1 {
			return nil, false
		}
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return remaining, true
}

func indexOf(values []Type, d Type) int {
	for i, v := range values {
		if v == d {
			return i
		}
	}
	return -1
}
