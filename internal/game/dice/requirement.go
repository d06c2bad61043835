package dice

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Requirement maps a dice type to the number of dice of that type a cost needs.
// Void means "any dice", Aligned means "all of one type", Energy is paid by the
// active character's energy rather than dice.
type Requirement map[Type]int

var symbolPattern = regexp.MustCompile(`\{([^}]+)\}`)

// ParseRequirement parses a cost string such as "{3}{Pyro}", "{Aligned}{Aligned}"
// or "{Energy}{Energy}{Energy}". A bare number adds that many void dice.
func ParseRequirement(costStr string) (Requirement, error) {
	req := Requirement{}
	if strings.TrimSpace(costStr) == "" {
		return req, nil
	}

	matches := symbolPattern.FindAllStringSubmatch(costStr, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("invalid dice cost: %q", costStr)
	}
	for _, match := range matches {
		symbol := strings.TrimSpace(match[1])
		if num, err := strconv.Atoi(symbol); err == nil {
			if num < 0 {
				return nil, fmt.Errorf("negative dice count in %q", costStr)
			}
			req[Void] += num
			continue
		}
		t, err := ParseType(symbol)
		if err != nil {
			return nil, fmt.Errorf("unknown dice symbol: {%s}", symbol)
		}
		req[t]++
	}
	return req, nil
}

// Clone returns an independent copy.
func (r Requirement) Clone() Requirement {
	out := make(Requirement, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Add returns a copy with count more dice of type t (count may be negative; the
// result never drops below zero).
func (r Requirement) Add(t Type, count int) Requirement {
	out := r.Clone()
	out[t] += count
	if out[t] <= 0 {
		delete(out, t)
	}
	return out
}

// DiceCount returns the number of dice needed, energy excluded.
func (r Requirement) DiceCount() int {
	total := 0
	for t, n := range r {
		if t != Energy {
			total += n
		}
	}
	return total
}

// EnergyCount returns the energy needed.
func (r Requirement) EnergyCount() int {
	return r[Energy]
}

// expand lists required dice one by one in a fixed order: elemental faces first,
// then void. Energy is skipped.
func (r Requirement) expand() []Type {
	keys := make([]Type, 0, len(r))
	for t := range r {
		if t != Energy && t != Aligned {
			keys = append(keys, t)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if (keys[i] == Void) != (keys[j] == Void) {
			return keys[j] == Void
		}
		return keys[i] < keys[j]
	})
	var out []Type
	for _, t := range keys {
		for i := 0; i < r[t]; i++ {
			out = append(out, t)
		}
	}
	return out
}

func (r Requirement) String() string {
	var parts []string
	if n := r[Aligned]; n > 0 {
		for i := 0; i < n; i++ {
			parts = append(parts, "{Aligned}")
		}
	}
	for _, t := range r.expand() {
		if t == Void {
			continue
		}
		name := strings.ToLower(t.String())
		parts = append(parts, "{"+strings.ToUpper(name[:1])+name[1:]+"}")
	}
	if n := r[Void]; n > 0 {
		parts = append(parts, fmt.Sprintf("{%d}", n))
	}
	for i := 0; i < r[Energy]; i++ {
		parts = append(parts, "{Energy}")
	}
	return strings.Join(parts, "")
}
