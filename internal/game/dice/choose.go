package dice

// Choose picks dice from the player's pool that satisfy required, ignoring
// energy. The returned mask marks selected indexes; it is all false when the
// requirement cannot be met.
func Choose(required Requirement, pool []Type) []bool {
	omniCount := 0
	for _, d := range pool {
		if d == Omni {
			omniCount++
		}
	}
	fail := make([]bool, len(pool))
	result := make([]bool, len(pool))

	if n, ok := required[Aligned]; ok {
		// one face plus omni
		for i := len(pool) - 1; i >= 0; i-- {
			if pool[i] == Omni {
				continue
			}
			same := 0
			for _, d := range pool {
				if d == pool[i] {
					same++
				}
			}
			if same+omniCount < n {
				continue
			}
			for j, count := len(pool)-1, 0; count < n && j >= 0; j-- {
				if pool[j] == Omni || pool[j] == pool[i] {
					result[j] = true
					count++
				}
			}
			return result
		}
		// or omni only
		if omniCount >= n {
			for j, count := len(pool)-1, 0; count < n; j-- {
				if pool[j] == Omni {
					result[j] = true
					count++
				}
			}
			return result
		}
		return fail
	}

next:
	for _, r := range required.expand() {
		if r == Void {
			for j := len(pool) - 1; j >= 0; j-- {
				if !result[j] {
					result[j] = true
					continue next
				}
			}
			return fail
		}
		for j := range pool {
			if !result[j] && pool[j] == r {
				result[j] = true
				continue next
			}
		}
		for j := range pool {
			if !result[j] && pool[j] == Omni {
				result[j] = true
				continue next
			}
		}
		return fail
	}
	return result
}

// ChooseValues is Choose returning the selected dice instead of a mask.
func ChooseValues(required Requirement, pool []Type) []Type {
	mask := Choose(required, pool)
	var out []Type
	for i, selected := range mask {
		if selected {
			out = append(out, pool[i])
		}
	}
	return out
}

// CanPay reports whether pool can satisfy the dice part of required.
func CanPay(required Requirement, pool []Type) bool {
	if required.DiceCount() == 0 {
		return true
	}
	for _, selected := range Choose(required, pool) {
		if selected {
			return true
		}
	}
	return false
}

// Check reports whether chosen exactly pays required, ignoring energy.
func Check(required Requirement, chosen []Type) bool {
	if n, ok := required[Aligned]; ok {
		if n != len(chosen) {
			return false
		}
		faces := map[Type]struct{}{}
		for _, d := range chosen {
			faces[d] = struct{}{}
		}
		_, hasOmni := faces[Omni]
		return (len(faces) == 0 && n == 0) || len(faces) == 1 || (len(faces) == 2 && hasOmni)
	}

	remaining := make([]Type, len(chosen))
	copy(remaining, chosen)
	voidCount := 0
	for _, r := range required.expand() {
		if r == Void {
			voidCount++
			continue
		}
		idx := indexOf(remaining, r)
		if idx == -1 {
			idx = indexOf(remaining, Omni)
			if idx == -1 {
				return false
			}
		}
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return len(remaining) == voidCount
}
