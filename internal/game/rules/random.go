package rules

const (
	randomModulus    = 2147483647
	randomMultiplier = 48271
)

// NextRandom advances a Park-Miller generator. Zero is not a valid cursor and
// is mapped to one.
func NextRandom(cur int) int {
	v := int64(normalizeSeed(cur)) * randomMultiplier % randomModulus
	return int(v)
}

func normalizeSeed(seed int) int {
	seed %= randomModulus
	if seed < 0 {
		seed += randomModulus
	}
	if seed == 0 {
		return 1
	}
	return seed
}

// Shuffle returns a seeded Fisher-Yates permutation of list.
func Shuffle[T any](list []T, seed int) []T {
	out := make([]T, len(list))
	copy(out, list)
	cur := normalizeSeed(seed)
	for i := len(out) - 1; i > 0; i-- {
		cur = NextRandom(cur)
		j := cur % (i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
