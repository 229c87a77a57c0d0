package keyword

// TermSet returns the deduplicated token set for text, as used by the
// jaccard overlap bonus in the Immediate and Session tiers' scoring
// formulas (spec §4.3, §4.4).
func TermSet(text string) map[string]bool {
	tokens := Tokenize(text)
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// Jaccard computes |a ∩ b| / |a ∪ b| over two token sets. Two empty sets
// are defined to have zero overlap.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
