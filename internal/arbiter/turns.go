package arbiter

// NextTurn returns the eligible id that follows after in ids, wrapping
// around. An empty after, or one no longer in ids, starts from the front.
// The bool is false when nobody is eligible.
func NextTurn(ids []string, after string, eligible func(string) bool) (string, bool) {
	start := 0
	for i, id := range ids {
		if id == after {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(ids); i++ {
		id := ids[(start+i)%len(ids)]
		if eligible == nil || eligible(id) {
			return id, true
		}
	}
	return "", false
}
