package storage

// winner returns the sibling for key with the greatest Version.
func winner(entries entrySet, key string) (Entry, bool) {
	var (
		best  Entry
		found bool
	)
	for _, e := range entries {
		if e.Key == key {
			// entries are in Version order, so the last match wins
			best = e
			found = true
		}
	}
	return best, found
}

// resolve reduces siblings to the winning entry per key. The result keeps
// Version order.
func resolve(entries entrySet) []Entry {
	if len(entries) == 0 {
		return []Entry{}
	}

	latest := make(map[string]int, len(entries))
	for i, e := range entries {
		latest[e.Key] = i
	}

	out := make([]Entry, 0, len(latest))
	for i, e := range entries {
		if latest[e.Key] == i {
			out = append(out, e)
		}
	}
	return out
}

// Shadowed returns the siblings that lose the tie-break to a newer
// concurrent write for the same key.
func Shadowed(entries []Entry) []Entry {
	resolved := resolve(entries)
	winners := make(map[Entry]bool, len(resolved))
	for _, e := range resolved {
		winners[e] = true
	}

	var out []Entry
	for _, e := range entries {
		if !winners[e] {
			out = append(out, e)
		}
	}
	return out
}
