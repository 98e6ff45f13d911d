package graph

import (
	"watchgraph/pkg/watchlist"
)

// Pair is an unordered pair of usernames, stored with A before B in input order
type Pair struct {
	A string
	B string
}

// SharedCount is the number of accounts both users of a pair watch
type SharedCount struct {
	Pair
	Count int
}

// SharedCounts holds one count per pair of input usernames
type SharedCounts struct {
	pairs []SharedCount
	index map[Pair]int
}

// Pairs returns the counts in (i, j) order with i < j
func (s *SharedCounts) Pairs() []SharedCount {
	out := make([]SharedCount, len(s.pairs))
	copy(out, s.pairs)
	return out
}

// Count returns the shared count for a and b in either order
func (s *SharedCounts) Count(a, b string) (int, bool) {
	if i, ok := s.index[Pair{A: a, B: b}]; ok {
		return s.pairs[i].Count, true
	}
	if i, ok := s.index[Pair{A: b, B: a}]; ok {
		return s.pairs[i].Count, true
	}
	return 0, false
}

// Len returns the number of pairs
func (s *SharedCounts) Len() int {
	return len(s.pairs)
}

// Aggregate counts, for every pair (i < j) of usernames, the distinct names
// present in both watchlists. A user missing from results counts as an empty
// watchlist.
func Aggregate(usernames []string, results *watchlist.ResultMap) *SharedCounts {
	sets := make([]map[string]struct{}, len(usernames))
	for i, name := range usernames {
		if results != nil {
			if list, ok := results.Get(name); ok {
				sets[i] = list.NameSet()
			}
		}
	}

	n := len(usernames)
	counts := &SharedCounts{
		pairs: make([]SharedCount, 0, n*(n-1)/2),
		index: make(map[Pair]int, n*(n-1)/2),
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pair := Pair{A: usernames[i], B: usernames[j]}
			counts.index[pair] = len(counts.pairs)
			counts.pairs = append(counts.pairs, SharedCount{
				Pair:  pair,
				Count: intersectionSize(sets[i], sets[j]),
			})
		}
	}

	return counts
}

func intersectionSize(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for name := range a {
		if _, ok := b[name]; ok {
			n++
		}
	}
	return n
}

// UserSize is the length of one user's watchlist
type UserSize struct {
	Username string
	Count    int
}

// Sizes returns the watchlist length of every user in results, in map order
func Sizes(results *watchlist.ResultMap) []UserSize {
	if results == nil {
		return nil
	}
	sizes := make([]UserSize, 0, results.Len())
	results.Each(func(username string, list watchlist.Watchlist) bool {
		sizes = append(sizes, UserSize{Username: username, Count: len(list)})
		return true
	})
	return sizes
}
