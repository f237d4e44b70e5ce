package store

import "sort"

// RZSetMember pairs a member with its score for the sorted view.
type RZSetMember struct {
	Member string
	Score  float64
}

// RZSet is a set of members each with a floating-point score, kept
// available both by member (O(1) score lookup) and in score order
// (ties broken by member, lexicographically — matching Redis ZSET
// ordering). The sorted slice is maintained incrementally via binary
// search insert/delete; real Redis uses a skip list for O(log n)
// insert, but nothing in spec.md demands that complexity bound.
type RZSet struct {
	Scores map[string]float64
	sorted []RZSetMember
}

func NewRZSet() *RZSet {
	return &RZSet{Scores: make(map[string]float64)}
}

func (z *RZSet) TypeName() string { return TypeZSet }

func (z *RZSet) Clone() Value {
	cp := &RZSet{Scores: make(map[string]float64, len(z.Scores))}
	for k, v := range z.Scores {
		cp.Scores[k] = v
	}
	cp.sorted = append([]RZSetMember(nil), z.sorted...)
	return cp
}

func (z *RZSet) Len() int { return len(z.Scores) }

func less(a RZSetMember, b RZSetMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

func (z *RZSet) findPos(m RZSetMember) int {
	return sort.Search(len(z.sorted), func(i int) bool {
		return !less(z.sorted[i], m)
	})
}

// Add sets member's score, returning true if the member is new.
func (z *RZSet) Add(member string, score float64) bool {
	old, existed := z.Scores[member]
	if existed {
		if old == score {
			return false
		}
		pos := z.findPos(RZSetMember{member, old})
		for pos < len(z.sorted) && z.sorted[pos].Member != member {
			pos++
		}
		z.sorted = append(z.sorted[:pos], z.sorted[pos+1:]...)
	}
	z.Scores[member] = score
	nm := RZSetMember{member, score}
	pos := z.findPos(nm)
	z.sorted = append(z.sorted, RZSetMember{})
	copy(z.sorted[pos+1:], z.sorted[pos:])
	z.sorted[pos] = nm
	return !existed
}

func (z *RZSet) Remove(member string) bool {
	score, ok := z.Scores[member]
	if !ok {
		return false
	}
	delete(z.Scores, member)
	pos := z.findPos(RZSetMember{member, score})
	for pos < len(z.sorted) && z.sorted[pos].Member != member {
		pos++
	}
	z.sorted = append(z.sorted[:pos], z.sorted[pos+1:]...)
	return true
}

func (z *RZSet) Score(member string) (float64, bool) {
	s, ok := z.Scores[member]
	return s, ok
}

// Rank returns the 0-based position of member in ascending score order.
func (z *RZSet) Rank(member string) (int, bool) {
	score, ok := z.Scores[member]
	if !ok {
		return 0, false
	}
	pos := z.findPos(RZSetMember{member, score})
	for pos < len(z.sorted) && z.sorted[pos].Member != member {
		pos++
	}
	return pos, true
}

// RangeByIndex returns members in ascending order within [lo, hi).
func (z *RZSet) RangeByIndex(lo, hi int) []RZSetMember {
	if lo < 0 {
		lo = 0
	}
	if hi > len(z.sorted) {
		hi = len(z.sorted)
	}
	if lo >= hi {
		return nil
	}
	out := make([]RZSetMember, hi-lo)
	copy(out, z.sorted[lo:hi])
	return out
}

func (z *RZSet) All() []RZSetMember { return z.sorted }

// RangeByScore returns members with minScore <= score <= maxScore, in
// ascending order, honoring exclusivity flags.
func (z *RZSet) RangeByScore(minScore, maxScore float64, minExcl, maxExcl bool) []RZSetMember {
	var out []RZSetMember
	for _, m := range z.sorted {
		if m.Score < minScore || (minExcl && m.Score == minScore) {
			continue
		}
		if m.Score > maxScore || (maxExcl && m.Score == maxScore) {
			break
		}
		out = append(out, m)
	}
	return out
}
