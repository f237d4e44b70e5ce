package store

// RList is an ordered sequence of byte strings, backed by a slice.
// Index-based operations (LINDEX/LSET/LINSERT) are O(n); this mirrors the
// original's Vec<Bytes>-backed list rather than introducing a real linked
// list, since spec.md does not require sub-linear random access.
type RList struct {
	Items [][]byte
}

func NewRList() *RList { return &RList{} }

func (l *RList) TypeName() string { return TypeList }

func (l *RList) Clone() Value {
	cp := make([][]byte, len(l.Items))
	for i, b := range l.Items {
		cp[i] = append([]byte(nil), b...)
	}
	return &RList{Items: cp}
}

func (l *RList) Len() int { return len(l.Items) }

func (l *RList) PushLeft(vals ...[]byte) {
	l.Items = append(append([][]byte(nil), vals...), l.Items...)
}

func (l *RList) PushRight(vals ...[]byte) {
	l.Items = append(l.Items, vals...)
}

func (l *RList) PopLeft() ([]byte, bool) {
	if len(l.Items) == 0 {
		return nil, false
	}
	v := l.Items[0]
	l.Items = l.Items[1:]
	return v, true
}

func (l *RList) PopRight() ([]byte, bool) {
	if len(l.Items) == 0 {
		return nil, false
	}
	v := l.Items[len(l.Items)-1]
	l.Items = l.Items[:len(l.Items)-1]
	return v, true
}

// NormalizeRange clamps a Redis-style (possibly negative) [start, stop]
// range against length n, returning a half-open [lo, hi) slice range, with
// ok=false when the resulting range is empty.
func NormalizeRange(start, stop int64, n int) (lo, hi int, ok bool) {
	if n == 0 {
		return 0, 0, false
	}
	s, e := start, stop
	if s < 0 {
		s += int64(n)
	}
	if e < 0 {
		e += int64(n)
	}
	if s < 0 {
		s = 0
	}
	if e >= int64(n) {
		e = int64(n) - 1
	}
	if s > e || s >= int64(n) {
		return 0, 0, false
	}
	return int(s), int(e) + 1, true
}
