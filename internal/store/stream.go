package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StreamID is a <ms>-<seq> identifier, ordered lexicographically by
// (Ms, Seq).
type StreamID struct {
	Ms  uint64
	Seq uint64
}

func (id StreamID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

func (id StreamID) Less(other StreamID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

func ParseStreamID(s string, defaultSeq uint64) (StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return StreamID{}, fmt.Errorf("invalid stream ID")
	}
	if len(parts) == 1 {
		return StreamID{Ms: ms, Seq: defaultSeq}, nil
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return StreamID{}, fmt.Errorf("invalid stream ID")
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

// StreamEntry is one XADD'd record: an ID plus an ordered field-value list.
type StreamEntry struct {
	ID     StreamID
	Fields []string // flattened field,value,field,value...
}

// PendingEntry records a delivered-but-unacknowledged stream entry for a
// consumer group. It is indexed by the composite (group, id) key in
// RStream.Pending, the single-map design spec.md §9 allows in place of
// duplicated per-consumer/per-group views.
type PendingEntry struct {
	ID            StreamID
	Consumer      string
	DeliveryTime  int64
	DeliveryCount int64
}

// ConsumerGroup tracks one XGROUP-created group's last-delivered ID.
type ConsumerGroup struct {
	LastDelivered StreamID
	Consumers     map[string]bool
}

// RStream is an append-only log of StreamEntry values ordered by ID,
// supplemental to spec.md's core four containers (SPEC_FULL.md §3).
type RStream struct {
	Entries   []StreamEntry
	LastID    StreamID
	MaxSeen   StreamID
	Groups    map[string]*ConsumerGroup
	Pending   map[string]map[StreamID]*PendingEntry // group -> id -> pending
}

func NewRStream() *RStream {
	return &RStream{
		Groups:  make(map[string]*ConsumerGroup),
		Pending: make(map[string]map[StreamID]*PendingEntry),
	}
}

func (s *RStream) TypeName() string { return TypeStream }

func (s *RStream) Clone() Value {
	cp := NewRStream()
	cp.Entries = append([]StreamEntry(nil), s.Entries...)
	cp.LastID = s.LastID
	cp.MaxSeen = s.MaxSeen
	for g, grp := range s.Groups {
		ng := &ConsumerGroup{LastDelivered: grp.LastDelivered, Consumers: map[string]bool{}}
		for c := range grp.Consumers {
			ng.Consumers[c] = true
		}
		cp.Groups[g] = ng
	}
	for g, pend := range s.Pending {
		np := make(map[StreamID]*PendingEntry, len(pend))
		for id, pe := range pend {
			cpy := *pe
			np[id] = &cpy
		}
		cp.Pending[g] = np
	}
	return cp
}

func (s *RStream) Len() int { return len(s.Entries) }

// Add appends an entry under id as given (the caller resolves "*" and
// partial IDs beforehand, e.g. via NextID) and records it as LastID and
// MaxSeen.
func (s *RStream) Add(id StreamID, fields []string) StreamEntry {
	s.Entries = append(s.Entries, StreamEntry{ID: id, Fields: fields})
	s.LastID = id
	s.MaxSeen = id
	return s.Entries[len(s.Entries)-1]
}

// NextID computes the next valid ID for an auto ("*") XADD at the given
// millisecond timestamp.
func (s *RStream) NextID(nowMs uint64) StreamID {
	if nowMs > s.LastID.Ms {
		return StreamID{Ms: nowMs, Seq: 0}
	}
	return StreamID{Ms: s.LastID.Ms, Seq: s.LastID.Seq + 1}
}

func (s *RStream) Range(lo, hi StreamID, loExcl, hiExcl bool, count int) []StreamEntry {
	var out []StreamEntry
	for _, e := range s.Entries {
		if e.ID.Less(lo) || (loExcl && e.ID == lo) {
			continue
		}
		if hi.Less(e.ID) || (hiExcl && e.ID == hi) {
			break
		}
		out = append(out, e)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out
}

func (s *RStream) TrimToMaxLen(maxLen int) int {
	if len(s.Entries) <= maxLen {
		return 0
	}
	removed := len(s.Entries) - maxLen
	s.Entries = append([]StreamEntry(nil), s.Entries[removed:]...)
	return removed
}

func (s *RStream) DeleteIDs(ids []StreamID) int {
	want := make(map[StreamID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	kept := s.Entries[:0]
	removed := 0
	for _, e := range s.Entries {
		if want[e.ID] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.Entries = kept
	return removed
}

func (s *RStream) EntriesAfter(id StreamID, count int) []StreamEntry {
	idx := sort.Search(len(s.Entries), func(i int) bool {
		return id.Less(s.Entries[i].ID)
	})
	if idx >= len(s.Entries) {
		return nil
	}
	end := len(s.Entries)
	if count > 0 && idx+count < end {
		end = idx + count
	}
	return s.Entries[idx:end]
}
