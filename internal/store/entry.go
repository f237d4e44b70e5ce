package store

import "time"

// Entry wraps a stored Value with its optional absolute expiry (ms since
// epoch) and a monotonically increasing per-key version counter used for
// WATCH invalidation. Grounded on original_source/src/store/entry.rs.
type Entry struct {
	Value     Value
	ExpiresAt *int64 // nil means no expiry
	Version   uint64
}

// NowMillis returns the current time as milliseconds since epoch.
func NowMillis() int64 { return time.Now().UnixMilli() }

// IsExpired reports whether the entry's expiry, if any, is at or before
// nowMs. A key is live only if its expiry is strictly greater than now
// (spec.md §3 invariant).
func (e *Entry) IsExpired(nowMs int64) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return *e.ExpiresAt <= nowMs
}

// TTLSeconds returns the remaining TTL in seconds, -1 if no expiry is set,
// -2 if the key does not exist (callers check existence separately and use
// -2 themselves; this helper only ever returns -1 or a non-negative value).
func (e *Entry) TTLSeconds(nowMs int64) int64 {
	if e.ExpiresAt == nil {
		return -1
	}
	remain := *e.ExpiresAt - nowMs
	if remain < 0 {
		remain = 0
	}
	// Round up to whole seconds, matching Redis's TTL rounding.
	return (remain + 999) / 1000
}

func (e *Entry) TTLMillis(nowMs int64) int64 {
	if e.ExpiresAt == nil {
		return -1
	}
	remain := *e.ExpiresAt - nowMs
	if remain < 0 {
		remain = 0
	}
	return remain
}

func ExpireAt(ms int64) *int64 {
	v := ms
	return &v
}
