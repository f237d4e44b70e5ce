package store

import (
	"math/rand"
	"sort"

	"github.com/cedis/server/internal/glob"
)

// Database is a single logical database: a key->Entry map plus a
// database-wide version counter bumped by FLUSHDB/FLUSHALL/SWAPDB and used
// to cover those operations in the WATCH invalidation check (spec.md §3,
// §4.6). Grounded on original_source/src/store/mod.rs's `Database`.
type Database struct {
	entries map[string]*Entry
	version uint64
}

func NewDatabase() *Database {
	return &Database{entries: make(map[string]*Entry)}
}

// Version returns the database-wide version counter.
func (d *Database) Version() uint64 { return d.version }

func (d *Database) bumpVersion() uint64 {
	d.version++
	return d.version
}

// Get returns a live entry for key, lazily evicting and reporting absence
// if it has expired.
func (d *Database) Get(key string, nowMs int64) (*Entry, bool) {
	e, ok := d.entries[key]
	if !ok {
		return nil, false
	}
	if e.IsExpired(nowMs) {
		delete(d.entries, key)
		d.bumpVersion()
		return nil, false
	}
	return e, true
}

// GetMut is like Get but documents (per spec.md §4.2) that the caller may
// mutate the returned entry's Value in place; the caller must call Touch
// after mutating.
func (d *Database) GetMut(key string, nowMs int64) (*Entry, bool) {
	return d.Get(key, nowMs)
}

// Touch bumps an entry's version after an in-place mutation performed via
// GetMut. Creates the version at 1 implicitly only through Set; Touch
// assumes the entry already exists.
func (d *Database) Touch(key string) {
	if e, ok := d.entries[key]; ok {
		e.Version++
	}
}

// Set inserts or replaces key's entry, bumping both the entry's version and
// the database version.
func (d *Database) Set(key string, v Value, expiresAt *int64) *Entry {
	e, existed := d.entries[key]
	if existed {
		e.Value = v
		e.ExpiresAt = expiresAt
		e.Version++
	} else {
		e = &Entry{Value: v, ExpiresAt: expiresAt, Version: 1}
		d.entries[key] = e
	}
	d.bumpVersion()
	return e
}

// SetEntry installs a fully-formed entry, used by persistence replay and
// replication, where the version bookkeeping has already happened upstream
// and we only need to bump the database counter.
func (d *Database) SetEntry(key string, e *Entry) {
	d.entries[key] = e
	d.bumpVersion()
}

// Delete removes key, reporting whether it existed (and was live).
func (d *Database) Delete(key string, nowMs int64) bool {
	if _, ok := d.Get(key, nowMs); !ok {
		return false
	}
	delete(d.entries, key)
	d.bumpVersion()
	return true
}

// DeleteIfEmpty removes key if its aggregate value has become empty,
// enforcing spec.md §3's "no observable empty aggregate" invariant. The
// caller is responsible for calling this immediately after a removal from
// a list/hash/set/zset.
func (d *Database) DeleteIfEmpty(key string) {
	e, ok := d.entries[key]
	if !ok {
		return
	}
	empty := false
	switch v := e.Value.(type) {
	case *RList:
		empty = v.Len() == 0
	case *RHash:
		empty = v.Len() == 0
	case *RSet:
		empty = v.Len() == 0
	case *RZSet:
		empty = v.Len() == 0
	}
	if empty {
		delete(d.entries, key)
		d.bumpVersion()
	}
}

func (d *Database) Exists(key string, nowMs int64) bool {
	_, ok := d.Get(key, nowMs)
	return ok
}

func (d *Database) KeyType(key string, nowMs int64) (string, bool) {
	e, ok := d.Get(key, nowMs)
	if !ok {
		return "", false
	}
	return e.Value.TypeName(), true
}

// SetExpiry sets key's absolute expiry; returns false if the key is absent.
func (d *Database) SetExpiry(key string, ms int64, nowMs int64) bool {
	e, ok := d.Get(key, nowMs)
	if !ok {
		return false
	}
	e.ExpiresAt = ExpireAt(ms)
	e.Version++
	d.bumpVersion()
	return true
}

// Persist clears key's expiry; returns whether an expiry had been set.
func (d *Database) Persist(key string, nowMs int64) bool {
	e, ok := d.Get(key, nowMs)
	if !ok || e.ExpiresAt == nil {
		return false
	}
	e.ExpiresAt = nil
	e.Version++
	d.bumpVersion()
	return true
}

// Rename atomically moves old's entry to new, overwriting any existing
// entry at new.
func (d *Database) Rename(oldKey, newKey string, nowMs int64) bool {
	e, ok := d.Get(oldKey, nowMs)
	if !ok {
		return false
	}
	delete(d.entries, oldKey)
	e.Version++
	d.entries[newKey] = e
	d.bumpVersion()
	return true
}

// Keys returns all live keys matching pattern (nil pattern matches all).
func (d *Database) Keys(pattern []byte, nowMs int64) []string {
	out := make([]string, 0, len(d.entries))
	for k, e := range d.entries {
		if e.IsExpired(nowMs) {
			continue
		}
		if pattern != nil && !glob.Match(pattern, []byte(k)) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Scan implements cursor-based iteration. Per spec.md §9 open question 1,
// ordering between structural changes is unspecified; this takes a fresh,
// stably sorted snapshot of currently-live keys on every call and walks it
// by numeric position, so cursors remain within bounds even though the
// underlying set may have changed, at the cost of tolerated duplicates or
// skips exactly as the spec allows.
func (d *Database) Scan(cursor uint64, pattern []byte, count int) (uint64, []string) {
	if count <= 0 {
		count = 10
	}
	now := NowMillis()
	keys := make([]string, 0, len(d.entries))
	for k, e := range d.entries {
		if e.IsExpired(now) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := int(cursor)
	if start > len(keys) {
		start = len(keys)
	}
	end := start + count
	if end > len(keys) {
		end = len(keys)
	}
	var out []string
	for _, k := range keys[start:end] {
		if pattern != nil && !glob.Match(pattern, []byte(k)) {
			continue
		}
		out = append(out, k)
	}
	next := uint64(end)
	if end >= len(keys) {
		next = 0
	}
	return next, out
}

func (d *Database) RandomKey(nowMs int64) (string, bool) {
	live := d.Keys(nil, nowMs)
	if len(live) == 0 {
		return "", false
	}
	return live[rand.Intn(len(live))], true
}

// DBSize returns the count of live keys.
func (d *Database) DBSize(nowMs int64) int {
	n := 0
	for _, e := range d.entries {
		if !e.IsExpired(nowMs) {
			n++
		}
	}
	return n
}

// Flush removes all entries, returning how many were removed.
func (d *Database) Flush() int {
	n := len(d.entries)
	d.entries = make(map[string]*Entry)
	d.bumpVersion()
	return n
}

// ActiveExpire samples up to sampleSize entries, preferring those with an
// expiry set, and removes the ones past expiry. Returns the removed count.
func (d *Database) ActiveExpire(sampleSize int) int {
	now := NowMillis()
	removed := 0
	checked := 0
	for k, e := range d.entries {
		if e.ExpiresAt == nil {
			continue
		}
		checked++
		if e.IsExpired(now) {
			delete(d.entries, k)
			removed++
		}
		if checked >= sampleSize {
			break
		}
	}
	if removed > 0 {
		d.bumpVersion()
	}
	return removed
}

// ExpiresCount returns how many live keys carry an expiry.
func (d *Database) ExpiresCount(nowMs int64) int {
	n := 0
	for _, e := range d.entries {
		if e.ExpiresAt != nil && !e.IsExpired(nowMs) {
			n++
		}
	}
	return n
}

// EstimatedMemory is a cheap, non-authoritative approximation used only for
// eviction pressure decisions (spec.md §4.2 and §Non-goals: exact memory
// accounting is explicitly out of scope).
func (d *Database) EstimatedMemory() uint64 {
	var total uint64
	for k, e := range d.entries {
		total += uint64(len(k)) + 48
		switch v := e.Value.(type) {
		case *RString:
			total += uint64(len(v.Data))
		case *RList:
			for _, b := range v.Items {
				total += uint64(len(b)) + 16
			}
		case *RHash:
			for f, val := range v.Fields {
				total += uint64(len(f)+len(val)) + 16
			}
		case *RSet:
			for m := range v.Members {
				total += uint64(len(m)) + 16
			}
		case *RZSet:
			for m := range v.Scores {
				total += uint64(len(m)) + 24
			}
		}
	}
	return total
}

// Iter provides read-only iteration over all entries, used by snapshot
// writers and by COPY/MOVE's cross-database path.
func (d *Database) Iter(fn func(key string, e *Entry)) {
	for k, e := range d.entries {
		fn(k, e)
	}
}

// EntryForEviction returns the eviction candidate under the given policy,
// or false if nothing is eligible. Used by C12's eviction cycle.
func (d *Database) EntryForEviction(policy string) (string, bool) {
	switch policy {
	case "allkeys-random":
		return d.RandomKey(NowMillis())
	case "volatile-random":
		var candidates []string
		now := NowMillis()
		for k, e := range d.entries {
			if e.ExpiresAt != nil && !e.IsExpired(now) {
				candidates = append(candidates, k)
			}
		}
		if len(candidates) == 0 {
			return "", false
		}
		return candidates[rand.Intn(len(candidates))], true
	case "volatile-ttl":
		var best string
		var bestTTL int64 = -1
		found := false
		now := NowMillis()
		for k, e := range d.entries {
			if e.ExpiresAt == nil || e.IsExpired(now) {
				continue
			}
			ttl := *e.ExpiresAt
			if !found || ttl < bestTTL {
				best = k
				bestTTL = ttl
				found = true
			}
		}
		return best, found
	default:
		return "", false
	}
}
