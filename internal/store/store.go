package store

import "sync"

// Store is the full keyspace: an ordered sequence of databases guarded by
// a single coarse reader/writer lock (spec.md §5: "the keyspace ... guarded
// by a coarse reader/writer lock; writers exclude everyone"). Grounded on
// original_source/src/store/mod.rs's DataStore.
//
// Handlers acquire Lock()/RLock() for the shortest coherent region needed
// and must never hold it across network I/O or a key-watcher wait
// (spec.md §4.4, §5) — that discipline is enforced by convention in the
// command dispatcher, not by this type.
type Store struct {
	mu        sync.RWMutex
	databases []*Database
}

func NewStore(numDatabases int) *Store {
	dbs := make([]*Database, numDatabases)
	for i := range dbs {
		dbs[i] = NewDatabase()
	}
	return &Store{databases: dbs}
}

// Lock / Unlock / RLock / RUnlock expose the coarse lock directly so the
// command dispatcher controls its exact critical section, per spec.md §5.
func (s *Store) Lock()    { s.mu.Lock() }
func (s *Store) Unlock()  { s.mu.Unlock() }
func (s *Store) RLock()   { s.mu.RLock() }
func (s *Store) RUnlock() { s.mu.RUnlock() }

func (s *Store) NumDatabases() int { return len(s.databases) }

// DB returns the database at index. Callers must hold Lock/RLock.
func (s *Store) DB(index int) *Database { return s.databases[index] }

// FlushAll clears every database.
func (s *Store) FlushAll() {
	for _, d := range s.databases {
		d.Flush()
	}
}

// SwapDB exchanges two databases by index, an O(1) pointer swap, and sets
// both database versions past either old value so WATCH on either index
// sees the change.
func (s *Store) SwapDB(a, b int) {
	s.databases[a], s.databases[b] = s.databases[b], s.databases[a]
	v := s.databases[a].version
	if s.databases[b].version > v {
		v = s.databases[b].version
	}
	s.databases[a].version = v + 1
	s.databases[b].version = v + 1
}

// ActiveExpireCycle runs ActiveExpire(sampleSize) against every database,
// returning the total removed. Called from the background maintenance
// loop (C12) under the store's writer lock.
func (s *Store) ActiveExpireCycle(sampleSize int) int {
	total := 0
	for _, d := range s.databases {
		total += d.ActiveExpire(sampleSize)
	}
	return total
}

// Replace atomically swaps the entire set of databases, used by full
// snapshot/replication resync restore.
func (s *Store) Replace(dbs []*Database) {
	s.databases = dbs
}
