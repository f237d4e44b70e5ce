package store

import "testing"

func TestSetGetExpiry(t *testing.T) {
	db := NewDatabase()
	db.Set("foo", NewRString([]byte("1")), nil)
	e, ok := db.Get("foo", NowMillis())
	if !ok || string(e.Value.(*RString).Data) != "1" {
		t.Fatalf("got %+v ok=%v", e, ok)
	}

	past := NowMillis() - 1000
	db.Set("bar", NewRString([]byte("x")), &past)
	if _, ok := db.Get("bar", NowMillis()); ok {
		t.Fatalf("expected bar to be expired")
	}
	if db.Exists("bar", NowMillis()) {
		t.Fatalf("expired key should not exist")
	}
}

func TestVersionsBumpOnWrite(t *testing.T) {
	db := NewDatabase()
	e := db.Set("k", NewRString([]byte("1")), nil)
	if e.Version != 1 {
		t.Fatalf("want version 1, got %d", e.Version)
	}
	v0 := db.Version()
	db.Set("k", NewRString([]byte("2")), nil)
	e2, _ := db.Get("k", NowMillis())
	if e2.Version != 2 {
		t.Fatalf("want version 2, got %d", e2.Version)
	}
	if db.Version() <= v0 {
		t.Fatalf("database version should have advanced")
	}
}

func TestDeleteIfEmptyRemovesAggregate(t *testing.T) {
	db := NewDatabase()
	l := NewRList()
	l.PushRight([]byte("a"))
	db.Set("l", l, nil)
	l.PopLeft()
	db.DeleteIfEmpty("l")
	if db.Exists("l", NowMillis()) {
		t.Fatalf("emptied list should have been removed")
	}
}

func TestRenameOverwrites(t *testing.T) {
	db := NewDatabase()
	db.Set("a", NewRString([]byte("1")), nil)
	db.Set("b", NewRString([]byte("2")), nil)
	if !db.Rename("a", "b", NowMillis()) {
		t.Fatalf("rename should succeed")
	}
	if db.Exists("a", NowMillis()) {
		t.Fatalf("old key should be gone")
	}
	e, _ := db.Get("b", NowMillis())
	if string(e.Value.(*RString).Data) != "1" {
		t.Fatalf("rename should overwrite destination, got %q", e.Value.(*RString).Data)
	}
}

func TestScanCoversAllKeysAcrossCursor(t *testing.T) {
	db := NewDatabase()
	for i := 0; i < 25; i++ {
		db.Set(string(rune('a'+i)), NewRString([]byte("v")), nil)
	}
	seen := map[string]bool{}
	cursor := uint64(0)
	for {
		next, batch := db.Scan(cursor, nil, 10)
		for _, k := range batch {
			seen[k] = true
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if len(seen) != 25 {
		t.Fatalf("expected to see all 25 keys, saw %d", len(seen))
	}
}

func TestKeysGlobFilter(t *testing.T) {
	db := NewDatabase()
	db.Set("foo", NewRString(nil), nil)
	db.Set("bar", NewRString(nil), nil)
	matched := db.Keys([]byte("f*"), NowMillis())
	if len(matched) != 1 || matched[0] != "foo" {
		t.Fatalf("got %v", matched)
	}
}
