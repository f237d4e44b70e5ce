package persistence

import (
	"testing"

	"github.com/cedis/server/internal/store"
)

func TestSnapshotRoundTrip(t *testing.T) {
	st := store.NewStore(4)

	db0 := st.DB(0)
	db0.Set("str", store.NewRString([]byte("hello")), nil)
	l := store.NewRList()
	l.PushRight([]byte("a"))
	l.PushRight([]byte("b"))
	db0.Set("list", l, nil)
	future := store.NowMillis() + 60_000
	db0.Set("withttl", store.NewRString([]byte("x")), &future)

	h := store.NewRHash()
	h.Fields["f1"] = []byte("v1")
	st.DB(1).Set("hash", h, nil)

	sn := NewSnapshotter("", "", st)
	data, err := sn.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	dbs, err := LoadSnapshotFromBytes(data, 4)
	if err != nil {
		t.Fatalf("LoadSnapshotFromBytes: %v", err)
	}
	if len(dbs) != 4 {
		t.Fatalf("expected 4 databases, got %d", len(dbs))
	}

	e, ok := dbs[0].Get("str", store.NowMillis())
	if !ok || string(e.Value.(*store.RString).Data) != "hello" {
		t.Fatalf("string key did not round-trip: %+v ok=%v", e, ok)
	}

	le, ok := dbs[0].Get("list", store.NowMillis())
	if !ok {
		t.Fatalf("list key missing after round-trip")
	}
	rl := le.Value.(*store.RList)
	if rl.Len() != 2 {
		t.Fatalf("list length mismatch: %d", rl.Len())
	}

	te, ok := dbs[0].Get("withttl", store.NowMillis())
	if !ok || te.ExpiresAt == nil {
		t.Fatalf("expiring key lost its TTL on round-trip: %+v", te)
	}

	he, ok := dbs[1].Get("hash", store.NowMillis())
	if !ok {
		t.Fatalf("hash key missing from database 1 after round-trip")
	}
	rh := he.Value.(*store.RHash)
	if v, ok := rh.Fields["f1"]; !ok || string(v) != "v1" {
		t.Fatalf("hash field did not round-trip: %v ok=%v", v, ok)
	}
}
