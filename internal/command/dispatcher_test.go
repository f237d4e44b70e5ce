package command

import (
	"testing"

	"github.com/cedis/server/internal/client"
	"github.com/cedis/server/internal/config"
	"github.com/cedis/server/internal/keywatcher"
	"github.com/cedis/server/internal/pubsub"
	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
	"go.uber.org/zap"
)

func newTestDispatcher() (*Dispatcher, *client.State) {
	st := store.NewStore(16)
	cfg := config.Default()
	ps := pubsub.New()
	kw := keywatcher.New()
	d := NewDispatcher(st, cfg, ps, kw, zap.NewNop())
	c := client.New(1, "test")
	c.Authenticated = true
	return d, c
}

func run(d *Dispatcher, c *client.State, parts ...string) resp.Value {
	args := make([][]byte, len(parts))
	for i, p := range parts {
		args[i] = []byte(p)
	}
	return d.Dispatch(c, args)
}

func TestIncrScenario(t *testing.T) {
	d, c := newTestDispatcher()
	if r := run(d, c, "SET", "foo", "1"); r.Kind != resp.KindSimpleString || r.Str != "OK" {
		t.Fatalf("SET got %+v", r)
	}
	if r := run(d, c, "INCR", "foo"); r.Int != 2 {
		t.Fatalf("INCR got %+v", r)
	}
	if r := run(d, c, "INCRBY", "foo", "10"); r.Int != 12 {
		t.Fatalf("INCRBY got %+v", r)
	}
	if r := run(d, c, "GET", "foo"); string(r.Bulk) != "12" {
		t.Fatalf("GET got %+v", r)
	}
}

func TestListScenario(t *testing.T) {
	d, c := newTestDispatcher()
	run(d, c, "LPUSH", "L", "a")
	run(d, c, "LPUSH", "L", "b")
	run(d, c, "RPUSH", "L", "c")
	r := run(d, c, "LRANGE", "L", "0", "-1")
	if len(r.Array) != 3 || string(r.Array[0].Bulk) != "b" || string(r.Array[1].Bulk) != "a" || string(r.Array[2].Bulk) != "c" {
		t.Fatalf("LRANGE got %+v", r)
	}
	if r := run(d, c, "LLEN", "L"); r.Int != 3 {
		t.Fatalf("LLEN got %+v", r)
	}
	if r := run(d, c, "LPOP", "L"); string(r.Bulk) != "b" {
		t.Fatalf("LPOP got %+v", r)
	}
}

func TestSetScenario(t *testing.T) {
	d, c := newTestDispatcher()
	run(d, c, "SADD", "S", "x", "y", "z")
	if r := run(d, c, "SCARD", "S"); r.Int != 3 {
		t.Fatalf("SCARD got %+v", r)
	}
	if r := run(d, c, "SADD", "S", "x"); r.Int != 0 {
		t.Fatalf("duplicate SADD got %+v", r)
	}
	if r := run(d, c, "SISMEMBER", "S", "q"); r.Int != 0 {
		t.Fatalf("SISMEMBER got %+v", r)
	}
}

func TestZSetScenario(t *testing.T) {
	d, c := newTestDispatcher()
	run(d, c, "ZADD", "Z", "1", "a", "2", "b", "3", "c")
	r := run(d, c, "ZREVRANGE", "Z", "0", "-1")
	if len(r.Array) != 3 || string(r.Array[0].Bulk) != "c" || string(r.Array[2].Bulk) != "a" {
		t.Fatalf("ZREVRANGE got %+v", r)
	}
	if r := run(d, c, "ZSCORE", "Z", "b"); string(r.Bulk) != "2" {
		t.Fatalf("ZSCORE got %+v", r)
	}
	if r := run(d, c, "ZINCRBY", "Z", "10", "a"); string(r.Bulk) != "11" {
		t.Fatalf("ZINCRBY got %+v", r)
	}
}

func TestExpiryScenario(t *testing.T) {
	d, c := newTestDispatcher()
	run(d, c, "SET", "k", "v", "EX", "100")
	if r := run(d, c, "TTL", "k"); r.Int < 99 || r.Int > 100 {
		t.Fatalf("TTL got %+v", r)
	}
	if r := run(d, c, "PERSIST", "k"); r.Int != 1 {
		t.Fatalf("PERSIST got %+v", r)
	}
	if r := run(d, c, "TTL", "k"); r.Int != -1 {
		t.Fatalf("TTL after persist got %+v", r)
	}
	run(d, c, "SET", "k", "v")
	if r := run(d, c, "EXPIRE", "k", "0"); r.Int != 1 {
		t.Fatalf("EXPIRE 0 got %+v", r)
	}
	if r := run(d, c, "EXISTS", "k"); r.Int != 0 {
		t.Fatalf("EXISTS after expire-0 got %+v", r)
	}
}

// TestWatchAbortsOnConcurrentWrite exercises spec.md §8 scenario 6: a write
// on one connection invalidates another connection's WATCH, so its EXEC
// returns a null array and the queued command never runs.
func TestWatchAbortsOnConcurrentWrite(t *testing.T) {
	d, _ := newTestDispatcher()
	a := client.New(1, "a")
	a.Authenticated = true
	b := client.New(2, "b")
	b.Authenticated = true

	run(d, a, "WATCH", "k")
	run(d, b, "SET", "k", "x")

	run(d, a, "MULTI")
	run(d, a, "INCR", "counter")
	r := run(d, a, "EXEC")
	if !r.IsNull() {
		t.Fatalf("EXEC should have aborted, got %+v", r)
	}
	if r := run(d, a, "GET", "counter"); !r.IsNull() {
		t.Fatalf("counter should be untouched, got %+v", r)
	}
}

func TestMultiExecRunsQueuedCommands(t *testing.T) {
	d, c := newTestDispatcher()
	run(d, c, "MULTI")
	if r := run(d, c, "SET", "a", "1"); r.Kind != resp.KindSimpleString || r.Str != "QUEUED" {
		t.Fatalf("queued SET got %+v", r)
	}
	if r := run(d, c, "INCR", "a"); r.Str != "QUEUED" {
		t.Fatalf("queued INCR got %+v", r)
	}
	r := run(d, c, "EXEC")
	if r.IsNull() || len(r.Array) != 2 {
		t.Fatalf("EXEC got %+v", r)
	}
	if r.Array[1].Int != 2 {
		t.Fatalf("second reply should be INCR's 2, got %+v", r.Array[1])
	}
}

func TestDiscardClearsQueue(t *testing.T) {
	d, c := newTestDispatcher()
	run(d, c, "MULTI")
	run(d, c, "SET", "a", "1")
	if r := run(d, c, "DISCARD"); r.Kind != resp.KindSimpleString || r.Str != "OK" {
		t.Fatalf("DISCARD got %+v", r)
	}
	if c.InMulti {
		t.Fatalf("client should have left multi mode")
	}
	if r := run(d, c, "EXISTS", "a"); r.Int != 0 {
		t.Fatalf("discarded SET should not have run, got %+v", r)
	}
}

func TestUnknownCommandInsideMultiMarksDirty(t *testing.T) {
	d, c := newTestDispatcher()
	run(d, c, "MULTI")
	if r := run(d, c, "NOTACOMMAND"); !r.IsError() {
		t.Fatalf("expected an error queuing an unknown command, got %+v", r)
	}
	r := run(d, c, "EXEC")
	if !r.IsError() {
		t.Fatalf("EXEC after a bad queue should error, got %+v", r)
	}
	if c.InMulti {
		t.Fatalf("EXEC should have cleared multi state")
	}
}

func TestReadOnlyReplicaRejectsWrites(t *testing.T) {
	d, c := newTestDispatcher()
	d.Repl = fakeReplica{}
	if r := run(d, c, "SET", "k", "v"); !r.IsError() || r.Str[:8] != "READONLY" {
		t.Fatalf("expected READONLY error, got %+v", r)
	}
	if r := run(d, c, "GET", "k"); r.IsError() {
		t.Fatalf("reads should still be allowed, got %+v", r)
	}
}

type fakeReplica struct{}

func (fakeReplica) Propagate(int, [][]byte)       {}
func (fakeReplica) IsReplica() bool               { return true }
func (fakeReplica) ReplicaOf(string, string) error { return nil }
func (fakeReplica) AttachFollower(uint64, string, int64, func([]byte)) (string, bool, int64, []byte, func()) {
	return "", true, 0, nil, func() {}
}
func (fakeReplica) SnapshotBytes() ([]byte, error) { return nil, nil }
func (fakeReplica) RecordAck(uint64, int64)        {}
func (fakeReplica) ReplID() string                 { return "" }
func (fakeReplica) Offset() int64                  { return 0 }
func (fakeReplica) ConnectedFollowers() int        { return 0 }
