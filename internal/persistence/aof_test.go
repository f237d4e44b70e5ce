package persistence

import (
	"testing"

	"go.uber.org/zap"
)

type nilRewriteSource struct{}

func (nilRewriteSource) Dump() [][][][]byte { return nil }

// TestAOFReplayAppliesLoggedCommandsInOrder exercises spec.md §8's AOF
// replay invariant: replaying a log of C1..Cn yields the same state as
// running C1..Cn directly.
func TestAOFReplayAppliesLoggedCommandsInOrder(t *testing.T) {
	dir := t.TempDir()
	aof, err := Open(dir, FsyncAlways, nilRewriteSource{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	aof.LogCommand(0, [][]byte{[]byte("SET"), []byte("foo"), []byte("1")})
	aof.LogCommand(0, [][]byte{[]byte("INCR"), []byte("foo")})
	aof.LogCommand(1, [][]byte{[]byte("SET"), []byte("bar"), []byte("x")})
	if err := aof.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var applied [][2]interface{}
	err = Replay(dir, func(dbIndex int, args [][]byte) {
		names := make([]string, len(args))
		for i, a := range args {
			names[i] = string(a)
		}
		applied = append(applied, [2]interface{}{dbIndex, names})
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if len(applied) != 3 {
		t.Fatalf("expected 3 replayed commands, got %d: %+v", len(applied), applied)
	}
	if applied[0][0].(int) != 0 || applied[0][1].([]string)[0] != "SET" {
		t.Fatalf("first command wrong: %+v", applied[0])
	}
	if applied[2][0].(int) != 1 {
		t.Fatalf("third command should be on db 1, got %+v", applied[2])
	}
}
