// Package persistence implements the two on-disk durability mechanisms
// spec.md §4.8/§4.9 names: an append-only command log (AOF) and a
// point-in-time binary snapshot. Grounded on
// original_source/src/persistence/aof.rs and .../rdb.rs.
package persistence

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cedis/server/internal/resp"
	"go.uber.org/zap"
)

// FsyncPolicy mirrors the appendfsync config values.
type FsyncPolicy int

const (
	FsyncAlways FsyncPolicy = iota
	FsyncEverysec
	FsyncNo
)

func ParseFsyncPolicy(s string) FsyncPolicy {
	switch s {
	case "always":
		return FsyncAlways
	case "no":
		return FsyncNo
	default:
		return FsyncEverysec
	}
}

// RewriteSource is the subset of the keyspace the AOF rewriter walks to
// produce the minimal reconstructive command sequence. The command package
// avoids importing persistence directly, so this is satisfied by a small
// adapter built at wiring time (cmd/cedis-server) rather than by
// internal/store itself, keeping this package the only one that needs to
// know both the store's iteration shape and RESP command encoding.
type RewriteSource interface {
	// Dump returns, for every database index in order, the sequence of
	// RESP command argument lists that would reconstruct its contents:
	// SELECT, then one write command per live key (plus a PEXPIREAT for
	// keys that carry an expiry).
	Dump() [][][][]byte
}

// AOF is an append-only command log writer/replayer. Every successful
// write command is appended as a RESP-encoded array, identical to how a
// client would have sent it (spec.md §8), so the replay path is just the
// ordinary RESP parser and dispatcher run again.
type AOF struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	w        *bufio.Writer
	policy   FsyncPolicy
	curDB    int
	haveDB   bool
	logger   *zap.Logger
	dirty    bool // set by LogCommand, cleared by the fsync ticker under FsyncEverysec
	source   RewriteSource
}

// Open opens (creating if absent) the AOF file at dir/appendonly.aof for
// appending, positioned at end-of-file.
func Open(dir string, policy FsyncPolicy, source RewriteSource, logger *zap.Logger) (*AOF, error) {
	path := filepath.Join(dir, "appendonly.aof")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open aof: %w", err)
	}
	return &AOF{
		path:   path,
		file:   f,
		w:      bufio.NewWriter(f),
		policy: policy,
		curDB:  -1,
		source: source,
		logger: logger,
	}, nil
}

// LogCommand appends one successful write command, emitting a SELECT
// first if dbIndex differs from the last logged command's database.
func (a *AOF) LogCommand(dbIndex int, args [][]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.haveDB || a.curDB != dbIndex {
		sel := [][]byte{[]byte("SELECT"), []byte(strconv.Itoa(dbIndex))}
		a.w.Write(resp.EncodeCommand(sel))
		a.curDB = dbIndex
		a.haveDB = true
	}
	a.w.Write(resp.EncodeCommand(args))
	a.dirty = true

	if a.policy == FsyncAlways {
		a.flushAndSync()
	}
}

func (a *AOF) flushAndSync() {
	if err := a.w.Flush(); err != nil {
		if a.logger != nil {
			a.logger.Warn("aof flush failed", zap.Error(err))
		}
		return
	}
	if err := a.file.Sync(); err != nil && a.logger != nil {
		a.logger.Warn("aof fsync failed", zap.Error(err))
	}
	a.dirty = false
}

// Tick is called once per second by the background maintenance loop
// (spec.md §4.11) under the FsyncEverysec policy; it flushes and fsyncs
// only if something was logged since the last tick.
func (a *AOF) Tick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.policy != FsyncEverysec || !a.dirty {
		return
	}
	a.flushAndSync()
}

// Rewrite compacts the log to the minimal command sequence that
// reconstructs the current keyspace, atomically replacing the live file
// (temp-file-then-rename, spec.md §4.9's same pattern applied to the
// AOF). Rewrite holds the log's lock throughout, so concurrent LogCommand
// calls wait and then append to the rewritten file; nothing written during
// the rewrite is lost.
func (a *AOF) Rewrite() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.w.Flush(); err != nil {
		return err
	}

	tmpPath := a.path + ".rewrite.tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create rewrite temp: %w", err)
	}
	w := bufio.NewWriter(tmp)

	if a.source != nil {
		for dbIndex, cmds := range a.source.Dump() {
			if len(cmds) == 0 {
				continue
			}
			w.Write(resp.EncodeCommand([][]byte{[]byte("SELECT"), []byte(strconv.Itoa(dbIndex))}))
			for _, c := range cmds {
				w.Write(resp.EncodeCommand(c))
			}
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := a.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, a.path); err != nil {
		return fmt.Errorf("rename rewritten aof: %w", err)
	}

	f, err := os.OpenFile(a.path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("reopen aof after rewrite: %w", err)
	}
	a.file = f
	a.w = bufio.NewWriter(f)
	a.curDB = -1
	a.haveDB = false
	return nil
}

// Close flushes and closes the underlying file.
func (a *AOF) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.w.Flush(); err != nil {
		return err
	}
	return a.file.Close()
}

// Replay reads every complete command from the AOF file at dir and
// invokes apply(dbIndex, args) for each one in order, tracking the
// currently-selected database via SELECT commands. A trailing partial
// command (the tail of a log truncated by a crash mid-write) is silently
// ignored rather than treated as an error, per spec.md §4.8.
func Replay(dir string, apply func(dbIndex int, args [][]byte)) error {
	path := filepath.Join(dir, "appendonly.aof")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read aof: %w", err)
	}

	p := resp.NewParser()
	p.Feed(data)
	dbIndex := 0
	for {
		v, ok, err := p.Next()
		if err != nil {
			// A corrupt (non-incomplete) tail is also tolerated: stop
			// replay at the first bad frame rather than failing startup.
			break
		}
		if !ok {
			break
		}
		args, shaped := v.ToArgs()
		if !shaped || len(args) == 0 {
			continue
		}
		name := string(args[0])
		if len(args) >= 2 && (name == "SELECT" || name == "select") {
			if n, err := strconv.Atoi(string(args[1])); err == nil {
				dbIndex = n
			}
			continue
		}
		apply(dbIndex, args)
	}
	return nil
}
