// Package command implements the command dispatcher (C7): parsing and
// mode-gating per spec.md §4.4, invoking per-command handlers, and teeing
// successful writes to persistence and replication.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cedis/server/internal/client"
	"github.com/cedis/server/internal/config"
	"github.com/cedis/server/internal/keywatcher"
	"github.com/cedis/server/internal/metrics"
	"github.com/cedis/server/internal/pubsub"
	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Persister is the subset of the AOF writer the dispatcher needs; kept as
// an interface here so internal/command does not import internal/persistence
// directly (avoids an import cycle with persistence's own replay path,
// which drives the dispatcher to reconstruct state).
type Persister interface {
	LogCommand(dbIndex int, args [][]byte)
	Rewrite() error
}

// Replicator is the subset of replication state the dispatcher needs to
// propagate a successful write and service the replication-support
// commands (REPLICAOF/SLAVEOF, SYNC, PSYNC, REPLCONF).
type Replicator interface {
	Propagate(dbIndex int, args [][]byte)
	IsReplica() bool

	// ReplicaOf switches role: ("", "") restores primary role ("replicaof
	// no one"); any other (host, port) tears down the existing follower
	// task and starts a new one pointed at host:port.
	ReplicaOf(host, port string) error

	// AttachFollower registers raw, a callback that writes pre-encoded
	// RESP bytes directly to id's connection, as a propagation target.
	// It returns the replication id, whether a full resync is required
	// (vs a partial +continue), the byte offset to resume from, the
	// backlog bytes a partial resync must send after its "+CONTINUE"
	// line (nil on a full resync), and a detach func the caller must
	// run when the connection closes.
	AttachFollower(id uint64, wantReplID string, wantOffset int64, raw func([]byte)) (replID string, fullResync bool, offset int64, partial []byte, detach func())

	// SnapshotBytes renders a full in-memory snapshot for a fullresync
	// bulk body.
	SnapshotBytes() ([]byte, error)

	// RecordAck updates the acknowledged offset reported by a follower's
	// REPLCONF ACK.
	RecordAck(id uint64, offset int64)

	// ReplID, Offset and ConnectedFollowers feed the INFO replication
	// section.
	ReplID() string
	Offset() int64
	ConnectedFollowers() int
}

// Snapshotter is the subset of the RDB-style snapshot writer the SAVE/
// BGSAVE commands need.
type Snapshotter interface {
	Save() error
}

// Handler implements one command's behavior. args[0] is the uppercased
// command name; args[1:] are the raw arguments.
type Handler func(ctx *Context, args [][]byte) resp.Value

// Spec describes one registered command.
type Spec struct {
	Name    string
	Arity   int // minimum total argument count (name included); negative unused here, all arities are minimums
	IsWrite bool
	Handler Handler
}

// Dispatcher owns the command table and the shared subsystems every
// handler may need.
type Dispatcher struct {
	Store      *store.Store
	Config     *config.Config
	PubSub     *pubsub.Registry
	Watcher    *keywatcher.KeyWatcher
	Persist    Persister
	Repl       Replicator
	Snapshot   Snapshotter
	Logger     *zap.Logger
	Monitor    *MonitorHub
	Metrics    *metrics.Registry
	RunID      string // process-lifetime identifier for INFO server, distinct from the replication id
	ScriptMu   sync.Mutex
	Scripts    map[string]string // sha1 digest -> source, SCRIPT LOAD/EVALSHA cache

	commands map[string]*Spec

	changesSinceSave int64
	lastSave         time.Time
	mu               sync.Mutex // guards changesSinceSave/lastSave
}

func NewDispatcher(s *store.Store, cfg *config.Config, ps *pubsub.Registry, kw *keywatcher.KeyWatcher, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		Store:    s,
		Config:   cfg,
		PubSub:   ps,
		Watcher:  kw,
		Logger:   logger,
		Monitor:  NewMonitorHub(),
		Scripts:  make(map[string]string),
		lastSave: time.Now(),
	}
	d.registerCommands()
	return d
}

// Context is the per-invocation view passed to a handler.
type Context struct {
	Client *client.State
	Disp   *Dispatcher

	// touched accumulates keys this invocation modified, for the
	// dispatcher's post-handler touch/notify step.
	touched []string
}

func (ctx *Context) Touch(keys ...string) {
	ctx.touched = append(ctx.touched, keys...)
}

func (ctx *Context) DB() *store.Database {
	return ctx.Disp.Store.DB(ctx.Client.DBIndex)
}

// ChangesSinceSave returns the write counter used by the snapshot
// scheduler's save-rule evaluation (spec.md §4.11).
func (d *Dispatcher) ChangesSinceSave() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changesSinceSave
}

func (d *Dispatcher) ResetSaveCounter() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changesSinceSave = 0
	d.lastSave = time.Now()
}

func (d *Dispatcher) SecondsSinceSave() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(time.Since(d.lastSave).Seconds())
}

// LastSaveUnix returns the unix-seconds timestamp of the last completed
// snapshot, for the LASTSAVE command.
func (d *Dispatcher) LastSaveUnix() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSave.Unix()
}

func (d *Dispatcher) bumpSaveCounter() {
	d.mu.Lock()
	d.changesSinceSave++
	d.mu.Unlock()
}

// Dispatch implements spec.md §4.4's dispatch rules 1-7.
func (d *Dispatcher) Dispatch(c *client.State, rawArgs [][]byte) resp.Value {
	if len(rawArgs) == 0 {
		return resp.Value{} // inline empty line: no-op, no reply
	}
	name := strings.ToUpper(string(rawArgs[0]))
	args := append([][]byte{[]byte(name)}, rawArgs[1:]...)

	d.Monitor.Feed(c, args)

	spec, known := d.commands[name]

	// Rule 1: auth gating.
	if d.Config.RequirePass != "" && !c.Authenticated && !isAuthExempt(name) {
		return resp.Error("NOAUTH Authentication required.")
	}

	// Rule 2: subscribe mode restricts to a small allowed set.
	if c.InSubscribeMode() && !isSubscribeModeAllowed(name) {
		return resp.Error("ERR Can't execute '" + strings.ToLower(name) + "': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context")
	}

	// Rule 3: replica read-only enforcement, bypassed for the
	// synthesized replication-link client.
	if known && spec.IsWrite && !c.IsReplicationLink && d.Repl != nil && d.Repl.IsReplica() && d.Config.ReplicaReadOnly {
		return resp.Error("READONLY You can't write against a read only replica.")
	}

	// Rule 4: transaction queueing.
	if c.InMulti && !isTransactionControl(name) {
		if !known {
			c.MultiError = true
			return resp.Error(unknownCommandError(name, rawArgs[1:]))
		}
		c.MultiQueue = append(c.MultiQueue, client.QueuedCommand{Name: name, Args: args})
		return resp.SimpleString("QUEUED")
	}

	if !known {
		return resp.Error(unknownCommandError(name, rawArgs[1:]))
	}
	if len(args) < spec.Arity {
		return resp.Error("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command")
	}

	ctx := &Context{Client: c, Disp: d}
	result := spec.Handler(ctx, args)

	if d.Metrics != nil {
		d.Metrics.CommandsProcessed.Inc()
		if result.IsError() {
			d.Metrics.CommandErrors.WithLabelValues(errorClass(result)).Inc()
		}
	}

	// Rule 6: tee successful writes to persistence + replication, touch
	// keys, and wake any blocked waiters on them. A command applied from
	// an upstream primary still bumps the local save counter and wakes
	// blocked waiters/watchers on this node (a BLPOP parked on a replica
	// must still see the pushed element) but is never re-logged to this
	// node's own AOF under its own authorship or re-propagated downstream
	// as if newly issued here. Propagate itself is a no-op while this node
	// is a replica, so commands received from the primary are not forwarded
	// to sub-replicas.
	if spec.IsWrite && !result.IsError() {
		if !c.IsReplicationLink {
			if d.Persist != nil {
				d.Persist.LogCommand(c.DBIndex, args)
			}
			if d.Repl != nil {
				d.Repl.Propagate(c.DBIndex, args)
			}
		}
		d.bumpSaveCounter()
		for _, k := range ctx.touched {
			d.Watcher.Notify(k)
		}
	}

	return result
}

func unknownCommandError(name string, rest [][]byte) string {
	var b strings.Builder
	b.WriteString("ERR unknown command '")
	b.WriteString(name)
	b.WriteString("', with args beginning with: ")
	n := len(rest)
	if n > 3 {
		n = 3
	}
	for i := 0; i < n; i++ {
		b.WriteString("'")
		b.WriteString(string(rest[i]))
		b.WriteString("', ")
	}
	return b.String()
}

// errorClass buckets an error reply's wire prefix into the small label set
// CommandErrors tracks, matching spec.md §7's taxonomy.
func errorClass(v resp.Value) string {
	msg := v.Str
	switch {
	case strings.HasPrefix(msg, "WRONGTYPE"):
		return "wrongtype"
	case strings.HasPrefix(msg, "ERR wrong number of arguments"):
		return "arity"
	case strings.HasPrefix(msg, "READONLY"):
		return "readonly"
	case strings.HasPrefix(msg, "ERR unknown command"):
		return "unknown"
	case strings.HasPrefix(msg, "NOAUTH"), strings.HasPrefix(msg, "WRONGPASS"):
		return "auth"
	case strings.HasPrefix(msg, "ERR Protocol error"):
		return "protocol"
	default:
		return "other"
	}
}

func isAuthExempt(name string) bool {
	switch name {
	case "AUTH", "QUIT", "HELLO", "RESET":
		return true
	default:
		return false
	}
}

func isSubscribeModeAllowed(name string) bool {
	switch name {
	case "SUBSCRIBE", "UNSUBSCRIBE", "PSUBSCRIBE", "PUNSUBSCRIBE", "PING", "QUIT", "RESET":
		return true
	default:
		return false
	}
}

func isTransactionControl(name string) bool {
	switch name {
	case "EXEC", "DISCARD", "MULTI", "WATCH", "UNWATCH":
		return true
	default:
		return false
	}
}

// --- small shared argument helpers ---

func parseInt(b []byte) (int64, error) {
	return strconv.ParseInt(string(b), 10, 64)
}

func parseFloat(b []byte) (float64, error) {
	return strconv.ParseFloat(string(b), 64)
}

func formatFloat(f float64) string {
	// Open question 2 (spec.md §9): float formatting is implementation
	// dependent but must round-trip; 'f' with precision -1 gives the shortest
	// plain decimal (no exponent) that round-trips through strconv.ParseFloat,
	// with no trailing zeros for the common integral-score case the way the
	// original's format_double does.
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func wrongType() resp.Value {
	return resp.Error("WRONGTYPE Operation against a key holding the wrong kind of value")
}

func notInteger() resp.Value { return resp.Error("ERR value is not an integer or out of range") }
func notFloat() resp.Value   { return resp.Error("ERR value is not a valid float") }
func syntaxError() resp.Value { return resp.Error("ERR syntax error") }

// isValidDigest reports whether s has the 16-hex-character shape spec.md
// §9 open question 4 requires of IFDEQ/IFDNE/DIGEST digests.
func isValidDigest(s string) bool {
	if len(s) != 16 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// valueDigest computes the 16-hex-character value-equivalence fingerprint
// IFDEQ/IFDNE/DIGEST compare against (spec.md §9 open question 4: "any
// stable 64-bit fingerprint" suffices here, distinct from the script
// cache's collision-resistant SHA-1 digest). Grounded on xxhash, already
// pulled in transitively via the prometheus client chain.
func valueDigest(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
