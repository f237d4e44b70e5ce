// Package client holds per-connection state: authentication, selected
// database, transaction queueing, and pub/sub/monitor mode flags.
// Grounded on original_source/src/connection.rs's ClientState.
package client

import (
	"sync/atomic"

	"github.com/cedis/server/internal/resp"
)

var nextClientID uint64

// NextID mints a globally unique, monotonically increasing client id from
// the package-level atomic counter nextClientID; the counter is a
// process-wide variable and is not passed in by callers.
func NextID() uint64 {
	return atomic.AddUint64(&nextClientID, 1)
}

// QueuedCommand is one command queued between MULTI and EXEC.
type QueuedCommand struct {
	Name string
	Args [][]byte
}

// WatchedKey snapshots a key's version at the time of WATCH.
type WatchedKey struct {
	DBIndex      int
	Key          string
	EntryVersion uint64
	DBVersion    uint64
}

// State is a single client connection's mutable state. Per spec.md §5, no
// lock protects it beyond task-local ownership: only the connection's own
// goroutine ever mutates it.
type State struct {
	ID             uint64
	DBIndex        int
	Authenticated  bool
	ShouldClose    bool
	Name           string
	Addr           string

	// Transaction state (C6).
	InMulti     bool
	MultiQueue  []QueuedCommand
	WatchedKeys []WatchedKey
	WatchDirty  bool
	MultiError  bool

	// Pub/Sub state: total active subscriptions (channels + patterns).
	Subscriptions int

	// MONITOR mode.
	InMonitor bool

	// IsReplicationLink marks a synthesized client used to apply commands
	// streamed from a primary: writes through it are neither logged to the
	// AOF nor re-propagated to this node's own replicas' offsets as fresh
	// writes, and read-only enforcement is bypassed (spec.md §4.4 point 3).
	IsReplicationLink bool

	// PushFunc delivers an out-of-band reply (pub/sub message, MONITOR
	// feed) to this client's connection. Set by the connection task at
	// accept time; nil for synthesized clients that never subscribe.
	PushFunc func(resp.Value)

	// RawPush writes pre-encoded RESP bytes directly to this client's
	// connection, bypassing the normal reply encoder. Used for the
	// SYNC/PSYNC handshake (+fullresync/+continue lines, the snapshot
	// bulk body) and for streaming propagated write commands to an
	// attached follower.
	RawPush func([]byte)

	// IsReplicaFeed marks a connection that issued SYNC/PSYNC and is now
	// attached to the replication backlog: its normal per-command reply
	// path is suppressed in favor of RawPush deliveries.
	IsReplicaFeed bool

	// ReplDetach, set once AttachFollower succeeds, removes this
	// connection from the primary's propagation targets. The connection
	// task must call it on disconnect.
	ReplDetach func()
}

// Push delivers v via PushFunc, a no-op if the client never registered one.
func (s *State) Push(v resp.Value) {
	if s.PushFunc != nil {
		s.PushFunc(v)
	}
}

func New(id uint64, addr string) *State {
	return &State{ID: id, Addr: addr}
}

// InSubscribeMode reports whether the client may only run subscribe-family
// commands (spec.md §4.4 point 2).
func (s *State) InSubscribeMode() bool { return s.Subscriptions > 0 }

func (s *State) ResetTransaction() {
	s.InMulti = false
	s.MultiQueue = nil
	s.WatchedKeys = nil
	s.WatchDirty = false
	s.MultiError = false
}
