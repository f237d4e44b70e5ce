// Package replication implements the primary/replica propagation pipeline
// (C10): a circular backlog buffer serving partial resyncs, the PSYNC/SYNC
// full-resync handshake, and the follower-side reconnect-and-apply loop.
// Grounded on original_source/src/replication/{mod,backlog,master,replica}.rs.
package replication

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cedis/server/internal/client"
	"github.com/cedis/server/internal/config"
	"github.com/cedis/server/internal/persistence"
	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

// Snapshotter is the subset of persistence.Snapshotter replication needs to
// render a full-resync bulk body without touching disk.
type Snapshotter interface {
	Bytes() ([]byte, error)
}

// Dispatch applies one already-parsed command against the store the way
// the ordinary command dispatcher would, used both to apply commands
// streamed from a primary and (indirectly) to let CONFIG-driven role
// switches take effect immediately. Supplied by main at wiring time to
// avoid an import cycle with internal/command (which depends on this
// package's State to satisfy its own Replicator interface).
type Dispatch func(c *client.State, args [][]byte) resp.Value

// followerConn is a primary-side attached replica: offset tracks the last
// REPLCONF ACK it reported.
type followerConn struct {
	id        uint64
	raw       func([]byte)
	ackOffset int64
}

// State is the full replication state machine: role, replication id(s),
// offset, backlog, and attached followers on the primary side; host/port
// and reconnect control on the replica side. One State exists per server
// process (spec.md §3's "Replication state").
type State struct {
	mu sync.RWMutex

	role      string // "master" | "slave"
	replID    string
	replID2   string // secondary id, set after a role switch
	offset    int64  // master_repl_offset: total bytes ever fed to the backlog
	curDB     int
	haveDB    bool
	backlog   *Backlog
	followers map[uint64]*followerConn

	masterHost   string
	masterPort   string
	linkStatus   string
	syncInFlight bool
	cancelFollow context.CancelFunc

	cfg      *config.Config
	store    *store.Store
	snapshot Snapshotter
	dispatch Dispatch
	logger   *zap.Logger
}

// New constructs replication state in the primary role, matching
// ReplicationState::new()'s defaults.
func New(cfg *config.Config, s *store.Store, snap Snapshotter, logger *zap.Logger) *State {
	return &State{
		role:      "master",
		replID:    generateReplID(),
		replID2:   strings.Repeat("0", 40),
		backlog:   NewBacklog(cfg.ReplBacklogSize),
		followers: make(map[uint64]*followerConn),
		linkStatus: "up",
		cfg:       cfg,
		store:     s,
		snapshot:  snap,
		logger:    logger,
	}
}

// SetDispatch wires the callback used to apply commands streamed from a
// primary; set once after both State and the command.Dispatcher exist.
func (r *State) SetDispatch(d Dispatch) {
	r.mu.Lock()
	r.dispatch = d
	r.mu.Unlock()
}

func generateReplID() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable, but a
		// replication id of all zeros is still well-formed (40 hex chars)
		// and lets the server start rather than panic.
		return strings.Repeat("0", 40)
	}
	return hex.EncodeToString(buf)
}

// IsReplica satisfies command.Replicator: true while this node follows a
// primary.
func (r *State) IsReplica() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.role == "slave"
}

// Role returns "master" or "slave" for INFO replication section rendering.
func (r *State) Role() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.role
}

// ReplID returns the current primary replication id.
func (r *State) ReplID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.replID
}

// Offset returns the current replication byte offset.
func (r *State) Offset() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.offset
}

// ConnectedFollowers returns the number of attached followers, for
// INFO/WAIT.
func (r *State) ConnectedFollowers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.followers)
}

// Propagate appends a successful write command's bytes to the backlog and
// forwards them to every attached follower, emitting a SELECT first if the
// database differs from the last propagated command's (spec.md §4.10,
// mirroring the AOF's own per-connection SELECT tracking). Propagate is
// always called after the store mutation has already committed and after
// the store lock has been released (spec.md §4.4 rule 6), never while
// holding it.
func (r *State) Propagate(dbIndex int, args [][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.role == "slave" {
		return
	}
	if !r.haveDB || r.curDB != dbIndex {
		sel := resp.EncodeCommand([][]byte{[]byte("SELECT"), []byte(strconv.Itoa(dbIndex))})
		r.feedLocked(sel)
		r.curDB = dbIndex
		r.haveDB = true
	}
	r.feedLocked(resp.EncodeCommand(args))
}

func (r *State) feedLocked(data []byte) {
	r.offset += int64(len(data))
	r.backlog.Append(data, r.offset)
	for _, f := range r.followers {
		f.raw(data)
	}
}

// AttachFollower satisfies command.Replicator: negotiate full vs partial
// resync for a SYNC/PSYNC connection, then register it as a propagation
// target. partial carries the backlog bytes a partial resync must send
// after its "+CONTINUE" line (spec.md §4.10: "+continue, then the missing
// bytes, then attach").
func (r *State) AttachFollower(id uint64, wantReplID string, wantOffset int64, raw func([]byte)) (replID string, fullResync bool, offset int64, partial []byte, detach func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replID = r.replID
	offset = r.offset

	if wantReplID != "" && wantReplID != "?" && wantReplID == r.replID && wantOffset > 0 {
		if data, ok := r.backlog.ReadFrom(wantOffset); ok {
			r.followers[id] = &followerConn{id: id, raw: raw, ackOffset: wantOffset}
			return replID, false, offset, data, func() { r.detach(id) }
		}
	}

	fullResync = true
	r.followers[id] = &followerConn{id: id, raw: raw, ackOffset: offset}
	return replID, true, offset, nil, func() { r.detach(id) }
}

func (r *State) detach(id uint64) {
	r.mu.Lock()
	delete(r.followers, id)
	r.mu.Unlock()
}

// RecordAck satisfies command.Replicator: updates a follower's
// acknowledged offset from its REPLCONF ACK.
func (r *State) RecordAck(id uint64, offset int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.followers[id]; ok {
		f.ackOffset = offset
	}
}

// SnapshotBytes satisfies command.Replicator.
func (r *State) SnapshotBytes() ([]byte, error) {
	if r.snapshot == nil {
		return nil, fmt.Errorf("no snapshot source configured")
	}
	return r.snapshot.Bytes()
}

// ReplicaOf satisfies command.Replicator: ("", "") restores primary role;
// any other pair tears down the existing follower task and starts a new
// one (spec.md §4.10's role-switching).
func (r *State) ReplicaOf(host, port string) error {
	r.mu.Lock()
	if r.cancelFollow != nil {
		r.cancelFollow()
		r.cancelFollow = nil
	}
	if host == "" {
		if r.role == "slave" {
			r.replID2 = r.replID
			r.replID = generateReplID()
		}
		r.role = "master"
		r.masterHost, r.masterPort = "", ""
		r.linkStatus = "up"
		r.mu.Unlock()
		return nil
	}
	r.role = "slave"
	r.masterHost, r.masterPort = host, port
	r.linkStatus = "down"
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelFollow = cancel
	r.mu.Unlock()

	go r.followLoop(ctx, host, port)
	return nil
}

// followLoop is the replica-side persistent connection task (spec.md
// §4.10 "Follower"): connect with capped exponential backoff, handshake,
// resync, then stream and apply commands until the connection drops or
// ctx is cancelled, at which point it reconnects from the top.
func (r *State) followLoop(ctx context.Context, host, port string) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.followOnce(ctx, host, port); err != nil && r.logger != nil {
			r.logger.Warn("replication link to primary failed", zap.String("host", host), zap.String("port", port), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (r *State) followOnce(ctx context.Context, host, port string) error {
	addr := net.JoinHostPort(host, port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial primary: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	br := bufio.NewReader(conn)

	if err := sendCommand(conn, "PING"); err != nil {
		return err
	}
	if _, err := readLine(br); err != nil {
		return fmt.Errorf("read ping reply: %w", err)
	}

	myPort := strconv.Itoa(r.cfg.Port)
	if err := sendCommand(conn, "REPLCONF", "listening-port", myPort); err != nil {
		return err
	}
	if _, err := readLine(br); err != nil {
		return err
	}
	if err := sendCommand(conn, "REPLCONF", "capa", "psync2"); err != nil {
		return err
	}
	if _, err := readLine(br); err != nil {
		return err
	}

	r.mu.RLock()
	wantID, wantOff := r.replID, r.offset
	r.mu.RUnlock()
	if wantID == "" {
		wantID = "?"
		wantOff = -1
	}
	if err := sendCommand(conn, "PSYNC", wantID, strconv.FormatInt(wantOff, 10)); err != nil {
		return err
	}

	line, err := readLine(br)
	if err != nil {
		return fmt.Errorf("read psync reply: %w", err)
	}

	switch {
	case strings.HasPrefix(line, "+FULLRESYNC"):
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			r.mu.Lock()
			r.replID = fields[1]
			r.mu.Unlock()
		}
		lenLine, err := readLine(br)
		if err != nil {
			return fmt.Errorf("read bulk header: %w", err)
		}
		if !strings.HasPrefix(lenLine, "$") {
			return fmt.Errorf("expected bulk snapshot header, got %q", lenLine)
		}
		n, err := strconv.Atoi(strings.TrimSpace(lenLine[1:]))
		if err != nil || n < 0 {
			return fmt.Errorf("bad snapshot length %q", lenLine)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return fmt.Errorf("read snapshot body: %w", err)
		}
		dbs, err := persistence.LoadSnapshotFromBytes(body, r.store.NumDatabases())
		if err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		r.store.Lock()
		r.store.Replace(dbs)
		r.store.Unlock()
		r.mu.Lock()
		r.offset = wantOff
		if wantOff < 0 {
			r.offset = 0
		}
		r.linkStatus = "up"
		r.mu.Unlock()
		if r.logger != nil {
			r.logger.Info("full resync complete", zap.Int("bytes", n))
		}
	case strings.HasPrefix(line, "+CONTINUE"):
		r.mu.Lock()
		r.linkStatus = "up"
		r.mu.Unlock()
	default:
		return fmt.Errorf("unexpected psync reply: %q", line)
	}

	return r.streamAndApply(ctx, conn, br)
}

// streamAndApply parses ordinary RESP command arrays off the primary's
// connection and applies each one through Dispatch as a replication-link
// client, advancing the local offset by each array's exact serialized
// byte length (spec.md §4.10 point 5), and sends REPLCONF ACK once a
// second.
func (r *State) streamAndApply(ctx context.Context, conn net.Conn, br *bufio.Reader) error {
	ackTicker := time.NewTicker(time.Second)
	defer ackTicker.Stop()

	ackCh := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ackTicker.C:
				select {
				case ackCh <- struct{}{}:
				default:
				}
			}
		}
	}()

	parser := resp.NewParser()
	feedCh := make(chan []byte, 16)
	errCh := make(chan error, 1)

	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, err := br.Read(buf)
			if n > 0 {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				feedCh <- cp
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	dbIndex := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case <-ackCh:
			r.mu.RLock()
			off := r.offset
			r.mu.RUnlock()
			_ = sendCommand(conn, "REPLCONF", "ack", strconv.FormatInt(off, 10))
		case chunk := <-feedCh:
			parser.Feed(chunk)
			for {
				before := parser.Buffered()
				v, ok, err := parser.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				consumed := before - parser.Buffered()
				args, shaped := v.ToArgs()
				if shaped && len(args) > 0 {
					name := strings.ToUpper(string(args[0]))
					if name == "SELECT" && len(args) >= 2 {
						if n, err := strconv.Atoi(string(args[1])); err == nil {
							dbIndex = n
						}
					} else if r.dispatch != nil {
						c := &client.State{IsReplicationLink: true, Authenticated: true, DBIndex: dbIndex}
						r.dispatch(c, args)
					}
				}
				r.mu.Lock()
				r.offset += int64(consumed)
				r.mu.Unlock()
			}
		}
	}
}

func sendCommand(w io.Writer, args ...string) error {
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	_, err := w.Write(resp.EncodeCommand(raw))
	return err
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
