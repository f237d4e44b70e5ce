package command

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cedis/server/internal/client"
)

// MonitorHub fans every dispatched command out to clients in MONITOR mode,
// grounded on original_source/src/connection.rs's MonitorSender (a
// tokio::sync::broadcast channel). Go's equivalent here is a small
// registry of per-subscriber buffered channels rather than a single
// broadcast channel type, following the same fan-out shape
// internal/session/hub.go in the teacher pack uses for its broadcast
// queue: when a subscriber's buffer is full the line is dropped for that
// subscriber rather than stalling the feeder; the subscriber stays
// registered.
type MonitorHub struct {
	mu   sync.Mutex
	subs map[uint64]chan string
}

func NewMonitorHub() *MonitorHub {
	return &MonitorHub{subs: make(map[uint64]chan string)}
}

func (h *MonitorHub) Subscribe(id uint64) <-chan string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan string, 256)
	h.subs[id] = ch
	return ch
}

func (h *MonitorHub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// Feed renders one dispatched command and delivers it to every monitoring
// client except the issuer itself (real Redis excludes administrative
// commands from some clients, but spec.md does not require that nuance).
func (h *MonitorHub) Feed(c *client.State, args [][]byte) {
	h.mu.Lock()
	if len(h.subs) == 0 {
		h.mu.Unlock()
		return
	}
	line := renderMonitorLine(c, args)
	for id, ch := range h.subs {
		if id == c.ID && c.InMonitor {
			continue
		}
		select {
		case ch <- line:
		default:
		}
	}
	h.mu.Unlock()
}

func renderMonitorLine(c *client.State, args [][]byte) string {
	var b strings.Builder
	ts := float64(time.Now().UnixNano()) / 1e9
	fmt.Fprintf(&b, "%s [%d %s]", strconv.FormatFloat(ts, 'f', 6, 64), c.DBIndex, c.Addr)
	for _, a := range args {
		b.WriteString(` "`)
		b.WriteString(strings.ReplaceAll(string(a), `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}
