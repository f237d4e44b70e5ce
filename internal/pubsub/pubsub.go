// Package pubsub implements channel/pattern subscription tracking and
// message fan-out (C5), grounded on original_source/src/pubsub.rs.
package pubsub

import (
	"sync"

	"github.com/cedis/server/internal/glob"
	"github.com/cedis/server/internal/resp"
)

// Sender delivers a pushed pub/sub message to one client's connection
// task. Push implementations must never block indefinitely; the server's
// per-connection sender uses a buffered channel drained by the connection's
// write loop (spec.md §5: delivery fan-out must not hold the registry lock
// across network I/O).
type Sender interface {
	Push(v resp.Value)
	ID() uint64
}

// Registry tracks channel and pattern subscriptions and the reverse
// indexes needed to clean up on disconnect, per client-channel-list/
// pattern-list.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[uint64]Sender
	patterns map[string]map[uint64]Sender
	senders  map[uint64]Sender
	// reverse indexes: what is this client subscribed to
	clientChannels map[uint64]map[string]bool
	clientPatterns map[uint64]map[string]bool
}

func New() *Registry {
	return &Registry{
		channels:       make(map[string]map[uint64]Sender),
		patterns:       make(map[string]map[uint64]Sender),
		senders:        make(map[uint64]Sender),
		clientChannels: make(map[uint64]map[string]bool),
		clientPatterns: make(map[uint64]map[string]bool),
	}
}

// Subscribe adds client s to channel, returning this client's new total
// subscription count (channels + patterns).
func (r *Registry) Subscribe(s Sender, channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := s.ID()
	r.senders[id] = s
	if r.channels[channel] == nil {
		r.channels[channel] = make(map[uint64]Sender)
	}
	r.channels[channel][id] = s
	if r.clientChannels[id] == nil {
		r.clientChannels[id] = make(map[string]bool)
	}
	r.clientChannels[id][channel] = true
	return r.countLocked(id)
}

func (r *Registry) Unsubscribe(s Sender, channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := s.ID()
	if m := r.channels[channel]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(r.channels, channel)
		}
	}
	if cc := r.clientChannels[id]; cc != nil {
		delete(cc, channel)
	}
	return r.countLocked(id)
}

func (r *Registry) PSubscribe(s Sender, pattern string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := s.ID()
	r.senders[id] = s
	if r.patterns[pattern] == nil {
		r.patterns[pattern] = make(map[uint64]Sender)
	}
	r.patterns[pattern][id] = s
	if r.clientPatterns[id] == nil {
		r.clientPatterns[id] = make(map[string]bool)
	}
	r.clientPatterns[id][pattern] = true
	return r.countLocked(id)
}

func (r *Registry) PUnsubscribe(s Sender, pattern string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := s.ID()
	if m := r.patterns[pattern]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(r.patterns, pattern)
		}
	}
	if cp := r.clientPatterns[id]; cp != nil {
		delete(cp, pattern)
	}
	return r.countLocked(id)
}

func (r *Registry) countLocked(id uint64) int {
	return len(r.clientChannels[id]) + len(r.clientPatterns[id])
}

// SubscriptionCount returns s's current total subscription count.
func (r *Registry) SubscriptionCount(id uint64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked(id)
}

// UnsubscribeAll removes every subscription for id, used on disconnect.
func (r *Registry) UnsubscribeAll(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.clientChannels[id] {
		if m := r.channels[ch]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(r.channels, ch)
			}
		}
	}
	for pat := range r.clientPatterns[id] {
		if m := r.patterns[pat]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(r.patterns, pat)
			}
		}
	}
	delete(r.clientChannels, id)
	delete(r.clientPatterns, id)
	delete(r.senders, id)
}

// Publish delivers a message array to every direct subscriber of channel
// and a pmessage array to every pattern subscriber whose pattern matches
// channel, returning the number of deliveries made.
func (r *Registry) Publish(channel string, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	if subs, ok := r.channels[channel]; ok {
		msg := resp.Array([]resp.Value{
			resp.BulkString("message"),
			resp.BulkString(channel),
			resp.Bulk(payload),
		})
		for _, s := range subs {
			s.Push(msg)
			count++
		}
	}
	for pat, subs := range r.patterns {
		if !glob.MatchString(pat, channel) {
			continue
		}
		msg := resp.Array([]resp.Value{
			resp.BulkString("pmessage"),
			resp.BulkString(pat),
			resp.BulkString(channel),
			resp.Bulk(payload),
		})
		for _, s := range subs {
			s.Push(msg)
			count++
		}
	}
	return count
}

// ChannelsMatching returns active channels with at least one subscriber,
// optionally filtered by a glob pattern (PUBSUB CHANNELS [pattern]).
func (r *Registry) ChannelsMatching(pattern []byte) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for ch := range r.channels {
		if pattern != nil && !glob.Match(pattern, []byte(ch)) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// NumSub returns the direct-subscriber count for each requested channel.
func (r *Registry) NumSub(channels []string) map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(channels))
	for _, ch := range channels {
		out[ch] = len(r.channels[ch])
	}
	return out
}

// NumPat returns the total distinct pattern count across all clients.
func (r *Registry) NumPat() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}

func (r *Registry) ClientChannelList(id uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clientChannels[id]))
	for ch := range r.clientChannels[id] {
		out = append(out, ch)
	}
	return out
}

func (r *Registry) ClientPatternList(id uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clientPatterns[id]))
	for p := range r.clientPatterns[id] {
		out = append(out, p)
	}
	return out
}
