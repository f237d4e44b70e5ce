package pubsub

import (
	"testing"

	"github.com/cedis/server/internal/resp"
)

type fakeSender struct {
	id       uint64
	received []resp.Value
}

func (f *fakeSender) Push(v resp.Value) { f.received = append(f.received, v) }
func (f *fakeSender) ID() uint64        { return f.id }

func TestPublishDeliversToChannelAndPatternSubscribers(t *testing.T) {
	r := New()
	direct := &fakeSender{id: 1}
	patterned := &fakeSender{id: 2}

	if n := r.Subscribe(direct, "ch1"); n != 1 {
		t.Fatalf("Subscribe count got %d", n)
	}
	if n := r.PSubscribe(patterned, "ch*"); n != 1 {
		t.Fatalf("PSubscribe count got %d", n)
	}

	n := r.Publish("ch1", []byte("hello"))
	if n != 2 {
		t.Fatalf("Publish delivery count got %d", n)
	}
	if len(direct.received) != 1 || string(direct.received[0].Array[2].Bulk) != "hello" {
		t.Fatalf("direct subscriber payload wrong: %+v", direct.received)
	}
	if len(patterned.received) != 1 || string(patterned.received[0].Array[0].Bulk) != "pmessage" {
		t.Fatalf("pattern subscriber payload wrong: %+v", patterned.received)
	}
}

func TestUnsubscribeAllRemovesBothIndexes(t *testing.T) {
	r := New()
	s := &fakeSender{id: 5}
	r.Subscribe(s, "a")
	r.PSubscribe(s, "b*")
	r.UnsubscribeAll(s.ID())

	if r.SubscriptionCount(s.ID()) != 0 {
		t.Fatalf("expected no subscriptions left")
	}
	if n := r.Publish("a", []byte("x")); n != 0 {
		t.Fatalf("expected no deliveries after disconnect, got %d", n)
	}
	if r.NumPat() != 0 {
		t.Fatalf("expected no patterns left, got %d", r.NumPat())
	}
}

func TestNumSubCountsOnlyListedChannels(t *testing.T) {
	r := New()
	r.Subscribe(&fakeSender{id: 1}, "a")
	r.Subscribe(&fakeSender{id: 2}, "a")
	r.Subscribe(&fakeSender{id: 3}, "b")

	counts := r.NumSub([]string{"a", "b", "missing"})
	if counts["a"] != 2 || counts["b"] != 1 || counts["missing"] != 0 {
		t.Fatalf("NumSub got %+v", counts)
	}
}
