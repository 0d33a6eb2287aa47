package ws

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// stubChannel records enqueued events in place of a live websocket.
type stubChannel struct {
	mu       sync.Mutex
	events   []Event
	replaced bool
	full     bool
}

func (c *stubChannel) Enqueue(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *stubChannel) CloseReplaced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaced = true
}

func (c *stubChannel) recorded() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestConnectBroadcastsPresenceExcludingSelf(t *testing.T) {
	r := newTestRegistry()

	alice := &stubChannel{}
	bob := &stubChannel{}

	r.Connect("alice", alice)
	r.Connect("bob", bob)

	// alice hears about bob joining
	events := alice.recorded()
	if len(events) != 1 {
		t.Fatalf("expected 1 event for alice, got %d", len(events))
	}
	if events[0].Type != "presence" || events[0].User != "bob" || events[0].Status != "online" {
		t.Fatalf("unexpected event: %+v", events[0])
	}

	// bob never hears about his own join
	for _, ev := range bob.recorded() {
		if ev.User == "bob" {
			t.Fatalf("bob received his own presence notice: %+v", ev)
		}
	}
}

func TestSendToAbsentIdentity(t *testing.T) {
	r := newTestRegistry()

	if r.SendTo("ghost", ErrorEvent(ErrKindOffline, "x")) {
		t.Fatal("expected SendTo to report absent identity")
	}
}

func TestSendToConnectedIdentity(t *testing.T) {
	r := newTestRegistry()

	alice := &stubChannel{}
	r.Connect("alice", alice)

	ev := MessageEvent("bob", "Bob", "", "hi", 42)
	if !r.SendTo("alice", ev) {
		t.Fatal("expected delivery to connected identity")
	}

	events := alice.recorded()
	if len(events) != 1 || events[0].Message != "hi" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestSendToFullBufferStillReportsConnected(t *testing.T) {
	r := newTestRegistry()

	alice := &stubChannel{full: true}
	r.Connect("alice", alice)

	// A clogged channel is still a registered one; only absence means
	// offline.
	if !r.SendTo("alice", SentEvent("bob", "hi", 1)) {
		t.Fatal("expected connected identity to report delivered")
	}
}

func TestDisconnectBroadcastsDeparture(t *testing.T) {
	r := newTestRegistry()

	alice := &stubChannel{}
	bob := &stubChannel{}
	r.Connect("alice", alice)
	r.Connect("bob", bob)

	r.Disconnect("bob", bob)

	if r.Online("bob") {
		t.Fatal("bob still registered after disconnect")
	}

	var sawOffline bool
	for _, ev := range alice.recorded() {
		if ev.Type == "presence" && ev.User == "bob" && ev.Status == "offline" {
			sawOffline = true
		}
	}
	if !sawOffline {
		t.Fatal("alice did not receive bob's departure notice")
	}

	// bob is already removed; his own channel must not see the notice
	for _, ev := range bob.recorded() {
		if ev.Status == "offline" && ev.User == "bob" {
			t.Fatalf("departed channel received its own departure: %+v", ev)
		}
	}
}

func TestDisconnectAbsentIsNoOp(t *testing.T) {
	r := newTestRegistry()

	alice := &stubChannel{}
	r.Connect("alice", alice)

	before := len(alice.recorded())
	r.Disconnect("ghost", &stubChannel{})
	if got := len(alice.recorded()); got != before {
		t.Fatalf("no-op disconnect broadcast something: %d events", got)
	}
}

func TestReconnectClosesStaleChannel(t *testing.T) {
	r := newTestRegistry()

	first := &stubChannel{}
	second := &stubChannel{}

	r.Connect("alice", first)
	r.Connect("alice", second)

	first.mu.Lock()
	replaced := first.replaced
	first.mu.Unlock()
	if !replaced {
		t.Fatal("stale channel was not closed on reconnect")
	}

	// Deliveries go to the new channel.
	r.SendTo("alice", SentEvent("bob", "hi", 1))
	if len(second.recorded()) == 0 {
		t.Fatal("replacement channel received nothing")
	}

	// The stale channel's deferred disconnect must not evict the
	// replacement.
	r.Disconnect("alice", first)
	if !r.Online("alice") {
		t.Fatal("stale disconnect evicted the replacement session")
	}
}

func TestBroadcastHonorsExcludeSet(t *testing.T) {
	r := newTestRegistry()

	channels := map[string]*stubChannel{
		"alice": {},
		"bob":   {},
		"carol": {},
	}
	for identity, ch := range channels {
		r.Connect(identity, ch)
	}
	for _, ch := range channels {
		ch.mu.Lock()
		ch.events = nil
		ch.mu.Unlock()
	}

	r.Broadcast(PresenceEvent("alice", "online", 1), map[string]bool{"alice": true, "bob": true})

	if len(channels["alice"].recorded()) != 0 {
		t.Fatal("excluded identity alice received broadcast")
	}
	if len(channels["bob"].recorded()) != 0 {
		t.Fatal("excluded identity bob received broadcast")
	}
	if len(channels["carol"].recorded()) != 1 {
		t.Fatalf("carol expected 1 event, got %d", len(channels["carol"].recorded()))
	}
}

func TestConcurrentConnectDisconnectDuringBroadcast(t *testing.T) {
	r := newTestRegistry()

	for i := 0; i < 8; i++ {
		r.Connect(string(rune('a'+i)), &stubChannel{})
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		identity := string(rune('p' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := &stubChannel{}
			r.Connect(identity, ch)
			r.Broadcast(PresenceEvent(identity, "online", 1), map[string]bool{identity: true})
			r.Disconnect(identity, ch)
		}()
	}
	wg.Wait()

	if r.Count() != 8 {
		t.Fatalf("expected 8 remaining channels, got %d", r.Count())
	}
}
