package server

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"petbattle/protocol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testAddr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("192.168.1.20"), port)
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t).Sugar(), nil)
	reg.Register("p1", "Alice", "Fluffy", testAddr(8889))
	reg.UpdatePosition("p1", protocol.Vec2{10, 20})
	reg.Register("p1", "Alice2", "Rex", testAddr(9000))

	if reg.Len() != 1 {
		t.Fatalf("expected 1 player after re-register, got %d", reg.Len())
	}
	p, ok := reg.Get("p1")
	if !ok {
		t.Fatalf("expected p1 to be registered")
	}
	if p.Name != "Alice2" || p.PetName != "Rex" || p.Addr != testAddr(9000) {
		t.Fatalf("expected overwritten entry, got %+v", p)
	}
	if p.Position != (protocol.Vec2{}) {
		t.Fatalf("expected position reset on re-register, got %v", p.Position)
	}
	if p.Health != MaxHealth {
		t.Fatalf("expected health %d, got %d", MaxHealth, p.Health)
	}
}

func TestRegistryUnknownIDsAreNoops(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t).Sugar(), nil)
	if reg.Touch("ghost") {
		t.Fatalf("expected touch of unknown id to report false")
	}
	if reg.UpdatePosition("ghost", protocol.Vec2{1, 1}) {
		t.Fatalf("expected position update of unknown id to report false")
	}
	if reg.Remove("ghost") {
		t.Fatalf("expected remove of unknown id to report false")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestRegistryRemoveExpired(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(zaptest.NewLogger(t).Sugar(), clock.Now)
	reg.Register("old", "Old", "Pet", testAddr(1))
	clock.Advance(6 * time.Second)
	reg.Register("fresh", "Fresh", "Pet", testAddr(2))
	clock.Advance(5 * time.Second)

	expired := reg.RemoveExpired(10 * time.Second)
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("expected only 'old' to expire, got %+v", expired)
	}
	if _, ok := reg.Get("fresh"); !ok {
		t.Fatalf("expected 'fresh' to survive")
	}
	if again := reg.RemoveExpired(10 * time.Second); len(again) != 0 {
		t.Fatalf("expected no second eviction, got %+v", again)
	}
}

func TestRegistryTouchKeepsAlive(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(zaptest.NewLogger(t).Sugar(), clock.Now)
	reg.Register("p1", "A", "Pet", testAddr(1))
	for i := 0; i < 5; i++ {
		clock.Advance(5 * time.Second)
		reg.Touch("p1")
		if got := reg.RemoveExpired(10 * time.Second); len(got) != 0 {
			t.Fatalf("expected touched player to stay, evicted %+v", got)
		}
	}
}

func TestRegistrySnapshotSorted(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t).Sugar(), nil)
	for _, id := range []string{"c", "a", "b"} {
		reg.Register(id, id, "Pet", testAddr(1))
	}
	snap := reg.Snapshot()
	if len(snap) != 3 || snap[0].ID != "a" || snap[1].ID != "b" || snap[2].ID != "c" {
		t.Fatalf("expected sorted snapshot, got %+v", snap)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t).Sugar(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				reg.Register(id, "n", "p", testAddr(uint16(n+1)))
				reg.Touch(id)
				reg.UpdatePosition(id, protocol.Vec2{float64(j), 0})
				_ = reg.Snapshot()
				reg.RemoveExpired(time.Hour)
			}
		}(i)
	}
	wg.Wait()
	if reg.Len() != 8 {
		t.Fatalf("expected 8 players, got %d", reg.Len())
	}
}
