package server

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"petbattle/protocol"
)

func TestReaperEvictsSilentPlayerOnce(t *testing.T) {
	f := newDispatchFixture(t)
	f.join("a", 9001)
	f.join("b", 9002)
	f.out.take()

	r := NewReaper(f.reg, f.disp, 10*time.Second, time.Second, zaptest.NewLogger(t).Sugar())

	f.clock.Advance(6 * time.Second)
	f.disp.Dispatch(protocol.New("b", protocol.HeartbeatData{}), testAddr(9002))
	f.clock.Advance(5 * time.Second)

	evicted := r.Sweep()
	if len(evicted) != 1 || evicted[0].ID != "a" {
		t.Fatalf("expected a evicted, got %+v", evicted)
	}
	if again := r.Sweep(); len(again) != 0 {
		t.Fatalf("expected nothing on second sweep, got %+v", again)
	}

	sent := f.out.take()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one leave datagram, got %d", len(sent))
	}
	if sent[0].to.Port() != 9002 || sent[0].env.Type != protocol.TypeLeave || sent[0].env.PlayerID != "a" {
		t.Fatalf("expected leave(a) sent to b, got %+v", sent[0])
	}
	if f.obs.leftCount() != 1 {
		t.Fatalf("expected one PlayerLeft, got %d", f.obs.leftCount())
	}
	if f.metrics.Evictions != 1 {
		t.Fatalf("expected 1 eviction counted, got %d", f.metrics.Evictions)
	}
}

func TestReaperExplicitLeaveThenSweep(t *testing.T) {
	f := newDispatchFixture(t)
	f.join("a", 9001)
	f.join("b", 9002)
	f.out.take()
	r := NewReaper(f.reg, f.disp, 10*time.Second, time.Second, zaptest.NewLogger(t).Sugar())

	f.disp.Dispatch(protocol.New("a", protocol.LeaveData{}), testAddr(9001))
	f.clock.Advance(time.Minute)
	r.Sweep()

	var leavesForA int
	for _, s := range f.out.take() {
		if s.env.Type == protocol.TypeLeave && s.env.PlayerID == "a" {
			leavesForA++
		}
	}
	if leavesForA != 1 {
		t.Fatalf("expected one leave for a, got %d", leavesForA)
	}
}

func TestReaperSetWindow(t *testing.T) {
	f := newDispatchFixture(t)
	r := NewReaper(f.reg, f.disp, 10*time.Second, time.Second, zaptest.NewLogger(t).Sugar())

	r.SetWindow(-time.Second)
	if r.Window() != 10*time.Second {
		t.Fatalf("expected non-positive window ignored, got %v", r.Window())
	}
	r.SetWindow(3 * time.Second)
	f.join("a", 9001)
	f.clock.Advance(4 * time.Second)
	if evicted := r.Sweep(); len(evicted) != 1 {
		t.Fatalf("expected eviction with shortened window, got %+v", evicted)
	}
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	f := newDispatchFixture(t)
	r := NewReaper(f.reg, f.disp, 10*time.Second, 5*time.Millisecond, zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Run to return after cancel")
	}
}

func TestReaperSetIntervalResetsRunningTicker(t *testing.T) {
	f := newDispatchFixture(t)
	r := NewReaper(f.reg, f.disp, 10*time.Second, time.Hour, zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	f.join("a", 9001)
	f.clock.Advance(11 * time.Second)

	r.SetInterval(0)
	if r.Interval() != time.Hour {
		t.Fatalf("expected non-positive interval ignored, got %v", r.Interval())
	}
	r.SetInterval(5 * time.Millisecond)
	if r.Interval() != 5*time.Millisecond {
		t.Fatalf("expected interval updated, got %v", r.Interval())
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.obs.leftCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected running reaper to sweep on the new interval")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
