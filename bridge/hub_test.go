package bridge

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"petbattle/battle"
	"petbattle/protocol"
)

type fakeCommander struct {
	mu        sync.Mutex
	moves     []protocol.Vec2
	attacks   []string
	dirs      []battle.Direction
	swings    int
	attackErr error
}

func (f *fakeCommander) Move(pos protocol.Vec2) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, pos)
	return nil
}

func (f *fakeCommander) Attack(target string, kind battle.AttackKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attacks = append(f.attacks, target+":"+string(kind))
	return f.attackErr
}

func (f *fakeCommander) MeleeMove(dir battle.Direction) (protocol.Vec2, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs = append(f.dirs, dir)
	return protocol.Vec2{}, nil
}

func (f *fakeCommander) MeleeAttack() (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swings++
	return battle.MeleeDamage, false, nil
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Clients() == 0 {
		t.Fatalf("expected hub to register the connection")
	}
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestHubStreamsEvents(t *testing.T) {
	h := NewHub(nil, zap.NewNop().Sugar())
	t.Cleanup(h.Close)
	ws := dialHub(t, h)

	h.PlayerJoined("p2", "Bob")
	ev := readEvent(t, ws)
	if ev.Event != EventPlayerJoined || ev.PlayerID != "p2" || ev.Name != "Bob" {
		t.Fatalf("expected player_joined for Bob, got %+v", ev)
	}

	h.AttackReceived("p2", "p1", protocol.AttackData{TargetID: "p1", AttackType: "arrow", Damage: 35})
	ev = readEvent(t, ws)
	if ev.Event != EventAttackReceived || ev.Damage != 35 || ev.AttackData == nil || ev.AttackData.AttackType != "arrow" {
		t.Fatalf("expected attack_received, got %+v", ev)
	}

	h.HealthChanged(0)
	ev = readEvent(t, ws)
	if ev.Event != EventHealthChanged || ev.Health == nil || *ev.Health != 0 {
		t.Fatalf("expected health 0 to survive encoding, got %+v", ev)
	}

	h.EffectApplied(battle.StatusEffect{Kind: battle.Burn, Remaining: 3 * time.Second, TickDamage: 5, SlowFactor: 1})
	ev = readEvent(t, ws)
	if ev.Event != EventEffectApplied || ev.Effect != "burn" || ev.Remaining != 3 {
		t.Fatalf("expected burn applied, got %+v", ev)
	}

	h.ServerDisconnected(errors.New("socket closed"))
	ev = readEvent(t, ws)
	if ev.Event != EventServerDisconnected || ev.Error != "socket closed" {
		t.Fatalf("expected server_disconnected, got %+v", ev)
	}
}

func TestHubForwardsCommands(t *testing.T) {
	cmd := &fakeCommander{}
	h := NewHub(cmd, zap.NewNop().Sugar())
	t.Cleanup(h.Close)
	ws := dialHub(t, h)

	for _, msg := range []string{
		`{"type":"move","position":[3,4]}`,
		`{"type":"attack","target":"p2","attack":"Fireball"}`,
		`{"type":"melee_move","command":"jump"}`,
		`{"type":"melee_attack"}`,
		`not json`,
	} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cmd.mu.Lock()
		done := cmd.swings == 1
		cmd.mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cmd.mu.Lock()
	defer cmd.mu.Unlock()
	if len(cmd.moves) != 1 || cmd.moves[0] != (protocol.Vec2{3, 4}) {
		t.Fatalf("expected one move to (3,4), got %v", cmd.moves)
	}
	if len(cmd.attacks) != 1 || cmd.attacks[0] != "p2:fireball" {
		t.Fatalf("expected fireball at p2, got %v", cmd.attacks)
	}
	if len(cmd.dirs) != 1 || cmd.dirs[0] != battle.DirJump {
		t.Fatalf("expected jump, got %v", cmd.dirs)
	}
	if cmd.swings != 1 {
		t.Fatalf("expected one melee swing, got %d", cmd.swings)
	}
}

func TestHubReportsCooldownRejection(t *testing.T) {
	cmd := &fakeCommander{attackErr: &battle.CooldownError{Kind: battle.Arrow, Remaining: 1500 * time.Millisecond}}
	h := NewHub(cmd, zap.NewNop().Sugar())
	t.Cleanup(h.Close)
	ws := dialHub(t, h)

	if err := ws.WriteJSON(Command{Type: "attack", Target: "p2", Attack: "arrow", Seq: 7}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readEvent(t, ws)
	if ev.Event != EventRejected || ev.Attack != "arrow" || ev.Remaining != 1.5 || ev.Seq != 7 {
		t.Fatalf("expected rejection with 1.5s remaining, got %+v", ev)
	}

	if err := ws.WriteJSON(Command{Type: "dance", Seq: 8}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev = readEvent(t, ws)
	if ev.Event != EventError || ev.Seq != 8 {
		t.Fatalf("expected error event for unknown command, got %+v", ev)
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	h := NewHub(nil, zap.NewNop().Sugar())
	ws := dialHub(t, h)
	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Clients() != 0 {
		t.Fatalf("expected closed client removed, got %d", h.Clients())
	}
	h.PlayerLeft("p2")
}
