package bridge

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"petbattle/battle"
	"petbattle/protocol"
)

// 事件名
const (
	EventPlayerJoined        = "player_joined"
	EventPlayerLeft          = "player_left"
	EventAttackReceived      = "attack_received"
	EventPlayerMoved         = "player_moved"
	EventServerDisconnected  = "server_disconnected"
	EventOpponentMeleeMove   = "opponent_melee_move"
	EventOpponentMeleeAttack = "opponent_melee_attack"
	EventMeleeHitFeedback    = "melee_hit_feedback"
	EventHealthChanged       = "health_changed"
	EventEffectApplied       = "effect_applied"
	EventEffectExpired       = "effect_expired"
	EventMeleeHealthChanged  = "melee_health_changed"
	EventRejected            = "rejected"
	EventError               = "error"
)

// Event 推送给 UI 的一条事件
type Event struct {
	Event          string               `json:"event"`
	PlayerID       string               `json:"player_id,omitempty"`
	Name           string               `json:"name,omitempty"`
	TargetID       string               `json:"target_id,omitempty"`
	Position       *protocol.Vec2       `json:"position,omitempty"`
	AttackData     *protocol.AttackData `json:"attack_data,omitempty"`
	Attack         string               `json:"attack,omitempty"`
	Damage         int                  `json:"damage,omitempty"`
	IsCrit         bool                 `json:"is_crit,omitempty"`
	Health         *int                 `json:"health,omitempty"`
	OpponentHealth *int                 `json:"opponent_health,omitempty"`
	Effect         string               `json:"effect,omitempty"`
	Remaining      float64              `json:"remaining,omitempty"`
	SlowFactor     float64              `json:"slow_factor,omitempty"`
	Error          string               `json:"error,omitempty"`
	Seq            int64                `json:"seq,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 仅监听本机回环地址，UI 来源不做限制
		return true
	},
}

// Hub 把对战事件广播给所有已连接的 UI，并把 UI 指令转交给 Commander。
// 同时满足 client.Observer、client.StatusObserver 与 server.Observer。
type Hub struct {
	mu      sync.RWMutex
	clients map[*ClientConn]struct{}
	cmd     Commander
	log     *zap.SugaredLogger
}

// NewHub cmd 为空时只推送事件，忽略 UI 指令
func NewHub(cmd Commander, log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[*ClientConn]struct{}),
		cmd:     cmd,
		log:     log.Named("bridge"),
	}
}

// SetCommander 在 Fighter 创建之后绑定
func (h *Hub) SetCommander(cmd Commander) {
	h.mu.Lock()
	h.cmd = cmd
	h.mu.Unlock()
}

// ServeHTTP WebSocket 接入
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := NewClientConn(ws)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("ui connected", "remote", r.RemoteAddr, "clients", n)

	go c.writePump()
	go func() {
		c.readPump(func(cmd Command) { h.handle(c, cmd) })
		h.remove(c)
	}()
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 断开所有 UI 连接
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*ClientConn]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.Close()
	}
}

func (h *Hub) remove(c *ClientConn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
	h.log.Debug("ui disconnected")
}

func (h *Hub) handle(c *ClientConn, cmd Command) {
	h.mu.RLock()
	commander := h.cmd
	h.mu.RUnlock()
	if commander == nil {
		return
	}
	if ev := execute(cmd, commander); ev != nil {
		if b, err := json.Marshal(ev); err == nil {
			c.Enqueue(b)
		}
	}
}

// Publish 编码一次后推送给所有 UI；慢连接丢弃事件
func (h *Hub) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Errorw("encode event failed", "event", ev.Event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.Enqueue(b) {
			h.log.Debugw("ui queue full, event dropped", "event", ev.Event)
		}
	}
}

func (h *Hub) PlayerJoined(id, name string) {
	h.Publish(Event{Event: EventPlayerJoined, PlayerID: id, Name: name})
}

func (h *Hub) PlayerLeft(id string) {
	h.Publish(Event{Event: EventPlayerLeft, PlayerID: id})
}

func (h *Hub) AttackReceived(attackerID, targetID string, data protocol.AttackData) {
	h.Publish(Event{Event: EventAttackReceived, PlayerID: attackerID, TargetID: targetID,
		Attack: data.AttackType, Damage: data.Damage, AttackData: &data})
}

func (h *Hub) PlayerMoved(id string, pos protocol.Vec2) {
	h.Publish(Event{Event: EventPlayerMoved, PlayerID: id, Position: &pos})
}

func (h *Hub) ServerDisconnected(err error) {
	ev := Event{Event: EventServerDisconnected}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Publish(ev)
}

func (h *Hub) OpponentMeleeMove(id string, pos protocol.Vec2) {
	h.Publish(Event{Event: EventOpponentMeleeMove, PlayerID: id, Position: &pos})
}

func (h *Hub) OpponentMeleeAttack(id string, data protocol.MeleeAttackData) {
	h.Publish(Event{Event: EventOpponentMeleeAttack, PlayerID: id, Position: &data.Pos,
		Damage: data.Damage, IsCrit: data.IsCrit})
}

func (h *Hub) MeleeHitFeedback(id string, data protocol.MeleeHitData) {
	h.Publish(Event{Event: EventMeleeHitFeedback, PlayerID: id, TargetID: data.TargetID,
		Position: &data.Pos, Damage: data.Damage, IsCrit: data.IsCrit})
}

func (h *Hub) HealthChanged(health int) {
	h.Publish(Event{Event: EventHealthChanged, Health: protocol.Ptr(health)})
}

func (h *Hub) EffectApplied(e battle.StatusEffect) {
	h.Publish(Event{Event: EventEffectApplied, Effect: string(e.Kind),
		Remaining: e.Remaining.Seconds(), Damage: e.TickDamage, SlowFactor: e.SlowFactor})
}

func (h *Hub) EffectExpired(kind battle.EffectKind) {
	h.Publish(Event{Event: EventEffectExpired, Effect: string(kind)})
}

func (h *Hub) MeleeHealthChanged(self, opponent int) {
	h.Publish(Event{Event: EventMeleeHealthChanged, Health: protocol.Ptr(self), OpponentHealth: protocol.Ptr(opponent)})
}
