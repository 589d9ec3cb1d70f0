package server

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"petbattle/protocol"
)

// Registry 服务端权威玩家表。所有操作都是全函数：
// 未知 id 只记日志，不报错（玩家可能刚被踢出，消息乱序到达）。
type Registry struct {
	mu      sync.RWMutex
	players map[string]*Player
	now     func() time.Time
	log     *zap.SugaredLogger
}

// NewRegistry now 为空时使用 time.Now
func NewRegistry(log *zap.SugaredLogger, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		players: make(map[string]*Player),
		now:     now,
		log:     log,
	}
}

// Register 插入或覆盖玩家条目，并刷新 last_seen
func (r *Registry) Register(id, name, petName string, addr netip.AddrPort) Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &Player{
		ID:       id,
		Name:     name,
		PetName:  petName,
		Addr:     addr,
		Health:   clampHealth(MaxHealth),
		LastSeen: r.now(),
	}
	if old, ok := r.players[id]; ok {
		r.log.Debugw("player re-registered", "player", id, "old_name", old.Name, "name", name)
	}
	r.players[id] = p
	return *p
}

// Touch 刷新 last_seen；未知 id 返回 false
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		r.log.Debugw("touch for unknown player", "player", id)
		return false
	}
	p.LastSeen = r.now()
	return true
}

// UpdatePosition 更新位置（同时刷新 last_seen）；未知 id 返回 false
func (r *Registry) UpdatePosition(id string, pos protocol.Vec2) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		r.log.Infow("position update for unknown player", "player", id)
		return false
	}
	p.Position = pos
	p.LastSeen = r.now()
	return true
}

// Remove 移除玩家，返回是否真的发生了移除
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[id]; !ok {
		r.log.Debugw("remove for unknown player", "player", id)
		return false
	}
	delete(r.players, id)
	return true
}

// RemoveExpired 在同一把锁内检查并移除超过 window 未出现的玩家
func (r *Registry) RemoveExpired(window time.Duration) []Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var expired []Player
	for id, p := range r.players {
		if now.Sub(p.LastSeen) > window {
			expired = append(expired, *p)
			delete(r.players, id)
		}
	}
	sortPlayers(expired)
	return expired
}

// Get 单个玩家的副本
func (r *Registry) Get(id string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Snapshot 返回按 id 排序的副本，可在锁外安全遍历
func (r *Registry) Snapshot() []Player {
	r.mu.RLock()
	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	r.mu.RUnlock()
	sortPlayers(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

func sortPlayers(ps []Player) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
