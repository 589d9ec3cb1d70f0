package server

import (
	"net/netip"
	"time"

	"petbattle/protocol"
)

const (
	// MaxHealth 玩家生命值上限（也是初始值）
	MaxHealth = 100
	// DefaultClientPort 加入消息未携带端口时的回落值
	DefaultClientPort = 8889

	defaultPlayerName = "Unknown"
	defaultPetName    = "Pet"
)

// Player 会话中的玩家条目，由 Registry 独占维护
type Player struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	PetName  string         `json:"pet_name"`
	Addr     netip.AddrPort `json:"addr"`
	Health   int            `json:"health"`
	Position protocol.Vec2  `json:"position"`
	LastSeen time.Time      `json:"last_seen"`
}

func clampHealth(h int) int {
	if h < 0 {
		return 0
	}
	if h > MaxHealth {
		return MaxHealth
	}
	return h
}
