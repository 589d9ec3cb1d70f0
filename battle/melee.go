package battle

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"petbattle/protocol"
)

const (
	MeleeStep          = 20.0
	MeleeJumpHeight    = 60.0
	MeleeHitRange      = 50.0
	MeleeKnockback     = 30.0
	MeleeInvincibility = 500 * time.Millisecond
	MeleeDamage        = 20
	MeleeCritDamage    = 40
	MeleeCritChance    = 0.1
)

// Direction 近战移动方向
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
	DirJump
)

// ParseDirection 解析 "up"/"down"/"left"/"right"/"jump"
func ParseDirection(s string) Direction {
	switch s {
	case "up":
		return DirUp
	case "down":
		return DirDown
	case "left":
		return DirLeft
	case "right":
		return DirRight
	case "jump":
		return DirJump
	default:
		return DirNone
	}
}

// MeleeDuel 近战对决的本地状态：双方近战血量、受击无敌窗口与本方位置
type MeleeDuel struct {
	mu              sync.Mutex
	pos             protocol.Vec2
	health          int
	opponentHealth  int
	invincibleUntil time.Time
	rng             *rand.Rand
}

// NewMeleeDuel rng 为空时使用按时间播种的随机源
func NewMeleeDuel(start protocol.Vec2, rng *rand.Rand) *MeleeDuel {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &MeleeDuel{
		pos:            start,
		health:         MaxHealth,
		opponentHealth: MaxHealth,
		rng:            rng,
	}
}

// Move 按方向移动一步并返回新位置
func (d *MeleeDuel) Move(dir Direction) protocol.Vec2 {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch dir {
	case DirUp:
		d.pos[1] -= MeleeStep
	case DirDown:
		d.pos[1] += MeleeStep
	case DirLeft:
		d.pos[0] -= MeleeStep
	case DirRight:
		d.pos[0] += MeleeStep
	case DirJump:
		d.pos[1] -= MeleeJumpHeight
	}
	return d.pos
}

// MoveTo 直接设置位置
func (d *MeleeDuel) MoveTo(pos protocol.Vec2) {
	d.mu.Lock()
	d.pos = pos
	d.mu.Unlock()
}

func (d *MeleeDuel) Position() protocol.Vec2 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

// Roll 掷出一次近战伤害：10% 概率暴击
func (d *MeleeDuel) Roll() (damage int, crit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rng.Float64() < MeleeCritChance {
		return MeleeCritDamage, true
	}
	return MeleeDamage, false
}

// ResolveIncoming 判定对方出招是否命中本方。命中则扣血、进入无敌窗口并被击退。
func (d *MeleeDuel) ResolveIncoming(attackerPos protocol.Vec2, damage int, now time.Time) (hit bool, health int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dx := d.pos[0] - attackerPos[0]
	dy := d.pos[1] - attackerPos[1]
	dist := math.Hypot(dx, dy)
	if dist > MeleeHitRange || now.Before(d.invincibleUntil) {
		return false, d.health
	}
	d.health = clampHealth(d.health - damage)
	d.invincibleUntil = now.Add(MeleeInvincibility)
	if dist == 0 {
		dx, dy, dist = 1, 0, 1
	}
	d.pos[0] += math.Trunc(dx / dist * MeleeKnockback)
	d.pos[1] += math.Trunc(dy / dist * MeleeKnockback)
	return true, d.health
}

// RecordHit 对方回报被命中，扣减对方近战血量
func (d *MeleeDuel) RecordHit(damage int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opponentHealth = clampHealth(d.opponentHealth - damage)
	return d.opponentHealth
}

func (d *MeleeDuel) Health() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.health
}

func (d *MeleeDuel) OpponentHealth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opponentHealth
}

// Reset 重置双方血量与无敌状态
func (d *MeleeDuel) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = MaxHealth
	d.opponentHealth = MaxHealth
	d.invincibleUntil = time.Time{}
}
