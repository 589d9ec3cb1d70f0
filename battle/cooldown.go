package battle

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// MeleeKind 近战出招在冷却表中的键
const MeleeKind AttackKind = "melee"

// DefaultMeleeCooldown 近战出招冷却
const DefaultMeleeCooldown = time.Second

// ErrUnknownAttack 规则表中不存在的攻击种类
var ErrUnknownAttack = errors.New("unknown attack kind")

// CooldownError 冷却未结束时的拒绝结果
type CooldownError struct {
	Kind      AttackKind
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s cooling down, %.1fs remaining", e.Kind, e.Remaining.Seconds())
}

// CooldownLedger 本地出招冷却表：ready → cooling_down → ready。
// 只约束本端，服务端不复核。
type CooldownLedger struct {
	mu       sync.Mutex
	cooldown map[AttackKind]time.Duration
	lastUsed map[AttackKind]time.Time
}

// NewCooldownLedger 由规则表与近战冷却构造冷却表
func NewCooldownLedger(rules RuleTable, melee time.Duration) *CooldownLedger {
	l := &CooldownLedger{
		cooldown: make(map[AttackKind]time.Duration, len(rules)+1),
		lastUsed: make(map[AttackKind]time.Time, len(rules)+1),
	}
	for kind, r := range rules {
		l.cooldown[kind] = r.Cooldown
	}
	l.cooldown[MeleeKind] = melee
	return l
}

// TryUse 冷却结束则记录本次使用并返回 nil；否则返回 *CooldownError
func (l *CooldownLedger) TryUse(kind AttackKind, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cd, ok := l.cooldown[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAttack, kind)
	}
	if rem := l.remainingLocked(kind, cd, now); rem > 0 {
		return &CooldownError{Kind: kind, Remaining: rem}
	}
	l.lastUsed[kind] = now
	return nil
}

// Remaining 剩余冷却时间，就绪或未知种类返回 0
func (l *CooldownLedger) Remaining(kind AttackKind, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	cd, ok := l.cooldown[kind]
	if !ok {
		return 0
	}
	return l.remainingLocked(kind, cd, now)
}

// Ready 是否可以出招
func (l *CooldownLedger) Ready(kind AttackKind, now time.Time) bool {
	return l.Remaining(kind, now) == 0
}

// Reset 清空全部冷却（重新开局）
func (l *CooldownLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.lastUsed)
}

func (l *CooldownLedger) remainingLocked(kind AttackKind, cd time.Duration, now time.Time) time.Duration {
	last, used := l.lastUsed[kind]
	if !used {
		return 0
	}
	if rem := cd - now.Sub(last); rem > 0 {
		return rem
	}
	return 0
}
