package battle

import (
	"sort"
	"sync"
	"time"

	"petbattle/protocol"
)

const (
	// MaxHealth 生命值上限，同时也是初始值
	MaxHealth = 100
	// StatusTickInterval 状态效果推进周期
	StatusTickInterval = 100 * time.Millisecond
	// damageFlushPeriod 持续伤害按整秒结算，避免出现小数生命值
	damageFlushPeriod = time.Second
)

// StatusEffect 本地玩家身上的一个计时状态
type StatusEffect struct {
	Kind       EffectKind
	Remaining  time.Duration
	TickDamage int
	SlowFactor float64
}

type activeEffect struct {
	StatusEffect
	accrued time.Duration // 尚未结算伤害的已流逝时间
}

// HitOutcome 一次受击的结算结果
type HitOutcome struct {
	Damage  int
	Effects []StatusEffect
	Health  int
}

// TickOutcome 一次推进的结算结果
type TickOutcome struct {
	Damage  int
	Expired []EffectKind
	Health  int
}

// StatusLedger 本地生命值与状态效果表。每种效果只占一个槽位，
// 重复施加会整体替换而非叠加。
type StatusLedger struct {
	mu      sync.Mutex
	health  int
	effects map[EffectKind]*activeEffect
}

func NewStatusLedger() *StatusLedger {
	return &StatusLedger{
		health:  MaxHealth,
		effects: make(map[EffectKind]*activeEffect),
	}
}

// EffectsFromAttack 从攻击负载中提取状态效果；只看效果字段，不按 attack_type 补默认值
func EffectsFromAttack(a protocol.AttackData) []Effect {
	var out []Effect
	if a.BurnDuration != nil {
		out = append(out, Effect{Kind: Burn, Duration: seconds(*a.BurnDuration), TickDamage: deref(a.BurnDamage), SlowFactor: 1.0})
	}
	if a.ShockDuration != nil {
		out = append(out, Effect{Kind: Shock, Duration: seconds(*a.ShockDuration), TickDamage: deref(a.ShockDamage), SlowFactor: 1.0})
	}
	if a.SlowDuration != nil {
		factor := 1.0
		if a.SlowFactor != nil {
			factor = *a.SlowFactor
		}
		out = append(out, Effect{Kind: Slow, Duration: seconds(*a.SlowDuration), SlowFactor: factor})
	}
	return out
}

// ApplyAttack 立即扣除基础伤害，并施加负载携带的状态效果
func (l *StatusLedger) ApplyAttack(a protocol.AttackData) HitOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.damageLocked(a.Damage)
	out := HitOutcome{Damage: a.Damage}
	for _, e := range EffectsFromAttack(a) {
		if se, ok := l.applyLocked(e); ok {
			out.Effects = append(out.Effects, se)
		}
	}
	out.Health = l.health
	return out
}

// Apply 施加或替换同类效果；时长非正的效果被忽略
func (l *StatusLedger) Apply(e Effect) (StatusEffect, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(e)
}

func (l *StatusLedger) applyLocked(e Effect) (StatusEffect, bool) {
	if e.Duration <= 0 {
		return StatusEffect{}, false
	}
	se := StatusEffect{
		Kind:       e.Kind,
		Remaining:  e.Duration,
		TickDamage: e.TickDamage,
		SlowFactor: 1.0,
	}
	if e.Kind == Slow {
		se.TickDamage = 0
		se.SlowFactor = e.SlowFactor
	}
	l.effects[e.Kind] = &activeEffect{StatusEffect: se}
	return se, true
}

// Tick 推进 delta：扣减剩余时间，累积满一秒结算一次持续伤害，移除到期效果。
// 到期那一刻先结算最后一整秒，再移除。
func (l *StatusLedger) Tick(delta time.Duration) TickOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out TickOutcome
	if delta <= 0 {
		out.Health = l.health
		return out
	}
	for _, kind := range l.kindsLocked() {
		e := l.effects[kind]
		step := min(delta, e.Remaining)
		e.Remaining -= delta
		if e.TickDamage > 0 {
			e.accrued += step
			for e.accrued >= damageFlushPeriod {
				out.Damage += e.TickDamage
				e.accrued -= damageFlushPeriod
			}
		}
		if e.Remaining <= 0 {
			delete(l.effects, kind)
			out.Expired = append(out.Expired, kind)
		}
	}
	l.damageLocked(out.Damage)
	out.Health = l.health
	return out
}

// Damage 直接扣血（夹在 [0, MaxHealth]）
func (l *StatusLedger) Damage(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.damageLocked(n)
	return l.health
}

func (l *StatusLedger) damageLocked(n int) {
	l.health = clampHealth(l.health - n)
}

// Health 当前生命值
func (l *StatusLedger) Health() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.health
}

// Alive 生命值大于 0
func (l *StatusLedger) Alive() bool { return l.Health() > 0 }

// SlowFactor 移动速度倍率，无缓速时为 1.0
func (l *StatusLedger) SlowFactor() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.effects[Slow]; ok {
		return e.SlowFactor
	}
	return 1.0
}

// Active 当前生效的状态（按种类排序的副本）
func (l *StatusLedger) Active() []StatusEffect {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]StatusEffect, 0, len(l.effects))
	for _, kind := range l.kindsLocked() {
		out = append(out, l.effects[kind].StatusEffect)
	}
	return out
}

// Reset 满血并清除全部效果
func (l *StatusLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.health = MaxHealth
	clear(l.effects)
}

func (l *StatusLedger) kindsLocked() []EffectKind {
	kinds := make([]EffectKind, 0, len(l.effects))
	for k := range l.effects {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
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

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
