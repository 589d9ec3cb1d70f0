package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"petbattle/battle"
	"petbattle/config"
	"petbattle/protocol"
)

// Fighter 把会话与本地战斗状态绑在一起：出招前查冷却，
// 命中本方的攻击写入状态表，近战出招由本方判定并回报命中。
type Fighter struct {
	session   *Session
	rules     battle.RuleTable
	cooldowns *battle.CooldownLedger
	status    *battle.StatusLedger
	duel      *battle.MeleeDuel
	obs       StatusObserver
	tick      time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewFighter 在 session 上注册攻击与近战处理函数；obs 可为 nil
func NewFighter(session *Session, rules battle.RuleTable, cfg config.BattleConfig, obs StatusObserver, log *zap.SugaredLogger) *Fighter {
	if obs == nil {
		obs = NopObserver{}
	}
	melee := cfg.MeleeCooldown
	if melee <= 0 {
		melee = battle.DefaultMeleeCooldown
	}
	tick := cfg.StatusTick
	if tick <= 0 {
		tick = battle.StatusTickInterval
	}
	f := &Fighter{
		session:   session,
		rules:     rules,
		cooldowns: battle.NewCooldownLedger(rules, melee),
		status:    battle.NewStatusLedger(),
		duel:      battle.NewMeleeDuel(protocol.Vec2{}, nil),
		obs:       obs,
		tick:      tick,
		now:       time.Now,
		log:       log.Named("fighter").With("player", session.ID()),
	}
	session.Handle(protocol.TypeAttack, f.onAttack)
	session.Handle(protocol.TypeMeleeAttack, f.onMeleeAttack)
	session.Handle(protocol.TypeMeleeHitFeedback, f.onMeleeHit)
	return f
}

// Attack 冷却允许时向 targetID 发出一次 kind 攻击。
// 冷却未结束返回 *battle.CooldownError，且不发送任何数据。
func (f *Fighter) Attack(targetID string, kind battle.AttackKind) error {
	rule, ok := f.rules.Get(kind)
	if !ok {
		return fmt.Errorf("%w: %s", battle.ErrUnknownAttack, kind)
	}
	if err := f.cooldowns.TryUse(kind, f.now()); err != nil {
		return err
	}
	f.log.Debugw("attack", "target", targetID, "attack", kind, "damage", rule.BaseDamage)
	return f.session.SendAttack(rule.Payload(targetID))
}

// MeleeAttack 在当前位置挥出一次近战，返回伤害与是否暴击
func (f *Fighter) MeleeAttack() (damage int, crit bool, err error) {
	if err := f.cooldowns.TryUse(battle.MeleeKind, f.now()); err != nil {
		return 0, false, err
	}
	damage, crit = f.duel.Roll()
	return damage, crit, f.session.SendMeleeAttack(f.duel.Position(), damage, crit)
}

// MeleeMove 近战场景内移动一步并同步位置
func (f *Fighter) MeleeMove(dir battle.Direction) (protocol.Vec2, error) {
	pos := f.duel.Move(dir)
	return pos, f.session.SendMeleeMove(pos)
}

// Move 同步大地图位置
func (f *Fighter) Move(pos protocol.Vec2) error {
	return f.session.SendMove(pos)
}

// CooldownRemaining kind 的剩余冷却
func (f *Fighter) CooldownRemaining(kind battle.AttackKind) time.Duration {
	return f.cooldowns.Remaining(kind, f.now())
}

func (f *Fighter) Health() int                    { return f.status.Health() }
func (f *Fighter) SlowFactor() float64            { return f.status.SlowFactor() }
func (f *Fighter) Effects() []battle.StatusEffect { return f.status.Active() }

func (f *Fighter) MeleeHealth() (self, opponent int) {
	return f.duel.Health(), f.duel.OpponentHealth()
}

// Run 按固定周期推进状态效果，直到 ctx 结束
func (f *Fighter) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.Tick(f.tick)
		}
	}
}

// Tick 推进一次状态效果并通知观察者
func (f *Fighter) Tick(delta time.Duration) battle.TickOutcome {
	out := f.status.Tick(delta)
	if out.Damage > 0 {
		f.obs.HealthChanged(out.Health)
	}
	for _, kind := range out.Expired {
		f.log.Debugw("effect expired", "effect", kind)
		f.obs.EffectExpired(kind)
	}
	return out
}

// Reset 新一局开始时清空冷却、状态与近战血量
func (f *Fighter) Reset() {
	f.cooldowns.Reset()
	f.status.Reset()
	f.duel.Reset()
	f.obs.HealthChanged(f.status.Health())
}

func (f *Fighter) onAttack(env protocol.Envelope) {
	data, ok := env.Data.(protocol.AttackData)
	if !ok || data.TargetID != f.session.ID() {
		return
	}
	hit := f.status.ApplyAttack(data)
	f.log.Infow("hit", "attacker", env.PlayerID, "attack", data.AttackType,
		"damage", hit.Damage, "health", hit.Health)
	f.obs.HealthChanged(hit.Health)
	for _, e := range hit.Effects {
		f.obs.EffectApplied(e)
	}
}

// onMeleeAttack 由被攻击方判定命中，命中后回报给对方
func (f *Fighter) onMeleeAttack(env protocol.Envelope) {
	data, ok := env.Data.(protocol.MeleeAttackData)
	if !ok {
		return
	}
	hit, health := f.duel.ResolveIncoming(data.Pos, data.Damage, f.now())
	if !hit {
		return
	}
	f.obs.MeleeHealthChanged(health, f.duel.OpponentHealth())
	_ = f.session.SendMeleeHitFeedback(env.PlayerID, f.duel.Position(), data.Damage, data.IsCrit)
}

func (f *Fighter) onMeleeHit(env protocol.Envelope) {
	data, ok := env.Data.(protocol.MeleeHitData)
	if !ok {
		return
	}
	if data.TargetID != "" && data.TargetID != f.session.ID() {
		return
	}
	opponent := f.duel.RecordHit(data.Damage)
	f.obs.MeleeHealthChanged(f.duel.Health(), opponent)
}
