package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"petbattle/battle"
	"petbattle/config"
	"petbattle/protocol"
)

func newTestFighter(t *testing.T, rec *recorder) (*Fighter, *Session) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	s := NewSession(testClientConfig("me", "Me"), rec, log)
	f := NewFighter(s, battle.DefaultRules(), config.Defaults().Battle, rec, log)
	return f, s
}

func TestFighterBurnFromAttack(t *testing.T) {
	rec := &recorder{}
	f, s := newTestFighter(t, rec)

	s.dispatch(protocol.New("enemy", battle.DefaultRules()[battle.Fireball].Payload("me")))
	if f.Health() != battle.MaxHealth-25 {
		t.Fatalf("expected fireball base damage applied, got %d", f.Health())
	}
	if len(rec.applied) != 1 || rec.applied[0].Kind != battle.Burn {
		t.Fatalf("expected burn applied, got %+v", rec.applied)
	}

	for i := 0; i < 30; i++ {
		f.Tick(100 * time.Millisecond)
	}
	if f.Health() != battle.MaxHealth-25-15 {
		t.Fatalf("expected 15 burn damage over 3s, got health %d", f.Health())
	}
	if len(f.Effects()) != 0 {
		t.Fatalf("expected burn expired, got %+v", f.Effects())
	}
	if len(rec.expired) != 1 || rec.expired[0] != battle.Burn {
		t.Fatalf("expected one burn expiry, got %v", rec.expired)
	}
}

func TestFighterIgnoresAttacksOnOthers(t *testing.T) {
	rec := &recorder{}
	f, s := newTestFighter(t, rec)

	s.dispatch(protocol.New("enemy", protocol.AttackData{TargetID: "someone-else", AttackType: "arrow", Damage: 35}))
	if f.Health() != battle.MaxHealth {
		t.Fatalf("expected no damage from attack on another player, got %d", f.Health())
	}
	if len(rec.attacks) != 1 {
		t.Fatalf("expected AttackReceived still reported, got %d", len(rec.attacks))
	}
}

func TestFighterSlowFactor(t *testing.T) {
	rec := &recorder{}
	f, s := newTestFighter(t, rec)

	s.dispatch(protocol.New("enemy", battle.DefaultRules()[battle.Ice].Payload("me")))
	if f.SlowFactor() != 0.5 {
		t.Fatalf("expected slow factor 0.5, got %v", f.SlowFactor())
	}
	f.Tick(5 * time.Second)
	if f.SlowFactor() != 1.0 {
		t.Fatalf("expected slow expired, got %v", f.SlowFactor())
	}
}

func TestFighterCooldownBlocksSecondAttack(t *testing.T) {
	f, _ := newTestFighter(t, &recorder{})
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return clock }

	// 会话未启动：冷却照常记录，发送返回 ErrNotStarted
	if err := f.Attack("enemy", battle.Fireball); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected first attack to pass cooldown, got %v", err)
	}
	clock = clock.Add(time.Second)
	var cd *battle.CooldownError
	if err := f.Attack("enemy", battle.Fireball); !errors.As(err, &cd) {
		t.Fatalf("expected cooldown rejection, got %v", err)
	}
	if cd.Remaining != time.Second {
		t.Fatalf("expected 1s remaining, got %v", cd.Remaining)
	}
	if f.CooldownRemaining(battle.Fireball) != time.Second {
		t.Fatalf("expected CooldownRemaining 1s, got %v", f.CooldownRemaining(battle.Fireball))
	}
	clock = clock.Add(1500 * time.Millisecond)
	if err := f.Attack("enemy", battle.Fireball); errors.As(err, &cd) {
		t.Fatalf("expected cooldown elapsed, got %v", err)
	}
	if err := f.Attack("enemy", "meteor"); !errors.Is(err, battle.ErrUnknownAttack) {
		t.Fatalf("expected ErrUnknownAttack, got %v", err)
	}
}

func TestFighterMeleeExchange(t *testing.T) {
	rec := &recorder{}
	f, s := newTestFighter(t, rec)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return clock }

	s.dispatch(protocol.New("enemy", protocol.MeleeAttackData{Pos: protocol.Vec2{10, 0}, Damage: 20}))
	self, _ := f.MeleeHealth()
	if self != battle.MaxHealth-20 {
		t.Fatalf("expected melee hit to land, got health %d", self)
	}

	// 无敌窗口内的第二击无效
	s.dispatch(protocol.New("enemy", protocol.MeleeAttackData{Pos: f.duel.Position(), Damage: 20}))
	if self, _ := f.MeleeHealth(); self != battle.MaxHealth-20 {
		t.Fatalf("expected invincibility to absorb second hit, got %d", self)
	}

	s.dispatch(protocol.New("enemy", protocol.MeleeHitData{TargetID: "me", Damage: 40, IsCrit: true}))
	if _, opp := f.MeleeHealth(); opp != battle.MaxHealth-40 {
		t.Fatalf("expected opponent melee health reduced, got %d", opp)
	}
	s.dispatch(protocol.New("enemy", protocol.MeleeHitData{TargetID: "other", Damage: 40}))
	if _, opp := f.MeleeHealth(); opp != battle.MaxHealth-40 {
		t.Fatalf("expected feedback for another player ignored, got %d", opp)
	}
	if len(rec.meleeHealths) != 2 {
		t.Fatalf("expected two melee health notifications, got %v", rec.meleeHealths)
	}
}

func TestFighterMeleeMoveAndCooldown(t *testing.T) {
	f, _ := newTestFighter(t, &recorder{})
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return clock }

	pos, _ := f.MeleeMove(battle.DirRight)
	if pos != (protocol.Vec2{battle.MeleeStep, 0}) {
		t.Fatalf("expected step right, got %v", pos)
	}
	if _, _, err := f.MeleeAttack(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected swing to pass cooldown, got %v", err)
	}
	var cd *battle.CooldownError
	if _, _, err := f.MeleeAttack(); !errors.As(err, &cd) {
		t.Fatalf("expected melee cooldown, got %v", err)
	}
}

func TestFighterRunStops(t *testing.T) {
	f, _ := newTestFighter(t, &recorder{})
	f.tick = 5 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := f.Run(ctx); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
}
