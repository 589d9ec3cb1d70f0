package client

import (
	"petbattle/battle"
	"petbattle/protocol"
)

// Observer 会话事件回调，在接收协程中同步执行，实现方不应阻塞
type Observer interface {
	PlayerJoined(id, name string)
	PlayerLeft(id string)
	AttackReceived(attackerID, targetID string, data protocol.AttackData)
	PlayerMoved(id string, pos protocol.Vec2)
	ServerDisconnected(err error)
	OpponentMeleeMove(id string, pos protocol.Vec2)
	OpponentMeleeAttack(id string, data protocol.MeleeAttackData)
	MeleeHitFeedback(id string, data protocol.MeleeHitData)
}

// StatusObserver 本地战斗状态变化回调
type StatusObserver interface {
	HealthChanged(health int)
	EffectApplied(effect battle.StatusEffect)
	EffectExpired(kind battle.EffectKind)
	MeleeHealthChanged(self, opponent int)
}

// NopObserver 同时满足 Observer 与 StatusObserver 的空实现
type NopObserver struct{}

func (NopObserver) PlayerJoined(string, string)                          {}
func (NopObserver) PlayerLeft(string)                                    {}
func (NopObserver) AttackReceived(string, string, protocol.AttackData)   {}
func (NopObserver) PlayerMoved(string, protocol.Vec2)                    {}
func (NopObserver) ServerDisconnected(error)                             {}
func (NopObserver) OpponentMeleeMove(string, protocol.Vec2)              {}
func (NopObserver) OpponentMeleeAttack(string, protocol.MeleeAttackData) {}
func (NopObserver) MeleeHitFeedback(string, protocol.MeleeHitData)       {}
func (NopObserver) HealthChanged(int)                                    {}
func (NopObserver) EffectApplied(battle.StatusEffect)                    {}
func (NopObserver) EffectExpired(battle.EffectKind)                      {}
func (NopObserver) MeleeHealthChanged(int, int)                          {}

// Observers 按顺序分发给多个观察者
type Observers []Observer

func (o Observers) PlayerJoined(id, name string) {
	for _, x := range o {
		x.PlayerJoined(id, name)
	}
}

func (o Observers) PlayerLeft(id string) {
	for _, x := range o {
		x.PlayerLeft(id)
	}
}

func (o Observers) AttackReceived(attackerID, targetID string, data protocol.AttackData) {
	for _, x := range o {
		x.AttackReceived(attackerID, targetID, data)
	}
}

func (o Observers) PlayerMoved(id string, pos protocol.Vec2) {
	for _, x := range o {
		x.PlayerMoved(id, pos)
	}
}

func (o Observers) ServerDisconnected(err error) {
	for _, x := range o {
		x.ServerDisconnected(err)
	}
}

func (o Observers) OpponentMeleeMove(id string, pos protocol.Vec2) {
	for _, x := range o {
		x.OpponentMeleeMove(id, pos)
	}
}

func (o Observers) OpponentMeleeAttack(id string, data protocol.MeleeAttackData) {
	for _, x := range o {
		x.OpponentMeleeAttack(id, data)
	}
}

func (o Observers) MeleeHitFeedback(id string, data protocol.MeleeHitData) {
	for _, x := range o {
		x.MeleeHitFeedback(id, data)
	}
}
