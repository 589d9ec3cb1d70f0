package server

import "petbattle/protocol"

// Observer 服务端事件回调（供 UI/桥接层订阅）。回调在接收协程与清扫协程中
// 同步执行（超时踢出的 PlayerLeft 来自清扫协程），实现方必须并发安全且不应阻塞。
type Observer interface {
	PlayerJoined(id, name string)
	PlayerLeft(id string)
	AttackReceived(attackerID, targetID string, data protocol.AttackData)
	PlayerMoved(id string, pos protocol.Vec2)
}

// NopObserver 空实现，可嵌入以只覆盖部分回调
type NopObserver struct{}

func (NopObserver) PlayerJoined(string, string)                        {}
func (NopObserver) PlayerLeft(string)                                  {}
func (NopObserver) AttackReceived(string, string, protocol.AttackData) {}
func (NopObserver) PlayerMoved(string, protocol.Vec2)                  {}

// Observers 将事件依次分发给多个观察者
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
