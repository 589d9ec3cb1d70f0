package protocol

import (
	"encoding/json"
	"time"
)

// MessageType 信封类型（线上字段 "type"）
type MessageType string

const (
	TypeJoin             MessageType = "join"
	TypeLeave            MessageType = "leave"
	TypeAttack           MessageType = "attack"
	TypeMove             MessageType = "move"
	TypeHeartbeat        MessageType = "heartbeat"
	TypeMeleeMove        MessageType = "melee_move"
	TypeMeleeAttack      MessageType = "melee_attack"
	TypeMeleeHitFeedback MessageType = "melee_hit_feedback"
)

// Known 是否为当前版本认识的类型；编解码器本身不做该校验
func (t MessageType) Known() bool {
	switch t {
	case TypeJoin, TypeLeave, TypeAttack, TypeMove, TypeHeartbeat,
		TypeMeleeMove, TypeMeleeAttack, TypeMeleeHitFeedback:
		return true
	}
	return false
}

// Vec2 二维坐标，线上编码为 [x, y]
type Vec2 [2]float64

func (v Vec2) X() float64 { return v[0] }
func (v Vec2) Y() float64 { return v[1] }

// Envelope 一次 UDP 发送对应一个信封，构造后不再修改
type Envelope struct {
	Type      MessageType
	PlayerID  string
	Data      Payload
	Timestamp float64 // 秒
}

// New 以当前时间构造信封，Type 取自负载
func New(playerID string, data Payload) Envelope {
	return Envelope{
		Type:      data.MessageType(),
		PlayerID:  playerID,
		Data:      data,
		Timestamp: Now(),
	}
}

// Now 返回浮点秒形式的当前时间戳
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Payload 按信封类型区分的数据负载（封闭和类型）
type Payload interface {
	MessageType() MessageType
	isPayload()
}

// JoinData 玩家加入
type JoinData struct {
	Name    string `json:"name"`
	PetName string `json:"pet_name"`
	Port    int    `json:"port"`
}

// LeaveData 玩家离开（无字段）
type LeaveData struct{}

// HeartbeatData 心跳（无字段）
type HeartbeatData struct{}

// MoveData 远程模式下的位置更新
type MoveData struct {
	Position Vec2 `json:"position"`
}

// AttackData 远程攻击；效果字段可选，由攻击方按规则表填写
type AttackData struct {
	TargetID   string `json:"target_id"`
	AttackType string `json:"attack_type"`
	Damage     int    `json:"damage"`

	BurnDuration  *float64 `json:"burn_duration,omitempty"`
	BurnDamage    *int     `json:"burn_damage,omitempty"`
	ShockDuration *float64 `json:"shock_duration,omitempty"`
	ShockDamage   *int     `json:"shock_damage,omitempty"`
	SlowDuration  *float64 `json:"slow_duration,omitempty"`
	SlowFactor    *float64 `json:"slow_factor,omitempty"`

	// 仅供表现层使用的弹道参数
	StartPosition *Vec2    `json:"start_position,omitempty"`
	Angle         *float64 `json:"angle,omitempty"`
	YOffset       *float64 `json:"y_offset,omitempty"`
}

// MeleeMoveData 近战模式下的位置更新
type MeleeMoveData struct {
	Pos Vec2 `json:"pos"`
}

// MeleeAttackData 近战出招
type MeleeAttackData struct {
	Pos    Vec2 `json:"pos"`
	Damage int  `json:"damage"`
	IsCrit bool `json:"is_crit"`
}

// MeleeHitData 被命中方回报给攻击方的命中反馈
type MeleeHitData struct {
	TargetID string `json:"target_id,omitempty"`
	Pos      Vec2   `json:"pos"`
	Damage   int    `json:"damage"`
	IsCrit   bool   `json:"is_crit"`
}

// UnknownData 未识别类型的原样负载，保证新版本消息能被透传
type UnknownData struct {
	Type MessageType
	Raw  json.RawMessage
}

func (JoinData) MessageType() MessageType        { return TypeJoin }
func (LeaveData) MessageType() MessageType       { return TypeLeave }
func (HeartbeatData) MessageType() MessageType   { return TypeHeartbeat }
func (MoveData) MessageType() MessageType        { return TypeMove }
func (AttackData) MessageType() MessageType      { return TypeAttack }
func (MeleeMoveData) MessageType() MessageType   { return TypeMeleeMove }
func (MeleeAttackData) MessageType() MessageType { return TypeMeleeAttack }
func (MeleeHitData) MessageType() MessageType    { return TypeMeleeHitFeedback }
func (u UnknownData) MessageType() MessageType   { return u.Type }

func (JoinData) isPayload()        {}
func (LeaveData) isPayload()       {}
func (HeartbeatData) isPayload()   {}
func (MoveData) isPayload()        {}
func (AttackData) isPayload()      {}
func (MeleeMoveData) isPayload()   {}
func (MeleeAttackData) isPayload() {}
func (MeleeHitData) isPayload()    {}
func (UnknownData) isPayload()     {}

// Ptr 取值的指针，便于填写可选字段
func Ptr[T any](v T) *T { return &v }
