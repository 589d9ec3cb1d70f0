package bridge

import (
	"errors"
	"strings"

	"petbattle/battle"
	"petbattle/protocol"
)

// Commander 执行 UI 发来的战斗指令；client.Fighter 满足该接口
type Commander interface {
	Move(pos protocol.Vec2) error
	Attack(targetID string, kind battle.AttackKind) error
	MeleeMove(dir battle.Direction) (protocol.Vec2, error)
	MeleeAttack() (damage int, crit bool, err error)
}

// Command UI 入站指令（WebSocket 文本消息）
// 示例：{"type":"attack","target":"p2","attack":"fireball"}
//
//	{"type":"move","position":[120,80]}
//	{"type":"melee_move","command":"left"}
//	{"type":"melee_attack"}
type Command struct {
	Type     string        `json:"type"`
	Command  string        `json:"command,omitempty"`
	Target   string        `json:"target,omitempty"`
	Attack   string        `json:"attack,omitempty"`
	Position protocol.Vec2 `json:"position,omitempty"`
	Seq      int64         `json:"seq,omitempty"`
}

var errUnknownCommand = errors.New("unknown command")

// execute 把指令交给 Commander，返回需要回给该连接的事件（无则为 nil）
func execute(cmd Command, c Commander) *Event {
	var err error
	kind := battle.AttackKind(strings.ToLower(cmd.Attack))
	switch strings.ToLower(cmd.Type) {
	case "move":
		err = c.Move(cmd.Position)
	case "attack":
		err = c.Attack(cmd.Target, kind)
	case "melee_move":
		_, err = c.MeleeMove(battle.ParseDirection(strings.ToLower(cmd.Command)))
	case "melee_attack":
		kind = battle.MeleeKind
		_, _, err = c.MeleeAttack()
	default:
		err = errUnknownCommand
	}
	if err == nil {
		return nil
	}

	var cd *battle.CooldownError
	if errors.As(err, &cd) {
		return &Event{Event: EventRejected, Attack: string(cd.Kind), Remaining: cd.Remaining.Seconds(), Seq: cmd.Seq}
	}
	return &Event{Event: EventError, Attack: string(kind), Error: err.Error(), Seq: cmd.Seq}
}
