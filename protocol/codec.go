package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed 数据报不是合法 JSON，或已知类型的 data 结构不符
	ErrMalformed = errors.New("malformed envelope")
	// ErrMissingField 缺少必填字段 type 或 player_id
	ErrMissingField = errors.New("missing required field")
	// ErrTypeMismatch 信封 Type 与负载类型不一致（仅编码时检查）
	ErrTypeMismatch = errors.New("envelope type does not match payload")
)

// DecodeError 解码失败；Reason 为上面的哨兵错误之一
type DecodeError struct {
	Reason error
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %v: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Reason, e.Err}
	}
	return []error{e.Reason}
}

// wireEnvelope 线上格式：{"type","player_id","data","timestamp"}
type wireEnvelope struct {
	Type      MessageType     `json:"type"`
	PlayerID  string          `json:"player_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp float64         `json:"timestamp"`
}

var emptyObject = json.RawMessage("{}")

// Encode 将信封编码为一个数据报
func Encode(e Envelope) ([]byte, error) {
	t := e.Type
	var raw json.RawMessage
	switch d := e.Data.(type) {
	case nil:
		raw = emptyObject
	case UnknownData:
		if t == "" {
			t = d.Type
		}
		raw = d.Raw
		if len(raw) == 0 {
			raw = emptyObject
		}
	default:
		if t == "" {
			t = d.MessageType()
		}
		if d.MessageType() != t {
			return nil, fmt.Errorf("encode %s with %T: %w", t, d, ErrTypeMismatch)
		}
		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		raw = b
	}
	return json.Marshal(wireEnvelope{
		Type:      t,
		PlayerID:  e.PlayerID,
		Data:      raw,
		Timestamp: e.Timestamp,
	})
}

// Decode 解析数据报。只校验结构，不校验类型枚举：未知类型以 UnknownData 返回
func Decode(b []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, &DecodeError{Reason: ErrMalformed, Err: err}
	}
	if w.Type == "" {
		return Envelope{}, &DecodeError{Reason: ErrMissingField, Err: errors.New("type")}
	}
	if w.PlayerID == "" {
		return Envelope{}, &DecodeError{Reason: ErrMissingField, Err: errors.New("player_id")}
	}
	raw := w.Data
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = emptyObject
	}
	data, err := decodePayload(w.Type, raw)
	if err != nil {
		return Envelope{}, &DecodeError{Reason: ErrMalformed, Err: fmt.Errorf("data of %s: %w", w.Type, err)}
	}
	return Envelope{
		Type:      w.Type,
		PlayerID:  w.PlayerID,
		Data:      data,
		Timestamp: w.Timestamp,
	}, nil
}

func decodePayload(t MessageType, raw json.RawMessage) (Payload, error) {
	switch t {
	case TypeJoin:
		return decodeAs[JoinData](raw)
	case TypeLeave:
		return decodeAs[LeaveData](raw)
	case TypeHeartbeat:
		return decodeAs[HeartbeatData](raw)
	case TypeMove:
		return decodeAs[MoveData](raw)
	case TypeAttack:
		return decodeAs[AttackData](raw)
	case TypeMeleeMove:
		return decodeAs[MeleeMoveData](raw)
	case TypeMeleeAttack:
		return decodeAs[MeleeAttackData](raw)
	case TypeMeleeHitFeedback:
		return decodeAs[MeleeHitData](raw)
	default:
		cp := make(json.RawMessage, len(raw))
		copy(cp, raw)
		return UnknownData{Type: t, Raw: cp}, nil
	}
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
