package server

import (
	"net/netip"

	"go.uber.org/zap"

	"petbattle/protocol"
)

// Sender 数据报发送端；*net.UDPConn 满足该接口
type Sender interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// Dispatcher 把一个入站信封应用到 Registry，再转发给所有已知玩家。
// 服务端不校验伤害数值与冷却：局域网内信任对端。
type Dispatcher struct {
	reg     *Registry
	out     Sender
	obs     Observer
	metrics *Metrics
	log     *zap.SugaredLogger
}

func NewDispatcher(reg *Registry, out Sender, obs Observer, metrics *Metrics, log *zap.SugaredLogger) *Dispatcher {
	if obs == nil {
		obs = NopObserver{}
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Dispatcher{reg: reg, out: out, obs: obs, metrics: metrics, log: log}
}

// Dispatch 处理一个已解码的信封；from 为数据报来源地址
func (d *Dispatcher) Dispatch(env protocol.Envelope, from netip.AddrPort) {
	switch data := env.Data.(type) {
	case protocol.JoinData:
		d.handleJoin(env, data, from)
	case protocol.LeaveData:
		if !d.reg.Remove(env.PlayerID) {
			d.metrics.IncStaleReferences()
			return
		}
		d.metrics.IncLeaves()
		d.log.Infow("player left", "player", env.PlayerID)
		d.obs.PlayerLeft(env.PlayerID)
		d.Broadcast(env)
	case protocol.HeartbeatData:
		if !d.reg.Touch(env.PlayerID) {
			d.metrics.IncStaleReferences()
		}
	case protocol.MoveData:
		if d.reg.UpdatePosition(env.PlayerID, data.Position) {
			d.obs.PlayerMoved(env.PlayerID, data.Position)
		} else {
			d.metrics.IncStaleReferences()
		}
		d.Broadcast(env)
	case protocol.AttackData:
		d.touch(env.PlayerID)
		d.log.Debugw("attack relayed", "attacker", env.PlayerID, "target", data.TargetID,
			"attack", data.AttackType, "damage", data.Damage)
		d.obs.AttackReceived(env.PlayerID, data.TargetID, data)
		d.Broadcast(env)
	case protocol.MeleeMoveData, protocol.MeleeAttackData, protocol.MeleeHitData:
		d.touch(env.PlayerID)
		d.Broadcast(env)
	case protocol.UnknownData:
		d.metrics.IncUnknownTypes()
		d.log.Infow("dropping unknown message type", "type", data.Type, "player", env.PlayerID)
	default:
		d.metrics.IncUnknownTypes()
		d.log.Warnw("dropping envelope without payload", "type", env.Type, "player", env.PlayerID)
	}
}

func (d *Dispatcher) touch(id string) {
	if !d.reg.Touch(id) {
		d.metrics.IncStaleReferences()
	}
}

func (d *Dispatcher) handleJoin(env protocol.Envelope, data protocol.JoinData, from netip.AddrPort) {
	name := data.Name
	if name == "" {
		name = defaultPlayerName
	}
	pet := data.PetName
	if pet == "" {
		pet = defaultPetName
	}
	port := data.Port
	if port <= 0 || port > 65535 {
		port = DefaultClientPort
	}
	addr := netip.AddrPortFrom(from.Addr().Unmap(), uint16(port))

	d.reg.Register(env.PlayerID, name, pet, addr)
	d.metrics.IncJoins()
	d.log.Infow("player joined", "player", env.PlayerID, "name", name, "pet", pet, "addr", addr.String())
	d.obs.PlayerJoined(env.PlayerID, name)

	d.Broadcast(env)
	d.replayRoster(env.PlayerID, addr)
}

// replayRoster 给新加入者补发其他在线玩家的 join（以及已知位置）
func (d *Dispatcher) replayRoster(newcomer string, addr netip.AddrPort) {
	now := protocol.Now()
	for _, p := range d.reg.Snapshot() {
		if p.ID == newcomer {
			continue
		}
		d.sendTo(protocol.Envelope{
			Type:      protocol.TypeJoin,
			PlayerID:  p.ID,
			Data:      protocol.JoinData{Name: p.Name, PetName: p.PetName, Port: int(p.Addr.Port())},
			Timestamp: now,
		}, addr)
		if p.Position != (protocol.Vec2{}) {
			d.sendTo(protocol.Envelope{
				Type:      protocol.TypeMove,
				PlayerID:  p.ID,
				Data:      protocol.MoveData{Position: p.Position},
				Timestamp: now,
			}, addr)
		}
	}
}

// Broadcast 编码一次后发送给当前所有玩家（包括发送者本人，由客户端丢弃自回显）
func (d *Dispatcher) Broadcast(env protocol.Envelope) {
	b, err := protocol.Encode(env)
	if err != nil {
		d.log.Errorw("encode broadcast failed", "type", env.Type, "error", err)
		return
	}
	d.metrics.IncBroadcasts()
	for _, p := range d.reg.Snapshot() {
		d.write(b, p.Addr)
	}
}

func (d *Dispatcher) sendTo(env protocol.Envelope, addr netip.AddrPort) {
	b, err := protocol.Encode(env)
	if err != nil {
		d.log.Errorw("encode failed", "type", env.Type, "error", err)
		return
	}
	d.write(b, addr)
}

func (d *Dispatcher) write(b []byte, addr netip.AddrPort) {
	if _, err := d.out.WriteToUDPAddrPort(b, addr); err != nil {
		d.metrics.IncSendErrors()
		d.log.Warnw("send failed", "addr", addr.String(), "error", err)
		return
	}
	d.metrics.IncSent()
}
