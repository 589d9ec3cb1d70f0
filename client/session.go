package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"petbattle/config"
	"petbattle/protocol"
)

var (
	ErrNotStarted     = errors.New("session not started")
	ErrAlreadyStarted = errors.New("session already started")
	ErrStopped        = errors.New("session stopped")
	ErrDisconnected   = errors.New("session disconnected")
)

const maxDatagram = 2048

// Peer 本地缓存的其他玩家
type Peer struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	PetName  string        `json:"pet_name"`
	Position protocol.Vec2 `json:"position"`
	LastSeen time.Time     `json:"last_seen"`
}

// HandlerFunc 处理一个非自身发出的入站信封
type HandlerFunc func(env protocol.Envelope)

type sessionState int

const (
	stateIdle sessionState = iota
	stateRunning
	stateDisconnected // 接收失败，等待 Stop 释放资源
	stateStopped
)

// Session 一个本地参与者：独占一个 UDP 套接字，运行接收与心跳两个协程
type Session struct {
	cfg  config.ClientConfig
	id   string
	obs  Observer
	log  *zap.SugaredLogger
	peer Peer // 本地玩家

	mu     sync.RWMutex
	state  sessionState
	conn   *net.UDPConn
	server netip.AddrPort
	cancel context.CancelFunc

	peersMu sync.RWMutex
	peers   map[string]*Peer

	handlersMu sync.RWMutex
	handlers   map[protocol.MessageType][]HandlerFunc

	stopping atomic.Bool
	wg       sync.WaitGroup
}

// NewSession 创建会话；cfg.PlayerID 为空时生成 uuid，obs 可为 nil
func NewSession(cfg config.ClientConfig, obs Observer, log *zap.SugaredLogger) *Session {
	if obs == nil {
		obs = NopObserver{}
	}
	id := cfg.PlayerID
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		cfg:      cfg,
		id:       id,
		obs:      obs,
		log:      log.Named("client").With("player", id),
		peer:     Peer{ID: id, Name: cfg.Name, PetName: cfg.PetName},
		peers:    make(map[string]*Peer),
		handlers: make(map[protocol.MessageType][]HandlerFunc),
	}
	s.Handle(protocol.TypeJoin, s.onJoin)
	s.Handle(protocol.TypeLeave, s.onLeave)
	s.Handle(protocol.TypeMove, s.onMove)
	s.Handle(protocol.TypeAttack, s.onAttack)
	s.Handle(protocol.TypeMeleeMove, s.onMeleeMove)
	s.Handle(protocol.TypeMeleeAttack, s.onMeleeAttack)
	s.Handle(protocol.TypeMeleeHitFeedback, s.onMeleeHit)
	return s
}

// ID 本地玩家 id
func (s *Session) ID() string { return s.id }

// Self 本地玩家信息
func (s *Session) Self() Peer { return s.peer }

// Handle 为某类消息追加处理函数，按注册顺序在内置处理之后执行
func (s *Session) Handle(t protocol.MessageType, fn HandlerFunc) {
	s.handlersMu.Lock()
	s.handlers[t] = append(s.handlers[t], fn)
	s.handlersMu.Unlock()
}

// Start 绑定本地端口，发送 join 并启动接收与心跳协程。
// 失败时释放已获取的资源，可以再次调用。
func (s *Session) Start(serverAddr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateRunning, stateDisconnected:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}
	if serverAddr == "" {
		serverAddr = s.cfg.ServerAddress
	}
	raddr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return fmt.Errorf("resolve server %s: %w", serverAddr, err)
	}
	server := raddr.AddrPort()
	server = netip.AddrPortFrom(server.Addr().Unmap(), server.Port())

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.cfg.ListenPort})
	if err != nil {
		return fmt.Errorf("listen udp :%d: %w", s.cfg.ListenPort, err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port

	join := protocol.New(s.id, protocol.JoinData{Name: s.cfg.Name, PetName: s.cfg.PetName, Port: port})
	if err := s.write(conn, server, join); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send join: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.conn, s.server, s.cancel = conn, server, cancel
	s.state = stateRunning
	s.wg.Add(2)
	go func() {
		err := s.receiveLoop(conn)
		notify := err != nil && s.markDisconnected(err)
		s.wg.Done()
		// 回调在 Done 之后执行，观察者可以在回调里调用 Stop
		if notify {
			s.obs.ServerDisconnected(err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.heartbeatLoop(ctx)
	}()
	s.log.Infow("joined battle server", "server", server.String(), "port", port)
	return nil
}

// Stop 尽力发送 leave 后关闭套接字并等待协程退出；幂等，未启动时也可调用，
// 也可以在 ServerDisconnected 回调中调用
func (s *Session) Stop() {
	s.mu.Lock()
	prev := s.state
	s.state = stateStopped
	if prev == stateIdle || prev == stateStopped {
		s.mu.Unlock()
		return
	}
	s.stopping.Store(true)
	if prev == stateRunning {
		if err := s.write(s.conn, s.server, protocol.New(s.id, protocol.LeaveData{})); err != nil {
			s.log.Debugw("send leave failed", "error", err)
		}
	}
	s.cancel()
	_ = s.conn.Close()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("session stopped")
}

// Running 会话是否在运行；断线或 Stop 之后为 false
func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateRunning
}

// LocalAddr 本地监听地址，未启动时为 nil
func (s *Session) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Peers 返回其他玩家的副本，按 id 排序
func (s *Session) Peers() []Peer {
	s.peersMu.RLock()
	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, *p)
	}
	s.peersMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Peer 查询单个玩家
func (s *Session) Peer(id string) (Peer, bool) {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	p, ok := s.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

func (s *Session) SendMove(pos protocol.Vec2) error {
	return s.send(protocol.MoveData{Position: pos})
}

// SendAttack 发送一次远程攻击；效果字段随 data 一并发送
func (s *Session) SendAttack(data protocol.AttackData) error {
	return s.send(data)
}

func (s *Session) SendMeleeMove(pos protocol.Vec2) error {
	return s.send(protocol.MeleeMoveData{Pos: pos})
}

func (s *Session) SendMeleeAttack(pos protocol.Vec2, damage int, isCrit bool) error {
	return s.send(protocol.MeleeAttackData{Pos: pos, Damage: damage, IsCrit: isCrit})
}

func (s *Session) SendMeleeHitFeedback(targetID string, pos protocol.Vec2, damage int, isCrit bool) error {
	return s.send(protocol.MeleeHitData{TargetID: targetID, Pos: pos, Damage: damage, IsCrit: isCrit})
}

// send 单次发送，失败只记录日志并返回错误，调用方可以忽略
func (s *Session) send(data protocol.Payload) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case stateRunning:
	case stateDisconnected:
		return ErrDisconnected
	default:
		return ErrNotStarted
	}
	env := protocol.New(s.id, data)
	if err := s.write(s.conn, s.server, env); err != nil {
		s.log.Warnw("send failed", "type", env.Type, "error", err)
		return err
	}
	return nil
}

func (s *Session) write(conn *net.UDPConn, to netip.AddrPort, env protocol.Envelope) error {
	b, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	_, err = conn.WriteToUDPAddrPort(b, to)
	return err
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.send(protocol.HeartbeatData{})
		}
	}
}

// receiveLoop 只在套接字不可用时返回非 nil 错误
func (s *Session) receiveLoop(conn *net.UDPConn) error {
	buf := make([]byte, maxDatagram)
	readTimeout := s.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = time.Second
	}
	for {
		if s.stopping.Load() {
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.stopping.Load() {
				return nil
			}
			return err
		}
		env, err := protocol.Decode(buf[:n])
		if err != nil {
			s.log.Debugw("dropping malformed datagram", "size", n, "error", err)
			continue
		}
		s.dispatch(env)
	}
}

// markDisconnected 运行中首次失败时转入断线状态并停止心跳；由 Stop 引起的失败返回 false
func (s *Session) markDisconnected(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return false
	}
	s.state = stateDisconnected
	s.cancel()
	s.log.Warnw("server disconnected", "error", err)
	return true
}

// dispatch 丢弃自回显，然后依次执行该类型的处理函数
func (s *Session) dispatch(env protocol.Envelope) {
	if env.PlayerID == s.id {
		return
	}
	s.handlersMu.RLock()
	hs := s.handlers[env.Type]
	s.handlersMu.RUnlock()
	if len(hs) == 0 {
		s.log.Debugw("no handler for message type", "type", env.Type, "from", env.PlayerID)
		return
	}
	for _, h := range hs {
		h(env)
	}
}

func (s *Session) onJoin(env protocol.Envelope) {
	data, ok := env.Data.(protocol.JoinData)
	if !ok {
		return
	}
	s.peersMu.Lock()
	p, known := s.peers[env.PlayerID]
	if !known {
		p = &Peer{ID: env.PlayerID}
		s.peers[env.PlayerID] = p
	}
	p.Name = data.Name
	p.PetName = data.PetName
	p.LastSeen = time.Now()
	s.peersMu.Unlock()

	if !known {
		s.log.Infow("peer joined", "peer", env.PlayerID, "name", data.Name)
		s.obs.PlayerJoined(env.PlayerID, data.Name)
	}
}

func (s *Session) onLeave(env protocol.Envelope) {
	s.peersMu.Lock()
	_, known := s.peers[env.PlayerID]
	delete(s.peers, env.PlayerID)
	s.peersMu.Unlock()

	if known {
		s.log.Infow("peer left", "peer", env.PlayerID)
		s.obs.PlayerLeft(env.PlayerID)
	}
}

func (s *Session) onMove(env protocol.Envelope) {
	data, ok := env.Data.(protocol.MoveData)
	if !ok {
		return
	}
	s.peersMu.Lock()
	p, known := s.peers[env.PlayerID]
	if known {
		p.Position = data.Position
		p.LastSeen = time.Now()
	}
	s.peersMu.Unlock()

	if !known {
		s.log.Debugw("move from unknown peer", "peer", env.PlayerID)
		return
	}
	s.obs.PlayerMoved(env.PlayerID, data.Position)
}

func (s *Session) onAttack(env protocol.Envelope) {
	data, ok := env.Data.(protocol.AttackData)
	if !ok {
		return
	}
	s.obs.AttackReceived(env.PlayerID, data.TargetID, data)
}

func (s *Session) onMeleeMove(env protocol.Envelope) {
	if data, ok := env.Data.(protocol.MeleeMoveData); ok {
		s.obs.OpponentMeleeMove(env.PlayerID, data.Pos)
	}
}

func (s *Session) onMeleeAttack(env protocol.Envelope) {
	if data, ok := env.Data.(protocol.MeleeAttackData); ok {
		s.obs.OpponentMeleeAttack(env.PlayerID, data)
	}
}

func (s *Session) onMeleeHit(env protocol.Envelope) {
	if data, ok := env.Data.(protocol.MeleeHitData); ok {
		s.obs.MeleeHitFeedback(env.PlayerID, data)
	}
}
