package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"petbattle/config"
	"petbattle/protocol"
)

var ErrAlreadyStarted = errors.New("server already started")

// Server 局域网对战服务端：一个 UDP 套接字、一个接收协程、一个超时清扫协程
type Server struct {
	cfg        config.ServerConfig
	registry   *Registry
	metrics    *Metrics
	obs        Observer
	log        *zap.SugaredLogger
	conn       *net.UDPConn
	dispatcher *Dispatcher
	reaper     *Reaper

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New 创建服务端；obs 可为 nil
func New(cfg config.ServerConfig, obs Observer, log *zap.SugaredLogger) *Server {
	if obs == nil {
		obs = NopObserver{}
	}
	log = log.Named("server")
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(log, nil),
		metrics:  &Metrics{},
		obs:      obs,
		log:      log,
	}
}

// Start 绑定 UDP 端口并启动接收与清扫协程；绑定失败后可以再次调用
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	addr, err := net.ResolveUDPAddr("udp", s.cfg.BindAddress)
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("resolve %s: %w", s.cfg.BindAddress, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("listen %s: %w", s.cfg.BindAddress, err)
	}
	s.conn = conn
	s.dispatcher = NewDispatcher(s.registry, conn, s.obs, s.metrics, s.log)
	s.reaper = NewReaper(s.registry, s.dispatcher, s.cfg.Timeout, s.cfg.SweepInterval, s.log)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.readLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.reaper.Run(ctx)
	}()
	s.log.Infow("battle server listening", "addr", conn.LocalAddr().String(),
		"timeout", s.cfg.Timeout, "sweep", s.cfg.SweepInterval)
	return nil
}

// Stop 幂等；关闭套接字使阻塞读立即返回
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.wg.Wait()
		s.log.Info("battle server stopped")
	})
}

// Addr 实际监听地址（未启动时为 nil）
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Server) Registry() *Registry { return s.registry }
func (s *Server) Metrics() *Metrics   { return s.metrics }

// Reaper 未启动时为 nil
func (s *Server) Reaper() *Reaper { return s.reaper }

func (s *Server) readLoop() {
	buf := make([]byte, s.cfg.MaxDatagram)
	readTimeout := s.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = time.Second
	}
	for {
		if s.closed.Load() {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warnw("receive failed", "error", err)
			continue
		}
		s.metrics.IncReceived()
		env, err := protocol.Decode(buf[:n])
		if err != nil {
			s.metrics.IncDecodeErrors()
			s.log.Debugw("dropping malformed datagram", "from", from.String(), "size", n, "error", err)
			continue
		}
		s.dispatcher.Dispatch(env, from)
	}
}
