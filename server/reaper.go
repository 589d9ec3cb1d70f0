package server

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"petbattle/protocol"
)

// Reaper 定期清扫超时玩家：超过窗口无任何流量即移除，并广播一条合成的 leave。
// 不做重试探测。
type Reaper struct {
	reg      *Registry
	disp     *Dispatcher
	obs      Observer
	metrics  *Metrics
	log      *zap.SugaredLogger
	window   atomic.Int64 // time.Duration
	interval atomic.Int64 // time.Duration
	reset    chan struct{}
}

func NewReaper(reg *Registry, disp *Dispatcher, window, interval time.Duration, log *zap.SugaredLogger) *Reaper {
	r := &Reaper{
		reg:      reg,
		disp:     disp,
		obs:      disp.obs,
		metrics:  disp.metrics,
		log:      log,
		reset:    make(chan struct{}, 1),
	}
	r.window.Store(int64(window))
	r.interval.Store(int64(interval))
	return r
}

// Window 当前超时窗口
func (r *Reaper) Window() time.Duration { return time.Duration(r.window.Load()) }

// SetWindow 热更新超时窗口（非正值被忽略）
func (r *Reaper) SetWindow(w time.Duration) {
	if w > 0 {
		r.window.Store(int64(w))
	}
}

func (r *Reaper) Interval() time.Duration { return time.Duration(r.interval.Load()) }

// SetInterval 热更新清扫周期，运行中的 Run 在下一次选择时重置定时器（非正值被忽略）
func (r *Reaper) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.interval.Store(int64(d))
	select {
	case r.reset <- struct{}{}:
	default:
	}
}

// Sweep 执行一次清扫，返回被踢出的玩家
func (r *Reaper) Sweep() []Player {
	evicted := r.reg.RemoveExpired(r.Window())
	for _, p := range evicted {
		r.metrics.IncEvictions()
		r.log.Infow("player timed out", "player", p.ID, "name", p.Name, "last_seen", p.LastSeen)
		r.obs.PlayerLeft(p.ID)
		r.disp.Broadcast(protocol.Envelope{
			Type:      protocol.TypeLeave,
			PlayerID:  p.ID,
			Data:      protocol.LeaveData{},
			Timestamp: protocol.Now(),
		})
	}
	return evicted
}

// Run 按固定周期清扫，直到 ctx 结束
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.reset:
			ticker.Reset(r.Interval())
		case <-ticker.C:
			r.Sweep()
		}
	}
}
