package server

import (
	"sync/atomic"
)

// Metrics 记录服务端运行期的关键指标（用于监控与调试）
type Metrics struct {
	DatagramsReceived int64 // 收到的数据报
	DecodeErrors      int64 // 解码失败被丢弃的数据报
	UnknownTypes      int64 // 未知类型被丢弃的信封
	StaleReferences   int64 // 引用了未知玩家的信封
	Broadcasts        int64 // 广播的信封数
	DatagramsSent     int64 // 实际发出的数据报
	SendErrors        int64 // 发送失败次数
	Joins             int64
	Leaves            int64
	Evictions         int64 // 心跳超时被踢出的玩家
}

func (m *Metrics) IncReceived()        { atomic.AddInt64(&m.DatagramsReceived, 1) }
func (m *Metrics) IncDecodeErrors()    { atomic.AddInt64(&m.DecodeErrors, 1) }
func (m *Metrics) IncUnknownTypes()    { atomic.AddInt64(&m.UnknownTypes, 1) }
func (m *Metrics) IncStaleReferences() { atomic.AddInt64(&m.StaleReferences, 1) }
func (m *Metrics) IncBroadcasts()      { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *Metrics) IncSent()            { atomic.AddInt64(&m.DatagramsSent, 1) }
func (m *Metrics) IncSendErrors()      { atomic.AddInt64(&m.SendErrors, 1) }
func (m *Metrics) IncJoins()           { atomic.AddInt64(&m.Joins, 1) }
func (m *Metrics) IncLeaves()          { atomic.AddInt64(&m.Leaves, 1) }
func (m *Metrics) IncEvictions()       { atomic.AddInt64(&m.Evictions, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"datagrams_received": atomic.LoadInt64(&m.DatagramsReceived),
		"decode_errors":      atomic.LoadInt64(&m.DecodeErrors),
		"unknown_types":      atomic.LoadInt64(&m.UnknownTypes),
		"stale_references":   atomic.LoadInt64(&m.StaleReferences),
		"broadcasts":         atomic.LoadInt64(&m.Broadcasts),
		"datagrams_sent":     atomic.LoadInt64(&m.DatagramsSent),
		"send_errors":        atomic.LoadInt64(&m.SendErrors),
		"joins":              atomic.LoadInt64(&m.Joins),
		"leaves":             atomic.LoadInt64(&m.Leaves),
		"evictions":          atomic.LoadInt64(&m.Evictions),
	}
}
