package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// AdminHandler 返回管理与监控接口：
// GET /players、GET /metrics、GET|POST /admin/config、GET /healthz
func (s *Server) AdminHandler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/players", s.HandlePlayers)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// HandlePlayers 输出当前在线玩家快照
func (s *Server) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"count":   s.registry.Len(),
		"players": s.registry.Snapshot(),
	})
}

// HandleMetrics 输出运行指标
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"players": s.registry.Len(),
		"metrics": s.metrics.Snapshot(),
	})
}

// HandleAdminConfig 读取与热更新超时窗口和清扫周期
// GET  /admin/config  返回当前配置
// POST /admin/config  以 JSON 载荷更新部分字段
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	if s.reaper == nil {
		http.Error(w, "server not started", http.StatusServiceUnavailable)
		return
	}
	type cfg struct {
		TimeoutMs       *int64 `json:"timeoutMs,omitempty"`
		SweepIntervalMs *int64 `json:"sweepIntervalMs,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		timeout := s.reaper.Window().Milliseconds()
		sweep := s.reaper.Interval().Milliseconds()
		writeJSON(w, cfg{TimeoutMs: &timeout, SweepIntervalMs: &sweep})
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.TimeoutMs != nil && *body.TimeoutMs <= 0 {
			http.Error(w, "timeoutMs must be positive", http.StatusBadRequest)
			return
		}
		if body.SweepIntervalMs != nil && *body.SweepIntervalMs <= 0 {
			http.Error(w, "sweepIntervalMs must be positive", http.StatusBadRequest)
			return
		}
		if body.TimeoutMs != nil {
			s.reaper.SetWindow(time.Duration(*body.TimeoutMs) * time.Millisecond)
		}
		if body.SweepIntervalMs != nil {
			s.reaper.SetInterval(time.Duration(*body.SweepIntervalMs) * time.Millisecond)
		}
		writeJSON(w, map[string]any{"ok": true})
		s.log.Infow("config updated", "timeout", s.reaper.Window(), "sweep", s.reaper.Interval())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
