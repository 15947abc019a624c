package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// roomView /admin/rooms 的 JSON 形式
type roomView struct {
	ID        string   `json:"id"`
	State     string   `json:"state"`
	Players   []string `json:"players"`
	Max       uint32   `json:"maxPlayers"`
	Owner     string   `json:"owner"`
	Round     uint32   `json:"round"`
	NumRounds uint32   `json:"numRounds"`
}

// AdminRouter 管理与监控接口
//
//	GET /healthz       存活检查
//	GET /metrics       prometheus 指标
//	GET /admin/rooms   房间列表
//	GET /ws            WebSocket 接入
func (s *Server) AdminRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/admin/rooms", s.handleAdminRooms)
	r.Get("/ws", s.HandleWS)
	return r
}

func (s *Server) handleAdminRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.rooms.List()
	views := make([]roomView, 0, len(rooms))
	for _, info := range rooms {
		views = append(views, roomView{
			ID:        info.ID,
			State:     RoomState(info.State).String(),
			Players:   info.Players,
			Max:       info.MaxPlayers,
			Owner:     info.Owner,
			Round:     info.Round,
			NumRounds: info.NumRounds,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"online": s.Online(),
		"rooms":  views,
	})
}
