package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// 原生客户端不带 Origin
		return true
	},
}

// HandleWS WebSocket 接入，消息内容与 TLS 流上的帧完全相同
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.ServeConn(r.Context(), NewWSTransport(ws))
}
