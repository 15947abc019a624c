package server

import (
	"context"

	"mazearena/protocol"
)

// Authenticator 账号服务的接入点
type Authenticator interface {
	Register(ctx context.Context, username, password string) error
	// Authenticate 成功返回新令牌
	Authenticate(ctx context.Context, username, password string) (string, error)
	// Verify 令牌无效或过期返回 false
	Verify(token string) (string, bool)
}

// gate 校验首字段 JWT_TOKEN，并要求令牌用户与连接上绑定的用户一致
func (s *Server) gate(p *Player, pkt *protocol.Packet) (string, bool) {
	if len(pkt.Fields) == 0 || pkt.Fields[0].Tag != protocol.TagJWTToken {
		return "missing token", false
	}
	token, _ := pkt.Fields[0].Value.(string)
	user, ok := s.auth.Verify(token)
	if !ok {
		return "invalid or expired token", false
	}
	bound := p.Username()
	if bound == "" {
		return "not logged in", false
	}
	if bound != user {
		return "token does not match session", false
	}
	return "", true
}

// bind 登录成功后把用户名绑定到连接；同名用户已在其他连接在线时拒绝
func (s *Server) bind(p *Player, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.username != "" && p.username != username {
		return ErrSessionBound
	}
	if other, ok := s.online[username]; ok && other != p {
		return ErrAlreadyOnline
	}
	s.online[username] = p
	p.username = username
	return nil
}

func (s *Server) unbind(p *Player) {
	name := p.Username()
	if name == "" {
		return
	}
	s.mu.Lock()
	if s.online[name] == p {
		delete(s.online, name)
	}
	s.mu.Unlock()
}

// Online 当前已登录的连接数
func (s *Server) Online() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.online)
}
