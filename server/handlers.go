package server

import (
	"context"
	"errors"

	"mazearena/protocol"
)

// 请求中的 USERNAME 一律忽略，身份只来自连接上绑定的用户

func (s *Server) handleLogin(ctx context.Context, req *Request) []protocol.Field {
	user, _ := req.Packet.String(protocol.TagUsername)
	pass, _ := req.Packet.String(protocol.TagPassword)
	if user == "" || pass == "" {
		return failure("missing credentials")
	}
	token, err := s.auth.Authenticate(ctx, user, pass)
	if err != nil {
		s.log.Infow("login rejected", "conn", req.Player.Conn.ID(), "user", user, "err", err)
		return failure("invalid credentials")
	}
	if err := s.bind(req.Player, user); err != nil {
		s.log.Infow("login refused", "conn", req.Player.Conn.ID(), "user", user, "err", err)
		return failure(err.Error())
	}
	s.log.Infow("login", "conn", req.Player.Conn.ID(), "user", user)
	return success(
		protocol.Field{Tag: protocol.TagJWTToken, Value: token},
		protocol.Field{Tag: protocol.TagUsername, Value: user},
	)
}

func (s *Server) handleRegister(ctx context.Context, req *Request) []protocol.Field {
	user, _ := req.Packet.String(protocol.TagUsername)
	pass, _ := req.Packet.String(protocol.TagPassword)
	if err := s.auth.Register(ctx, user, pass); err != nil {
		s.log.Infow("register rejected", "user", user, "err", err)
		return failure(err.Error())
	}
	s.log.Infow("registered", "user", user)
	return success(protocol.Field{Tag: protocol.TagUsername, Value: user})
}

func (s *Server) roomID(req *Request) (string, error) {
	id, _ := req.Packet.String(protocol.TagRoomID)
	if err := s.validate.Var(id, "required,max=64,printascii"); err != nil {
		return "", ErrInvalidRoomID
	}
	return id, nil
}

func (s *Server) handleCreateRoom(ctx context.Context, req *Request) []protocol.Field {
	id, err := s.roomID(req)
	if err != nil {
		return failure(err.Error())
	}
	r, err := s.rooms.Create(id, req.Player)
	if err != nil {
		return failure(err.Error())
	}
	s.log.Infow("room created", "room", id, "owner", req.Player.Username())
	return success(protocol.Field{Tag: protocol.TagRoom, Value: r.Info()})
}

func (s *Server) handleJoinRoom(ctx context.Context, req *Request) []protocol.Field {
	id, err := s.roomID(req)
	if err != nil {
		return failure(err.Error())
	}
	if _, err := s.rooms.Join(id, req.Player, req.commit); err != nil {
		return failure(err.Error())
	}
	s.log.Infow("room joined", "room", id, "user", req.Player.Username())
	return req.replied
}

func (s *Server) handleLeaveRoom(ctx context.Context, req *Request) []protocol.Field {
	id := req.Player.RoomID()
	if err := s.rooms.Leave(req.Player, req.commit); err != nil {
		return failure(err.Error())
	}
	s.log.Infow("room left", "room", id, "user", req.Player.Username())
	return req.replied
}

func (s *Server) handleListRooms(ctx context.Context, req *Request) []protocol.Field {
	return success(protocol.Field{Tag: protocol.TagRooms, Value: s.rooms.List()})
}

func (s *Server) currentRoom(p *Player) (*Room, error) {
	id := p.RoomID()
	if id == "" {
		return nil, ErrNotInRoom
	}
	r, ok := s.rooms.Get(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (s *Server) handleStartGame(ctx context.Context, req *Request) []protocol.Field {
	name := req.Player.Username()
	r, err := s.currentRoom(req.Player)
	if err != nil {
		return failure(err.Error())
	}
	if err := r.canStart(name); err != nil {
		return failure(err.Error())
	}
	// 迷宫在锁外生成
	g, err := s.games.NewGame(ctx)
	if err != nil {
		s.log.Errorw("generate game", "room", r.ID(), "err", err)
		return failure("could not create game")
	}
	if err := r.startGame(name, g, req.commit); err != nil {
		return failure(err.Error())
	}
	s.log.Infow("game started", "room", r.ID(), "owner", name, "size", []int{g.Width(), g.Height()})
	return req.replied
}

func (s *Server) handleMove(ctx context.Context, req *Request) []protocol.Field {
	raw, _ := req.Packet.String(protocol.TagDirection)
	dir, err := ParseDirection(raw)
	if err != nil {
		s.metrics.Moves.WithLabelValues("bad_direction").Inc()
		return failure(err.Error())
	}
	r, err := s.currentRoom(req.Player)
	if err != nil {
		return failure(err.Error())
	}
	name := req.Player.Username()
	res, err := r.movePlayer(name, dir, req.commit)
	if err != nil {
		if errors.Is(err, ErrInvalidMove) {
			s.metrics.Moves.WithLabelValues("rejected").Inc()
		}
		return failure(err.Error())
	}
	switch {
	case res.over:
		s.metrics.Moves.WithLabelValues("goal").Inc()
		s.log.Infow("game over", "room", r.ID(), "last_goal", name)
	case res.goal:
		s.metrics.Moves.WithLabelValues("goal").Inc()
		s.log.Infow("goal reached", "room", r.ID(), "user", name)
	default:
		s.metrics.Moves.WithLabelValues("accepted").Inc()
	}
	return req.replied
}
