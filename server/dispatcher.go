package server

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mazearena/protocol"
)

// envelope 一个信号包及其接收者
type envelope struct {
	to     []*ClientConn
	packet *protocol.Packet
}

// outbox 在锁内收集、解锁后投递的信号
type outbox []envelope

func (o *outbox) add(to []*ClientConn, p *protocol.Packet) {
	if len(to) == 0 {
		return
	}
	*o = append(*o, envelope{to: to, packet: p})
}

// deliver 每个包只编码一次，接收者拿到同一份字节
func (o outbox) deliver(log *zap.SugaredLogger) {
	for _, env := range o {
		frame, err := protocol.MarshalPacket(env.packet)
		if err != nil {
			log.Errorw("encode signal", "packet", env.packet.ID, "err", err)
			continue
		}
		for _, c := range env.to {
			c.Enqueue(frame)
		}
	}
}

// commitFunc 由房间在锁内调用：reply 为给发起者的响应，out 为旁路广播
type commitFunc func(reply []protocol.Field, out outbox)

// Request 一次请求的上下文
type Request struct {
	Player *Player
	Packet *protocol.Packet

	srv       *Server
	response  protocol.PacketID
	committed bool
	replied   []protocol.Field
}

// commit 响应先入队，随后的信号按房间状态变化的顺序进入各连接队列
func (r *Request) commit(reply []protocol.Field, out outbox) {
	r.srv.reply(r.Player, r.response, reply)
	r.committed, r.replied = true, reply
	out.deliver(r.srv.log)
}

// HandlerFunc 拿到已解码的字段，返回响应字段
type HandlerFunc func(ctx context.Context, req *Request) []protocol.Field

type route struct {
	response protocol.PacketID
	public   bool // 不需要令牌
	handle   HandlerFunc
}

func (s *Server) routes() map[protocol.PacketID]route {
	return map[protocol.PacketID]route{
		protocol.RequestLogin:      {response: protocol.ResponseLoginResult, public: true, handle: s.handleLogin},
		protocol.RequestRegister:   {response: protocol.ResponseRegisterResult, public: true, handle: s.handleRegister},
		protocol.RequestCreateRoom: {response: protocol.ResponseCreateRoomResult, handle: s.handleCreateRoom},
		protocol.RequestJoinRoom:   {response: protocol.ResponseJoinRoomResult, handle: s.handleJoinRoom},
		protocol.RequestLeaveRoom:  {response: protocol.ResponseLeaveRoomResult, handle: s.handleLeaveRoom},
		protocol.RequestListRooms:  {response: protocol.ResponseListRoomsResult, handle: s.handleListRooms},
		protocol.RequestStartGame:  {response: protocol.ResponseStartGameResult, handle: s.handleStartGame},
		protocol.RequestMove:       {response: protocol.ResponseMoveResult, handle: s.handleMove},
	}
}

func failure(msg string) []protocol.Field {
	return []protocol.Field{
		{Tag: protocol.TagSuccess, Value: false},
		{Tag: protocol.TagErrorMessage, Value: msg},
	}
}

func success(fields ...protocol.Field) []protocol.Field {
	return append([]protocol.Field{{Tag: protocol.TagSuccess, Value: true}}, fields...)
}

// dispatch 处理一帧；返回 false 表示应关闭连接
func (s *Server) dispatch(ctx context.Context, p *Player, body []byte) (keep bool) {
	start := time.Now()
	label := "unknown"
	result := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorw("handler panic", "conn", p.Conn.ID(), "user", p.Username(),
				"panic", rec, "stack", string(debug.Stack()))
			result = "panic"
			keep = false
		}
		s.metrics.Packets.WithLabelValues(label, result).Inc()
		s.metrics.DispatchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	pkt, err := protocol.DecodePacket(body)
	if err != nil {
		result = "decode_error"
		s.log.Debugw("decode failed", "conn", p.Conn.ID(), "err", err)
		s.reply(p, protocol.ResponseError, failure(fmt.Sprintf("malformed packet: %v", err)))
		return true
	}
	rt, ok := s.table[pkt.ID]
	if !ok {
		result = "unknown_packet"
		s.reply(p, protocol.ResponseError, failure("unknown packet id"))
		return true
	}
	label = pkt.ID.String()

	ctx, span := s.tracer.Start(ctx, "dispatch "+label, trace.WithAttributes(
		attribute.String("mazearena.packet", label),
		attribute.String("mazearena.conn", p.Conn.ID()),
	))
	defer span.End()

	if !rt.public {
		if msg, ok := s.gate(p, pkt); !ok {
			result = "auth_error"
			span.SetStatus(codes.Error, msg)
			s.reply(p, protocol.ResponseAuthError, failure(msg))
			return true
		}
	}

	req := &Request{Player: p, Packet: pkt, srv: s, response: rt.response}
	fields := rt.handle(ctx, req)
	if ok, _ := (&protocol.Packet{Fields: fields}).Bool(protocol.TagSuccess); !ok {
		result = "fail"
		msg, _ := (&protocol.Packet{Fields: fields}).String(protocol.TagErrorMessage)
		span.SetStatus(codes.Error, msg)
	}
	span.SetAttributes(attribute.String("mazearena.user", p.Username()))

	if !req.committed {
		s.reply(p, rt.response, fields)
	}
	return true
}

func (s *Server) reply(p *Player, id protocol.PacketID, fields []protocol.Field) {
	if err := p.Conn.Send(protocol.NewPacket(id, fields...)); err != nil {
		s.log.Errorw("encode response", "packet", id, "err", err)
		_ = p.Conn.Send(protocol.NewPacket(id, failure("response too large")...))
	}
}
