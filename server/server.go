package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mazearena/protocol"
)

type Options struct {
	IdleTimeout   time.Duration
	WriteTimeout  time.Duration
	SendQueueSize int

	// TracerProvider 为空时使用 otel 全局 provider
	TracerProvider trace.TracerProvider
}

func (o *Options) defaults() {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 64
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
}

// Server 接入连接，每个连接一个读协程 + 一个写协程
type Server struct {
	log      *zap.SugaredLogger
	auth     Authenticator
	rooms    *RoomManager
	games    GameFactory
	metrics  *Metrics
	tracer   trace.Tracer
	validate *validator.Validate
	opts     Options
	table    map[protocol.PacketID]route

	mu     sync.Mutex
	online map[string]*Player

	wg sync.WaitGroup
}

func New(log *zap.SugaredLogger, auth Authenticator, rooms *RoomManager, games GameFactory, m *Metrics, opts Options) *Server {
	opts.defaults()
	s := &Server{
		log:      log,
		auth:     auth,
		rooms:    rooms,
		games:    games,
		metrics:  m,
		tracer:   opts.TracerProvider.Tracer("mazearena/server"),
		validate: validator.New(),
		opts:     opts,
		online:   make(map[string]*Player),
	}
	s.table = s.routes()
	return s
}

func (s *Server) Rooms() *RoomManager { return s.rooms }

// Serve 阻塞接收连接，ctx 取消后关闭监听并等待所有连接退出
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Infof("mazearena listening on %s", ln.Addr())
	var tempDelay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.log.Warnw("accept error, retrying", "err", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			s.wg.Wait()
			return err
		}
		tempDelay = 0
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, NewStreamTransport(c))
		}()
	}
}

// ServeConn 运行单个连接直到对端断开、空闲超时或 ctx 取消
func (s *Server) ServeConn(ctx context.Context, t Transport) {
	conn := newClientConn(t, s.opts.SendQueueSize, s.opts.WriteTimeout, s.log, s.metrics)
	p := newPlayer(conn)
	stop := context.AfterFunc(ctx, conn.Close)
	defer stop()

	s.metrics.Connections.Inc()
	defer s.metrics.Connections.Dec()
	s.log.Infow("client connected", "conn", conn.ID(), "remote", t.RemoteAddr())

	go conn.writePump()
	defer s.cleanup(p)

	s.reply(p, protocol.SignalAccepted, []protocol.Field{{Tag: protocol.TagSuccess, Value: true}})

	for {
		_ = t.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		body, err := t.ReadFrame()
		if err != nil {
			s.logReadError(conn, err)
			return
		}
		if !s.dispatch(ctx, p, body) {
			return
		}
	}
}

func (s *Server) logReadError(c *ClientConn, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		s.log.Debugw("connection closed", "conn", c.ID())
	case errors.As(err, &ne) && ne.Timeout():
		s.log.Infow("idle timeout", "conn", c.ID())
	case errors.Is(err, protocol.ErrProtocol), errors.Is(err, io.ErrUnexpectedEOF):
		s.log.Warnw("bad frame, dropping connection", "conn", c.ID(), "err", err)
	default:
		s.log.Debugw("read failed", "conn", c.ID(), "err", err)
	}
}

// cleanup 断线视为正常离开：退出房间、解绑用户、关闭连接
func (s *Server) cleanup(p *Player) {
	if p.RoomID() != "" {
		err := s.rooms.Leave(p, func(_ []protocol.Field, out outbox) { out.deliver(s.log) })
		if err != nil {
			s.log.Warnw("leave on disconnect", "user", p.Username(), "err", err)
		}
	}
	s.unbind(p)
	p.Conn.Close()
	s.log.Infow("client disconnected", "conn", p.Conn.ID(), "user", p.Username())
}
