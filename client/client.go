// Package client 是游戏协议的客户端：固定证书的 TLS 连接、后台读循环把服务端的包
// 放进事件通道，请求构造时自动把令牌放在第一个字段。
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"mazearena/protocol"
)

// ErrClosed 事件通道已关闭，原因见 Err
var ErrClosed = errors.New("client: connection closed")

// PinnedTLSConfig 只信任 certFile 中的证书。
// serverName 为空时只校验证书链，不校验主机名。
func PinnedTLSConfig(certFile, serverName string) (*tls.Config, error) {
	pem, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read pinned certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", certFile)
	}
	cfg := &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
	if serverName == "" {
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("server sent no certificate")
			}
			opts := x509.VerifyOptions{Roots: pool, Intermediates: x509.NewCertPool()}
			for _, c := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(c)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	}
	return cfg, nil
}

type Option func(*Client)

// WithEventBuffer 事件通道容量，默认 64
func WithEventBuffer(n int) Option {
	return func(c *Client) { c.events = make(chan *protocol.Packet, n) }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// WithWriteTimeout 单次发送的写超时，默认 10s
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

// Client 一条到服务端的连接。发送可并发调用。
type Client struct {
	conn         net.Conn
	log          *zap.SugaredLogger
	writeTimeout time.Duration

	wmu sync.Mutex

	events    chan *protocol.Packet
	done      chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
	err       error // readDone 关闭前写入

	mu    sync.Mutex
	token string
}

// Dial 建立 TLS 连接并启动读循环
func Dial(ctx context.Context, addr string, cfg *tls.Config, opts ...Option) (*Client, error) {
	d := tls.Dialer{Config: cfg}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts...), nil
}

// New 在已建立的连接上运行客户端
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:         conn,
		log:          zap.NewNop().Sugar(),
		writeTimeout: 10 * time.Second,
		done:         make(chan struct{}),
		readDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.events == nil {
		c.events = make(chan *protocol.Packet, 64)
	}
	go c.readLoop()
	return c
}

// Events 服务端发来的响应和信号，按到达顺序；连接结束后关闭
func (c *Client) Events() <-chan *protocol.Packet { return c.events }

// Err 事件通道关闭的原因
func (c *Client) Err() error {
	select {
	case <-c.readDone:
		return c.err
	default:
		return nil
	}
}

// Next 等待下一个包
func (c *Client) Next(ctx context.Context) (*protocol.Packet, error) {
	select {
	case p, ok := <-c.events:
		if !ok {
			return nil, ErrClosed
		}
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.readDone)
	for {
		body, err := protocol.ReadFrame(c.conn)
		if err != nil {
			c.err = err
			return
		}
		p, err := protocol.DecodePacket(body)
		if err != nil {
			c.log.Warnw("dropping undecodable packet", "err", err)
			continue
		}
		if p.ID == protocol.ResponseLoginResult {
			if tok, ok := p.String(protocol.TagJWTToken); ok {
				c.SetToken(tok)
			}
		}
		select {
		case c.events <- p:
		case <-c.done:
			c.err = net.ErrClosed
			return
		}
	}
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// Send 原样发送，不附加令牌
func (c *Client) Send(id protocol.PacketID, fields ...protocol.Field) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := protocol.WritePacket(c.conn, protocol.NewPacket(id, fields...)); err != nil {
		return fmt.Errorf("send %s: %w", id, err)
	}
	return nil
}

// Request 令牌作为第一个字段发送；未登录时原样发送
func (c *Client) Request(id protocol.PacketID, fields ...protocol.Field) error {
	if tok := c.Token(); tok != "" {
		fields = append([]protocol.Field{{Tag: protocol.TagJWTToken, Value: tok}}, fields...)
	}
	return c.Send(id, fields...)
}

func (c *Client) Login(username, password string) error {
	return c.Send(protocol.RequestLogin,
		protocol.Field{Tag: protocol.TagUsername, Value: username},
		protocol.Field{Tag: protocol.TagPassword, Value: password},
	)
}

func (c *Client) Register(username, password string) error {
	return c.Send(protocol.RequestRegister,
		protocol.Field{Tag: protocol.TagUsername, Value: username},
		protocol.Field{Tag: protocol.TagPassword, Value: password},
	)
}

func (c *Client) CreateRoom(id string) error {
	return c.Request(protocol.RequestCreateRoom, protocol.Field{Tag: protocol.TagRoomID, Value: id})
}

func (c *Client) JoinRoom(id string) error {
	return c.Request(protocol.RequestJoinRoom, protocol.Field{Tag: protocol.TagRoomID, Value: id})
}

func (c *Client) LeaveRoom() error { return c.Request(protocol.RequestLeaveRoom) }

func (c *Client) ListRooms() error { return c.Request(protocol.RequestListRooms) }

func (c *Client) StartGame() error { return c.Request(protocol.RequestStartGame) }

// Move direction 取 UP、DOWN、LEFT、RIGHT
func (c *Client) Move(direction string) error {
	return c.Request(protocol.RequestMove, protocol.Field{Tag: protocol.TagDirection, Value: direction})
}

// Close 可重复调用
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
