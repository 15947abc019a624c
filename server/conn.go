package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mazearena/protocol"
)

// ClientConn 连接的发送端：有界队列 + 独立写协程
type ClientConn struct {
	id           string
	t            Transport
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	shutOnce     sync.Once
	writeTimeout time.Duration
	log          *zap.SugaredLogger
	metrics      *Metrics
}

func newClientConn(t Transport, queue int, writeTimeout time.Duration, log *zap.SugaredLogger, m *Metrics) *ClientConn {
	return &ClientConn{
		id:           uuid.NewString(),
		t:            t,
		send:         make(chan []byte, queue),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		log:          log,
		metrics:      m,
	}
}

func (c *ClientConn) ID() string { return c.id }

// Enqueue 非阻塞入队；队列满说明对端读得太慢，直接断开
func (c *ClientConn) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.metrics.OutboundDrops.Inc()
		c.log.Warnw("send queue full, closing slow connection", "conn", c.id, "remote", c.t.RemoteAddr())
		// 只标记关闭，底层连接由写协程关闭
		c.markClosed()
		return false
	}
}

// Send 编码后入队
func (c *ClientConn) Send(p *protocol.Packet) error {
	frame, err := protocol.MarshalPacket(p)
	if err != nil {
		return err
	}
	c.Enqueue(frame)
	return nil
}

// Close 可重复调用，关闭底层连接并结束写协程
func (c *ClientConn) Close() {
	c.markClosed()
	c.closeTransport()
}

func (c *ClientConn) markClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *ClientConn) closeTransport() {
	c.shutOnce.Do(func() { _ = c.t.Close() })
}

func (c *ClientConn) Done() <-chan struct{} { return c.done }

// writePump 独立协程，把队列中的帧写到连接
func (c *ClientConn) writePump() {
	defer c.Close()
	for {
		select {
		case <-c.done:
			return
		default:
		}
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.t.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.t.WriteFrame(frame); err != nil {
				c.log.Debugw("write failed", "conn", c.id, "err", err)
				return
			}
		}
	}
}
