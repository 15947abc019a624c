package server

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"mazearena/protocol"
)

var errNotBinary = errors.New("websocket message is not binary")

// Transport 承载长度前缀帧的双向连接
type Transport interface {
	// ReadFrame 返回去掉长度前缀的帧体
	ReadFrame() ([]byte, error)
	// WriteFrame 写出完整帧（含前缀），只由写协程调用
	WriteFrame(frame []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// streamTransport TCP / TLS 字节流
type streamTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

func NewStreamTransport(conn net.Conn) Transport {
	return &streamTransport{conn: conn, r: bufio.NewReader(conn)}
}

func (s *streamTransport) ReadFrame() ([]byte, error) { return protocol.ReadFrame(s.r) }

func (s *streamTransport) WriteFrame(frame []byte) error {
	_, err := s.conn.Write(frame)
	return err
}

func (s *streamTransport) SetReadDeadline(t time.Time) error  { return s.conn.SetReadDeadline(t) }
func (s *streamTransport) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }
func (s *streamTransport) RemoteAddr() string                 { return s.conn.RemoteAddr().String() }
func (s *streamTransport) Close() error                       { return s.conn.Close() }

// wsTransport 每条 WebSocket 二进制消息恰好是一帧
type wsTransport struct {
	ws *websocket.Conn
}

func NewWSTransport(ws *websocket.Conn) Transport {
	ws.SetReadLimit(protocol.MaxFrameSize)
	return &wsTransport{ws: ws}
}

func (w *wsTransport) ReadFrame() ([]byte, error) {
	mt, data, err := w.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mt != websocket.BinaryMessage {
		return nil, errNotBinary
	}
	r := bytes.NewReader(data)
	body, err := protocol.ReadFrame(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if r.Len() != 0 {
		return nil, protocol.ErrInvalidFrameLength
	}
	return body, nil
}

func (w *wsTransport) WriteFrame(frame []byte) error {
	return w.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsTransport) SetReadDeadline(t time.Time) error  { return w.ws.SetReadDeadline(t) }
func (w *wsTransport) SetWriteDeadline(t time.Time) error { return w.ws.SetWriteDeadline(t) }
func (w *wsTransport) RemoteAddr() string                 { return w.ws.RemoteAddr().String() }
func (w *wsTransport) Close() error                       { return w.ws.Close() }
