package server

import (
	"strings"
	"sync"
)

// Direction 移动方向，线上以 DIRECTION 字符串传输
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "UP":
		return DirUp, nil
	case "DOWN":
		return DirDown, nil
	case "LEFT":
		return DirLeft, nil
	case "RIGHT":
		return DirRight, nil
	}
	return DirNone, ErrBadDirection
}

// Delta x 为列，y 为行，UP 使 y 减一
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case DirUp:
		return 0, -1
	case DirDown:
		return 0, 1
	case DirLeft:
		return -1, 0
	case DirRight:
		return 1, 0
	}
	return 0, 0
}

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "UP"
	case DirDown:
		return "DOWN"
	case DirLeft:
		return "LEFT"
	case DirRight:
		return "RIGHT"
	}
	return "NONE"
}

// Player 一条连接对应的会话：登录后绑定用户名，最多属于一个房间
type Player struct {
	Conn *ClientConn

	mu       sync.Mutex
	username string
	roomID   string
}

func newPlayer(conn *ClientConn) *Player {
	return &Player{Conn: conn}
}

func (p *Player) Username() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.username
}

func (p *Player) RoomID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID
}

// claimRoom 占住房间名额；已在房间中返回 false
func (p *Player) claimRoom(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roomID != "" {
		return false
	}
	p.roomID = id
	return true
}

func (p *Player) releaseRoom(id string) {
	p.mu.Lock()
	if p.roomID == id {
		p.roomID = ""
	}
	p.mu.Unlock()
}
