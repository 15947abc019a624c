package server

import (
	"fmt"
	"sync"
	"sync/atomic"

	"mazearena/maze"
	"mazearena/protocol"
)

const (
	MaxPlayers = 4
	MinPlayers = 2
)

// RoomState 线上取值即 STATE 字段
type RoomState uint32

const (
	StateWaiting     RoomState = 0x5001
	StateFull        RoomState = 0x5002
	StateStarting    RoomState = 0x5003
	StatePlaying     RoomState = 0x5004
	StatePlayingFull RoomState = 0x5005
	StatePaused      RoomState = 0x5006
	StateEnded       RoomState = 0x5007
	StateClosed      RoomState = 0x5008
)

var stateNames = map[RoomState]string{
	StateWaiting:     "WAITING",
	StateFull:        "FULL",
	StateStarting:    "STARTING",
	StatePlaying:     "PLAYING",
	StatePlayingFull: "PLAYING_FULL",
	StatePaused:      "PAUSED",
	StateEnded:       "ENDED",
	StateClosed:      "CLOSED",
}

func (s RoomState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("RoomState(0x%04X)", uint32(s))
}

func (s RoomState) playing() bool { return s == StatePlaying || s == StatePlayingFull }

type member struct {
	player *Player
	slot   int
	pos    protocol.Position
	score  uint32
}

// Room 房间状态全部由 mu 保护。变更成功后在锁内调用 commit：
// 入队不阻塞，各连接收到的信号顺序与状态变化顺序一致
type Room struct {
	mu sync.Mutex

	id         string
	maxPlayers int
	minPlayers int
	numRounds  int

	owner   string
	state   RoomState
	members map[string]*member
	order   []string // 加入顺序
	round   int
	game    *Game

	closed atomic.Bool
}

// newRoom 创建者即第一个成员和房主
func newRoom(id string, owner *Player, numRounds int) *Room {
	name := owner.Username()
	r := &Room{
		id:         id,
		maxPlayers: MaxPlayers,
		minPlayers: MinPlayers,
		numRounds:  numRounds,
		owner:      name,
		state:      StateWaiting,
		members:    map[string]*member{name: {player: owner, slot: 0}},
		order:      []string{name},
	}
	return r
}

func (r *Room) ID() string { return r.id }

// Closed 无锁读取，CLOSED 之后房间不会再复活
func (r *Room) Closed() bool { return r.closed.Load() }

func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) Info() protocol.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info()
}

func (r *Room) info() protocol.RoomInfo {
	players := make([]string, len(r.order))
	copy(players, r.order)
	return protocol.RoomInfo{
		ID:             r.id,
		CurrentPlayers: uint32(len(r.members)),
		MaxPlayers:     uint32(r.maxPlayers),
		MinPlayers:     uint32(r.minPlayers),
		State:          uint32(r.state),
		Players:        players,
		Round:          uint32(r.round),
		NumRounds:      uint32(r.numRounds),
		Owner:          r.owner,
	}
}

// conns 成员连接快照，except 为空表示全部
func (r *Room) conns(except string) []*ClientConn {
	out := make([]*ClientConn, 0, len(r.order))
	for _, name := range r.order {
		if name == except {
			continue
		}
		out = append(out, r.members[name].player.Conn)
	}
	return out
}

func (r *Room) freeSlot() int {
	used := make([]bool, r.maxPlayers)
	for _, m := range r.members {
		used[m.slot] = true
	}
	for i, u := range used {
		if !u {
			return i
		}
	}
	return -1
}

func (r *Room) positionsSignal() *protocol.Packet {
	pos := make([]protocol.Position, 0, len(r.order))
	for _, name := range r.order {
		pos = append(pos, r.members[name].pos)
	}
	players := make([]string, len(r.order))
	copy(players, r.order)
	return protocol.NewPacket(protocol.SignalUpdatePositions,
		protocol.Field{Tag: protocol.TagPositions, Value: pos},
		protocol.Field{Tag: protocol.TagPlayers, Value: players},
	)
}

func (r *Room) resetPositions() {
	for _, m := range r.members {
		m.pos = r.game.Starts[m.slot]
	}
}

// addPlayer 仅在 WAITING 或 PLAYING 时允许
func (r *Room) addPlayer(p *Player, commit commitFunc) error {
	name := p.Username()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateClosed:
		return ErrRoomNotFound
	case StateFull, StatePlayingFull:
		return ErrRoomFull
	case StateWaiting, StatePlaying:
	default:
		return ErrRoomNotJoinable
	}
	if _, ok := r.members[name]; ok {
		return ErrAlreadyInRoom
	}
	slot := r.freeSlot()
	if slot < 0 {
		return ErrRoomFull
	}

	m := &member{player: p, slot: slot}
	r.members[name] = m
	r.order = append(r.order, name)
	if len(r.members) == r.maxPlayers {
		if r.state == StateWaiting {
			r.state = StateFull
		} else {
			r.state = StatePlayingFull
		}
	}

	var out outbox
	out.add(r.conns(name), protocol.NewPacket(protocol.SignalPlayerJoin,
		protocol.Field{Tag: protocol.TagUsername, Value: name},
		protocol.Field{Tag: protocol.TagRoom, Value: r.info()},
	))
	if r.state.playing() {
		m.pos = r.game.Starts[slot]
		out.add([]*ClientConn{p.Conn}, protocol.NewPacket(protocol.SignalStartGame,
			protocol.Field{Tag: protocol.TagGameInfo, Value: r.game.Info()},
			protocol.Field{Tag: protocol.TagRoom, Value: r.info()},
		))
		out.add(r.conns(""), r.positionsSignal())
	}
	commit(success(protocol.Field{Tag: protocol.TagRoom, Value: r.info()}), out)
	return nil
}

// removePlayer 最后一人离开时房间进入 CLOSED，closed 返回 true
func (r *Room) removePlayer(name string, commit commitFunc) (closed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[name]; !ok {
		return false, ErrNotInRoom
	}
	delete(r.members, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if len(r.members) == 0 {
		r.state = StateClosed
		r.owner = ""
		r.game = nil
		r.closed.Store(true)
		commit(success(protocol.Field{Tag: protocol.TagRoomID, Value: r.id}), nil)
		return true, nil
	}

	switch r.state {
	case StateFull:
		r.state = StateWaiting
	case StatePlayingFull:
		r.state = StatePlaying
	}
	if r.owner == name {
		r.owner = r.order[0]
	}

	var out outbox
	out.add(r.conns(""), protocol.NewPacket(protocol.SignalPlayerLeave,
		protocol.Field{Tag: protocol.TagUsername, Value: name},
		protocol.Field{Tag: protocol.TagRoom, Value: r.info()},
	))
	if r.state.playing() {
		out.add(r.conns(""), r.positionsSignal())
	}
	commit(success(protocol.Field{Tag: protocol.TagRoomID, Value: r.id}), out)
	return false, nil
}

// canStart 生成迷宫前的预检，startGame 会在锁内再检查一次
func (r *Room) canStart(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkStart(name)
}

func (r *Room) checkStart(name string) error {
	if _, ok := r.members[name]; !ok {
		return ErrNotInRoom
	}
	if r.owner != name {
		return ErrNotOwner
	}
	switch r.state {
	case StateWaiting, StateFull, StateEnded:
	case StateClosed:
		return ErrRoomNotFound
	default:
		return ErrGameInProgress
	}
	if len(r.members) < r.minPlayers {
		return ErrNotEnoughPlayers
	}
	return nil
}

// startGame 经 STARTING 进入 PLAYING 或 PLAYING_FULL，所有成员收到同一份开局包
func (r *Room) startGame(name string, g *Game, commit commitFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkStart(name); err != nil {
		return err
	}
	r.state = StateStarting
	r.game = g
	r.round = 0
	for _, m := range r.members {
		m.score = 0
	}
	r.resetPositions()
	if len(r.members) == r.maxPlayers {
		r.state = StatePlayingFull
	} else {
		r.state = StatePlaying
	}

	var out outbox
	all := r.conns("")
	out.add(all, protocol.NewPacket(protocol.SignalStartGame,
		protocol.Field{Tag: protocol.TagGameInfo, Value: g.Info()},
		protocol.Field{Tag: protocol.TagRoom, Value: r.info()},
	))
	out.add(all, r.positionsSignal())
	commit(success(protocol.Field{Tag: protocol.TagRoom, Value: r.info()}), out)
	return nil
}

// moveResult 描述一次被接受的移动
type moveResult struct {
	pos  protocol.Position
	goal bool
	over bool
}

// movePlayer 目标越界或是墙时拒绝，状态不变
func (r *Room) movePlayer(name string, dir Direction, commit commitFunc) (moveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.playing() {
		return moveResult{}, ErrNotPlaying
	}
	m, ok := r.members[name]
	if !ok {
		return moveResult{}, ErrNotInRoom
	}
	dx, dy := dir.Delta()
	if dx == 0 && dy == 0 {
		return moveResult{}, ErrBadDirection
	}
	x, y := int(m.pos.X)+dx, int(m.pos.Y)+dy
	c, ok := r.game.cell(x, y)
	if !ok || (c != maze.Open && c != maze.Goal) {
		return moveResult{}, ErrInvalidMove
	}

	m.pos = protocol.Position{X: uint16(x), Y: uint16(y)}
	all := r.conns("")
	var out outbox
	out.add(all, r.positionsSignal())
	res := moveResult{pos: m.pos}
	if c != maze.Goal {
		commit(success(protocol.Field{Tag: protocol.TagPosition, Value: res.pos}), out)
		return res, nil
	}

	m.score++
	r.round++
	res.goal = true
	out.add(all, protocol.NewPacket(protocol.SignalScoreUpdate,
		protocol.Field{Tag: protocol.TagUsername, Value: name},
		protocol.Field{Tag: protocol.TagScore, Value: m.score},
		protocol.Field{Tag: protocol.TagRound, Value: uint32(r.round)},
	))
	r.resetPositions()
	res.pos = m.pos
	out.add(all, r.positionsSignal())

	if r.round >= r.numRounds {
		r.state = StateEnded
		res.over = true
		out.add(all, protocol.NewPacket(protocol.SignalGameOver,
			protocol.Field{Tag: protocol.TagUsername, Value: r.leader()},
			protocol.Field{Tag: protocol.TagRoom, Value: r.info()},
		))
	}
	commit(success(protocol.Field{Tag: protocol.TagPosition, Value: res.pos}), out)
	return res, nil
}

// leader 最高分，同分取先加入者
func (r *Room) leader() string {
	best := ""
	var top uint32
	for _, name := range r.order {
		if s := r.members[name].score; best == "" || s > top {
			best, top = name, s
		}
	}
	return best
}

// Scores 当前比分
func (r *Room) Scores() map[string]uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint32, len(r.members))
	for name, m := range r.members {
		out[name] = m.score
	}
	return out
}
