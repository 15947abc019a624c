package server

import (
	"sort"
	"sync"

	"mazearena/protocol"
)

// RoomManager 管理房间表。只在增删查时持有 mu，从不在持有 mu 时等待房间锁。
type RoomManager struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	numRounds int
	metrics   *Metrics
}

func NewRoomManager(numRounds int, m *Metrics) *RoomManager {
	return &RoomManager{
		rooms:     make(map[string]*Room),
		numRounds: numRounds,
		metrics:   m,
	}
}

// Create 新建房间，创建者成为房主；同名的 CLOSED 残留会被替换
func (m *RoomManager) Create(id string, owner *Player) (*Room, error) {
	if !owner.claimRoom(id) {
		return nil, ErrAlreadyInRoom
	}
	r := newRoom(id, owner, m.numRounds)

	m.mu.Lock()
	if old, ok := m.rooms[id]; ok && !old.Closed() {
		m.mu.Unlock()
		owner.releaseRoom(id)
		return nil, ErrRoomExists
	}
	m.rooms[id] = r
	n := len(m.rooms)
	m.mu.Unlock()

	m.metrics.Rooms.Set(float64(n))
	return r, nil
}

// Join 加入已有房间；房间在查找之后关闭时按不存在处理
func (m *RoomManager) Join(id string, p *Player, commit commitFunc) (*Room, error) {
	if !p.claimRoom(id) {
		return nil, ErrAlreadyInRoom
	}
	r, ok := m.Get(id)
	if !ok {
		p.releaseRoom(id)
		return nil, ErrRoomNotFound
	}
	if err := r.addPlayer(p, commit); err != nil {
		p.releaseRoom(id)
		return nil, err
	}
	return r, nil
}

// Leave 离开当前房间；最后一人离开后从表中删除该房间
func (m *RoomManager) Leave(p *Player, commit commitFunc) error {
	id := p.RoomID()
	if id == "" {
		return ErrNotInRoom
	}
	defer p.releaseRoom(id)

	m.mu.RLock()
	r, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotInRoom
	}
	closed, err := r.removePlayer(p.Username(), commit)
	if err != nil {
		return err
	}
	if closed {
		m.mu.Lock()
		// 只删自己关掉的那个实例，同名新房间不受影响
		if m.rooms[id] == r {
			delete(m.rooms, id)
		}
		n := len(m.rooms)
		m.mu.Unlock()
		m.metrics.Rooms.Set(float64(n))
	}
	return nil
}

// Get 已关闭的房间视为不存在
func (m *RoomManager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	r, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok || r.Closed() {
		return nil, false
	}
	return r, true
}

// List 按房间号排序的快照
func (m *RoomManager) List() []protocol.RoomInfo {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]protocol.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		info := r.Info()
		if RoomState(info.State) == StateClosed {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *RoomManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
