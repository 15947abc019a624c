package server

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mazearena/protocol"
)

// testMaze 中心 (3,3) 为终点，出生点 (1,1) (5,1) (1,5) (5,5)
var testMaze = [][]uint8{
	{1, 1, 1, 1, 1, 1, 1},
	{1, 0, 0, 0, 0, 0, 1},
	{1, 0, 1, 0, 1, 0, 1},
	{1, 0, 0, 2, 0, 0, 1},
	{1, 0, 1, 0, 1, 0, 1},
	{1, 0, 0, 0, 0, 0, 1},
	{1, 1, 1, 1, 1, 1, 1},
}

// nopTransport 丢弃写入，读取阻塞到关闭
type nopTransport struct {
	closed chan struct{}
}

func newNopTransport() *nopTransport { return &nopTransport{closed: make(chan struct{})} }

func (n *nopTransport) ReadFrame() ([]byte, error) {
	<-n.closed
	return nil, errors.New("closed")
}
func (n *nopTransport) WriteFrame([]byte) error          { return nil }
func (n *nopTransport) SetReadDeadline(time.Time) error  { return nil }
func (n *nopTransport) SetWriteDeadline(time.Time) error { return nil }
func (n *nopTransport) RemoteAddr() string               { return "test" }
func (n *nopTransport) Close() error {
	select {
	case <-n.closed:
	default:
		close(n.closed)
	}
	return nil
}

func testMetrics() *Metrics { return NewMetrics(prometheus.NewRegistry()) }

func testPlayer(name string) *Player {
	conn := newClientConn(newNopTransport(), 64, time.Second, zap.NewNop().Sugar(), testMetrics())
	p := newPlayer(conn)
	p.username = name
	return p
}

func testGame(t *testing.T) *Game {
	t.Helper()
	g, err := NewGame(testMaze, make([]protocol.Colour, 4), make([]protocol.Colour, 3))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// signals 统计 outbox 中某类信号的数量
func signals(out outbox, id protocol.PacketID) []envelope {
	var got []envelope
	for _, env := range out {
		if env.packet.ID == id {
			got = append(got, env)
		}
	}
	return got
}

// capture 记录房间在锁内提交的响应和信号
type capture struct {
	reply []protocol.Field
	out   outbox
}

func (c *capture) commit(reply []protocol.Field, out outbox) {
	c.reply = reply
	c.out = append(c.out, out...)
}

func join(r *Room, p *Player) (outbox, error) {
	var c capture
	err := r.addPlayer(p, c.commit)
	return c.out, err
}

func leave(r *Room, name string) (outbox, bool, error) {
	var c capture
	closed, err := r.removePlayer(name, c.commit)
	return c.out, closed, err
}

func start(r *Room, name string, g *Game) (outbox, error) {
	var c capture
	err := r.startGame(name, g, c.commit)
	return c.out, err
}

func move(r *Room, name string, d Direction) (outbox, moveResult, error) {
	var c capture
	res, err := r.movePlayer(name, d, c.commit)
	return c.out, res, err
}

func TestRoomCapacityAndState(t *testing.T) {
	players := []*Player{testPlayer("p1"), testPlayer("p2"), testPlayer("p3"), testPlayer("p4")}
	r := newRoom("r", players[0], 5)

	wantStates := []RoomState{StateWaiting, StateWaiting, StateFull}
	for i, p := range players[1:] {
		out, err := join(r, p)
		if err != nil {
			t.Fatalf("addPlayer(%s) error = %v", p.Username(), err)
		}
		if got := r.State(); got != wantStates[i] {
			t.Errorf("after %d players state = %s, want %s", i+2, got, wantStates[i])
		}
		joins := signals(out, protocol.SignalPlayerJoin)
		if len(joins) != 1 || len(joins[0].to) != i+1 {
			t.Errorf("join signal recipients = %v, want %d others", joins, i+1)
		}
	}
	if _, err := join(r, testPlayer("p5")); !errors.Is(err, ErrRoomFull) {
		t.Errorf("addPlayer(5th) error = %v, want ErrRoomFull", err)
	}
	if info := r.Info(); info.CurrentPlayers != 4 || info.MaxPlayers != 4 {
		t.Errorf("Info() = %+v", info)
	}

	if _, closed, err := leave(r, "p2"); err != nil || closed {
		t.Fatalf("removePlayer() = %v, %v", closed, err)
	}
	if r.State() != StateWaiting {
		t.Errorf("state after leave = %s, want WAITING", r.State())
	}
	if _, _, err := leave(r, "p2"); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("removePlayer(twice) error = %v", err)
	}
	for _, name := range []string{"p1", "p3"} {
		if _, closed, _ := leave(r, name); closed {
			t.Fatalf("room closed early at %s", name)
		}
	}
	if r.Info().Owner != "p4" {
		t.Errorf("owner = %s, want p4", r.Info().Owner)
	}
	out, closed, err := leave(r, "p4")
	if err != nil || !closed || len(out) != 0 {
		t.Fatalf("last removePlayer() = %v, %v, %v", out, closed, err)
	}
	if r.State() != StateClosed || !r.Closed() {
		t.Errorf("state = %s, want CLOSED", r.State())
	}
	if _, err := join(r, testPlayer("p6")); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("addPlayer(closed) error = %v", err)
	}
}

func TestRoomOwnershipPassesInJoinOrder(t *testing.T) {
	r := newRoom("r", testPlayer("a"), 5)
	join(r, testPlayer("b"))
	join(r, testPlayer("c"))
	leave(r, "a")
	if got := r.Info().Owner; got != "b" {
		t.Errorf("owner = %s, want b", got)
	}
}

func TestRoomStartGame(t *testing.T) {
	owner, guest := testPlayer("owner"), testPlayer("guest")
	r := newRoom("r", owner, 5)

	if _, err := start(r, "owner", testGame(t)); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Errorf("start alone error = %v, want ErrNotEnoughPlayers", err)
	}
	join(r, guest)
	if _, err := start(r, "guest", testGame(t)); !errors.Is(err, ErrNotOwner) {
		t.Errorf("start by guest error = %v, want ErrNotOwner", err)
	}

	out, err := start(r, "owner", testGame(t))
	if err != nil {
		t.Fatalf("startGame() error = %v", err)
	}
	if r.State() != StatePlaying {
		t.Errorf("state = %s, want PLAYING", r.State())
	}
	starts := signals(out, protocol.SignalStartGame)
	if len(starts) != 1 || len(starts[0].to) != 2 {
		t.Fatalf("start signals = %+v", starts)
	}
	info := starts[0].packet.Fields[0].Value.(protocol.GameInfo)
	want := []protocol.Position{{X: 1, Y: 1}, {X: 5, Y: 1}, {X: 1, Y: 5}, {X: 5, Y: 5}}
	for i, p := range want {
		if info.PlayerPositions[i] != p {
			t.Errorf("start %d = %+v, want %+v", i, info.PlayerPositions[i], p)
		}
	}
	if _, err := start(r, "owner", testGame(t)); !errors.Is(err, ErrGameInProgress) {
		t.Errorf("second start error = %v", err)
	}

	// 满员开局进入 PLAYING_FULL
	full := newRoom("f", testPlayer("a"), 5)
	for _, n := range []string{"b", "c", "d"} {
		join(full, testPlayer(n))
	}
	if _, err := start(full, "a", testGame(t)); err != nil {
		t.Fatal(err)
	}
	if full.State() != StatePlayingFull {
		t.Errorf("state = %s, want PLAYING_FULL", full.State())
	}
	leave(full, "d")
	if full.State() != StatePlaying {
		t.Errorf("state after leave = %s, want PLAYING", full.State())
	}
}

func startedRoom(t *testing.T, rounds int) *Room {
	t.Helper()
	r := newRoom("r", testPlayer("alice"), rounds)
	join(r, testPlayer("bob"))
	if _, err := start(r, "alice", testGame(t)); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestMoveRejectsWallAndBounds(t *testing.T) {
	r := startedRoom(t, 5)

	tests := []struct {
		dir  Direction
		want error
	}{
		{DirUp, ErrInvalidMove},   // (1,0) 是墙
		{DirLeft, ErrInvalidMove}, // (0,1) 是墙
		{DirNone, ErrBadDirection},
	}
	for _, tc := range tests {
		out, _, err := move(r, "alice", tc.dir)
		if !errors.Is(err, tc.want) {
			t.Errorf("move %s error = %v, want %v", tc.dir, err, tc.want)
		}
		if len(out) != 0 {
			t.Errorf("move %s published %d signals", tc.dir, len(out))
		}
	}
	if pos := r.members["alice"].pos; pos != (protocol.Position{X: 1, Y: 1}) {
		t.Errorf("position after rejected moves = %+v", pos)
	}

	out, res, err := move(r, "alice", DirRight)
	if err != nil {
		t.Fatalf("move right error = %v", err)
	}
	if res.pos != (protocol.Position{X: 2, Y: 1}) || res.goal {
		t.Errorf("move result = %+v", res)
	}
	if n := len(signals(out, protocol.SignalUpdatePositions)); n != 1 {
		t.Errorf("position signals = %d, want 1", n)
	}
	if _, _, err := move(r, "carol", DirRight); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("move by stranger error = %v", err)
	}
}

func TestMoveBeforeStart(t *testing.T) {
	r := newRoom("r", testPlayer("alice"), 5)
	if _, _, err := move(r, "alice", DirRight); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("move error = %v, want ErrNotPlaying", err)
	}
}

func walkToGoal(t *testing.T, r *Room, name string) outbox {
	t.Helper()
	var last outbox
	for _, d := range []Direction{DirDown, DirDown, DirRight, DirRight} {
		out, _, err := move(r, name, d)
		if err != nil {
			t.Fatalf("move %s error = %v", d, err)
		}
		last = out
	}
	return last
}

func TestGoalEmitsExactlyOneScoreSignal(t *testing.T) {
	r := startedRoom(t, 5)
	out := walkToGoal(t, r, "alice")

	scores := signals(out, protocol.SignalScoreUpdate)
	if len(scores) != 1 {
		t.Fatalf("score signals = %d, want 1", len(scores))
	}
	p := scores[0].packet
	if user, _ := p.String(protocol.TagUsername); user != "alice" {
		t.Errorf("USERNAME = %q", user)
	}
	if score, _ := p.Uint32(protocol.TagScore); score != 1 {
		t.Errorf("SCORE = %d", score)
	}
	if round, _ := p.Uint32(protocol.TagRound); round != 1 {
		t.Errorf("ROUND = %d", round)
	}
	if len(scores[0].to) != 2 {
		t.Errorf("score recipients = %d, want 2", len(scores[0].to))
	}
	if n := len(signals(out, protocol.SignalGameOver)); n != 0 {
		t.Errorf("game over after 1 of 5 rounds")
	}
	if pos := r.members["alice"].pos; pos != (protocol.Position{X: 1, Y: 1}) {
		t.Errorf("alice not reset to start: %+v", pos)
	}
	if r.Scores()["alice"] != 1 {
		t.Errorf("Scores() = %v", r.Scores())
	}
}

func TestGameEndsAfterLastRound(t *testing.T) {
	r := startedRoom(t, 1)
	out := walkToGoal(t, r, "alice")

	over := signals(out, protocol.SignalGameOver)
	if len(over) != 1 {
		t.Fatalf("game over signals = %d, want 1", len(over))
	}
	if winner, _ := over[0].packet.String(protocol.TagUsername); winner != "alice" {
		t.Errorf("winner = %q", winner)
	}
	if r.State() != StateEnded {
		t.Errorf("state = %s, want ENDED", r.State())
	}
	if _, _, err := move(r, "alice", DirDown); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("move after end error = %v", err)
	}
	// 结束后房主可以再开一局
	if _, err := start(r, "alice", testGame(t)); err != nil {
		t.Errorf("restart error = %v", err)
	}
}

func TestJoinRunningGame(t *testing.T) {
	r := startedRoom(t, 5)
	late := testPlayer("carol")
	out, err := join(r, late)
	if err != nil {
		t.Fatalf("addPlayer() error = %v", err)
	}
	starts := signals(out, protocol.SignalStartGame)
	if len(starts) != 1 || len(starts[0].to) != 1 || starts[0].to[0] != late.Conn {
		t.Fatalf("start signal = %+v, want only the joiner", starts)
	}
	if pos := r.members["carol"].pos; pos != (protocol.Position{X: 1, Y: 5}) {
		t.Errorf("joiner position = %+v, want slot 2 start", pos)
	}
	if r.State() != StatePlaying {
		t.Errorf("state = %s", r.State())
	}
}

// lastPositions 取出连接队列里最后一个 UPDATE_POSITIONS
func lastPositions(t *testing.T, c *ClientConn) []protocol.Position {
	t.Helper()
	var last []protocol.Position
	for len(c.send) > 0 {
		frame := <-c.send
		p, err := protocol.DecodePacket(frame[protocol.LengthPrefixSize:])
		if err != nil {
			t.Fatalf("queued frame: %v", err)
		}
		if p.ID == protocol.SignalUpdatePositions {
			v, _ := p.Value(protocol.TagPositions)
			last = v.([]protocol.Position)
		}
	}
	return last
}

// 两人并发移动时，旁观成员最后收到的坐标必须等于房间的最终状态
func TestConcurrentMovesKeepSignalOrder(t *testing.T) {
	log := zap.NewNop().Sugar()
	m := testMetrics()
	deliver := func(_ []protocol.Field, out outbox) { out.deliver(log) }

	for trial := 0; trial < 20; trial++ {
		players := map[string]*Player{}
		for _, name := range []string{"alice", "bob", "carol"} {
			p := newPlayer(newClientConn(newNopTransport(), 1024, time.Second, log, m))
			p.username = name
			players[name] = p
		}
		r := newRoom("r", players["alice"], 5)
		if err := r.addPlayer(players["bob"], deliver); err != nil {
			t.Fatal(err)
		}
		if err := r.addPlayer(players["carol"], deliver); err != nil {
			t.Fatal(err)
		}
		if err := r.startGame("alice", testGame(t), deliver); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		walk := func(p *Player, dirs [2]Direction) {
			defer wg.Done()
			// 与 dispatch 相同：先回复发起者，再投递信号
			commit := func(reply []protocol.Field, out outbox) {
				_ = p.Conn.Send(protocol.NewPacket(protocol.ResponseMoveResult, reply...))
				out.deliver(log)
			}
			for i := 0; i < 100; i++ {
				if _, err := r.movePlayer(p.Username(), dirs[i%2], commit); err != nil {
					t.Errorf("%s move %d: %v", p.Username(), i, err)
					return
				}
			}
		}
		wg.Add(2)
		go walk(players["alice"], [2]Direction{DirRight, DirLeft})
		go walk(players["bob"], [2]Direction{DirLeft, DirRight})
		wg.Wait()
		// 最后两步同时发生，各自停在中间格
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.movePlayer("alice", DirRight, deliver)
		}()
		go func() {
			defer wg.Done()
			r.movePlayer("bob", DirLeft, deliver)
		}()
		wg.Wait()

		want := []protocol.Position{
			r.members["alice"].pos,
			r.members["bob"].pos,
			r.members["carol"].pos,
		}
		if got := lastPositions(t, players["carol"].Conn); !reflect.DeepEqual(got, want) {
			t.Fatalf("trial %d: last positions seen = %v, room state = %v", trial, got, want)
		}
	}
}
