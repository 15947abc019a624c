package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"mazearena/protocol"
)

func discard([]protocol.Field, outbox) {}

func TestManagerCreateJoinLeave(t *testing.T) {
	m := NewRoomManager(5, testMetrics())
	alice, bob := testPlayer("alice"), testPlayer("bob")

	if _, err := m.Create("r1", alice); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.Create("r1", bob); !errors.Is(err, ErrRoomExists) {
		t.Errorf("Create(dup) error = %v, want ErrRoomExists", err)
	}
	if bob.RoomID() != "" {
		t.Errorf("failed create left bob in %q", bob.RoomID())
	}
	if _, err := m.Create("r2", alice); !errors.Is(err, ErrAlreadyInRoom) {
		t.Errorf("Create(second room) error = %v, want ErrAlreadyInRoom", err)
	}
	if _, err := m.Join("nope", bob, discard); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Join(missing) error = %v", err)
	}
	if _, err := m.Join("r1", bob, discard); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if _, err := m.Join("r1", bob, discard); !errors.Is(err, ErrAlreadyInRoom) {
		t.Errorf("Join(twice) error = %v", err)
	}
	if rooms := m.List(); len(rooms) != 1 || rooms[0].CurrentPlayers != 2 {
		t.Errorf("List() = %+v", rooms)
	}

	var c capture
	if err := m.Leave(alice, c.commit); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if leaves := signals(c.out, protocol.SignalPlayerLeave); len(leaves) != 1 || leaves[0].to[0] != bob.Conn {
		t.Errorf("leave signal = %+v", leaves)
	}
	if err := m.Leave(alice, discard); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("Leave(twice) error = %v", err)
	}
	if err := m.Leave(bob, discard); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after last leave", m.Len())
	}
	if _, ok := m.Get("r1"); ok {
		t.Error("closed room still reachable")
	}
	if _, err := m.Create("r1", bob); err != nil {
		t.Errorf("Create() after close error = %v", err)
	}
}

func TestManagerReplacesClosedLeftover(t *testing.T) {
	m := NewRoomManager(5, testMetrics())
	alice := testPlayer("alice")
	old, _ := m.Create("r", alice)
	// 模拟 removePlayer 已关闭房间但还没从表中删除
	leave(old, "alice")
	alice.releaseRoom("r")

	bob := testPlayer("bob")
	fresh, err := m.Create("r", bob)
	if err != nil {
		t.Fatalf("Create() over closed room error = %v", err)
	}
	if fresh == old {
		t.Fatal("closed room was reused")
	}
	if _, err := m.Join("r", alice, discard); err != nil {
		t.Errorf("Join(fresh) error = %v", err)
	}
}

// 并发加入、离开同一房间号，配合 -race 检查锁
func TestManagerConcurrentJoinLeave(t *testing.T) {
	m := NewRoomManager(5, testMetrics())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := testPlayer(fmt.Sprintf("p%d", i))
			for j := 0; j < 50; j++ {
				if _, err := m.Create("hot", p); err != nil {
					if _, err := m.Join("hot", p, discard); err != nil {
						continue
					}
				}
				_ = m.List()
				if err := m.Leave(p, discard); err != nil {
					t.Errorf("Leave() error = %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after everyone left", m.Len())
	}
}
