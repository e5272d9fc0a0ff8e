package rooms_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/jovemegidio/concord-sync/internal/domain"
	"github.com/jovemegidio/concord-sync/internal/rooms"
)

// collectSink копит доставленные сообщения; fail имитирует мёртвый сокет.
type collectSink struct {
	mu   sync.Mutex
	msgs []domain.Message
	fail bool
}

func (s *collectSink) Send(m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *collectSink) Close() error { return nil }

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func newConn(id string) (*domain.Connection, *collectSink) {
	sink := &collectSink{}
	c := domain.NewConnection(id, "app", sink)
	c.TenantID = "t1"
	c.UserID = "u-" + id
	return c, sink
}

func TestJoinLeave_Idempotent(t *testing.T) {
	r := rooms.NewRouter()
	c, _ := newConn("c1")
	room := domain.ChannelRoom("general")

	if !r.Join(c, room) {
		t.Fatal("first join should add the connection")
	}
	if r.Join(c, room) {
		t.Fatal("second join of the same room must be a no-op")
	}
	if got := r.MemberCount(room); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}

	if !r.Leave(c, room) {
		t.Fatal("leave of a joined room should succeed")
	}
	if r.Leave(c, room) {
		t.Fatal("second leave must be a no-op")
	}
	if got := r.MemberCount(room); got != 0 {
		t.Fatalf("room should be gone, got %d members", got)
	}
	if c.InRoom(room) {
		t.Fatal("connection should not track a left room")
	}
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	r := rooms.NewRouter()
	room := domain.ChannelRoom("general")

	sender, senderSink := newConn("c1")
	other, otherSink := newConn("c2")
	r.Join(sender, room)
	r.Join(other, room)

	r.Broadcast(room, domain.Message{Type: "message:created"}, sender)

	if senderSink.count() != 0 {
		t.Fatal("sender must be excluded from its own broadcast")
	}
	if otherSink.count() != 1 {
		t.Fatalf("other member should receive 1 message, got %d", otherSink.count())
	}
}

func TestBroadcast_EmptyRoomNoop(t *testing.T) {
	r := rooms.NewRouter()
	// не должно ни паниковать, ни создавать комнату
	r.Broadcast(domain.ChannelRoom("empty"), domain.Message{Type: "x"}, nil)
	if got := r.MemberCount(domain.ChannelRoom("empty")); got != 0 {
		t.Fatalf("broadcast must not materialize a room, got %d", got)
	}
}

func TestBroadcast_EvictsDeadConnection(t *testing.T) {
	r := rooms.NewRouter()
	room := domain.ChannelRoom("general")

	alive, aliveSink := newConn("c1")
	dead, deadSink := newConn("c2")
	deadSink.fail = true

	var dropped []*domain.Connection
	r.OnDrop(func(c *domain.Connection) { dropped = append(dropped, c) })

	r.Join(alive, room)
	r.Join(dead, room)
	r.Join(dead, domain.VoiceRoom("general"))

	r.Broadcast(room, domain.Message{Type: "message:created"}, nil)

	if aliveSink.count() != 1 {
		t.Fatal("failed send must not interrupt delivery to the rest")
	}
	if len(dropped) != 1 || dropped[0] != dead {
		t.Fatalf("dead connection should be handed to onDrop, got %v", dropped)
	}
	if r.MemberCount(room) != 1 {
		t.Fatal("dead connection should be evicted from the room")
	}
	if r.MemberCount(domain.VoiceRoom("general")) != 0 {
		t.Fatal("eviction must cover all rooms of the dead connection")
	}
}

func TestLeaveAll(t *testing.T) {
	r := rooms.NewRouter()
	c, _ := newConn("c1")

	r.Join(c, domain.TenantRoom("t1"))
	r.Join(c, domain.ChannelRoom("general"))
	r.Join(c, domain.VoiceRoom("general"))

	left := r.LeaveAll(c)
	if len(left) != 3 {
		t.Fatalf("expected 3 rooms left, got %d", len(left))
	}
	if got := len(c.Rooms()); got != 0 {
		t.Fatalf("connection should track no rooms, got %d", got)
	}
	if got := r.LeaveAll(c); len(got) != 0 {
		t.Fatalf("repeated LeaveAll must be empty, got %v", got)
	}
}
