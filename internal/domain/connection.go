package domain

import (
	"sync"
)

// Sender — транспортная сторона соединения. Send обязан быть
// потокобезопасным и никогда не блокироваться на другом пире.
type Sender interface {
	Send(msg Message) error
	Close() error
}

// Connection — эфемерное соединение клиента. Создаётся на handshake,
// уничтожается на disconnect. Identity заполняется командой identify
// (user id приходит уже проверенным слоем аутентификации).
type Connection struct {
	ID        string
	Namespace string // app | board

	UserID      string
	TenantID    string
	DisplayName string

	Sink Sender

	mu    sync.Mutex
	rooms map[RoomName]struct{}
}

func NewConnection(id, namespace string, sink Sender) *Connection {
	return &Connection{
		ID:        id,
		Namespace: namespace,
		Sink:      sink,
		rooms:     make(map[RoomName]struct{}),
	}
}

func (c *Connection) Identified() bool {
	return c.UserID != "" && c.TenantID != ""
}

func (c *Connection) Send(msg Message) error {
	if c.Sink == nil {
		return ErrConnUnregistered
	}
	return c.Sink.Send(msg)
}

// TrackRoom отмечает членство; вызывается только роутером комнат.
func (c *Connection) TrackRoom(r RoomName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[r] = struct{}{}
}

func (c *Connection) UntrackRoom(r RoomName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, r)
}

// Rooms — снапшот комнат соединения.
func (c *Connection) Rooms() []RoomName {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RoomName, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// InRoom — состоит ли соединение в комнате.
func (c *Connection) InRoom(r RoomName) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[r]
	return ok
}

// VoiceRoomOf — голосовая комната соединения, если есть.
// Инвариант: не больше одной voice:* комнаты на соединение.
func (c *Connection) VoiceRoomOf() (RoomName, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for r := range c.rooms {
		if r.IsVoice() {
			return r, true
		}
	}
	return "", false
}
