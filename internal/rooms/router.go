// Package rooms — маршрутизация broadcast-групп. Комната не имеет
// собственного хранилища: это множество ссылок на соединения,
// пустые комнаты собираются лениво.
package rooms

import (
	"log/slog"
	"sync"

	"github.com/jovemegidio/concord-sync/internal/domain"
)

// DropFunc вызывается для соединения, чей сокет умер во время
// рассылки. Вызов идёт вне мьютекса роутера.
type DropFunc func(c *domain.Connection)

type Router struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]map[*domain.Connection]struct{}

	onDrop DropFunc
}

func NewRouter() *Router {
	return &Router{rooms: make(map[domain.RoomName]map[*domain.Connection]struct{})}
}

// OnDrop задаёт обработчик мёртвых сокетов; вызывать до начала трафика.
func (r *Router) OnDrop(fn DropFunc) {
	r.onDrop = fn
}

// Join — идемпотентен; повторный вход в ту же комнату — no-op.
// Возвращает true, если соединение действительно добавлено.
func (r *Router) Join(c *domain.Connection, room domain.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[room]
	if !ok {
		set = make(map[*domain.Connection]struct{})
		r.rooms[room] = set
	}
	if _, ok := set[c]; ok {
		return false
	}
	set[c] = struct{}{}
	c.TrackRoom(room)

	return true
}

// Leave — идемпотентен. Последний вышедший удаляет комнату.
func (r *Router) Leave(c *domain.Connection, room domain.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.rooms, room)
	}
	c.UntrackRoom(room)

	return true
}

// LeaveAll выводит соединение из всех его комнат; возвращает комнаты,
// из которых оно вышло. Используется обработчиком disconnect.
func (r *Router) LeaveAll(c *domain.Connection) []domain.RoomName {
	left := make([]domain.RoomName, 0, 4)
	for _, room := range c.Rooms() {
		if r.Leave(c, room) {
			left = append(left, room)
		}
	}
	return left
}

// Members — снапшот состава комнаты.
func (r *Router) Members(room domain.RoomName) []*domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]*domain.Connection, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Router) MemberCount(room domain.RoomName) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Broadcast — fire-and-forget доставка каждому члену комнаты, кроме
// опционального exclude (отправитель уже применил мутацию локально).
// Пустая комната — тихий no-op, события не копятся для офлайна.
// Упавший Send не блокирует и не прерывает рассылку: соединение
// отдаётся в onDrop и убирается из всех комнат.
func (r *Router) Broadcast(room domain.RoomName, msg domain.Message, exclude *domain.Connection) {
	members := r.Members(room)
	if len(members) == 0 {
		return
	}

	var dead []*domain.Connection
	for _, c := range members {
		if c == exclude {
			continue
		}
		if err := c.Send(msg); err != nil {
			slog.Debug("room broadcast send failed",
				"room", string(room), "conn", c.ID, "err", err)
			dead = append(dead, c)
		}
	}

	for _, c := range dead {
		r.LeaveAll(c)
		if r.onDrop != nil {
			r.onDrop(c)
		}
	}
}
