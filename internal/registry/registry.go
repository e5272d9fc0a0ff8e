// Package registry ведёт пер-процессную карту живых соединений:
// tenant → user → множество соединений. Мульти-таб поддерживается
// набором соединений на пользователя; наружу состояние схлопывается
// в булевый «онлайн».
package registry

import (
	"sync"

	"github.com/samber/lo"

	"github.com/jovemegidio/concord-sync/internal/domain"
)

// LastClosedFunc — сигнал «закрылось последнее соединение пользователя
// в тенанте»; потребляется очисткой комнат и presence.
type LastClosedFunc func(c *domain.Connection)

type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*domain.Connection                       // connID → conn
	tenants map[string]map[string]map[string]*domain.Connection // tenant → user → connID → conn

	onLastClosed LastClosedFunc
}

func New() *Registry {
	return &Registry{
		conns:   make(map[string]*domain.Connection),
		tenants: make(map[string]map[string]map[string]*domain.Connection),
	}
}

// OnLastConnectionClosed задаёт обработчик; вызывать до начала трафика.
func (r *Registry) OnLastConnectionClosed(fn LastClosedFunc) {
	r.onLastClosed = fn
}

// Register привязывает идентичность к соединению. Повторная регистрация
// того же пользователя (второй таб) сосуществует с первой. Возвращает
// true, если это первое соединение пользователя в тенанте.
func (r *Registry) Register(c *domain.Connection) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID] = c

	users, ok := r.tenants[c.TenantID]
	if !ok {
		users = make(map[string]map[string]*domain.Connection)
		r.tenants[c.TenantID] = users
	}
	set, ok := users[c.UserID]
	if !ok {
		set = make(map[string]*domain.Connection)
		users[c.UserID] = set
	}
	first = len(set) == 0
	set[c.ID] = c

	return first
}

// Unregister удаляет соединение. Идемпотентен: повторный вызов — no-op.
// Если соединение было последним у пользователя в тенанте, срабатывает
// сигнал last-connection-closed.
func (r *Registry) Unregister(c *domain.Connection) {
	r.mu.Lock()

	if _, ok := r.conns[c.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c.ID)

	last := false
	if users, ok := r.tenants[c.TenantID]; ok {
		if set, ok := users[c.UserID]; ok {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(users, c.UserID)
				last = true
			}
		}
		if len(users) == 0 {
			delete(r.tenants, c.TenantID)
		}
	}
	r.mu.Unlock()

	if last && r.onLastClosed != nil {
		r.onLastClosed(c)
	}
}

// Get — соединение по id.
func (r *Registry) Get(connID string) (*domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// RoomsOf — комнаты соединения (пустой срез для незнакомого id).
func (r *Registry) RoomsOf(connID string) []domain.RoomName {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.Rooms()
}

// ConnsOfUser — все соединения пользователя в тенанте (адресная
// доставка signaling-пакетов).
func (r *Registry) ConnsOfUser(tenantID, userID string) []*domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, ok := r.tenants[tenantID]
	if !ok {
		return nil
	}
	return lo.Values(users[userID])
}

// Online — есть ли у пользователя хотя бы одно живое соединение.
func (r *Registry) Online(tenantID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, ok := r.tenants[tenantID]
	if !ok {
		return false
	}
	return len(users[userID]) > 0
}

// OnlineUsers — локальный (пер-процессный) срез онлайн-пользователей
// тенанта. Межпроцессная истина живёт в presence-трекере.
func (r *Registry) OnlineUsers(tenantID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, ok := r.tenants[tenantID]
	if !ok {
		return nil
	}
	return lo.Keys(users)
}
