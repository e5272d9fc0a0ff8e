package presence

import (
	"context"
	"sync"
	"time"
)

// MemStore — пер-процессная реализация Store для тестов и
// single-process запуска. Истёкшие записи выметаются лениво при чтении.
type MemStore struct {
	mu      sync.Mutex
	tenants map[string]map[string]time.Time // tenant → user → expiresAt

	now func() time.Time // подмена времени в тестах
}

func NewMemStore() *MemStore {
	return &MemStore{
		tenants: make(map[string]map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemStore) SetAdd(_ context.Context, tenantID, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.tenants[tenantID]
	if !ok {
		users = make(map[string]time.Time)
		s.tenants[tenantID] = users
	}
	users[userID] = s.now().Add(ttl)

	return nil
}

func (s *MemStore) SetRemove(_ context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if users, ok := s.tenants[tenantID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.tenants, tenantID)
		}
	}
	return nil
}

func (s *MemStore) SetMembers(_ context.Context, tenantID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}

	now := s.now()
	out := make([]string, 0, len(users))
	for u, exp := range users {
		if exp.Before(now) {
			delete(users, u) // ленивая уборка
			continue
		}
		out = append(out, u)
	}
	return out, nil
}
