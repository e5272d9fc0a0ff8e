package client

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jovemegidio/concord-sync/internal/domain"
)

// Record — элемент упорядоченного списка контейнера (сообщения канала,
// карточки доски, ...). Fields ядро не интерпретирует.
type Record struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"ts"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Requester выполняет серверный запрос мутации. Возвращённая
// авторитетная запись может нести другой id (серверный вместо
// локального).
type Requester func(ctx context.Context, m *Mutation) (*Record, error)

// Store — локальное состояние с оптимистичными мутациями.
// Правила сверки: last-write-wins по порядку прихода событий,
// никакого OT/merge. Эхо собственной мутации не применяется повторно.
type Store struct {
	mu      sync.Mutex
	lists   map[string][]Record  // container → упорядоченный список
	pending map[string]*Mutation // entityID → неразрешённая мутация

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		lists:   make(map[string][]Record),
		pending: make(map[string]*Mutation),
		now:     time.Now,
	}
}

// Load гидрирует контейнер снапшотом из request/response.
// События для незагруженных контейнеров выбрасываются.
func (s *Store) Load(container string, records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[container] = append([]Record(nil), records...)
}

func (s *Store) Loaded(container string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lists[container]
	return ok
}

// List — копия списка контейнера.
func (s *Store) List(container string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.lists[container]...)
}

// Create — оптимистичное создание: запись с локальным id появляется в
// списке синхронно, до запроса. Успешный ответ с другим id заменяет
// запись по индексу (позиция не меняется, видимого reorder нет).
// Ошибка запроса откатывает список к снапшоту бит-в-бит.
func (s *Store) Create(ctx context.Context, container string, fields map[string]any, req Requester) (*Mutation, error) {
	m := &Mutation{
		LocalID:   uuid.NewString(),
		Container: container,
	}
	m.EntityID = m.LocalID

	s.mu.Lock()
	list, ok := s.lists[container]
	if !ok {
		list = nil // создание подразумевает открытый контейнер
	}
	m.snapshot = append([]Record(nil), list...)
	s.lists[container] = append(list, Record{
		ID:        m.LocalID,
		Timestamp: s.now().UnixMilli(),
		Fields:    fields,
	})
	s.pending[m.EntityID] = m
	s.mu.Unlock()

	return s.run(ctx, m, req)
}

// Update — оптимистичное изменение существующей записи. Вторая мутация
// той же записи до подтверждения первой — last-write-wins: новая
// замещает старую в pending, снапшот старой выбрасывается.
func (s *Store) Update(ctx context.Context, container, entityID string, fields map[string]any, req Requester) (*Mutation, error) {
	m := &Mutation{
		LocalID:   uuid.NewString(),
		EntityID:  entityID,
		Container: container,
	}

	s.mu.Lock()
	list, ok := s.lists[container]
	if !ok {
		s.mu.Unlock()
		return nil, ErrContainerNotLoaded
	}
	idx := indexOf(list, entityID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrEntityNotFound
	}
	m.snapshot = append([]Record(nil), list...)
	rec := list[idx]
	rec.Fields = mergeFields(rec.Fields, fields)
	list[idx] = rec
	s.pending[entityID] = m // замещает возможную прежнюю
	s.mu.Unlock()

	return s.run(ctx, m, req)
}

// Delete — оптимистичное удаление.
func (s *Store) Delete(ctx context.Context, container, entityID string, req Requester) (*Mutation, error) {
	m := &Mutation{
		LocalID:   uuid.NewString(),
		EntityID:  entityID,
		Container: container,
	}

	s.mu.Lock()
	list, ok := s.lists[container]
	if !ok {
		s.mu.Unlock()
		return nil, ErrContainerNotLoaded
	}
	idx := indexOf(list, entityID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrEntityNotFound
	}
	m.snapshot = append([]Record(nil), list...)
	s.lists[container] = append(list[:idx:idx], list[idx+1:]...)
	s.pending[entityID] = m
	s.mu.Unlock()

	return s.run(ctx, m, req)
}

// run доводит мутацию до Pending и дальше по исходу запроса.
func (s *Store) run(ctx context.Context, m *Mutation, req Requester) (*Mutation, error) {
	m.setState(MutationPending)

	authoritative, err := req(ctx, m)
	if err != nil {
		s.rollback(m)
		return m, err
	}

	s.mu.Lock()
	if authoritative != nil && authoritative.ID != "" && authoritative.ID != m.EntityID {
		// Сервер выдал собственный id: заменяем по индексу, позицию
		// сохраняем, pending перевешиваем на новый ключ.
		if list, ok := s.lists[m.Container]; ok {
			if idx := indexOf(list, m.EntityID); idx >= 0 {
				list[idx] = *authoritative
			}
		}
		// Перевешиваем pending на серверный ключ только пока мутация
		// всё ещё наша: ack по ws мог разрешить её раньше ответа.
		if cur, ok := s.pending[m.EntityID]; ok && cur == m {
			delete(s.pending, m.EntityID)
			m.EntityID = authoritative.ID
			s.pending[m.EntityID] = m
		} else {
			m.EntityID = authoritative.ID
		}
	}
	s.mu.Unlock()

	// Запрос прошёл; эхо-событие (или ack) окончательно сбросит pending.
	m.setState(MutationConfirmed)
	return m, nil
}

func (s *Store) rollback(m *Mutation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Откатываем только если мутация всё ещё последняя по этой записи:
	// при LWW-замещении снапшот предшественника уже невалиден.
	if cur, ok := s.pending[m.EntityID]; ok && cur == m {
		s.lists[m.Container] = append([]Record(nil), m.snapshot...)
		delete(s.pending, m.EntityID)
	}
	m.setState(MutationRolledBack)
}

// ResolveAck снимает pending по ack сервера (отправителю эхо не шлётся).
func (s *Store) ResolveAck(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.pending {
		if m.LocalID == localID {
			m.setState(MutationConfirmed)
			delete(s.pending, id)
			return
		}
	}
}

// ApplyEvent сверяет входящее серверное событие с локальным состоянием.
//   - эхо собственной мутации (по entity id или local id) — разрешает
//     pending и не применяется повторно;
//   - запись есть — перезапись на месте по id;
//   - записи нет — вставка в позицию по timestamp;
//   - контейнер не загружен — событие молча выбрасывается;
//   - *:deleted — удаление по id.
func (s *Store) ApplyEvent(evt domain.Event) {
	container := containerKey(evt)
	if container == "" || evt.EntityID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.pending[evt.EntityID]; ok {
		m.setState(MutationConfirmed)
		delete(s.pending, evt.EntityID)
		return
	}
	if evt.LocalID != "" {
		for id, m := range s.pending {
			if m.LocalID == evt.LocalID {
				m.setState(MutationConfirmed)
				delete(s.pending, id)
				return
			}
		}
	}

	list, ok := s.lists[container]
	if !ok {
		return // родительский контейнер ещё не загружен
	}

	if strings.HasSuffix(evt.Type, ":deleted") {
		if idx := indexOf(list, evt.EntityID); idx >= 0 {
			s.lists[container] = append(list[:idx:idx], list[idx+1:]...)
		}
		return
	}

	rec := Record{ID: evt.EntityID, Timestamp: evt.Timestamp}
	if len(evt.Data) > 0 {
		_ = json.Unmarshal(evt.Data, &rec.Fields)
	}

	if idx := indexOf(list, evt.EntityID); idx >= 0 {
		list[idx] = rec // last-write-wins по порядку прихода
		return
	}

	pos := sort.Search(len(list), func(i int) bool {
		return list[i].Timestamp > rec.Timestamp
	})
	list = append(list, Record{})
	copy(list[pos+1:], list[pos:])
	list[pos] = rec
	s.lists[container] = list
}

// PendingCount — число неразрешённых мутаций (диагностика и тесты).
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func indexOf(list []Record, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func mergeFields(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func containerKey(evt domain.Event) string {
	if evt.ChannelID != "" {
		return evt.ChannelID
	}
	if evt.Entity != "" && evt.TenantID != "" {
		return evt.Entity + ":" + evt.TenantID
	}
	return ""
}
