package presence

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

const (
	// DefaultTTL с запасом перекрывает серверный ping-интервал:
	// живое соединение успевает продлить запись, запись упавшего
	// процесса истекает сама.
	DefaultTTL = 90 * time.Second

	storeTimeout = 3 * time.Second
)

// Tracker — учёт «кто онлайн в тенанте» поверх разделяемого Store.
// Ошибки стора логируются и глотаются: presence может отстать,
// но не должен блокировать или ронять вызывающего.
type Tracker struct {
	store Store
	ttl   time.Duration
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, ttl: DefaultTTL}
}

func (t *Tracker) SetTTL(d time.Duration) {
	if d > 0 {
		t.ttl = d
	}
}

// MarkOnline — идемпотентен; вызывается на identify и на voice-join.
func (t *Tracker) MarkOnline(ctx context.Context, tenantID, userID string) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := t.store.SetAdd(ctx, tenantID, userID, t.ttl); err != nil {
		slog.Warn("presence mark online skipped",
			"tenant", tenantID, "user", userID, "err", err)
	}
}

// MarkOffline вызывается только когда реестр сообщил о закрытии
// последнего соединения пользователя — иначе мульти-таб даёт ложные
// offline-флапы.
func (t *Tracker) MarkOffline(ctx context.Context, tenantID, userID string) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := t.store.SetRemove(ctx, tenantID, userID); err != nil {
		slog.Warn("presence mark offline skipped",
			"tenant", tenantID, "user", userID, "err", err)
	}
}

// Refresh продлевает TTL записи; вызывается из ping-цикла сокета.
func (t *Tracker) Refresh(ctx context.Context, tenantID, userID string) {
	t.MarkOnline(ctx, tenantID, userID)
}

// OnlineSet — онлайн-пользователи тенанта по всем процессам.
// При ошибке стора возвращает пустой набор («считаем неизменным»).
func (t *Tracker) OnlineSet(ctx context.Context, tenantID string) []string {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	users, err := t.store.SetMembers(ctx, tenantID)
	if err != nil {
		slog.Warn("presence read skipped", "tenant", tenantID, "err", err)
		return nil
	}
	sort.Strings(users) // стабильный порядок для снапшотов и тестов
	return users
}
