package client

import (
	"sync"
	"time"
)

// typingTTL — окно самогашения индикатора: typing:stop может
// потеряться, сервер таймеров не держит.
const typingTTL = 4 * time.Second

// TypingFunc уведомляет UI о смене индикатора.
type TypingFunc func(channelID, userID string, typing bool)

type typingTracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	timers map[string]*time.Timer // channel+user → таймер самогашения
	notify TypingFunc
}

func newTypingTracker(notify TypingFunc) *typingTracker {
	return &typingTracker{
		ttl:    typingTTL,
		timers: make(map[string]*time.Timer),
		notify: notify,
	}
}

func (t *typingTracker) start(channelID, userID string) {
	key := channelID + "\x00" + userID

	t.mu.Lock()
	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.ttl) // продление окна, без повторного уведомления
		t.mu.Unlock()
		return
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() {
		t.stop(channelID, userID)
	})
	t.mu.Unlock()

	if t.notify != nil {
		t.notify(channelID, userID, true)
	}
}

func (t *typingTracker) stop(channelID, userID string) {
	key := channelID + "\x00" + userID

	t.mu.Lock()
	timer, ok := t.timers[key]
	if ok {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()

	if ok && t.notify != nil {
		t.notify(channelID, userID, false)
	}
}

func (t *typingTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, timer := range t.timers {
		timer.Stop()
		delete(t.timers, k)
	}
}
