// Package gateway — фан-аут доменных событий и обработка входящих
// команд сокетов. Шлюз не интерпретирует полезную нагрузку событий:
// только адресация по комнатам и учёт presence.
package gateway

import (
	"context"
	"log/slog"

	"github.com/jovemegidio/concord-sync/internal/domain"
	"github.com/jovemegidio/concord-sync/internal/presence"
	"github.com/jovemegidio/concord-sync/internal/registry"
	"github.com/jovemegidio/concord-sync/internal/rooms"
)

type Gateway struct {
	reg    *registry.Registry
	router *rooms.Router
	pres   *presence.Tracker
}

func New(reg *registry.Registry, router *rooms.Router, pres *presence.Tracker) *Gateway {
	g := &Gateway{reg: reg, router: router, pres: pres}

	// Последнее соединение пользователя закрылось: гасим presence и
	// сообщаем тенанту. Сторона стора — fire-and-forget.
	reg.OnLastConnectionClosed(func(c *domain.Connection) {
		go g.pres.MarkOffline(context.Background(), c.TenantID, c.UserID)

		g.router.Broadcast(domain.TenantRoom(c.TenantID), domain.Message{
			Type: domain.TypeUserOffline,
			Payload: domain.UserEventPayload{
				UserID:      c.UserID,
				DisplayName: c.DisplayName,
			},
		}, nil)
	})

	// Сокет умер во время рассылки: снимаем соединение целиком,
	// не прерывая и не ретраня broadcast.
	router.OnDrop(func(c *domain.Connection) {
		slog.Debug("dropping dead connection", "conn", c.ID, "user", c.UserID)
		g.Disconnect(c)
	})

	return g
}

// Publish — вызывается слоем запросов после того, как мутация
// сохранена. Комната без членов — тихий no-op: читающая сторона
// гидрируется request/response-ом, события для офлайна не копятся.
func (g *Gateway) Publish(evt domain.Event) {
	room, ok := evt.Room()
	if !ok {
		slog.Warn("event without routable target dropped", "type", evt.Type)
		return
	}

	var exclude *domain.Connection
	if evt.OriginConn != "" {
		if c, found := g.reg.Get(evt.OriginConn); found {
			exclude = c
			// Инициатор уже применил мутацию локально: вместо эха
			// шлём лёгкий ack, снимающий pending на клиенте.
			if evt.LocalID != "" {
				_ = c.Send(domain.Message{
					Type:    domain.TypeAck,
					Payload: domain.AckPayload{LocalID: evt.LocalID, Type: evt.Type},
				})
			}
		}
	}

	g.router.Broadcast(room, domain.Message{Type: evt.Type, Payload: evt}, exclude)
}

// Disconnect — единственный триггер отмены. Синхронно выводит
// соединение из всех комнат и меша; идемпотентен при повторном вызове.
func (g *Gateway) Disconnect(c *domain.Connection) {
	left := g.router.LeaveAll(c)

	// Голосовые комнаты оповещаем явно: пиры закрывают peer-соединения
	// и очищают speaking-состояние ушедшего.
	for _, room := range left {
		if !room.IsVoice() {
			continue
		}
		g.router.Broadcast(room, domain.Message{
			Type: domain.TypeVoiceLeft,
			Payload: domain.VoiceEventPayload{
				UserID:      c.UserID,
				ChannelID:   room.Suffix(),
				DisplayName: c.DisplayName,
			},
		}, nil)
	}

	g.reg.Unregister(c)
}

// RefreshPresence продлевает TTL записи пользователя; дергается
// pong-хендлером транспорта.
func (g *Gateway) RefreshPresence(c *domain.Connection) {
	if !c.Identified() {
		return
	}
	go g.pres.Refresh(context.Background(), c.TenantID, c.UserID)
}
