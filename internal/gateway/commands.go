package gateway

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"github.com/jovemegidio/concord-sync/internal/domain"
)

// Identify привязывает проверенную идентичность к соединению, вводит
// его в tenant-комнату и возвращает вызывающему текущий онлайн-набор
// (без самого вызывающего). Остальным в тенанте уходит user:online,
// но только для первого соединения пользователя — второй таб не
// генерит повторного события.
func (g *Gateway) Identify(ctx context.Context, c *domain.Connection, tenantID, displayName string) error {
	if c.UserID == "" {
		return domain.ErrNotIdentified
	}
	if c.TenantID != "" && c.TenantID != tenantID {
		return domain.ErrTenantMismatch
	}

	c.TenantID = tenantID
	c.DisplayName = displayName

	first := g.reg.Register(c)
	g.router.Join(c, domain.TenantRoom(tenantID))

	// Снапшот читаем до MarkOnline, себя исключаем: первый пользователь
	// тенанта получает пустой набор.
	online := g.pres.OnlineSet(ctx, tenantID)
	online = lo.Reject(online, func(u string, _ int) bool { return u == c.UserID })

	go g.pres.MarkOnline(context.Background(), tenantID, c.UserID)

	if first {
		g.router.Broadcast(domain.TenantRoom(tenantID), domain.Message{
			Type: domain.TypeUserOnline,
			Payload: domain.UserEventPayload{
				UserID:      c.UserID,
				DisplayName: displayName,
			},
		}, c)
	}

	return c.Send(domain.Message{
		Type:    domain.TypeUsersOnline,
		Payload: domain.OnlineSetPayload{UserIDs: online},
	})
}

// ChannelJoin — лёгкая подписка, ничего не персистится.
// Повторный join той же комнаты — no-op.
func (g *Gateway) ChannelJoin(c *domain.Connection, channelID string) {
	if !c.Identified() {
		return
	}
	g.router.Join(c, domain.ChannelRoom(channelID))
}

func (g *Gateway) ChannelLeave(c *domain.Connection, channelID string) {
	if !c.Identified() {
		return
	}
	g.router.Leave(c, domain.ChannelRoom(channelID))
}

// Typing — чистый broadcast без состояния на сервере: клиент сам
// гасит индикатор по таймауту, если typing:stop потерялся.
func (g *Gateway) Typing(c *domain.Connection, channelID string, start bool) {
	if !c.Identified() {
		return
	}
	typ := domain.TypeTypingStop
	if start {
		typ = domain.TypeTypingStart
	}
	g.router.Broadcast(domain.ChannelRoom(channelID), domain.Message{
		Type:    typ,
		Payload: domain.TypingPayload{UserID: c.UserID, ChannelID: channelID},
	}, c)
}

// VoiceJoin вводит соединение в voice-комнату. Инвариант «одна
// voice-комната на соединение» держится здесь: вход в другую комнату
// сперва корректно выводит из текущей. Вошедший получает снапшот
// состава (он ждёт офферы от старожилов), старожилы — voice:joined.
func (g *Gateway) VoiceJoin(ctx context.Context, c *domain.Connection, channelID string) {
	if !c.Identified() {
		return
	}
	room := domain.VoiceRoom(channelID)

	if cur, ok := c.VoiceRoomOf(); ok {
		if cur == room {
			return // идемпотентный повторный join
		}
		g.VoiceLeave(ctx, c, cur.Suffix())
	}

	members := g.router.Members(room) // состав до нашего входа
	g.router.Join(c, room)

	go g.pres.MarkOnline(context.Background(), c.TenantID, c.UserID)

	state := domain.VoiceStatePayload{
		ChannelID: channelID,
		Members: lo.Map(members, func(m *domain.Connection, _ int) domain.VoiceState {
			return domain.VoiceState{
				UserID:      m.UserID,
				ChannelID:   channelID,
				DisplayName: m.DisplayName,
			}
		}),
	}
	if err := c.Send(domain.Message{Type: domain.TypeVoiceState, Payload: state}); err != nil {
		slog.Debug("voice state send failed", "conn", c.ID, "err", err)
	}

	g.router.Broadcast(room, domain.Message{
		Type: domain.TypeVoiceJoined,
		Payload: domain.VoiceEventPayload{
			UserID:      c.UserID,
			ChannelID:   channelID,
			DisplayName: c.DisplayName,
		},
	}, c)
}

// Speaking — транзитный broadcast булевого перехода «говорит/замолчал»
// в voice-комнату отправителя. Состояние на сервере не хранится.
func (g *Gateway) Speaking(c *domain.Connection, speaking bool) {
	room, ok := c.VoiceRoomOf()
	if !ok || !c.Identified() {
		return
	}
	g.router.Broadcast(room, domain.Message{
		Type: domain.TypeSpeaking,
		Payload: domain.SpeakingPayload{
			UserID:    c.UserID,
			ChannelID: room.Suffix(),
			Speaking:  speaking,
		},
	}, c)
}

// VoiceLeave — выход из voice-комнаты; не-членство — тихий no-op.
func (g *Gateway) VoiceLeave(_ context.Context, c *domain.Connection, channelID string) {
	room := domain.VoiceRoom(channelID)
	if !g.router.Leave(c, room) {
		return
	}
	g.router.Broadcast(room, domain.Message{
		Type: domain.TypeVoiceLeft,
		Payload: domain.VoiceEventPayload{
			UserID:      c.UserID,
			ChannelID:   channelID,
			DisplayName: c.DisplayName,
		},
	}, c)
}
