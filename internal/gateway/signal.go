package gateway

import (
	"encoding/json"
	"log/slog"

	"github.com/jovemegidio/concord-sync/internal/domain"
)

// Relay — точечная доставка signaling-пакета (offer/answer/ICE)
// конкретному пользователю той же voice-комнаты. Содержимое payload
// шлюз не валидирует: битый или заблудившийся пакет молча
// выбрасывается, пир сам переживёт сорванную негоциацию.
func (g *Gateway) Relay(c *domain.Connection, kind, targetUserID string, payload json.RawMessage) {
	switch kind {
	case domain.TypeWebRTCOffer, domain.TypeWebRTCAnswer, domain.TypeWebRTCICE:
	default:
		slog.Debug("unknown signal kind dropped", "kind", kind)
		return
	}
	if !c.Identified() || targetUserID == "" || targetUserID == c.UserID {
		return
	}

	room, ok := c.VoiceRoomOf()
	if !ok {
		return // отправитель вне голосовой комнаты — некуда адресовать
	}

	msg := domain.Message{
		Type: kind,
		Payload: domain.SignalPayload{
			FromUserID:   c.UserID,
			TargetUserID: targetUserID,
			ChannelID:    room.Suffix(),
			Payload:      payload,
		},
	}

	delivered := false
	for _, t := range g.reg.ConnsOfUser(c.TenantID, targetUserID) {
		if !t.InRoom(room) {
			continue // misdirected: цель не в нашей комнате
		}
		if err := t.Send(msg); err != nil {
			slog.Debug("signal relay send failed", "target", targetUserID, "err", err)
			continue
		}
		delivered = true
	}
	if !delivered {
		slog.Debug("signal relay dropped", "kind", kind,
			"from", c.UserID, "target", targetUserID, "room", string(room))
	}
}
