package domain

import "encoding/json"

// Типы событий сервер→клиент.
const (
	TypeUserOnline  = "user:online"
	TypeUserOffline = "user:offline"
	TypeUsersOnline = "users:online" // снапшот при identify

	TypeTypingStart = "typing:start"
	TypeTypingStop  = "typing:stop"

	TypeVoiceJoined = "voice:joined"
	TypeVoiceLeft   = "voice:left"
	TypeVoiceState  = "voice:state" // снапшот участников комнаты для вошедшего
	TypeSpeaking    = "speaking"

	TypeWebRTCOffer  = "webrtc:offer"
	TypeWebRTCAnswer = "webrtc:answer"
	TypeWebRTCICE    = "webrtc:ice-candidate"

	TypeAck = "ack" // подтверждение команды отправителю (снимает pending)
)

// Message — конверт на проводе, оба направления.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Event — доменное событие от слоя запросов (message:created,
// board:card:moved, ...). Tagged union по Type: ядро выбирает комнату
// по адресным полям и не заглядывает в Data.
type Event struct {
	Type      string `json:"type"`
	Entity    string `json:"entity,omitempty"`
	EntityID  string `json:"entity_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`

	// LocalID — клиентский id оптимистичной мутации; эхо с тем же id
	// клиент-инициатор не применяет повторно.
	LocalID string `json:"local_id,omitempty"`

	// OriginConn — соединение инициатора; исключается из рассылки,
	// т.к. инициатор уже применил мутацию локально.
	OriginConn string `json:"origin_conn,omitempty"`

	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Room — целевая комната события: канальные события идут в channel:<id>,
// остальные — в tenant:<id>.
func (e Event) Room() (RoomName, bool) {
	switch {
	case e.ChannelID != "":
		return ChannelRoom(e.ChannelID), true
	case e.TenantID != "":
		return TenantRoom(e.TenantID), true
	default:
		return "", false
	}
}

// --- payload-структуры исходящих событий ---

type UserEventPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type OnlineSetPayload struct {
	UserIDs []string `json:"user_ids"`
}

type TypingPayload struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

type VoiceEventPayload struct {
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type VoiceStatePayload struct {
	ChannelID string       `json:"channel_id"`
	Members   []VoiceState `json:"members"`
}

type SpeakingPayload struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Speaking  bool   `json:"speaking"`
}

type SignalPayload struct {
	FromUserID   string          `json:"from_user_id"`
	TargetUserID string          `json:"target_user_id"`
	ChannelID    string          `json:"channel_id"`
	Payload      json.RawMessage `json:"payload"`
}

type AckPayload struct {
	LocalID string `json:"local_id,omitempty"`
	Type    string `json:"ack_type"`
}
