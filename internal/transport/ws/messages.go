package ws

import "encoding/json"

// Типы команд клиент→сервер. Исходящие типы живут в domain:
// транспорт их не порождает, только доставляет.
const (
	CmdIdentify     = "identify"
	CmdChannelJoin  = "channel:join"
	CmdChannelLeave = "channel:leave"
	CmdTypingStart  = "typing:start"
	CmdTypingStop   = "typing:stop"
	CmdVoiceJoin    = "voice:join"
	CmdVoiceLeave   = "voice:leave"
	CmdSpeaking     = "speaking"

	CmdWebRTCOffer  = "webrtc:offer"
	CmdWebRTCAnswer = "webrtc:answer"
	CmdWebRTCICE    = "webrtc:ice-candidate"
)

// inbound — конверт входящей команды. Payload декодируется по Type.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type identifyPayload struct {
	UserID      string `json:"user_id"`
	TenantID    string `json:"tenant_id"`
	DisplayName string `json:"display_name"`
}

type channelPayload struct {
	ChannelID string `json:"channel_id"`
}

type signalPayload struct {
	TargetUserID string          `json:"target_user_id"`
	Payload      json.RawMessage `json:"payload"`
}

type speakingPayload struct {
	Speaking bool `json:"speaking"`
}
