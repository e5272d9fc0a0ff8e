package client

import "encoding/json"

// Команды клиент→сервер. Формы payload продублированы из транспорта
// осознанно: SDK описывает провод сам, не тянет internal-пакеты сервера.
const (
	CmdIdentify     = "identify"
	CmdChannelJoin  = "channel:join"
	CmdChannelLeave = "channel:leave"
	CmdTypingStart  = "typing:start"
	CmdTypingStop   = "typing:stop"
	CmdVoiceJoin    = "voice:join"
	CmdVoiceLeave   = "voice:leave"
	CmdSpeaking     = "speaking"
)

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
