package domain

// VoiceState — эфемерное состояние участника голосовой комнаты.
// В базу не пишется: при рестарте процесса все сокеты падают,
// и голосовое состояние обнуляется вместе с ними.
type VoiceState struct {
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	DisplayName string `json:"display_name,omitempty"`
	Muted       bool   `json:"muted"`
	Deafened    bool   `json:"deafened"`
}
