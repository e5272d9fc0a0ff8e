package domain

import "strings"

// RoomName — имя broadcast-группы. Три класса комнат:
// tenant:<id>, channel:<id>, voice:<id>.
type RoomName string

const (
	roomPrefixTenant  = "tenant:"
	roomPrefixChannel = "channel:"
	roomPrefixVoice   = "voice:"
)

func TenantRoom(tenantID string) RoomName   { return RoomName(roomPrefixTenant + tenantID) }
func ChannelRoom(channelID string) RoomName { return RoomName(roomPrefixChannel + channelID) }
func VoiceRoom(channelID string) RoomName   { return RoomName(roomPrefixVoice + channelID) }

func (r RoomName) IsTenant() bool  { return strings.HasPrefix(string(r), roomPrefixTenant) }
func (r RoomName) IsChannel() bool { return strings.HasPrefix(string(r), roomPrefixChannel) }
func (r RoomName) IsVoice() bool   { return strings.HasPrefix(string(r), roomPrefixVoice) }

// Suffix возвращает id без префикса класса.
func (r RoomName) Suffix() string {
	if i := strings.IndexByte(string(r), ':'); i >= 0 {
		return string(r)[i+1:]
	}
	return string(r)
}
