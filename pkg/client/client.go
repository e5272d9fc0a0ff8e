// Package client — SDK realtime-ядра: постоянное соединение с шлюзом,
// оптимистичный локальный стор и голосовой меш. Переподключение,
// таймауты и сверка выражены явными машинами состояний, а не цепочками
// колбэков: порядок и тайминги проверяются тестами без транспорта.
package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jovemegidio/concord-sync/internal/domain"
)

// State — машина состояний соединения:
// Disconnected → Connecting → Identified → Synced.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdentified
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdentified:
		return "identified"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

type Config struct {
	URL         string // ws endpoint, например wss://host/ws/app
	AccessToken string

	UserID      string // для подавления собственных событий
	TenantID    string
	DisplayName string

	ReconnectMin time.Duration // default 500ms
	ReconnectMax time.Duration // default 15s
	// SyncTimeout — окно первичной синхронизации: если сервер не
	// ответил, едем дальше на локальном состоянии, UI не блокируем.
	SyncTimeout time.Duration // default 5s

	Dialer *websocket.Dialer
}

func (c *Config) defaults() {
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = 500 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 15 * time.Second
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 5 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

type Client struct {
	cfg    Config
	store  *Store
	typing *typingTracker

	state atomic.Int32

	mu       sync.Mutex
	conn     *websocket.Conn
	channels map[string]struct{} // подписки, восстанавливаемые на reconnect
	online   map[string]string   // userID → displayName
	voice    *VoiceManager

	sendMu    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	syncTimer *time.Timer

	// Колбэки UI; выставлять до Run.
	OnStateChange func(State)
	OnUserOnline  func(userID, displayName string)
	OnUserOffline func(userID, displayName string)
	OnTyping      TypingFunc
	// OnEvent дергается после сверки события стором.
	OnEvent func(evt domain.Event)
}

func New(cfg Config) *Client {
	cfg.defaults()
	c := &Client{
		cfg:      cfg,
		store:    NewStore(),
		channels: make(map[string]struct{}),
		online:   make(map[string]string),
		sendMu:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	c.typing = newTypingTracker(func(channelID, userID string, typing bool) {
		if c.OnTyping != nil {
			c.OnTyping(channelID, userID, typing)
		}
	})
	return c
}

func (c *Client) Store() *Store { return c.store }

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.OnStateChange != nil {
		c.OnStateChange(s)
	}
}

// OnlineUsers — текущий онлайн-набор тенанта по данным сервера.
func (c *Client) OnlineUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.online))
	for u := range c.online {
		out = append(out, u)
	}
	return out
}

// Run держит соединение до отмены контекста или Close: подключение,
// identify, повторные подключения с экспоненциальным бэкоффом.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectMin

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		default:
		}

		established, err := c.connectOnce(ctx)
		if err != nil {
			slog.Debug("sync client session ended", "err", err)
		}
		if established {
			backoff = c.cfg.ReconnectMin // сессия состоялась, бэкофф с нуля
		}

		c.setState(StateDisconnected)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.cfg.ReconnectMax)
	}
}

func (c *Client) connectOnce(ctx context.Context) (established bool, err error) {
	c.setState(StateConnecting)

	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL+"?access_token="+c.cfg.AccessToken, nil)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		voice := c.voice
		c.voice = nil
		c.mu.Unlock()

		// Транспорт умер — signaling-канала больше нет, меш закрываем;
		// остальным участникам voice:left разошлёт сервер.
		if voice != nil {
			voice.leave()
		}
		c.typing.reset()
		c.stopSyncTimer()
		_ = conn.Close()
	}()

	if err := c.send(domain.Message{
		Type: CmdIdentify,
		Payload: identifyPayload{
			UserID:      c.cfg.UserID,
			TenantID:    c.cfg.TenantID,
			DisplayName: c.cfg.DisplayName,
		},
	}); err != nil {
		return false, err
	}
	c.setState(StateIdentified)
	c.startSyncTimer()

	// Подписки на каналы переживают reconnect.
	c.mu.Lock()
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()
	for _, ch := range channels {
		if err := c.send(domain.Message{Type: CmdChannelJoin, Payload: channelPayload{ChannelID: ch}}); err != nil {
			return true, err
		}
	}

	for {
		var msg inboundServer
		if err := conn.ReadJSON(&msg); err != nil {
			return true, err
		}
		c.dispatch(msg)
	}
}

// inboundServer — конверт сервер→клиент.
type inboundServer struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) dispatch(msg inboundServer) {
	switch msg.Type {
	case domain.TypeUsersOnline:
		var p domain.OnlineSetPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		c.mu.Lock()
		c.online = make(map[string]string, len(p.UserIDs))
		for _, u := range p.UserIDs {
			c.online[u] = ""
		}
		c.mu.Unlock()
		c.stopSyncTimer()
		c.setState(StateSynced)

	case domain.TypeUserOnline, domain.TypeUserOffline:
		var p domain.UserEventPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		c.mu.Lock()
		if msg.Type == domain.TypeUserOnline {
			c.online[p.UserID] = p.DisplayName
		} else {
			delete(c.online, p.UserID)
		}
		c.mu.Unlock()
		if msg.Type == domain.TypeUserOnline && c.OnUserOnline != nil {
			c.OnUserOnline(p.UserID, p.DisplayName)
		}
		if msg.Type == domain.TypeUserOffline && c.OnUserOffline != nil {
			c.OnUserOffline(p.UserID, p.DisplayName)
		}

	case domain.TypeTypingStart, domain.TypeTypingStop:
		var p domain.TypingPayload
		if json.Unmarshal(msg.Payload, &p) != nil || p.UserID == c.cfg.UserID {
			return
		}
		if msg.Type == domain.TypeTypingStart {
			c.typing.start(p.ChannelID, p.UserID)
		} else {
			c.typing.stop(p.ChannelID, p.UserID)
		}

	case domain.TypeAck:
		var p domain.AckPayload
		if json.Unmarshal(msg.Payload, &p) == nil && p.LocalID != "" {
			c.store.ResolveAck(p.LocalID)
		}

	case domain.TypeVoiceState:
		var p domain.VoiceStatePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		if v := c.voiceFor(p.ChannelID); v != nil {
			v.bootstrap(p.Members)
		}

	case domain.TypeVoiceJoined, domain.TypeVoiceLeft:
		var p domain.VoiceEventPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		v := c.voiceFor(p.ChannelID)
		if v == nil {
			return
		}
		if msg.Type == domain.TypeVoiceJoined {
			v.handleJoined(p.UserID, p.DisplayName)
		} else {
			v.handleLeft(p.UserID)
		}

	case domain.TypeSpeaking:
		var p domain.SpeakingPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		if v := c.voiceFor(p.ChannelID); v != nil {
			v.handleSpeaking(p.UserID, p.Speaking)
		}

	case domain.TypeWebRTCOffer, domain.TypeWebRTCAnswer, domain.TypeWebRTCICE:
		var p domain.SignalPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		v := c.voiceFor(p.ChannelID)
		if v == nil {
			return
		}
		switch msg.Type {
		case domain.TypeWebRTCOffer:
			v.handleOffer(p.FromUserID, p.Payload)
		case domain.TypeWebRTCAnswer:
			v.handleAnswer(p.FromUserID, p.Payload)
		case domain.TypeWebRTCICE:
			v.handleICE(p.FromUserID, p.Payload)
		}

	default:
		// Доменное событие: сверяем стором, затем отдаём UI.
		var evt domain.Event
		if json.Unmarshal(msg.Payload, &evt) != nil {
			return
		}
		if evt.Type == "" {
			evt.Type = msg.Type
		}
		c.store.ApplyEvent(evt)
		if c.OnEvent != nil {
			c.OnEvent(evt)
		}
	}
}

func (c *Client) voiceFor(channelID string) *VoiceManager {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voice == nil || c.voice.channelID != channelID {
		return nil
	}
	return c.voice
}

// --- исходящие команды ---

func (c *Client) send(msg domain.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrConnUnregistered
	}

	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(msg)
}

// JoinChannel подписывает на канал; подписка переживает reconnect.
func (c *Client) JoinChannel(channelID string) error {
	c.mu.Lock()
	c.channels[channelID] = struct{}{}
	c.mu.Unlock()
	return c.send(domain.Message{Type: CmdChannelJoin, Payload: channelPayload{ChannelID: channelID}})
}

func (c *Client) LeaveChannel(channelID string) error {
	c.mu.Lock()
	delete(c.channels, channelID)
	c.mu.Unlock()
	return c.send(domain.Message{Type: CmdChannelLeave, Payload: channelPayload{ChannelID: channelID}})
}

func (c *Client) StartTyping(channelID string) error {
	return c.send(domain.Message{Type: CmdTypingStart, Payload: channelPayload{ChannelID: channelID}})
}

func (c *Client) StopTyping(channelID string) error {
	return c.send(domain.Message{Type: CmdTypingStop, Payload: channelPayload{ChannelID: channelID}})
}

// JoinVoice входит в голосовую комнату и поднимает меш. Одновременно
// клиент состоит максимум в одной комнате: прежняя покидается.
// Повторный вход в текущую комнату возвращает живой меш как есть:
// сервер такой voice:join игнорирует, нового снапшота не будет.
func (c *Client) JoinVoice(channelID string, connector PeerConnector) (*VoiceManager, error) {
	c.mu.Lock()
	prev := c.voice
	c.mu.Unlock()
	if prev != nil {
		if prev.channelID == channelID {
			return prev, nil
		}
		if err := c.LeaveVoice(); err != nil {
			return nil, err
		}
	}

	v := newVoiceManager(channelID, c.cfg.UserID, connector, c)
	c.mu.Lock()
	c.voice = v
	c.mu.Unlock()

	if err := c.send(domain.Message{Type: CmdVoiceJoin, Payload: channelPayload{ChannelID: channelID}}); err != nil {
		c.mu.Lock()
		c.voice = nil
		c.mu.Unlock()
		return nil, err
	}
	return v, nil
}

func (c *Client) LeaveVoice() error {
	c.mu.Lock()
	v := c.voice
	c.voice = nil
	c.mu.Unlock()
	if v == nil {
		return nil
	}

	v.leave()
	return c.send(domain.Message{Type: CmdVoiceLeave, Payload: channelPayload{ChannelID: v.channelID}})
}

// signalSender для VoiceManager.
func (c *Client) sendSignal(kind, targetUserID string, payload json.RawMessage) error {
	return c.send(domain.Message{
		Type:    kind,
		Payload: signalPayload{TargetUserID: targetUserID, Payload: payload},
	})
}

func (c *Client) sendSpeaking(speaking bool) error {
	return c.send(domain.Message{Type: CmdSpeaking, Payload: speakingPayload{Speaking: speaking}})
}

// --- sync timeout ---

func (c *Client) startSyncTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncTimer = time.AfterFunc(c.cfg.SyncTimeout, func() {
		// Сервер не ответил снапшотом — работаем на локальном
		// состоянии, сверка догонит по событиям.
		if c.State() == StateIdentified {
			slog.Debug("initial sync timed out, continuing local-only")
			c.setState(StateSynced)
		}
	})
}

func (c *Client) stopSyncTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncTimer != nil {
		c.syncTimer.Stop()
		c.syncTimer = nil
	}
}

// Close — терминальная остановка клиента.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
}
