package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jovemegidio/concord-sync/internal/domain"
	"github.com/jovemegidio/concord-sync/internal/gateway"
	"github.com/jovemegidio/concord-sync/pkg/errs"
)

// TokenVerifier отдаёт проверенный user id из access-токена.
// Выпуск и ревокация токенов — зона сервиса аутентификации.
type TokenVerifier interface {
	ParseAndValidate(token string) (userID string, err error)
}

const (
	// Два логических неймспейса на клиента: события чата/воркспейса и
	// realtime досок/страниц. Переподключаются независимо.
	NamespaceApp   = "app"
	NamespaceBoard = "board"
)

type Server struct {
	upgrader websocket.Upgrader
	gw       *gateway.Gateway
	verifier TokenVerifier

	pingEvery time.Duration
}

func NewServer(gw *gateway.Gateway, verifier TokenVerifier) *Server {
	return &Server{
		gw:       gw,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// WS endpoints: GET /ws/app?access_token=..., GET /ws/board?access_token=...
func (s *Server) HandleApp(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, NamespaceApp)
}

func (s *Server) HandleBoard(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, NamespaceBoard)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request, namespace string) {
	accessToken := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if accessToken == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	userID, err := s.verifier.ParseAndValidate(accessToken)
	if err != nil {
		http.Error(w, "invalid access_token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := domain.NewConnection(uuid.NewString(), namespace, newWsConn(conn))
	c.UserID = userID

	slog.Debug("ws connected", "conn", c.ID, "ns", namespace, "user", userID)

	go s.writeLoop(r.Context(), conn, c)
	s.readLoop(r.Context(), conn, c)

	// Disconnect — синхронная идемпотентная уборка: комнаты, presence,
	// voice-оповещения. Повторный вызов (напр. после onDrop) безопасен.
	s.gw.Disconnect(c)

	if err := c.Sink.Close(); err != nil {
		slog.Debug("ws close failed", "conn", c.ID, "err", err)
	}
	slog.Debug("ws disconnected", "conn", c.ID, "user", userID)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *domain.Connection) {
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		s.gw.RefreshPresence(c)
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // битый кадр не роняет соединение
		}
		s.dispatch(ctx, c, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, c *domain.Connection, msg inbound) {
	switch msg.Type {
	case CmdIdentify:
		var p identifyPayload
		if decode(msg.Payload, &p) != nil {
			return
		}
		// user id из payload игнорируем: доверяем только токену.
		if err := s.gw.Identify(ctx, c, p.TenantID, p.DisplayName); err != nil {
			slog.Debug("identify rejected", "conn", c.ID, "err", err)
		}

	case CmdChannelJoin:
		var p channelPayload
		if decode(msg.Payload, &p) == nil && p.ChannelID != "" {
			s.gw.ChannelJoin(c, p.ChannelID)
		}

	case CmdChannelLeave:
		var p channelPayload
		if decode(msg.Payload, &p) == nil && p.ChannelID != "" {
			s.gw.ChannelLeave(c, p.ChannelID)
		}

	case CmdTypingStart, CmdTypingStop:
		var p channelPayload
		if decode(msg.Payload, &p) == nil && p.ChannelID != "" {
			s.gw.Typing(c, p.ChannelID, msg.Type == CmdTypingStart)
		}

	case CmdVoiceJoin:
		var p channelPayload
		if decode(msg.Payload, &p) == nil && p.ChannelID != "" {
			s.gw.VoiceJoin(ctx, c, p.ChannelID)
		}

	case CmdVoiceLeave:
		var p channelPayload
		if decode(msg.Payload, &p) == nil && p.ChannelID != "" {
			s.gw.VoiceLeave(ctx, c, p.ChannelID)
		}

	case CmdSpeaking:
		var p speakingPayload
		if decode(msg.Payload, &p) == nil {
			s.gw.Speaking(c, p.Speaking)
		}

	case CmdWebRTCOffer, CmdWebRTCAnswer, CmdWebRTCICE:
		var p signalPayload
		if err := decode(msg.Payload, &p); err != nil {
			slog.Debug("signal frame dropped", "conn", c.ID, "err", errs.ErrBadSignal)
			return
		}
		s.gw.Relay(c, msg.Type, p.TargetUserID, p.Payload)

	default:
		// незнакомые команды игнорируем
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *domain.Connection) {
	wc, _ := c.Sink.(*wsConn)

	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ctx.Done():
			return
		case <-wc.closed:
			return
		}
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return domain.ErrUnknownEvent
	}
	return json.Unmarshal(raw, dst)
}
