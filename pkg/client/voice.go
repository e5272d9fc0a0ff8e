package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jovemegidio/concord-sync/internal/domain"
)

// signalSender — сторона клиента, относящая signaling и speaking
// на сервер. Выделен интерфейсом ради тестов меша без сокета.
type signalSender interface {
	sendSignal(kind, targetUserID string, payload json.RawMessage) error
	sendSpeaking(speaking bool) error
}

const negotiateTimeout = 15 * time.Second

// VoiceManager — полный меш: по одному независимому peer-соединению на
// каждого удалённого участника комнаты. Детерминированное правило «кто
// предлагает»: оффер шлёт тот, кто уже был в комнате; вошедший только
// ждёт (двойной инициации на пару не бывает).
type VoiceManager struct {
	channelID string
	localUser string

	connector PeerConnector
	signals   signalSender

	mu       sync.Mutex
	peers    map[string]*Peer
	muted    bool
	deafened bool
	speaking bool
	closed   bool

	// OnSpeaking уведомляет UI о смене speaking-состояния удалённого
	// участника (в т.ч. о сбросе при его уходе).
	OnSpeaking func(userID string, speaking bool)
	// OnPeerClosed уведомляет о закрытии peer-соединения: UI убирает
	// его аудио-sink.
	OnPeerClosed func(userID string)
}

func newVoiceManager(channelID, localUser string, connector PeerConnector, signals signalSender) *VoiceManager {
	return &VoiceManager{
		channelID: channelID,
		localUser: localUser,
		connector: connector,
		signals:   signals,
		peers:     make(map[string]*Peer),
	}
}

func (v *VoiceManager) ChannelID() string { return v.channelID }

// Peers — снапшот пиров комнаты.
func (v *VoiceManager) Peers() []*Peer {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*Peer, 0, len(v.peers))
	for _, p := range v.peers {
		out = append(out, p)
	}
	return out
}

func (v *VoiceManager) Peer(userID string) (*Peer, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.peers[userID]
	return p, ok
}

// bootstrap заводит по Idle-пиру на каждого текущего участника.
// Мы — вошедший: офферы придут от них, сами не инициируем.
func (v *VoiceManager) bootstrap(members []domain.VoiceState) {
	for _, m := range members {
		if m.UserID == v.localUser {
			continue
		}
		v.ensurePeer(m.UserID, m.DisplayName)
	}
}

// handleJoined — в комнату вошёл новый участник; мы старожил и потому
// инициатор: создаём peer-соединение и шлём оффер.
func (v *VoiceManager) handleJoined(userID, displayName string) {
	if userID == v.localUser {
		return
	}
	p := v.ensurePeer(userID, displayName)
	if p == nil {
		return
	}

	p.enqueue(func() {
		pc := p.media()
		if pc == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), negotiateTimeout)
		defer cancel()

		offer, err := pc.CreateOffer(ctx)
		if err != nil {
			slog.Debug("voice create offer failed", "peer", userID, "err", err)
			return
		}
		if !p.setState(PeerOfferSent) {
			return
		}
		if err := v.signals.sendSignal(domain.TypeWebRTCOffer, userID, offer); err != nil {
			slog.Debug("voice offer send failed", "peer", userID, "err", err)
		}
	})
}

// handleOffer — оффер от старожила (мы вошли позже).
func (v *VoiceManager) handleOffer(fromUserID string, payload json.RawMessage) {
	p := v.ensurePeer(fromUserID, "")
	if p == nil {
		return
	}

	p.enqueue(func() {
		pc := p.media()
		if pc == nil || !p.setState(PeerOfferReceived) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), negotiateTimeout)
		defer cancel()

		answer, err := pc.HandleOffer(ctx, payload)
		if err != nil {
			slog.Debug("voice handle offer failed", "peer", fromUserID, "err", err)
			return
		}
		if !p.setState(PeerAnswerExchanged) {
			return
		}
		if err := v.signals.sendSignal(domain.TypeWebRTCAnswer, fromUserID, answer); err != nil {
			slog.Debug("voice answer send failed", "peer", fromUserID, "err", err)
		}
	})
}

func (v *VoiceManager) handleAnswer(fromUserID string, payload json.RawMessage) {
	p, ok := v.Peer(fromUserID)
	if !ok {
		return // заблудившийся answer молча выбрасывается
	}
	p.enqueue(func() {
		pc := p.media()
		if pc == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), negotiateTimeout)
		defer cancel()

		if err := pc.HandleAnswer(ctx, payload); err != nil {
			slog.Debug("voice handle answer failed", "peer", fromUserID, "err", err)
			return
		}
		p.setState(PeerAnswerExchanged)
	})
}

func (v *VoiceManager) handleICE(fromUserID string, payload json.RawMessage) {
	p, ok := v.Peer(fromUserID)
	if !ok {
		return
	}
	p.enqueue(func() {
		if pc := p.media(); pc != nil {
			if err := pc.AddICECandidate(payload); err != nil {
				slog.Debug("voice ice candidate failed", "peer", fromUserID, "err", err)
			}
		}
	})
}

// PeerEstablished — медиа-слой сообщил, что соединение поднялось.
func (v *VoiceManager) PeerEstablished(userID string) {
	if p, ok := v.Peer(userID); ok {
		p.setState(PeerConnected)
	}
}

// handleLeft закрывает peer-соединение ушедшего и гасит его
// speaking-состояние, чтобы UI не завис в «говорит».
func (v *VoiceManager) handleLeft(userID string) {
	v.mu.Lock()
	p, ok := v.peers[userID]
	if ok {
		delete(v.peers, userID)
	}
	v.mu.Unlock()
	if !ok {
		return
	}

	wasSpeaking := p.Speaking()
	p.close()

	if wasSpeaking && v.OnSpeaking != nil {
		v.OnSpeaking(userID, false)
	}
	if v.OnPeerClosed != nil {
		v.OnPeerClosed(userID)
	}
}

func (v *VoiceManager) handleSpeaking(userID string, speaking bool) {
	p, ok := v.Peer(userID)
	if !ok {
		return
	}
	p.setSpeaking(speaking)
	if v.OnSpeaking != nil {
		v.OnSpeaking(userID, speaking)
	}
}

// SetSpeaking — транзитная публикация «говорит/замолчал» от локального
// детектора. Только переходы: повтор того же состояния не шлётся,
// muted глушит «говорит».
func (v *VoiceManager) SetSpeaking(speaking bool) {
	v.mu.Lock()
	if v.closed || (speaking && v.muted) || v.speaking == speaking {
		v.mu.Unlock()
		return
	}
	v.speaking = speaking
	v.mu.Unlock()

	if err := v.signals.sendSpeaking(speaking); err != nil {
		slog.Debug("speaking send failed", "err", err)
	}
}

// SetMuted останавливает исходящий звук локально; peer-соединения не
// трогаются. Если в момент mute мы «говорили», уходит синтетический
// «замолчал».
func (v *VoiceManager) SetMuted(muted bool) {
	v.mu.Lock()
	v.muted = muted
	wasSpeaking := v.speaking
	if muted {
		v.speaking = false
	}
	v.mu.Unlock()

	if muted && wasSpeaking {
		if err := v.signals.sendSpeaking(false); err != nil {
			slog.Debug("speaking send failed", "err", err)
		}
	}
}

func (v *VoiceManager) Muted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

func (v *VoiceManager) SetDeafened(deafened bool) {
	v.mu.Lock()
	v.deafened = deafened
	v.mu.Unlock()
}

// leave закрывает все peer-соединения комнаты и сбрасывает локальное
// speaking-состояние (удалённые UI получат voice:left от сервера).
func (v *VoiceManager) leave() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	peers := v.peers
	v.peers = make(map[string]*Peer)
	wasSpeaking := v.speaking
	v.speaking = false
	v.mu.Unlock()

	if wasSpeaking {
		_ = v.signals.sendSpeaking(false)
	}
	for id, p := range peers {
		p.close()
		if v.OnPeerClosed != nil {
			v.OnPeerClosed(id)
		}
	}
}

func (v *VoiceManager) ensurePeer(userID, displayName string) *Peer {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	if p, ok := v.peers[userID]; ok {
		v.mu.Unlock()
		return p
	}
	v.mu.Unlock()

	pc, err := v.connector.NewPeer(userID)
	if err != nil {
		slog.Debug("voice new peer failed", "peer", userID, "err", err)
		return nil
	}

	p := newPeer(userID, displayName, pc)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		p.close()
		return nil
	}
	if cur, ok := v.peers[userID]; ok { // гонка двух ensure
		p.close()
		return cur
	}
	v.peers[userID] = p
	return p
}
