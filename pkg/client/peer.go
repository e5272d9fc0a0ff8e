package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// PeerState — машина состояний peer-соединения:
// Idle → OfferSent/OfferReceived → AnswerExchanged → Connected → Closed.
type PeerState int32

const (
	PeerIdle PeerState = iota
	PeerOfferSent
	PeerOfferReceived
	PeerAnswerExchanged
	PeerConnected
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerIdle:
		return "idle"
	case PeerOfferSent:
		return "offer_sent"
	case PeerOfferReceived:
		return "offer_received"
	case PeerAnswerExchanged:
		return "answer_exchanged"
	case PeerConnected:
		return "connected"
	case PeerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerConn — медиа-сторона peer-соединения. Ядро негоциацией payload-ов
// не занимается: offer/answer/candidate для него непрозрачны, их
// содержимое принадлежит медиа-слою встраивающего приложения.
type PeerConn interface {
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	HandleOffer(ctx context.Context, offer json.RawMessage) (answer json.RawMessage, err error)
	HandleAnswer(ctx context.Context, answer json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error
	Close() error
}

// PeerConnector создаёт PeerConn для удалённого участника.
type PeerConnector interface {
	NewPeer(remoteUserID string) (PeerConn, error)
}

// Peer — удалённый участник voice-комнаты. Одно независимое
// peer-соединение на пару; сорванная негоциация одного пира не
// трогает остальных.
type Peer struct {
	UserID      string
	DisplayName string

	mu           sync.Mutex
	state        PeerState
	muted        bool
	deafened     bool
	speaking     bool
	lastSpeaking time.Time

	pc PeerConn

	// Негоциация каждой пары независима: у пира своя очередь задач,
	// зависший пир не тормозит остальных и не трогает диспетчер событий.
	tasks chan func()
	done  chan struct{}
}

func newPeer(userID, displayName string, pc PeerConn) *Peer {
	p := &Peer{
		UserID:      userID,
		DisplayName: displayName,
		pc:          pc,
		tasks:       make(chan func(), 32),
		done:        make(chan struct{}),
	}
	go p.worker()
	return p
}

func (p *Peer) worker() {
	for {
		select {
		case f := <-p.tasks:
			f()
		case <-p.done:
			return
		}
	}
}

// enqueue не блокируется: при переполненной очереди задача
// выбрасывается, пир переживёт сорванную негоциацию сам.
func (p *Peer) enqueue(f func()) {
	select {
	case p.tasks <- f:
	case <-p.done:
	default:
	}
}

func (p *Peer) media() PeerConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc
}

func (p *Peer) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) setState(s PeerState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PeerClosed {
		return false // закрытый пир не реанимируется
	}
	p.state = s
	return true
}

func (p *Peer) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

func (p *Peer) setSpeaking(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speaking = v
	if v {
		p.lastSpeaking = time.Now()
	}
}

// close закрывает медиа-сторону и терминирует состояние. Идемпотентен.
func (p *Peer) close() {
	p.mu.Lock()
	if p.state == PeerClosed {
		p.mu.Unlock()
		return
	}
	p.state = PeerClosed
	p.speaking = false
	pc := p.pc
	p.pc = nil
	p.mu.Unlock()

	close(p.done)
	if pc != nil {
		_ = pc.Close()
	}
}
