package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jovemegidio/concord-sync/internal/domain"
)

type sentSignal struct {
	kind    string
	target  string
	payload json.RawMessage
}

// fakeSignals копит исходящие signaling- и speaking-пакеты; канал
// позволяет ждать асинхронную негоциацию без sleep-ов.
type fakeSignals struct {
	mu       sync.Mutex
	signals  []sentSignal
	speaking []bool
	ch       chan sentSignal
}

func newFakeSignals() *fakeSignals {
	return &fakeSignals{ch: make(chan sentSignal, 16)}
}

func (f *fakeSignals) sendSignal(kind, target string, payload json.RawMessage) error {
	f.mu.Lock()
	s := sentSignal{kind: kind, target: target, payload: payload}
	f.signals = append(f.signals, s)
	f.mu.Unlock()
	f.ch <- s
	return nil
}

func (f *fakeSignals) sendSpeaking(speaking bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speaking = append(f.speaking, speaking)
	return nil
}

func (f *fakeSignals) wait(t *testing.T) sentSignal {
	t.Helper()
	select {
	case s := <-f.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outgoing signal")
		return sentSignal{}
	}
}

func (f *fakeSignals) signalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals)
}

func (f *fakeSignals) speakingLog() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.speaking...)
}

type fakePC struct {
	mu     sync.Mutex
	closed bool
	ice    int
}

func (p *fakePC) CreateOffer(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"type":"offer"}`), nil
}

func (p *fakePC) HandleOffer(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"type":"answer"}`), nil
}

func (p *fakePC) HandleAnswer(context.Context, json.RawMessage) error { return nil }

func (p *fakePC) AddICECandidate(json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ice++
	return nil
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePC) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeConnector struct {
	mu    sync.Mutex
	made  map[string]*fakePC
	calls int
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{made: make(map[string]*fakePC)}
}

func (c *fakeConnector) NewPeer(remoteUserID string) (PeerConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	pc := &fakePC{}
	c.made[remoteUserID] = pc
	return pc, nil
}

func waitPeerState(t *testing.T, p *Peer, want PeerState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("peer %s stuck in %v, want %v", p.UserID, p.State(), want)
}

func TestBootstrap_JoinerWaitsForOffers(t *testing.T) {
	signals := newFakeSignals()
	v := newVoiceManager("general", "me", newFakeConnector(), signals)

	v.bootstrap([]domain.VoiceState{
		{UserID: "alice", ChannelID: "general", DisplayName: "Alice"},
		{UserID: "bob", ChannelID: "general"},
		{UserID: "me", ChannelID: "general"}, // себя пропускаем
	})

	if got := len(v.Peers()); got != 2 {
		t.Fatalf("expected peers for both incumbents, got %d", got)
	}
	p, _ := v.Peer("alice")
	if p.State() != PeerIdle || p.DisplayName != "Alice" {
		t.Fatalf("incumbent peer should wait in idle, got %v", p.State())
	}
	if signals.signalCount() != 0 {
		t.Fatal("joiner must not initiate offers")
	}
}

func TestHandleJoined_IncumbentSendsOffer(t *testing.T) {
	signals := newFakeSignals()
	v := newVoiceManager("general", "me", newFakeConnector(), signals)

	v.handleJoined("bob", "Bob")

	s := signals.wait(t)
	if s.kind != domain.TypeWebRTCOffer || s.target != "bob" {
		t.Fatalf("expected an offer to bob, got %+v", s)
	}
	p, ok := v.Peer("bob")
	if !ok {
		t.Fatal("peer should be registered")
	}
	waitPeerState(t, p, PeerOfferSent)

	// собственный voice:joined (эхо) игнорируется
	v.handleJoined("me", "Me")
	if _, ok := v.Peer("me"); ok {
		t.Fatal("manager must not create a peer for the local user")
	}
}

func TestHandleOffer_JoinerAnswers(t *testing.T) {
	signals := newFakeSignals()
	v := newVoiceManager("general", "me", newFakeConnector(), signals)
	v.bootstrap([]domain.VoiceState{{UserID: "alice", ChannelID: "general"}})

	v.handleOffer("alice", json.RawMessage(`{"type":"offer"}`))

	s := signals.wait(t)
	if s.kind != domain.TypeWebRTCAnswer || s.target != "alice" {
		t.Fatalf("expected an answer to alice, got %+v", s)
	}
	p, _ := v.Peer("alice")
	waitPeerState(t, p, PeerAnswerExchanged)
}

func TestNegotiation_FullHandshake(t *testing.T) {
	signals := newFakeSignals()
	v := newVoiceManager("general", "me", newFakeConnector(), signals)

	v.handleJoined("bob", "Bob")
	signals.wait(t) // оффер ушёл

	v.handleAnswer("bob", json.RawMessage(`{"type":"answer"}`))
	p, _ := v.Peer("bob")
	waitPeerState(t, p, PeerAnswerExchanged)

	v.handleICE("bob", json.RawMessage(`{"candidate":"x"}`))
	v.PeerEstablished("bob")
	waitPeerState(t, p, PeerConnected)

	// заблудившиеся пакеты от незнакомцев молча выбрасываются
	v.handleAnswer("ghost", json.RawMessage(`{}`))
	v.handleICE("ghost", json.RawMessage(`{}`))
}

func TestHandleLeft_ClosesPeerAndClearsSpeaking(t *testing.T) {
	signals := newFakeSignals()
	connector := newFakeConnector()
	v := newVoiceManager("general", "me", connector, signals)

	var mu sync.Mutex
	var speakingLog []sentSignal // kind=userID, target=state
	v.OnSpeaking = func(userID string, speaking bool) {
		mu.Lock()
		defer mu.Unlock()
		speakingLog = append(speakingLog, sentSignal{kind: userID, target: map[bool]string{true: "on", false: "off"}[speaking]})
	}
	var closedPeers []string
	v.OnPeerClosed = func(userID string) {
		mu.Lock()
		defer mu.Unlock()
		closedPeers = append(closedPeers, userID)
	}

	v.handleJoined("bob", "Bob")
	signals.wait(t)
	v.handleSpeaking("bob", true)

	v.handleLeft("bob")

	if _, ok := v.Peer("bob"); ok {
		t.Fatal("left peer should be removed")
	}
	if !connector.made["bob"].isClosed() {
		t.Fatal("peer connection should be closed on leave")
	}

	mu.Lock()
	defer mu.Unlock()
	last := speakingLog[len(speakingLog)-1]
	if last.kind != "bob" || last.target != "off" {
		t.Fatalf("speaking state of a departed peer must be cleared, got %+v", last)
	}
	if len(closedPeers) != 1 || closedPeers[0] != "bob" {
		t.Fatalf("OnPeerClosed should fire for bob, got %v", closedPeers)
	}

	// повторный left — no-op
	v.handleLeft("bob")
}

func TestSetSpeaking_TransitionsOnly(t *testing.T) {
	signals := newFakeSignals()
	v := newVoiceManager("general", "me", newFakeConnector(), signals)

	v.SetSpeaking(true)
	v.SetSpeaking(true) // повтор не шлётся
	v.SetSpeaking(false)
	v.SetSpeaking(false)

	if got := signals.speakingLog(); len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("expected [true false], got %v", got)
	}
}

func TestSetMuted_SuppressesSpeaking(t *testing.T) {
	signals := newFakeSignals()
	v := newVoiceManager("general", "me", newFakeConnector(), signals)

	v.SetSpeaking(true)
	v.SetMuted(true) // говорили — уходит синтетический «замолчал»

	if got := signals.speakingLog(); len(got) != 2 || got[1] {
		t.Fatalf("mute while speaking should emit a synthetic stop, got %v", got)
	}

	v.SetSpeaking(true) // в mute «говорит» глушится
	if got := signals.speakingLog(); len(got) != 2 {
		t.Fatalf("speaking while muted must be suppressed, got %v", got)
	}

	v.SetMuted(false)
	v.SetSpeaking(true)
	if got := signals.speakingLog(); len(got) != 3 || !got[2] {
		t.Fatalf("unmute should allow speaking again, got %v", got)
	}
}

func TestLeave_ClosesEverything(t *testing.T) {
	signals := newFakeSignals()
	connector := newFakeConnector()
	v := newVoiceManager("general", "me", connector, signals)

	var mu sync.Mutex
	var closedPeers []string
	v.OnPeerClosed = func(userID string) {
		mu.Lock()
		defer mu.Unlock()
		closedPeers = append(closedPeers, userID)
	}

	v.handleJoined("alice", "Alice")
	signals.wait(t)
	v.handleJoined("bob", "Bob")
	signals.wait(t)
	v.SetSpeaking(true)

	v.leave()

	mu.Lock()
	n := len(closedPeers)
	mu.Unlock()
	if n != 2 {
		t.Fatalf("all peers should be closed, got %d", n)
	}
	if !connector.made["alice"].isClosed() || !connector.made["bob"].isClosed() {
		t.Fatal("peer connections should be closed")
	}
	log := signals.speakingLog()
	if len(log) == 0 || log[len(log)-1] {
		t.Fatalf("leave while speaking should emit a final stop, got %v", log)
	}

	// после leave менеджер мёртв: новые участники не заводятся
	v.handleJoined("carol", "Carol")
	if _, ok := v.Peer("carol"); ok {
		t.Fatal("closed manager must not create peers")
	}
	v.leave() // идемпотентность
}
