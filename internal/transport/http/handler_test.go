package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jovemegidio/concord-sync/internal/domain"
	"github.com/jovemegidio/concord-sync/internal/gateway"
	"github.com/jovemegidio/concord-sync/internal/presence"
	"github.com/jovemegidio/concord-sync/internal/registry"
	"github.com/jovemegidio/concord-sync/internal/rooms"
)

type recordSink struct {
	msgs []domain.Message
}

func (s *recordSink) Send(m domain.Message) error {
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *recordSink) Close() error { return nil }

func newTestHandler() (*Handler, *rooms.Router) {
	reg := registry.New()
	router := rooms.NewRouter()
	gw := gateway.New(reg, router, presence.NewTracker(presence.NewMemStore()))
	return NewHandler(gw), router
}

func TestPublish_FansOutToRoom(t *testing.T) {
	h, router := newTestHandler()

	sink := &recordSink{}
	c := domain.NewConnection("c1", "app", sink)
	c.UserID = "bob"
	c.TenantID = "t1"
	router.Join(c, domain.ChannelRoom("general"))

	body := `{"type":"message:created","entity":"message","entity_id":"m1","channel_id":"general","ts":100}`
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/publish", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sink.msgs) != 1 || sink.msgs[0].Type != "message:created" {
		t.Fatalf("room member should receive the event, got %v", sink.msgs)
	}
	evt := sink.msgs[0].Payload.(domain.Event)
	if evt.EntityID != "m1" {
		t.Fatalf("unexpected event payload: %+v", evt)
	}
}

func TestPublish_Validation(t *testing.T) {
	h, _ := newTestHandler()

	cases := []struct {
		name string
		body string
	}{
		{"broken json", `{`},
		{"missing type", `{"entity_id":"m1","channel_id":"general"}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/internal/v1/publish", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		h.Publish(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
}

func TestPublish_EmptyRoomIsStillOK(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"type":"message:created","entity_id":"m1","channel_id":"nobody"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/publish", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("publish must not fail on empty rooms, got %d", rec.Code)
	}
}
