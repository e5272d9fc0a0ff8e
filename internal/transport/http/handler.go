package http

import (
	"encoding/json"
	"net/http"

	"github.com/jovemegidio/concord-sync/internal/domain"
	"github.com/jovemegidio/concord-sync/internal/gateway"
	"github.com/jovemegidio/concord-sync/pkg/errs"
	"github.com/jovemegidio/concord-sync/pkg/httputil"
)

type Handler struct {
	gw *gateway.Gateway
}

func NewHandler(gw *gateway.Gateway) *Handler {
	return &Handler{gw: gw}
}

// Publish — входная точка для слоя запросов из других процессов:
// мутация уже сохранена, событие нужно разнести по комнате.
// POST /internal/v1/publish
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var evt domain.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		httputil.Error(r.Context(), w, errs.ToHTTP(errs.ErrInvalidInput), "invalid event payload", nil)
		return
	}
	if evt.Type == "" {
		httputil.Error(r.Context(), w, errs.ToHTTP(errs.ErrInvalidInput), "event type is required", nil)
		return
	}

	// Пустая комната или неизвестный адресат — не ошибка вызывающего:
	// publish никогда не фейлится из-за отсутствия слушателей.
	h.gw.Publish(evt)
	httputil.OK(w, map[string]any{"published": true})
}
