package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/jovemegidio/concord-sync/internal/transport/http/middleware"
	"github.com/jovemegidio/concord-sync/internal/transport/ws"
	"github.com/jovemegidio/concord-sync/pkg/httputil"
)

func NewRouter(h *Handler, wsServer *ws.Server, internalToken string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httputil.MiddlewareRequestID)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", httputil.HeaderRequestID},
			AllowCredentials: true,
		}))
	}

	// WS endpoints: logging-middleware сюда не вешаем, обёртка writer-а
	// ломает hijack при upgrade.
	r.Get("/ws/app", wsServer.HandleApp)
	r.Get("/ws/board", wsServer.HandleBoard)

	// Внутренний контур для слоя запросов.
	r.Group(func(ir chi.Router) {
		ir.Use(httpmw.InternalAuth(internalToken))
		ir.Use(httputil.MiddlewareLogging)
		ir.Use(middlewareChi.Timeout(10 * time.Second))

		ir.Post("/internal/v1/publish", h.Publish)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
