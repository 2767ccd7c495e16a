package http

import (
	"net/http"
	"time"

	"github.com/cwrk-planet/tripchat/internal/auth"
	httpmw "github.com/cwrk-planet/tripchat/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Handler        *Handler
	WS             http.HandlerFunc
	Auth           auth.Authenticator
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.RequestLogger)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", auth.HeaderUserID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS endpoint, личность проверяет сам ws.Server до апгрейда
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware(d.Auth))
		pr.Use(middlewareChi.Timeout(timeout))

		pr.Route("/trips/{tripID}", func(tr chi.Router) {
			tr.Get("/messages", d.Handler.GetMessages)
			tr.Get("/members", d.Handler.GetMembers)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
