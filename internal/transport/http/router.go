package httptransport

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"velvet-rooms/internal/config"
	"velvet-rooms/internal/engine"
	"velvet-rooms/internal/wallet"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func NewRouter(eng *engine.Engine, led *wallet.Ledger, db Pinger, cfg config.ServerConfig) *chi.Mux {
	roomHandlers := NewRoomHandlers(eng)
	adminHandlers := NewAdminHandlers(db, led, eng)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())

		r.Route("/rooms/{room_id}", func(r chi.Router) {
			r.Post("/join", roomHandlers.Join())
			r.Post("/leave", roomHandlers.Leave())
			r.Post("/slots/claim", roomHandlers.ClaimSlot())
			r.Post("/slots/release", roomHandlers.ReleaseSlot())
			r.Post("/reveals", roomHandlers.RequestReveal())
			r.Delete("/reveals", roomHandlers.ClearReveal())
			r.Post("/end", roomHandlers.End())
			r.Get("/snapshot", roomHandlers.Snapshot())
			r.Get("/events", EventsSSEHandler(eng))
		})

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Get("/ledger", adminHandlers.Ledger())
			r.Post("/topup", adminHandlers.Topup())
			r.Post("/settle", adminHandlers.Settle())
			r.Post("/rooms", adminHandlers.CreateRoom())
		})
	})

	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 16)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
