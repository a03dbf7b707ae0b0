/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/families/{familyID}/events/*       Calendar events
  /api/families/{familyID}/calendar       Expanded occurrence window
  /api/families/{familyID}/lists/*        Lists and their items
  /api/families/{familyID}/items/*        Item mutations and due-date window
  /api/families/{familyID}/transactions/* Budget transactions
  /api/families/{familyID}/budgets/*      Monthly aggregates and limits

SECURITY NOTE:
  No authentication middleware currently. The X-Actor-ID header is trusted
  as-is; put an authenticating proxy in front for production.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api/families/{familyID}", func(r chi.Router) {
		// Calendar routes
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/", h.CreateEvent)
			r.Put("/{id}", h.UpdateEvent)
			r.Delete("/{id}", h.DeleteEvent)
		})
		r.Get("/calendar", h.CalendarWindow)

		// List routes
		r.Route("/lists", func(r chi.Router) {
			r.Get("/", h.ListLists)
			r.Post("/", h.CreateList)
			r.Delete("/{id}", h.DeleteList)
			r.Get("/{id}/items", h.ListItems)
			r.Post("/{id}/items", h.AddItem)
		})
		r.Route("/items", func(r chi.Router) {
			r.Get("/due", h.DueWindow)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
		})

		// Budget routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})
		r.Route("/budgets", func(r chi.Router) {
			r.Get("/{monthKey}", h.GetBudget)
			r.Put("/{monthKey}/limit", h.SetLimit)
		})
	})

	return r
}
