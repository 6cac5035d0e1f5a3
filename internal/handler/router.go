package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/parceltrack/internal/account"
	custommiddleware "github.com/mmeshcher/parceltrack/internal/middleware"
	"github.com/mmeshcher/parceltrack/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса учёта доставок.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.Observability)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.tokens.Middleware)
			operatorOnly := custommiddleware.RequireRole(account.RoleOperator)

			r.Route("/deliveries", func(r chi.Router) {
				r.Get("/", h.ListDeliveries)
				r.Get("/pending", h.ListPending)
				r.With(operatorOnly).Post("/", h.CreateDelivery)

				r.Route("/{number}", func(r chi.Router) {
					r.Get("/", h.GetDelivery)
					r.Get("/exists", h.DeliveryExists)
					r.With(operatorOnly).Put("/", h.UpdateDelivery)
					r.Post("/deliver", h.MarkDelivered)
				})
			})

			r.With(operatorOnly).Post("/dispatches", h.Dispatch)
			r.Get("/documents/{cpf}/exists", h.DocumentExists)

			r.Group(func(r chi.Router) {
				r.Use(operatorOnly)
				mountAccounts(r, "/drivers", h.accountRoutes(model.AccountKindDriver))
				mountAccounts(r, "/users", h.accountRoutes(model.AccountKindUser))
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func mountAccounts(r chi.Router, prefix string, a accountRoutes) {
	r.Route(prefix, func(r chi.Router) {
		r.Get("/", a.List)
		r.Post("/", a.Register)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.Get)
			r.Put("/", a.Update)
			r.Post("/activate", a.Activate)
			r.Post("/deactivate", a.Deactivate)
			r.Post("/password", a.ChangePassword)
		})
	})
}
