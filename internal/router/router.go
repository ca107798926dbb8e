package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/luchan-pos/avocado-bonus/internal/api/middlewares"
	"github.com/luchan-pos/avocado-bonus/internal/config"
)

type CustomRouter struct {
	router *chi.Mux
	logger *slog.Logger
	cfg    *config.Config
}

func New(cfg *config.Config, log *slog.Logger) *CustomRouter {
	router := &CustomRouter{
		router: chi.NewRouter(),
		logger: log,
		cfg:    cfg,
	}

	return router
}

type AuthHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
}

type BonusHandler interface {
	PostReceipt(w http.ResponseWriter, r *http.Request)
	PostSpend(w http.ResponseWriter, r *http.Request)
	GetAccounts(w http.ResponseWriter, r *http.Request)
	GetAccount(w http.ResponseWriter, r *http.Request)
	GetHistory(w http.ResponseWriter, r *http.Request)
}

type HealthHandler interface {
	Ping(w http.ResponseWriter, r *http.Request)
}

type Handler interface {
	AuthHandler
	BonusHandler
	HealthHandler
}

func (cr *CustomRouter) SetRouter(h Handler) {
	cr.router.Route("/api/operator", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	cr.router.Route("/api/bonus", func(r chi.Router) {
		if cr.cfg != nil {
			r.Use(middlewares.Authentication(
				[]byte(cr.cfg.SecretKey), cr.logger))
		}

		r.With(middleware.AllowContentType("application/json")).
			Post("/receipts", h.PostReceipt)
		r.With(middleware.AllowContentType("application/json")).
			Post("/spend", h.PostSpend)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.GetAccounts)
			r.Get("/{clientID}", h.GetAccount)
			r.Get("/{clientID}/history", h.GetHistory)
		})
	})
	cr.router.Get("/ping", h.Ping)

	cr.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)
	})
}

func (cr *CustomRouter) GetRouter() *chi.Mux {
	return cr.router
}
