package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/chatearn-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса chatearn.
// Обработчик Telegram-webhook передаётся снаружи: у него свой цикл
// декодирования и свои правила ответов.
func (h *Handler) SetupRouter(webhook http.Handler, webhookPath string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/chat", h.Chat)
			r.Get("/profile", h.Profile)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(h.requireAdmin)

		r.Get("/stats", h.AdminStats)
		r.Get("/users", h.AdminUsers)
		r.Get("/chats", h.AdminChats)
		r.Post("/credit", h.AdminCredit)
	})

	if webhook != nil && webhookPath != "" {
		r.Post(webhookPath, webhook.ServeHTTP)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
