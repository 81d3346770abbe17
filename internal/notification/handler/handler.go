// Package handler exposes the in-app notification feed over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifelink/internal/notification"
	"lifelink/internal/platform/middleware"
	"lifelink/pkg/platform/httputil"
)

type Handler struct {
	service *notification.Service
	logger  *slog.Logger
}

func New(service *notification.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.list)
	r.Post("/notifications/{id}/read", h.markRead)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	out, err := h.service.List(r.Context(), middleware.GetUserID(r.Context()), unreadOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if out == nil {
		out = []*notification.Notification{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"notifications": out, "count": len(out)})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	err := h.service.MarkRead(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
