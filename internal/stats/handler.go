package stats

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifelink/pkg/platform/httputil"
)

// Handler serves the public availability dashboard.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/stats/blood-types", h.byBloodType)
}

func (h *Handler) byBloodType(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ByBloodType(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"bloodTypes": out})
}
