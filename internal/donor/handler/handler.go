// Package handler exposes the donor directory over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lifelink/internal/donor"
	domainerrors "lifelink/pkg/domain-errors"
	"lifelink/pkg/platform/httputil"
)

type Handler struct {
	service *donor.Service
	logger  *slog.Logger
}

func New(service *donor.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/donors/search", h.search)
	r.Get("/donors/nearby", h.nearby)
	r.Get("/donors/{id}", h.profile)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.service.Search(r.Context(), donor.SearchInput{
		BloodType: q.Get("bloodType"),
		City:      q.Get("city"),
		State:     q.Get("state"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"donors": out, "count": len(out)})
}

func (h *Handler) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "lat and lng are required"))
		return
	}
	radius, _ := strconv.ParseFloat(q.Get("radiusKm"), 64)

	out, err := h.service.Nearby(r.Context(), donor.NearbyInput{
		Latitude:  lat,
		Longitude: lng,
		BloodType: q.Get("bloodType"),
		RadiusKm:  radius,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"donors": out, "count": len(out)})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
