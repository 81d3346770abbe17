// Package handler exposes the blood request lifecycle over HTTP. Every
// route requires an authenticated caller; ownership rules live in the
// service, not here.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lifelink/internal/platform/middleware"
	"lifelink/internal/request"
	domainerrors "lifelink/pkg/domain-errors"
	"lifelink/pkg/platform/httputil"
)

type Handler struct {
	service *request.Service
	logger  *slog.Logger
}

func New(service *request.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.cancel)
		r.Post("/{id}/match", h.match)
		r.Post("/{id}/fulfill", h.fulfill)
	})
}

type createRequestBody struct {
	PatientName   string                `json:"patientName"`
	BloodType     string                `json:"bloodType"`
	UnitsRequired int                   `json:"unitsRequired"`
	Urgency       string                `json:"urgency"`
	Hospital      request.Hospital      `json:"hospital"`
	ContactPerson request.ContactPerson `json:"contactPerson"`
	Description   string                `json:"description"`
	ExpiryDate    *time.Time            `json:"expiryDate"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	req, err := h.service.Create(r.Context(), middleware.GetUserID(r.Context()), request.CreateInput{
		PatientName:   body.PatientName,
		BloodType:     body.BloodType,
		UnitsRequired: body.UnitsRequired,
		Urgency:       body.Urgency,
		Hospital:      body.Hospital,
		ContactPerson: body.ContactPerson,
		Description:   body.Description,
		ExpiryDate:    body.ExpiryDate,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(req))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := request.Filter{
		Status:     request.Status(q.Get("status")),
		BloodType:  q.Get("bloodType"),
		OnlyActive: q.Get("active") == "true",
	}
	if q.Get("mine") == "true" {
		f.RequesterID = middleware.GetUserID(r.Context())
	}
	out, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := make([]requestResponse, 0, len(out))
	for _, req := range out {
		resp = append(resp, toResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": resp, "count": len(resp)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(req))
}

type updateRequestBody struct {
	PatientName   *string                `json:"patientName"`
	UnitsRequired *int                   `json:"unitsRequired"`
	Urgency       *string                `json:"urgency"`
	Hospital      *request.Hospital      `json:"hospital"`
	ContactPerson *request.ContactPerson `json:"contactPerson"`
	Description   *string                `json:"description"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var body updateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	req, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), request.UpdateInput{
		PatientName:   body.PatientName,
		UnitsRequired: body.UnitsRequired,
		Urgency:       body.Urgency,
		Hospital:      body.Hospital,
		ContactPerson: body.ContactPerson,
		Description:   body.Description,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Match(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := toResponse(res.Request)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"request":       resp,
		"matchedDonors": resp.MatchedDonors,
		"totalMatches":  len(resp.MatchedDonors),
		"newMatches":    len(res.NewMatches),
	})
}

type fulfillBody struct {
	DonorID   string     `json:"donorId"`
	DonatedAt *time.Time `json:"donationDate"`
	Location  string     `json:"location"`
	VolumeML  int        `json:"volume"`
}

func (h *Handler) fulfill(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserID(r.Context())
	var body fulfillBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DonorID == "" {
		// A donor fulfilling their own match may omit the body entirely.
		body.DonorID = caller
	}
	req, err := h.service.Fulfill(r.Context(), chi.URLParam(r, "id"), request.FulfillInput{
		CallerID:  caller,
		DonorID:   body.DonorID,
		VolumeML:  body.VolumeML,
		Location:  body.Location,
		DonatedAt: body.DonatedAt,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(req))
}

// requestResponse is the wire shape of a request. Version is deliberately
// internal and never serialized.
type requestResponse struct {
	ID             string                `json:"id"`
	RequesterID    string                `json:"requesterId"`
	PatientName    string                `json:"patientName,omitempty"`
	BloodType      string                `json:"bloodType"`
	UnitsRequired  int                   `json:"unitsRequired"`
	FulfilledUnits int                   `json:"fulfilledUnits"`
	Urgency        string                `json:"urgency"`
	Status         string                `json:"status"`
	Hospital       request.Hospital      `json:"hospital"`
	ContactPerson  request.ContactPerson `json:"contactPerson"`
	Description    string                `json:"description,omitempty"`
	MatchedDonors  []request.MatchEntry  `json:"matchedDonors"`
	IsActive       bool                  `json:"isActive"`
	ExpiryDate     time.Time             `json:"expiryDate"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

func toResponse(req *request.BloodRequest) requestResponse {
	matches := req.MatchedDonors
	if matches == nil {
		matches = []request.MatchEntry{}
	}
	return requestResponse{
		ID:             req.ID,
		RequesterID:    req.RequesterID,
		PatientName:    req.PatientName,
		BloodType:      string(req.BloodType),
		UnitsRequired:  req.UnitsRequired,
		FulfilledUnits: req.FulfilledUnits,
		Urgency:        string(req.Urgency),
		Status:         string(req.Status),
		Hospital:       req.Hospital,
		ContactPerson:  req.ContactPerson,
		Description:    req.Description,
		MatchedDonors:  matches,
		IsActive:       req.IsActive,
		ExpiryDate:     req.ExpiryDate,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	}
}
