package wizard

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flotteq/booking-service/internal/fleet"
	"github.com/flotteq/booking-service/internal/tenancy"
	"github.com/flotteq/booking-service/pkg/logging"
)

// Handler exposes the wizard over HTTP. All routes require an
// authenticated user in the request context.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger.Component("wizard_http")}
}

// Routes returns the wizard router, mounted under /bookings/wizard.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.open)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.cancel)
		r.Put("/vehicle", h.selectVehicle)
		r.Get("/slots", h.slots)
		r.Put("/slot", h.selectSlot)
		r.Put("/notes", h.notes)
		r.Post("/next", h.next)
		r.Post("/back", h.back)
		r.Get("/summary", h.summary)
		r.Post("/confirm", h.confirm)
	})
	return r
}

type openRequest struct {
	PartnerID       string `json:"partnerId"`
	ServiceID       string `json:"serviceId"`
	PartnerName     string `json:"partnerName"`
	ServiceName     string `json:"serviceName"`
	ServiceDuration int    `json:"serviceDuration"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	userID, ok := tenancy.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := h.service.Open(r.Context(), userID, OpenParams{
		PartnerID:       req.PartnerID,
		ServiceID:       req.ServiceID,
		PartnerName:     req.PartnerName,
		ServiceName:     req.ServiceName,
		DurationMinutes: req.ServiceDuration,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID string) (any, error) {
		return h.service.Get(r.Context(), userID, sessionID)
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := tenancy.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.service.Close(r.Context(), userID, chi.URLParam(r, "sessionID")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) selectVehicle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleID string `json:"vehicleId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.withSession(w, r, func(userID, sessionID string) (any, error) {
		return h.service.SelectVehicle(r.Context(), userID, sessionID, req.VehicleID)
	})
}

func (h *Handler) slots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	h.withSession(w, r, func(userID, sessionID string) (any, error) {
		slots, err := h.service.LoadSlots(r.Context(), userID, sessionID, date)
		if err != nil {
			return nil, err
		}
		return map[string]any{"date": date, "slots": slots}, nil
	})
}

func (h *Handler) selectSlot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
		Slot Slot   `json:"slot"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.withSession(w, r, func(userID, sessionID string) (any, error) {
		return h.service.SelectSlot(r.Context(), userID, sessionID, req.Date, req.Slot)
	})
}

func (h *Handler) notes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.withSession(w, r, func(userID, sessionID string) (any, error) {
		return h.service.SetNotes(r.Context(), userID, sessionID, req.Notes)
	})
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID string) (any, error) {
		return h.service.Next(r.Context(), userID, sessionID)
	})
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID string) (any, error) {
		return h.service.Back(r.Context(), userID, sessionID)
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID string) (any, error) {
		return h.service.Summary(r.Context(), userID, sessionID)
	})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(userID, sessionID string) (any, error) {
		return h.service.Confirm(r.Context(), userID, sessionID)
	})
}

// withSession runs fn with the authenticated user and the session path
// parameter, writing the result or a mapped error.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(userID, sessionID string) (any, error)) {
	userID, ok := tenancy.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	result, err := fn(userID, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, ErrSessionClosed):
		writeError(w, http.StatusGone, "session closed")
	case errors.Is(err, ErrConfirmInFlight):
		writeError(w, http.StatusConflict, "confirmation already in progress")
	case errors.Is(err, ErrSlotQuerySuperseded):
		writeError(w, http.StatusConflict, "availability query superseded by a newer one")
	case errors.Is(err, ErrVehicleUnknown),
		errors.Is(err, ErrDateInPast),
		errors.Is(err, ErrDateInvalid),
		errors.Is(err, ErrSlotNotPresented),
		errors.Is(err, ErrDraftIncomplete),
		errors.Is(err, ErrNotOnSummary):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		var apiErr *fleet.APIError
		if errors.As(err, &apiErr) {
			// Surface the structured upstream message verbatim.
			writeError(w, http.StatusBadGateway, fleet.ErrorMessage(err))
			return
		}
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
