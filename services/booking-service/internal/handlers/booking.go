package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
	"github.com/obiefoma/slotbook/services/booking-service/internal/engine"
	"github.com/obiefoma/slotbook/services/booking-service/internal/reviews"
)

type BookingHandler struct {
	engine *engine.Engine
	gate   *reviews.Gate
	logger *slog.Logger
}

func NewBookingHandler(e *engine.Engine, gate *reviews.Gate, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: e, gate: gate, logger: logger}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/slots", h.ListSlots)
	mux.HandleFunc("/api/v1/public/reviews", h.ListReviews)
	mux.HandleFunc("/api/v1/availability", h.SetAvailability)
	mux.HandleFunc("/api/v1/book", h.Book)
	mux.HandleFunc("/api/v1/appointments", h.ListAppointments)
	mux.HandleFunc("/api/v1/appointments/detail", h.GetAppointment)
	mux.HandleFunc("/api/v1/appointments/confirm", h.Confirm)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/can-review", h.CanReview)
	mux.HandleFunc("/api/v1/reviews", h.SubmitReview)
	mux.HandleFunc("/api/v1/admin/appointments", h.AdminListAppointments)
}

// actorFromRequest reads the identity the gateway injected. An empty user id
// means the request skipped the gateway; those get guest and fail authz.
func actorFromRequest(r *http.Request) domain.Actor {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	role := domain.Role(strings.TrimSpace(r.Header.Get("X-Role")))
	switch role {
	case domain.RoleAdmin, domain.RoleUser, domain.RoleProfessional:
	default:
		role = domain.RoleGuest
	}
	return domain.Actor{UserID: userID, Role: role}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error) {
	var te *domain.TransitionError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrSlotUnavailable):
		http.Error(w, "slot unavailable", http.StatusConflict)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidUser):
		http.Error(w, "invalid user", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrInvalidProfessional):
		http.Error(w, "invalid professional", http.StatusUnprocessableEntity)
	case errors.As(err, &te):
		http.Error(w, te.Error(), http.StatusConflict)
	case errors.Is(err, reviews.ErrInvalidRating):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type appointmentItem struct {
	AppointmentID  string `json:"appointment_id"`
	UserID         string `json:"user_id"`
	ProfessionalID string `json:"professional_id"`
	ScheduledTime  string `json:"scheduled_time"`
	Status         string `json:"status"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toAppointmentItem(a *domain.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:  a.ID,
		UserID:         a.UserID,
		ProfessionalID: a.ProfessionalID,
		ScheduledTime:  a.ScheduledTime.UTC().Format(time.RFC3339),
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

type slotItem struct {
	ProfessionalID string `json:"professional_id"`
	SlotTime       string `json:"slot_time"`
}

func (h *BookingHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	professionalID := strings.TrimSpace(r.URL.Query().Get("professional_id"))
	if professionalID == "" {
		http.Error(w, "missing professional_id", http.StatusBadRequest)
		return
	}

	from := time.Now().UTC()
	to := from.AddDate(0, 0, 14)
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = t
	}

	slots, err := h.engine.OpenSlots(r.Context(), professionalID, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			ProfessionalID: s.ProfessionalID,
			SlotTime:       s.StartTime.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": items})
}

type setAvailabilityRequest struct {
	ProfessionalID string `json:"professional_id"`
	SlotTime       string `json:"slot_time"`
	Available      *bool  `json:"available"`
}

func (h *BookingHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req setAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	if req.ProfessionalID == "" {
		http.Error(w, "missing professional_id", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, req.SlotTime)
	if err != nil {
		http.Error(w, "invalid slot_time", http.StatusBadRequest)
		return
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}

	actor := actorFromRequest(r)
	if err := h.engine.SetAvailability(r.Context(), req.ProfessionalID, at, available, actor); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"professional_id": req.ProfessionalID,
		"slot_time":       at.UTC().Format(time.RFC3339),
		"available":       available,
	})
}

type bookRequest struct {
	ProfessionalID string `json:"professional_id"`
	SlotTime       string `json:"slot_time"`
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor := actorFromRequest(r)
	if actor.UserID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	if req.ProfessionalID == "" {
		http.Error(w, "missing professional_id", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, req.SlotTime)
	if err != nil {
		http.Error(w, "invalid slot_time", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Book(r.Context(), actor.UserID, req.ProfessionalID, at)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

func (h *BookingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor := actorFromRequest(r)
	if actor.UserID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	appts, err := h.engine.ListForUser(r.Context(), actor.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for i := range appts {
		items = append(items, toAppointmentItem(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (h *BookingHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor := actorFromRequest(r)
	if actor.UserID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		http.Error(w, "missing appointment_id", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Get(r.Context(), appointmentID, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

func (h *BookingHandler) AdminListAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if actorFromRequest(r).Role != domain.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	appts, err := h.engine.ListAll(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for i := range appts {
		items = append(items, toAppointmentItem(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.engine.Confirm)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.engine.Cancel)
}

func (h *BookingHandler) applyTransition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id string, actor domain.Actor) (*domain.Appointment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor := actorFromRequest(r)
	if actor.UserID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "missing appointment_id", http.StatusBadRequest)
		return
	}

	appt, err := apply(r.Context(), req.AppointmentID, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

func (h *BookingHandler) CanReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor := actorFromRequest(r)
	if actor.UserID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		http.Error(w, "missing appointment_id", http.StatusBadRequest)
		return
	}

	ok, err := h.gate.CanReview(r.Context(), appointmentID, actor.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"can_review": ok})
}

type reviewItem struct {
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"created_at"`
}

// ListReviews is public: it shows a professional's reviews without naming the
// reviewers.
func (h *BookingHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	professionalID := strings.TrimSpace(r.URL.Query().Get("professional_id"))
	if professionalID == "" {
		http.Error(w, "missing professional_id", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	revs, err := h.gate.ListForProfessional(r.Context(), professionalID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]reviewItem, 0, len(revs))
	for _, rev := range revs {
		items = append(items, reviewItem{
			Rating:    rev.Rating,
			Comment:   rev.Comment,
			CreatedAt: rev.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": items})
}

type submitReviewRequest struct {
	AppointmentID string `json:"appointment_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
}

func (h *BookingHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor := actorFromRequest(r)
	if actor.UserID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req submitReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "missing appointment_id", http.StatusBadRequest)
		return
	}

	rev, err := h.gate.Submit(r.Context(), req.AppointmentID, actor.UserID, req.Rating, strings.TrimSpace(req.Comment))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"review_id":      rev.ID,
		"appointment_id": rev.AppointmentID,
		"rating":         rev.Rating,
	})
}
