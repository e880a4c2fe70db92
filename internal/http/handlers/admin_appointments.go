package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/functiomed/voice-agent/internal/booking"
	"github.com/functiomed/voice-agent/pkg/logging"
)

// AppointmentStore is the slice of the booking store the admin surface
// needs.
type AppointmentStore interface {
	ListAppointments(ctx context.Context, date string) ([]booking.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*booking.Appointment, error)
	CancelAppointment(ctx context.Context, id int64) (bool, error)
}

// AdminAppointmentsHandler serves the clinic staff's view of bookings.
type AdminAppointmentsHandler struct {
	store  AppointmentStore
	logger *logging.Logger
}

func NewAdminAppointmentsHandler(store AppointmentStore, logger *logging.Logger) *AdminAppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAppointmentsHandler{store: store, logger: logger}
}

// List returns appointments as JSON, optionally filtered by ?date=YYYY-MM-DD.
func (h *AdminAppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	appts, err := h.store.ListAppointments(r.Context(), date)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	if appts == nil {
		appts = []booking.Appointment{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"appointments": appts,
		"total":        len(appts),
	})
}

// Get returns one appointment by id.
func (h *AdminAppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	appt, err := h.store.GetAppointment(r.Context(), id)
	if err != nil {
		h.logger.Error("get appointment failed", "error", err, "appointment_id", id)
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	if appt == nil {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(appt)
}

// Cancel marks an appointment cancelled and frees its slot.
func (h *AdminAppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	ok, err := h.store.CancelAppointment(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel appointment failed", "error", err, "appointment_id", id)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
}

// Export streams appointments as CSV for the clinic's front desk.
func (h *AdminAppointmentsHandler) Export(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	appts, err := h.store.ListAppointments(r.Context(), date)
	if err != nil {
		h.logger.Error("export appointments failed", "error", err)
		http.Error(w, "failed to export appointments", http.StatusInternalServerError)
		return
	}

	filename := "appointments.csv"
	if date != "" {
		filename = fmt.Sprintf("appointments-%s.csv", date)
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "name", "email", "phone", "service", "date", "time", "status", "created_at"})
	for _, a := range appts {
		_ = cw.Write([]string{
			strconv.FormatInt(a.ID, 10),
			a.Name,
			a.Email,
			a.Phone,
			a.Service,
			a.Date,
			a.Time,
			a.Status,
			a.CreatedAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
}
