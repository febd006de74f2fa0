package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/bus-reservations/internal/booking"
	"github.com/robertarktes/bus-reservations/internal/domain"
	"github.com/robertarktes/bus-reservations/internal/observability"
	"github.com/robertarktes/bus-reservations/internal/payment"
	"github.com/robertarktes/bus-reservations/internal/seatlock"
)

type Handlers struct {
	bookings *booking.Service
	bridge   *payment.Bridge
	locks    *seatlock.Manager
	logger   observability.Logger
}

func NewHandlers(bookings *booking.Service, bridge *payment.Bridge, locks *seatlock.Manager, logger observability.Logger) *Handlers {
	return &Handlers{bookings: bookings, bridge: bridge, locks: locks, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrSeatConflict),
		errors.Is(err, domain.ErrStopOrder),
		errors.Is(err, domain.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrBadSignature):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		RequestLogger(r.Context(), h.logger).WithError(err).Error("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type seatResponse struct {
	SeatCode string  `json:"seat_code"`
	Price    float64 `json:"price"`
}

type bookingResponse struct {
	ID             uuid.UUID      `json:"id"`
	Code           string         `json:"code"`
	Status         string         `json:"status"`
	TripID         uuid.UUID      `json:"trip_id"`
	PassengerName  string         `json:"passenger_name"`
	PassengerPhone string         `json:"passenger_phone"`
	PickupStopID   uuid.UUID      `json:"pickup_stop_id"`
	DropoffStopID  uuid.UUID      `json:"dropoff_stop_id"`
	Seats          []seatResponse `json:"seats"`
	TotalPrice     float64        `json:"total_price"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:             b.ID,
		Code:           b.Code,
		Status:         string(b.Status),
		TripID:         b.TripID,
		PassengerName:  b.PassengerName,
		PassengerPhone: b.PassengerPhone,
		PickupStopID:   b.PickupStopID,
		DropoffStopID:  b.DropoffStopID,
		TotalPrice:     b.TotalPrice,
		CreatedAt:      b.CreatedAt,
	}
	for _, t := range b.Tickets {
		resp.Seats = append(resp.Seats, seatResponse{SeatCode: t.SeatCode, Price: t.Price})
	}
	return resp
}

type holdRequest struct {
	HolderID string `json:"holder_id"`
}

// AcquireHold is the seat-picker's non-blocking "try": 200 with granted
// true/false, never a blocking wait.
func (h *Handlers) AcquireHold(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	seatCode := chi.URLParam(r, "seatCode")

	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HolderID == "" {
		http.Error(w, "holder_id required", http.StatusBadRequest)
		return
	}

	granted := h.locks.Acquire(r.Context(), tripID, seatCode, req.HolderID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"seat_code": seatCode,
		"granted":   granted,
	})
}

func (h *Handlers) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	seatCode := chi.URLParam(r, "seatCode")

	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HolderID == "" {
		http.Error(w, "holder_id required", http.StatusBadRequest)
		return
	}

	h.locks.Release(r.Context(), tripID, seatCode, req.HolderID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HeldSeats(w http.ResponseWriter, r *http.Request) {
	held, err := h.locks.HeldSeats(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"held": held})
}

type createBookingRequest struct {
	TripID         uuid.UUID `json:"trip_id"`
	OwnerID        string    `json:"owner_id"`
	PassengerName  string    `json:"passenger_name"`
	PassengerPhone string    `json:"passenger_phone"`
	PassengerEmail string    `json:"passenger_email"`
	ContactEmail   string    `json:"contact_email"`
	PickupStopID   uuid.UUID `json:"pickup_stop_id"`
	DropoffStopID  uuid.UUID `json:"dropoff_stop_id"`
	Seats          []struct {
		SeatCode string  `json:"seat_code"`
		Price    float64 `json:"price"`
	} `json:"seats"`
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	in := booking.CreateInput{
		TripID:         req.TripID,
		OwnerID:        req.OwnerID,
		PassengerName:  req.PassengerName,
		PassengerPhone: req.PassengerPhone,
		PassengerEmail: req.PassengerEmail,
		ContactEmail:   req.ContactEmail,
		PickupStopID:   req.PickupStopID,
		DropoffStopID:  req.DropoffStopID,
	}
	for _, s := range req.Seats {
		in.Seats = append(in.Seats, domain.SeatSelection{SeatCode: s.SeatCode, Price: s.Price})
	}

	b, err := h.bookings.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// The ledger row now owns the seats; the picker's soft holds are
	// redundant and leave the hold system as committed.
	h.locks.CommitForBooking(r.Context(), b.TripID.String(), b.SeatCodes())

	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

type updateBookingRequest struct {
	PassengerName  string `json:"passenger_name"`
	PassengerPhone string `json:"passenger_phone"`
	PassengerEmail string `json:"passenger_email"`
	ContactEmail   string `json:"contact_email"`
	Seats          []struct {
		SeatCode string  `json:"seat_code"`
		Price    float64 `json:"price"`
	} `json:"seats"`
}

func (h *Handlers) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req updateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in := booking.UpdateInput{
		PassengerName:  req.PassengerName,
		PassengerPhone: req.PassengerPhone,
		PassengerEmail: req.PassengerEmail,
		ContactEmail:   req.ContactEmail,
	}
	for _, s := range req.Seats {
		in.Seats = append(in.Seats, domain.SeatSelection{SeatCode: s.SeatCode, Price: s.Price})
	}

	b, err := h.bookings.Update(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *Handlers) bookingAction(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := fn(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.bookings.ByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, func(id uuid.UUID) error { return h.bookings.Cancel(r.Context(), id) })
}

func (h *Handlers) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, func(id uuid.UUID) error { return h.bookings.Confirm(r.Context(), id) })
}

func (h *Handlers) RefundBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, func(id uuid.UUID) error { return h.bookings.Refund(r.Context(), id) })
}

func (h *Handlers) BookingByCode(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.ByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *Handlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	t, err := h.bridge.InitiatePayment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order_code": t.OrderCode,
		"amount":     t.Amount,
		"status":     t.Status,
	})
}

// PaymentWebhook takes the provider's raw body so the signature can be
// verified over exactly the delivered bytes.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.bridge.HandleWebhook(r.Context(), body, r.Header.Get("X-Signature")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	orderCode, err := strconv.ParseInt(chi.URLParam(r, "orderCode"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order code", http.StatusBadRequest)
		return
	}
	t, err := h.bridge.Verify(r.Context(), orderCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_code": t.OrderCode,
		"status":     t.Status,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
