package conversation

import (
	"context"
	"errors"
	"strconv"

	"github.com/functiomed/voice-agent/internal/booking"
)

// BookingStoreAdapter exposes a booking.Store as the engine's availability
// and reservation collaborators, translating the store's conflict error
// into the engine's sentinel.
type BookingStoreAdapter struct {
	store *booking.Store
}

func NewBookingStoreAdapter(store *booking.Store) *BookingStoreAdapter {
	return &BookingStoreAdapter{store: store}
}

func (a *BookingStoreAdapter) QueryAvailability(ctx context.Context, service, date string) ([]string, error) {
	return a.store.QueryAvailability(ctx, service, date)
}

func (a *BookingStoreAdapter) Reserve(ctx context.Context, req BookingRequest) (string, error) {
	id, err := a.store.Reserve(ctx, booking.Reservation{
		SessionID: req.SessionID,
		Service:   req.Service,
		Date:      req.Date,
		Time:      req.Time,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if errors.Is(err, booking.ErrSlotTaken) {
		return "", ErrSlotTaken
	}
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}
