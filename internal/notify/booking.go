package notify

import (
	"context"
	"fmt"

	"github.com/functiomed/voice-agent/internal/conversation"
	"github.com/functiomed/voice-agent/pkg/logging"
)

// BookingNotifier emails patients their booking confirmation. It satisfies
// the conversation engine's notifier contract.
type BookingNotifier struct {
	sender     EmailSender
	clinicName string
	logger     *logging.Logger
}

// NewBookingNotifier wires an email sender. A nil sender returns nil,
// which the engine treats as notifications disabled.
func NewBookingNotifier(sender EmailSender, clinicName string, logger *logging.Logger) *BookingNotifier {
	if sender == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = "the clinic"
	}
	return &BookingNotifier{sender: sender, clinicName: clinicName, logger: logger}
}

// BookingConfirmed sends the confirmation email for a committed booking.
func (n *BookingNotifier) BookingConfirmed(ctx context.Context, bookingID string, req conversation.BookingRequest) error {
	if req.Email == "" {
		return nil
	}

	subject := fmt.Sprintf("Your %s appointment is confirmed", n.clinicName)
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your appointment is confirmed.\n\n"+
			"Booking number: %s\n"+
			"Service: %s\n"+
			"Date: %s\n"+
			"Time: %s\n\n"+
			"If you need to change or cancel, please call us and mention your booking number.\n\n"+
			"See you soon,\n%s",
		req.Name, bookingID, req.Service, req.Date, req.Time, n.clinicName,
	)

	err := n.sender.Send(ctx, EmailMessage{
		To:      req.Email,
		ToName:  req.Name,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("notify: booking confirmation for %s: %w", bookingID, err)
	}
	n.logger.Info("booking confirmation sent", "booking_id", bookingID, "to", req.Email)
	return nil
}
