package notify

import (
	"context"
	"fmt"

	"github.com/clinicbook/clinic-booking/internal/booking"
)

// Service composes the booking lifecycle emails. It implements
// booking.Notifier; send failures propagate so the caller can decide to
// swallow them (the state machine does).
type Service struct {
	sender EmailSender
}

func NewService(sender EmailSender) *Service {
	return &Service{sender: sender}
}

func (s *Service) BookingConfirmed(ctx context.Context, n booking.Notification) error {
	return s.sender.Send(ctx, EmailMessage{
		To:      n.Email,
		ToName:  n.PatientName,
		Subject: fmt.Sprintf("Appointment confirmed for %s", n.Date),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour appointment with %s on %s (%s) is confirmed.\n\nSee you then.",
			n.PatientName, n.DoctorName, n.Date, n.TimeSlot,
		),
	})
}

func (s *Service) BookingCancelled(ctx context.Context, n booking.Notification) error {
	return s.sender.Send(ctx, EmailMessage{
		To:      n.Email,
		ToName:  n.PatientName,
		Subject: fmt.Sprintf("Appointment cancelled for %s", n.Date),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour appointment with %s on %s (%s) has been cancelled. The time slot is open again if you want to rebook.",
			n.PatientName, n.DoctorName, n.Date, n.TimeSlot,
		),
	})
}

var _ booking.Notifier = (*Service)(nil)
