package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinic-booking/internal/booking"
)

const (
	gatewayVersion      = "2.1.0"
	gatewayCommand      = "pay"
	gatewayCurrency     = "VND"
	responseCodeSuccess = "00"

	EventPaymentReturn = "PAYMENT_RETURN"
)

var (
	ErrInvalidSignature  = errors.New("invalid payment signature")
	ErrMalformedReturn   = errors.New("malformed payment return parameters")
	ErrInvalidAmount     = errors.New("payment amount must be positive")
	ErrBookingNotPayable = errors.New("booking is not payable in its current state")
)

// Bookings is the slice of the booking service the adapter drives.
type Bookings interface {
	Get(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	Transition(ctx context.Context, id uuid.UUID, target booking.Status, notes *string) (*booking.Booking, error)
	SetPaymentURL(ctx context.Context, id uuid.UUID, url string) error
	RecordEvent(ctx context.Context, eventType string, bookingID uuid.UUID, payload map[string]any)
}

type Config struct {
	TmnCode    string
	HashSecret string
	GatewayURL string
	ReturnURL  string
}

// Result is what the return endpoint reports back to the client. A
// well-formed but failing payment is a Result, never an error.
type Result struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	BookingID uuid.UUID `json:"bookingId"`
}

// Service bridges the asynchronous gateway callback to the booking state
// machine, with mandatory signature verification in between.
type Service struct {
	bookings Bookings
	signer   Signer
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(bookings Bookings, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		bookings: bookings,
		signer:   NewSigner(cfg.HashSecret),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateIntent builds the signed redirect URL for a booking and persists it
// on the booking row for audit.
func (s *Service) CreateIntent(ctx context.Context, bookingID uuid.UUID, amount int64, bankCode, clientIP string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if b.Status == booking.StatusCancelled || b.Status == booking.StatusCompleted {
		return "", ErrBookingNotPayable
	}

	params := url.Values{}
	params.Set(ParamVersion, gatewayVersion)
	params.Set(ParamCommand, gatewayCommand)
	params.Set(ParamTmnCode, s.cfg.TmnCode)
	params.Set(ParamCurrCode, gatewayCurrency)
	params.Set(ParamTxnRef, b.ID.String())
	params.Set(ParamOrderInfo, fmt.Sprintf("clinic booking %s", b.ID))
	params.Set(ParamAmount, strconv.FormatInt(amount*100, 10)) // minor units
	params.Set(ParamReturnURL, s.cfg.ReturnURL)
	params.Set(ParamIPAddr, clientIP)
	params.Set(ParamCreateDate, s.now().Format("20060102150405"))
	if bankCode != "" {
		params.Set(ParamBankCode, bankCode)
	}

	payURL := s.cfg.GatewayURL + "?" + s.signer.SignedQuery(params)

	if err := s.bookings.SetPaymentURL(ctx, b.ID, payURL); err != nil {
		return "", fmt.Errorf("persist payment url: %w", err)
	}

	s.logger.Info().
		Stringer("booking_id", b.ID).
		Int64("amount", amount).
		Msg("payment intent created")

	return payURL, nil
}

// HandleReturn verifies and reconciles a gateway callback. Safe to call
// repeatedly with the same payload: terminal states absorb duplicates, and
// confirmation side effects fire only on the actual PENDING edge.
func (s *Service) HandleReturn(ctx context.Context, query url.Values) (Result, error) {
	if !s.signer.Verify(query) {
		// No booking state is touched on a bad signature.
		return Result{}, ErrInvalidSignature
	}

	bookingID, err := uuid.Parse(query.Get(ParamTxnRef))
	if err != nil {
		return Result{}, fmt.Errorf("%w: bad %s", ErrMalformedReturn, ParamTxnRef)
	}

	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return Result{}, err
	}

	respCode := query.Get(ParamResponseCode)

	// Raw payload kept for audit before any state change.
	payload := make(map[string]any, len(query)+1)
	for k := range query {
		payload[k] = query.Get(k)
	}
	s.bookings.RecordEvent(ctx, EventPaymentReturn, b.ID, payload)

	if respCode == responseCodeSuccess {
		return s.reconcileSuccess(ctx, b)
	}
	return s.reconcileFailure(ctx, b, respCode)
}

func (s *Service) reconcileSuccess(ctx context.Context, b *booking.Booking) (Result, error) {
	switch b.Status {
	case booking.StatusConfirmed, booking.StatusCompleted:
		// Duplicate delivery; nothing left to do.
		return Result{Success: true, Message: "payment already processed", BookingID: b.ID}, nil
	case booking.StatusCancelled:
		return Result{Success: false, Message: "booking was already cancelled", BookingID: b.ID}, nil
	}

	if _, err := s.bookings.Transition(ctx, b.ID, booking.StatusConfirmed, nil); err != nil {
		if errors.Is(err, booking.ErrInvalidTransition) {
			// Lost a race with another confirmation of the same booking.
			return Result{Success: true, Message: "payment already processed", BookingID: b.ID}, nil
		}
		return Result{}, fmt.Errorf("confirm booking: %w", err)
	}

	return Result{Success: true, Message: "payment successful, booking confirmed", BookingID: b.ID}, nil
}

func (s *Service) reconcileFailure(ctx context.Context, b *booking.Booking, respCode string) (Result, error) {
	msg := fmt.Sprintf("payment failed (code %s)", respCode)

	// Policy: only a still-PENDING booking is cancelled by a failure code.
	// A booking confirmed out-of-band (doctor action, cash) is never revoked
	// by a late or replayed gateway callback.
	if b.Status != booking.StatusPending {
		s.logger.Warn().
			Stringer("booking_id", b.ID).
			Str("status", string(b.Status)).
			Str("response_code", respCode).
			Msg("failure callback against non-pending booking, no state change")
		return Result{Success: false, Message: msg, BookingID: b.ID}, nil
	}

	if _, err := s.bookings.Transition(ctx, b.ID, booking.StatusCancelled, nil); err != nil {
		if errors.Is(err, booking.ErrInvalidTransition) {
			return Result{Success: false, Message: msg, BookingID: b.ID}, nil
		}
		return Result{}, fmt.Errorf("cancel booking after failed payment: %w", err)
	}

	return Result{Success: false, Message: msg + ", booking cancelled", BookingID: b.ID}, nil
}
