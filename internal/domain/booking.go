package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingExpired   BookingStatus = "EXPIRED"
	BookingRefunded  BookingStatus = "REFUNDED"
)

const (
	// BookingTTL is how long a PENDING booking may await payment.
	BookingTTL = 15 * time.Minute
	// PaymentRetryGrace extends a PENDING booking after a failed payment
	// attempt instead of expiring it immediately.
	PaymentRetryGrace = 5 * time.Minute
)

// bookingTransitions is the exhaustive lifecycle table. Anything not listed
// is an illegal transition.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled, BookingExpired},
	BookingExpired:   {BookingCancelled},
	BookingConfirmed: {BookingRefunded},
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingExpired, BookingRefunded:
		return true
	}
	return false
}

type Booking struct {
	ID          string
	UserID      string
	ShowID      string
	Status      BookingStatus
	PaymentRef  string
	TotalAmount decimal.Decimal
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Seats       []BookingSeat
}

func (b Booking) ExpiredAt(now time.Time) bool {
	return b.ExpiresAt != nil && now.After(*b.ExpiresAt)
}

// BookingSeat joins a booking to a show seat. At most one row per show seat
// may belong to a PENDING or CONFIRMED booking; that uniqueness is the
// no-double-booking guarantee.
type BookingSeat struct {
	BookingID  string
	ShowSeatID string
}

type CreateBookingParams struct {
	UserID         string
	ShowID         string
	SeatIDs        []string
	IdempotencyKey string
}

type BookingResult struct {
	BookingID   string
	ShowID      string
	SeatIDs     []string
	Status      BookingStatus
	ExpiresAt   *time.Time
	TotalAmount decimal.Decimal
	// Idempotent is set when the result replays an existing booking matched
	// by idempotency key instead of creating a new one.
	Idempotent bool
}

type ExpiredBooking struct {
	ID     string
	UserID string
}

type BookingRepository interface {
	// Create runs the whole booking-creation transaction: show validation,
	// seat-set validation, sorted row locks, conflict re-checks, amount
	// snapshot, booking + seat inserts and hold consumption. A repeated
	// idempotency key returns the prior booking unchanged.
	Create(ctx context.Context, params CreateBookingParams) (*BookingResult, error)
	GetByID(ctx context.Context, bookingID string) (*Booking, error)
	GetAllByUserID(ctx context.Context, userID string) ([]Booking, error)
	// Cancel releases the booking's seats and marks it CANCELLED in one
	// transaction. Only PENDING and EXPIRED bookings qualify.
	Cancel(ctx context.Context, bookingID string) error
	// FindExpired lists PENDING bookings whose expiry has passed.
	FindExpired(ctx context.Context, now time.Time) ([]ExpiredBooking, error)
	// Expire releases one timed-out booking: seats deleted, status set to
	// EXPIRED and the owner's already-expired holds purged, atomically.
	Expire(ctx context.Context, bookingID, userID string) error
	// PruneSeatAssignments deletes booking_seats rows of EXPIRED/CANCELLED
	// bookings last updated before the cutoff, keeping the bookings.
	PruneSeatAssignments(ctx context.Context, before time.Time) (int64, error)
}
