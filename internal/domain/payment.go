package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "INITIATED"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentInitiated: {PaymentSuccess, PaymentFailed},
	PaymentSuccess:   {PaymentRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Payment struct {
	ID          string
	BookingID   string
	UserID      string
	Amount      decimal.Decimal
	Status      PaymentStatus
	Reference   string
	GatewayRef  string
	GatewayData []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RefundPercent tiers the refund by lead time before the show starts.
func RefundPercent(leadTime time.Duration) int64 {
	switch {
	case leadTime < 2*time.Hour:
		return 0
	case leadTime < 24*time.Hour:
		return 50
	default:
		return 100
	}
}

// RefundAmount computes floor(total * pct / 100) for the given lead time.
func RefundAmount(total decimal.Decimal, leadTime time.Duration) decimal.Decimal {
	pct := decimal.NewFromInt(RefundPercent(leadTime))
	return total.Mul(pct).Div(decimal.NewFromInt(100)).Floor()
}

type RefundParams struct {
	PaymentID     string
	BookingID     string
	RefundID      string
	RefundAmount  decimal.Decimal
	RefundPercent int64
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	GetLatestSuccessByBookingID(ctx context.Context, bookingID string) (*Payment, error)
	GetAllByBookingID(ctx context.Context, bookingID string) ([]Payment, error)

	// The three webhook transitions below each run as one transaction that
	// also records (sessionID, eventType) in the webhook event ledger; a
	// replayed event returns ErrEventAlreadyProcessed with no side effects.

	// ConfirmBooking marks the payment SUCCESS and its booking CONFIRMED,
	// clears the booking expiry and deletes any holds still covering the
	// booking's seats.
	ConfirmBooking(ctx context.Context, sessionID string, eventType WebhookEventType, gatewayRef string) error
	// RecordFailure marks the payment FAILED; the booking stays PENDING but
	// its expiry is pushed forward by PaymentRetryGrace.
	RecordFailure(ctx context.Context, sessionID string, eventType WebhookEventType) error
	// ExpireBooking marks the payment FAILED, the booking EXPIRED, and
	// releases the booking's seats immediately.
	ExpireBooking(ctx context.Context, sessionID string, eventType WebhookEventType) error
	// Refund marks the payment REFUNDED with refund metadata, the booking
	// REFUNDED, and releases the booking's seats.
	Refund(ctx context.Context, params RefundParams) error
}
