package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type WebhookEventType string

const (
	EventPaymentSuccess WebhookEventType = "payment.success"
	EventPaymentFailed  WebhookEventType = "payment.failed"
	EventPaymentExpired WebhookEventType = "payment.expired"
)

// WebhookEvent is the raw JSON body delivered by the payment gateway. The
// signature header covers the serialized form, so the struct mirrors the wire
// field names exactly.
type WebhookEvent struct {
	EventType  WebhookEventType `json:"eventType"`
	SessionID  string           `json:"sessionId"`
	BookingID  string           `json:"bookingId"`
	Amount     decimal.Decimal  `json:"amount"`
	Timestamp  int64            `json:"timestamp"`
	GatewayRef string           `json:"gatewayRef"`
}

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionExpired   SessionStatus = "expired"
)

// PaymentSession is the gateway-side checkout session. Its expiry is
// independent of the booking's expiry.
type PaymentSession struct {
	SessionID  string          `json:"sessionId"`
	PaymentURL string          `json:"paymentUrl"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	BookingID  string          `json:"bookingId"`
	Status     SessionStatus   `json:"status"`
}

type RefundReceipt struct {
	RefundID string
	Status   string
	Amount   decimal.Decimal
}

// PaymentGateway wraps the external payment provider. The in-repo
// implementation simulates one, but the contract is what a real gateway
// integration would satisfy.
type PaymentGateway interface {
	CreateSession(ctx context.Context, bookingID string, amount decimal.Decimal, currency string) (*PaymentSession, error)
	// Complete drives a pending session to its outcome and returns the
	// signed webhook payload the gateway would deliver.
	Complete(ctx context.Context, sessionID string, outcome SessionStatus) (payload []byte, signature string, err error)
	Refund(ctx context.Context, sessionID string, amount decimal.Decimal) (*RefundReceipt, error)
	// VerifySignature checks the x-payment-signature header against the raw
	// payload; it fails on tampered payloads and stale timestamps.
	VerifySignature(payload []byte, signatureHeader string) error
}
