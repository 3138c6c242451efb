// Package gateway provides a simulated payment gateway that satisfies the
// same session/webhook contract a hosted provider such as Stripe or Razorpay
// would: checkout sessions with their own expiry, signed webhook events and a
// refund primitive. Sessions live in Redis so completions survive restarts
// and are visible across server instances.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82/webhook"
)

const sessionTTL = 30 * time.Minute

// sessionRetention is how long session records are kept in Redis. It is much
// longer than sessionTTL so a checkout completed after its expiry still
// resolves to a payment.expired event instead of an unknown session.
const sessionRetention = 7 * 24 * time.Hour

// DefaultTolerance is the maximum allowed age of a webhook signature
// timestamp; older deliveries are rejected as replays.
const DefaultTolerance = 300 * time.Second

type FakeGateway struct {
	redis         redis.UniversalClient
	logger        *slog.Logger
	webhookSecret string
	checkoutURL   string
	tolerance     time.Duration
}

func NewFakeGateway(redisClient redis.UniversalClient, logger *slog.Logger, webhookSecret, checkoutURL string) *FakeGateway {
	return &FakeGateway{
		redis:         redisClient,
		logger:        logger,
		webhookSecret: webhookSecret,
		checkoutURL:   checkoutURL,
		tolerance:     DefaultTolerance,
	}
}

func (g *FakeGateway) CreateSession(
	ctx context.Context,
	bookingID string,
	amount decimal.Decimal,
	currency string) (*domain.PaymentSession, error) {

	sessionID := randomToken("ps")

	session := domain.PaymentSession{
		SessionID:  sessionID,
		PaymentURL: fmt.Sprintf("%s/%s", g.checkoutURL, sessionID),
		ExpiresAt:  time.Now().Add(sessionTTL),
		Amount:     amount,
		Currency:   currency,
		BookingID:  bookingID,
		Status:     domain.SessionPending,
	}

	err := g.saveSession(ctx, session, sessionRetention)
	if err != nil {
		return nil, err
	}

	g.logger.Info("created payment session", "session_id", sessionID, "booking_id", bookingID)

	return &session, nil
}

// Complete drives a pending session to its outcome and returns the signed
// webhook event the gateway would deliver. A session past its own expiry
// produces a payment.expired event regardless of the requested outcome.
func (g *FakeGateway) Complete(
	ctx context.Context,
	sessionID string,
	outcome domain.SessionStatus) ([]byte, string, error) {

	session, err := g.getSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	if session.Status != domain.SessionPending {
		return nil, "", domain.NewInvalidStateError("payment session already processed: %s", session.Status)
	}

	event := domain.WebhookEvent{
		SessionID:  sessionID,
		BookingID:  session.BookingID,
		Amount:     session.Amount,
		Timestamp:  time.Now().UnixMilli(),
		GatewayRef: randomToken("gw"),
	}

	if time.Now().After(session.ExpiresAt) {
		session.Status = domain.SessionExpired
		event.EventType = domain.EventPaymentExpired
	} else if outcome == domain.SessionCompleted {
		session.Status = domain.SessionCompleted
		event.EventType = domain.EventPaymentSuccess
	} else {
		session.Status = domain.SessionFailed
		event.EventType = domain.EventPaymentFailed
	}

	err = g.saveSession(ctx, *session, redis.KeepTTL)
	if err != nil {
		return nil, "", err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, "", err
	}

	signature := g.Sign(payload, time.Now())

	g.logger.Info("payment session completed", "session_id", sessionID, "event_type", event.EventType)

	return payload, signature, nil
}

// Refund issues a refund against a past checkout. The session record is not
// consulted: refunds arrive long after checkout, and the caller's payment row
// is the durable record of the session reference and the captured amount.
func (g *FakeGateway) Refund(
	ctx context.Context,
	sessionID string,
	amount decimal.Decimal) (*domain.RefundReceipt, error) {

	receipt := &domain.RefundReceipt{
		RefundID: randomToken("rf"),
		Status:   "succeeded",
		Amount:   amount,
	}

	g.logger.Info("refund processed", "session_id", sessionID, "amount", amount)

	return receipt, nil
}

// Sign produces the x-payment-signature header for a payload: an HMAC-SHA256
// over "{timestamp}.{payload}" in the `t=<unix>,v1=<hex>` form.
func (g *FakeGateway) Sign(payload []byte, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, g.webhookSecret)

	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func (g *FakeGateway) VerifySignature(payload []byte, signatureHeader string) error {
	err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, g.webhookSecret, g.tolerance)
	if err != nil {
		return domain.NewForbiddenError("invalid webhook signature")
	}

	return nil
}

func (g *FakeGateway) getSession(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	data, err := g.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}

		return nil, err
	}

	var session domain.PaymentSession
	err = json.Unmarshal(data, &session)
	if err != nil {
		return nil, err
	}

	return &session, nil
}

func (g *FakeGateway) saveSession(ctx context.Context, session domain.PaymentSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return g.redis.Set(ctx, sessionKey(session.SessionID), data, ttl).Err()
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("payment_session:%s", sessionID)
}

func randomToken(prefix string) string {
	buf := make([]byte, 16)
	rand.Read(buf)

	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}
