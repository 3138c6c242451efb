package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/cinebook-io/cinebook/internal/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func newTestGateway(redisClient redis.UniversalClient) *FakeGateway {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewFakeGateway(redisClient, logger, testSecret, "http://localhost:3000/payments/fake-checkout")
}

func TestSignatureRoundtrip(t *testing.T) {
	g := newTestGateway(nil)
	payload := []byte(`{"eventType":"payment.success","sessionId":"ps_1"}`)

	signature := g.Sign(payload, time.Now())

	err := g.VerifySignature(payload, signature)
	assert.NoError(t, err)
}

func TestVerifySignatureRejectsTamperedPayload(t *testing.T) {
	g := newTestGateway(nil)
	payload := []byte(`{"eventType":"payment.success","sessionId":"ps_1"}`)

	signature := g.Sign(payload, time.Now())

	tampered := []byte(`{"eventType":"payment.success","sessionId":"ps_2"}`)
	err := g.VerifySignature(tampered, signature)

	var forbiddenErr *domain.ForbiddenError
	assert.ErrorAs(t, err, &forbiddenErr)
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	g := newTestGateway(nil)
	payload := []byte(`{"eventType":"payment.success","sessionId":"ps_1"}`)

	signature := g.Sign(payload, time.Now().Add(-DefaultTolerance-time.Minute))

	err := g.VerifySignature(payload, signature)

	var forbiddenErr *domain.ForbiddenError
	assert.ErrorAs(t, err, &forbiddenErr)
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	g := newTestGateway(nil)
	other := NewFakeGateway(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), "whsec_other", "")

	payload := []byte(`{"eventType":"payment.success","sessionId":"ps_1"}`)
	signature := other.Sign(payload, time.Now())

	err := g.VerifySignature(payload, signature)
	assert.Error(t, err)
}

func sessionJSON(t *testing.T, session domain.PaymentSession) string {
	data, err := json.Marshal(session)
	require.NoError(t, err)

	return string(data)
}

func TestCompleteUnknownSession(t *testing.T) {
	redisClient := new(mocks.MockRedisClient)
	redisClient.On("Get", mock.Anything, "payment_session:ps_missing").
		Return(redis.NewStringResult("", redis.Nil))

	g := newTestGateway(redisClient)

	_, _, err := g.Complete(context.Background(), "ps_missing", domain.SessionCompleted)
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestCompleteAlreadyProcessedSession(t *testing.T) {
	session := domain.PaymentSession{
		SessionID: "ps_1",
		BookingID: "b1",
		Amount:    decimal.NewFromInt(450),
		Status:    domain.SessionCompleted,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	redisClient := new(mocks.MockRedisClient)
	redisClient.On("Get", mock.Anything, "payment_session:ps_1").
		Return(redis.NewStringResult(sessionJSON(t, session), nil))

	g := newTestGateway(redisClient)

	_, _, err := g.Complete(context.Background(), "ps_1", domain.SessionCompleted)

	var invalidStateErr *domain.InvalidStateError
	assert.ErrorAs(t, err, &invalidStateErr)
}

func TestCompleteOutcomes(t *testing.T) {
	tests := []struct {
		name          string
		sessionExpiry time.Time
		outcome       domain.SessionStatus
		wantEventType domain.WebhookEventType
	}{
		{
			name:          "completed session emits success",
			sessionExpiry: time.Now().Add(time.Hour),
			outcome:       domain.SessionCompleted,
			wantEventType: domain.EventPaymentSuccess,
		},
		{
			name:          "failed session emits failure",
			sessionExpiry: time.Now().Add(time.Hour),
			outcome:       domain.SessionFailed,
			wantEventType: domain.EventPaymentFailed,
		},
		{
			name:          "expired session emits expiry regardless of outcome",
			sessionExpiry: time.Now().Add(-time.Minute),
			outcome:       domain.SessionCompleted,
			wantEventType: domain.EventPaymentExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := domain.PaymentSession{
				SessionID: "ps_1",
				BookingID: "b1",
				Amount:    decimal.NewFromInt(450),
				Status:    domain.SessionPending,
				ExpiresAt: tt.sessionExpiry,
			}

			redisClient := new(mocks.MockRedisClient)
			redisClient.On("Get", mock.Anything, "payment_session:ps_1").
				Return(redis.NewStringResult(sessionJSON(t, session), nil))
			redisClient.On("Set", mock.Anything, "payment_session:ps_1", mock.Anything, time.Duration(redis.KeepTTL)).
				Return(redis.NewStatusResult("OK", nil))

			g := newTestGateway(redisClient)

			payload, signature, err := g.Complete(context.Background(), "ps_1", tt.outcome)
			require.NoError(t, err)

			// The returned payload must verify against the returned signature.
			require.NoError(t, g.VerifySignature(payload, signature))

			var event domain.WebhookEvent
			require.NoError(t, json.Unmarshal(payload, &event))

			assert.Equal(t, tt.wantEventType, event.EventType)
			assert.Equal(t, "ps_1", event.SessionID)
			assert.Equal(t, "b1", event.BookingID)
			assert.True(t, event.Amount.Equal(decimal.NewFromInt(450)))
			assert.NotEmpty(t, event.GatewayRef)
		})
	}
}

func TestCreateSessionStoresPendingSession(t *testing.T) {
	redisClient := new(mocks.MockRedisClient)
	redisClient.On("Set", mock.Anything, mock.MatchedBy(func(key string) bool {
		return len(key) > len("payment_session:")
	}), mock.Anything, sessionRetention).Return(redis.NewStatusResult("OK", nil))

	g := newTestGateway(redisClient)

	session, err := g.CreateSession(context.Background(), "b1", decimal.NewFromInt(450), "USD")
	require.NoError(t, err)

	assert.Equal(t, domain.SessionPending, session.Status)
	assert.Equal(t, "b1", session.BookingID)
	assert.Contains(t, session.PaymentURL, session.SessionID)
	assert.WithinDuration(t, time.Now().Add(sessionTTL), session.ExpiresAt, time.Minute)

	redisClient.AssertExpectations(t)
}

func TestRefundDoesNotRequireStoredSession(t *testing.T) {
	// Refunds can arrive days after checkout, long after the session record
	// has been evicted; the gateway must not look it up.
	redisClient := new(mocks.MockRedisClient)

	g := newTestGateway(redisClient)

	receipt, err := g.Refund(context.Background(), "ps_evicted", decimal.NewFromInt(225))
	require.NoError(t, err)

	assert.Equal(t, "succeeded", receipt.Status)
	assert.True(t, receipt.Amount.Equal(decimal.NewFromInt(225)))
	assert.NotEmpty(t, receipt.RefundID)

	redisClient.AssertExpectations(t)
}
