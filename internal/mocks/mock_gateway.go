package mocks

import (
	"context"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
	domain.PaymentGateway
}

func (m *MockGateway) CreateSession(ctx context.Context, bookingID string, amount decimal.Decimal, currency string) (*domain.PaymentSession, error) {
	args := m.Called(ctx, bookingID, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentSession), args.Error(1)
}

func (m *MockGateway) Complete(ctx context.Context, sessionID string, outcome domain.SessionStatus) ([]byte, string, error) {
	args := m.Called(ctx, sessionID, outcome)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockGateway) Refund(ctx context.Context, sessionID string, amount decimal.Decimal) (*domain.RefundReceipt, error) {
	args := m.Called(ctx, sessionID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefundReceipt), args.Error(1)
}

func (m *MockGateway) VerifySignature(payload []byte, signatureHeader string) error {
	args := m.Called(payload, signatureHeader)
	return args.Error(0)
}
