package mocks

import (
	"context"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockPaymentRepo struct {
	mock.Mock
	domain.PaymentRepository
}

func (m *MockPaymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepo) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepo) GetLatestSuccessByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepo) GetAllByBookingID(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Payment), args.Error(1)
}

func (m *MockPaymentRepo) ConfirmBooking(ctx context.Context, sessionID string, eventType domain.WebhookEventType, gatewayRef string) error {
	args := m.Called(ctx, sessionID, eventType, gatewayRef)
	return args.Error(0)
}

func (m *MockPaymentRepo) RecordFailure(ctx context.Context, sessionID string, eventType domain.WebhookEventType) error {
	args := m.Called(ctx, sessionID, eventType)
	return args.Error(0)
}

func (m *MockPaymentRepo) ExpireBooking(ctx context.Context, sessionID string, eventType domain.WebhookEventType) error {
	args := m.Called(ctx, sessionID, eventType)
	return args.Error(0)
}

func (m *MockPaymentRepo) Refund(ctx context.Context, params domain.RefundParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}
