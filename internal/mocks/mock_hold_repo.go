package mocks

import (
	"context"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockHoldRepo struct {
	mock.Mock
	domain.HoldRepository
}

func (m *MockHoldRepo) CreateHolds(ctx context.Context, userID, showID string, seatIDs []string) (*domain.HoldResult, error) {
	args := m.Called(ctx, userID, showID, seatIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HoldResult), args.Error(1)
}

func (m *MockHoldRepo) ReleaseByUser(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockHoldRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
