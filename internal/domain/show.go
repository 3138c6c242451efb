package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type SeatTier string

const (
	SeatTierRegular SeatTier = "REGULAR"
	SeatTierPremium SeatTier = "PREMIUM"
	SeatTierVIP     SeatTier = "VIP"
)

// Show is a scheduled screening of a movie on a screen. Bookings against a
// show whose start time has passed are rejected.
type Show struct {
	ID        string
	MovieID   string
	ScreenID  string
	StartTime time.Time
	CreatedAt time.Time
}

func (s Show) HasStarted(now time.Time) bool {
	return now.After(s.StartTime)
}

// SeatAvailability describes one sellable seat of a show: a physical seat
// with its price snapshot, tier and current bookability.
type SeatAvailability struct {
	ShowSeatID string
	Row        int
	Col        int
	Tier       SeatTier
	Price      decimal.Decimal
	Available  bool
}

type ShowRepository interface {
	GetByID(ctx context.Context, showID string) (*Show, error)
	GetSeatAvailability(ctx context.Context, showID string) ([]SeatAvailability, error)
}
