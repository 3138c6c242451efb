package domain

import (
	"context"
	"time"
)

// HoldTTL is how long a seat hold shields seats before checkout.
const HoldTTL = 5 * time.Minute

// SeatHold is a time-boxed, non-binding claim on a show seat. Holds are
// advisory: expired rows are inert and every reader must filter on
// expires_at > now rather than rely on eager deletion.
type SeatHold struct {
	ID         string
	ShowSeatID string
	UserID     string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

func (h SeatHold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

type HoldResult struct {
	UserID    string
	ShowID    string
	SeatIDs   []string
	ExpiresAt time.Time
}

type HoldRepository interface {
	// CreateHolds atomically validates the seat set, rejects seats that are
	// booked or held by another user, replaces all prior holds of this user
	// and inserts fresh ones expiring HoldTTL from now.
	CreateHolds(ctx context.Context, userID, showID string, seatIDs []string) (*HoldResult, error)
	// ReleaseByUser deletes all holds owned by userID and reports how many
	// were removed. Releasing zero holds is not an error.
	ReleaseByUser(ctx context.Context, userID string) (int64, error)
	// DeleteExpired purges all holds past their expiry, regardless of owner.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
