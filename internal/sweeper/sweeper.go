// Package sweeper runs the background expiry jobs: timing out unpaid
// bookings, purging stale seat holds and pruning seat assignments of long
// finished bookings.
package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	bookingSweepInterval = 1 * time.Minute
	holdSweepInterval    = 5 * time.Minute
	pruneInterval        = 24 * time.Hour

	// pruneRetention is how long seat assignments of EXPIRED and CANCELLED
	// bookings are kept around for support lookups before pruning.
	pruneRetention = 30 * 24 * time.Hour

	bookingSweepLease = "sweep:expired-bookings"
	holdSweepLease    = "sweep:expired-holds"
	pruneLease        = "sweep:prune-seat-assignments"
)

// Locker provides a best-effort distributed lease so only one instance runs
// a given sweep at a time.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) {
	l.client.Del(ctx, key)
}

type Sweeper struct {
	bookings domain.BookingRepository
	holds    domain.HoldRepository
	locker   Locker
	logger   *slog.Logger

	// sweeping guards against overlapping booking sweeps inside one process
	// when a tick fires while the previous sweep is still running.
	sweeping atomic.Bool
}

func New(
	bookings domain.BookingRepository,
	holds domain.HoldRepository,
	locker Locker,
	logger *slog.Logger) *Sweeper {

	return &Sweeper{
		bookings: bookings,
		holds:    holds,
		locker:   locker,
		logger:   logger,
	}
}

// Run blocks, driving the three sweep jobs on their tickers until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	bookingTicker := time.NewTicker(bookingSweepInterval)
	defer bookingTicker.Stop()

	holdTicker := time.NewTicker(holdSweepInterval)
	defer holdTicker.Stop()

	pruneTicker := time.NewTicker(pruneInterval)
	defer pruneTicker.Stop()

	s.logger.Info("sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-bookingTicker.C:
			s.SweepExpiredBookings(ctx)
		case <-holdTicker.C:
			s.SweepExpiredHolds(ctx)
		case <-pruneTicker.C:
			s.PruneSeatAssignments(ctx)
		}
	}
}

// SweepExpiredBookings expires every PENDING booking past its deadline. Each
// booking is expired in its own transaction so one failure cannot block the
// rest of the batch.
func (s *Sweeper) SweepExpiredBookings(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Warn("booking sweep still running, skipping tick")
		return
	}
	defer s.sweeping.Store(false)

	acquired, err := s.locker.TryAcquire(ctx, bookingSweepLease, bookingSweepInterval)
	if err != nil {
		s.logger.Error("failed to acquire booking sweep lease", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer s.locker.Release(ctx, bookingSweepLease)

	expired, err := s.bookings.FindExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to find expired bookings", "error", err)
		return
	}

	if len(expired) == 0 {
		return
	}

	var failed int
	for _, booking := range expired {
		err := s.bookings.Expire(ctx, booking.ID, booking.UserID)
		if err != nil {
			failed++
			s.logger.Error("failed to expire booking", "booking_id", booking.ID, "error", err)
		}
	}

	s.logger.Info("expired bookings swept", "total", len(expired), "failed", failed)
}

// SweepExpiredHolds purges seat holds past their expiry. Expired holds are
// already inert for readers, this just keeps the table small.
func (s *Sweeper) SweepExpiredHolds(ctx context.Context) {
	acquired, err := s.locker.TryAcquire(ctx, holdSweepLease, holdSweepInterval)
	if err != nil {
		s.logger.Error("failed to acquire hold sweep lease", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer s.locker.Release(ctx, holdSweepLease)

	purged, err := s.holds.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to purge expired holds", "error", err)
		return
	}

	if purged > 0 {
		s.logger.Info("expired holds purged", "count", purged)
	}
}

// PruneSeatAssignments deletes booking_seats rows of EXPIRED and CANCELLED
// bookings older than the retention window.
func (s *Sweeper) PruneSeatAssignments(ctx context.Context) {
	acquired, err := s.locker.TryAcquire(ctx, pruneLease, time.Hour)
	if err != nil {
		s.logger.Error("failed to acquire prune lease", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer s.locker.Release(ctx, pruneLease)

	pruned, err := s.bookings.PruneSeatAssignments(ctx, time.Now().Add(-pruneRetention))
	if err != nil {
		s.logger.Error("failed to prune seat assignments", "error", err)
		return
	}

	if pruned > 0 {
		s.logger.Info("stale seat assignments pruned", "count", pruned)
	}
}
