package repository

import (
	"context"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresHoldRepository struct {
	db *pgxpool.Pool
}

func NewPostgresHoldRepository(db *pgxpool.Pool) *PostgresHoldRepository {
	return &PostgresHoldRepository{
		db: db,
	}
}

// CreateHolds validates and claims the seat set as one atomic unit. The seat
// rows are locked in the same sorted order the booking engine uses, so holds
// and bookings racing for overlapping seats serialize instead of deadlocking.
func (p *PostgresHoldRepository) CreateHolds(
	ctx context.Context,
	userID, showID string,
	seatIDs []string) (*domain.HoldResult, error) {

	var result *domain.HoldResult

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		seatPrices, err := loadSeatPrices(ctx, tx, showID, seatIDs)
		if err != nil {
			return err
		}

		if len(seatPrices) != len(seatIDs) {
			return missingSeatsError(seatIDs, seatPrices)
		}

		err = lockShowSeats(ctx, tx, showID, seatIDs)
		if err != nil {
			return err
		}

		var booked bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM booking_seats bs
				JOIN bookings b ON bs.booking_id = b.id
				WHERE bs.show_seat_id = ANY($1)
					AND b.status IN ('PENDING', 'CONFIRMED')
			)
		`, seatIDs).Scan(&booked)
		if err != nil {
			return err
		}

		if booked {
			return domain.NewConflictError("one or more seats are already booked")
		}

		var held bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM seat_holds
				WHERE show_seat_id = ANY($1)
					AND user_id <> $2
					AND expires_at > NOW()
			)
		`, seatIDs, userID).Scan(&held)
		if err != nil {
			return err
		}

		if held {
			return domain.NewConflictError("one or more seats are held by another user")
		}

		// A user keeps at most one active seat set; prior holds are replaced
		// wholesale.
		_, err = tx.Exec(ctx, `DELETE FROM seat_holds WHERE user_id = $1`, userID)
		if err != nil {
			return err
		}

		expiresAt := time.Now().Add(domain.HoldTTL)

		holdRows := make([][]any, 0, len(seatIDs))
		for _, seatID := range seatIDs {
			holdRows = append(holdRows, []any{userID, seatID, expiresAt})
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"seat_holds"},
			[]string{"user_id", "show_seat_id", "expires_at"},
			pgx.CopyFromRows(holdRows),
		)
		if err != nil {
			return err
		}

		result = &domain.HoldResult{
			UserID:    userID,
			ShowID:    showID,
			SeatIDs:   seatIDs,
			ExpiresAt: expiresAt,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (p *PostgresHoldRepository) ReleaseByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM seat_holds WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (p *PostgresHoldRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM seat_holds WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
