package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PostgresBookingRepository struct {
	db *pgxpool.Pool
}

func NewPostgresBookingRepository(db *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{
		db: db,
	}
}

// Create runs the booking-creation transaction described by the engine
// contract: validate the show and seat set, lock the seat rows in sorted
// order, re-check conflicts under lock, snapshot the total and insert the
// booking with its seats while consuming any holds on them. A failure at any
// step aborts the whole transaction.
func (p *PostgresBookingRepository) Create(
	ctx context.Context,
	params domain.CreateBookingParams) (*domain.BookingResult, error) {

	if params.IdempotencyKey != "" {
		existing, err := p.getByPaymentRef(ctx, params.IdempotencyKey)
		if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
			return nil, err
		}

		if existing != nil {
			return idempotentResult(existing), nil
		}
	}

	var result *domain.BookingResult

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		now := time.Now()

		var show domain.Show
		err := tx.QueryRow(ctx, `
			SELECT id, movie_id, screen_id, start_time, created_at
			FROM shows
			WHERE id = $1
		`, params.ShowID).Scan(&show.ID, &show.MovieID, &show.ScreenID, &show.StartTime, &show.CreatedAt)

		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NewNotFoundError("show not found: %s", params.ShowID)
			}

			return err
		}

		if show.HasStarted(now) {
			return domain.NewInvalidStateError("cannot book a show that has already started")
		}

		seatPrices, err := loadSeatPrices(ctx, tx, params.ShowID, params.SeatIDs)
		if err != nil {
			return err
		}

		if len(seatPrices) != len(params.SeatIDs) {
			return missingSeatsError(params.SeatIDs, seatPrices)
		}

		// The exclusive lock makes the conflict re-checks below linearizable
		// with concurrent bookers touching any of these seats.
		err = lockShowSeats(ctx, tx, params.ShowID, params.SeatIDs)
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
		`, params.SeatIDs).Scan(&booked)
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
		`, params.SeatIDs, params.UserID).Scan(&held)
		if err != nil {
			return err
		}

		if held {
			return domain.NewConflictError("one or more seats are temporarily held by another user, please try again in a few minutes")
		}

		totalAmount := decimal.Zero
		for _, price := range seatPrices {
			totalAmount = totalAmount.Add(price)
		}

		paymentRef := params.IdempotencyKey
		if paymentRef == "" {
			paymentRef = uuid.NewString()
		}

		expiresAt := now.Add(domain.BookingTTL)

		var bookingID string
		err = tx.QueryRow(ctx, `
			INSERT INTO bookings (user_id, show_id, status, payment_ref, total_amount, expires_at)
			VALUES ($1, $2, 'PENDING', $3, $4, $5)
			RETURNING id
		`, params.UserID, params.ShowID, paymentRef, totalAmount, expiresAt).Scan(&bookingID)
		if err != nil {
			return err
		}

		seatRows := make([][]any, 0, len(params.SeatIDs))
		for _, seatID := range params.SeatIDs {
			seatRows = append(seatRows, []any{bookingID, seatID})
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"booking_seats"},
			[]string{"booking_id", "show_seat_id"},
			pgx.CopyFromRows(seatRows),
		)
		if err != nil {
			return err
		}

		// Holds on these seats are superseded by the booking.
		_, err = tx.Exec(ctx, `DELETE FROM seat_holds WHERE show_seat_id = ANY($1)`, params.SeatIDs)
		if err != nil {
			return err
		}

		result = &domain.BookingResult{
			BookingID:   bookingID,
			ShowID:      params.ShowID,
			SeatIDs:     params.SeatIDs,
			Status:      domain.BookingPending,
			ExpiresAt:   &expiresAt,
			TotalAmount: totalAmount,
		}

		return nil
	})

	if err != nil {
		// A concurrent request with the same idempotency key may have won the
		// payment_ref uniqueness race; return its booking instead of failing.
		if params.IdempotencyKey != "" && isUniqueViolation(err, "bookings_payment_ref_key") {
			existing, lookupErr := p.getByPaymentRef(ctx, params.IdempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}

			return idempotentResult(existing), nil
		}

		return nil, err
	}

	return result, nil
}

func loadSeatPrices(
	ctx context.Context,
	tx pgx.Tx,
	showID string,
	seatIDs []string) (map[string]decimal.Decimal, error) {

	rows, err := tx.Query(ctx, `
		SELECT id, price
		FROM show_seats
		WHERE show_id = $1 AND id = ANY($2)
	`, showID, seatIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make(map[string]decimal.Decimal, len(seatIDs))

	for rows.Next() {
		var id string
		var price decimal.Decimal

		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}

		prices[id] = price
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return prices, nil
}

func missingSeatsError(seatIDs []string, found map[string]decimal.Decimal) error {
	missing := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	return domain.NewValidationError(
		"invalid or unavailable seats: %s. Expected %d seats, found %d.",
		strings.Join(missing, ", "), len(seatIDs), len(found),
	)
}

func idempotentResult(booking *domain.Booking) *domain.BookingResult {
	seatIDs := make([]string, 0, len(booking.Seats))
	for _, seat := range booking.Seats {
		seatIDs = append(seatIDs, seat.ShowSeatID)
	}

	return &domain.BookingResult{
		BookingID:   booking.ID,
		ShowID:      booking.ShowID,
		SeatIDs:     seatIDs,
		Status:      booking.Status,
		ExpiresAt:   booking.ExpiresAt,
		TotalAmount: booking.TotalAmount,
		Idempotent:  true,
	}
}

func (p *PostgresBookingRepository) GetByID(ctx context.Context, bookingID string) (*domain.Booking, error) {
	query := `
		SELECT id, user_id, show_id, status, payment_ref, total_amount, expires_at, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`

	return p.getBooking(ctx, query, bookingID)
}

func (p *PostgresBookingRepository) getByPaymentRef(ctx context.Context, paymentRef string) (*domain.Booking, error) {
	query := `
		SELECT id, user_id, show_id, status, payment_ref, total_amount, expires_at, created_at, updated_at
		FROM bookings
		WHERE payment_ref = $1
	`

	return p.getBooking(ctx, query, paymentRef)
}

func (p *PostgresBookingRepository) getBooking(ctx context.Context, query, arg string) (*domain.Booking, error) {
	var booking domain.Booking

	err := p.db.QueryRow(ctx, query, arg).Scan(
		&booking.ID,
		&booking.UserID,
		&booking.ShowID,
		&booking.Status,
		&booking.PaymentRef,
		&booking.TotalAmount,
		&booking.ExpiresAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	seats, err := p.getBookingSeats(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	booking.Seats = seats

	return &booking, nil
}

func (p *PostgresBookingRepository) getBookingSeats(ctx context.Context, bookingID string) ([]domain.BookingSeat, error) {
	rows, err := p.db.Query(ctx, `
		SELECT booking_id, show_seat_id
		FROM booking_seats
		WHERE booking_id = $1
		ORDER BY show_seat_id
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]domain.BookingSeat, 0)

	for rows.Next() {
		var seat domain.BookingSeat

		if err := rows.Scan(&seat.BookingID, &seat.ShowSeatID); err != nil {
			return nil, err
		}

		seats = append(seats, seat)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return seats, nil
}

func (p *PostgresBookingRepository) GetAllByUserID(ctx context.Context, userID string) ([]domain.Booking, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, user_id, show_id, status, payment_ref, total_amount, expires_at, created_at, updated_at
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)

	for rows.Next() {
		var booking domain.Booking

		err = rows.Scan(
			&booking.ID,
			&booking.UserID,
			&booking.ShowID,
			&booking.Status,
			&booking.PaymentRef,
			&booking.TotalAmount,
			&booking.ExpiresAt,
			&booking.CreatedAt,
			&booking.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		bookings = append(bookings, booking)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return bookings, nil
}

func (p *PostgresBookingRepository) Cancel(ctx context.Context, bookingID string) error {
	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		// The status guard is re-applied here so a concurrent confirmation
		// between the caller's pre-check and this transaction cannot be
		// clobbered.
		tag, err := tx.Exec(ctx, `
			UPDATE bookings
			SET status = 'CANCELLED', updated_at = NOW()
			WHERE id = $1 AND status IN ('PENDING', 'EXPIRED')
		`, bookingID)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return domain.NewInvalidStateError("booking can no longer be cancelled")
		}

		_, err = tx.Exec(ctx, `DELETE FROM booking_seats WHERE booking_id = $1`, bookingID)

		return err
	})
}

func (p *PostgresBookingRepository) FindExpired(ctx context.Context, now time.Time) ([]domain.ExpiredBooking, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, user_id
		FROM bookings
		WHERE status = 'PENDING' AND expires_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expired := make([]domain.ExpiredBooking, 0)

	for rows.Next() {
		var booking domain.ExpiredBooking

		if err := rows.Scan(&booking.ID, &booking.UserID); err != nil {
			return nil, err
		}

		expired = append(expired, booking)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return expired, nil
}

func (p *PostgresBookingRepository) Expire(ctx context.Context, bookingID, userID string) error {
	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		// Transition first, guarded on PENDING and a past expiry; if a
		// payment confirmed the booking since it was listed, there is
		// nothing to release.
		tag, err := tx.Exec(ctx, `
			UPDATE bookings
			SET status = 'EXPIRED', updated_at = NOW()
			WHERE id = $1 AND status = 'PENDING' AND expires_at < NOW()
		`, bookingID)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `DELETE FROM booking_seats WHERE booking_id = $1`, bookingID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM seat_holds
			WHERE user_id = $1 AND expires_at < NOW()
		`, userID)

		return err
	})
}

func (p *PostgresBookingRepository) PruneSeatAssignments(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `
		DELETE FROM booking_seats
		WHERE booking_id IN (
			SELECT id
			FROM bookings
			WHERE status IN ('EXPIRED', 'CANCELLED') AND updated_at < $1
		)
	`, before)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
