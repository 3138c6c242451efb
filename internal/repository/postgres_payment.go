package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPostgresPaymentRepository(db *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		db: db,
	}
}

func (p *PostgresPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (booking_id, user_id, amount, status, reference, gateway_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	return p.db.QueryRow(
		ctx,
		query,
		payment.BookingID,
		payment.UserID,
		payment.Amount,
		payment.Status,
		payment.Reference,
		payment.GatewayRef,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

func (p *PostgresPaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	query := `
		SELECT id, booking_id, user_id, amount, status, reference, gateway_ref, gateway_data, created_at, updated_at
		FROM payments
		WHERE reference = $1
	`

	return p.getPayment(ctx, query, reference)
}

func (p *PostgresPaymentRepository) GetLatestSuccessByBookingID(
	ctx context.Context,
	bookingID string) (*domain.Payment, error) {

	query := `
		SELECT id, booking_id, user_id, amount, status, reference, gateway_ref, gateway_data, created_at, updated_at
		FROM payments
		WHERE booking_id = $1 AND status = 'SUCCESS'
		ORDER BY created_at DESC
		LIMIT 1
	`

	return p.getPayment(ctx, query, bookingID)
}

func (p *PostgresPaymentRepository) getPayment(ctx context.Context, query, arg string) (*domain.Payment, error) {
	var payment domain.Payment
	var gatewayRef *string

	err := p.db.QueryRow(ctx, query, arg).Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.UserID,
		&payment.Amount,
		&payment.Status,
		&payment.Reference,
		&gatewayRef,
		&payment.GatewayData,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	if gatewayRef != nil {
		payment.GatewayRef = *gatewayRef
	}

	return &payment, nil
}

func (p *PostgresPaymentRepository) GetAllByBookingID(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, booking_id, user_id, amount, status, reference, gateway_ref, gateway_data, created_at, updated_at
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)

	for rows.Next() {
		var payment domain.Payment
		var gatewayRef *string

		err = rows.Scan(
			&payment.ID,
			&payment.BookingID,
			&payment.UserID,
			&payment.Amount,
			&payment.Status,
			&payment.Reference,
			&gatewayRef,
			&payment.GatewayData,
			&payment.CreatedAt,
			&payment.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		if gatewayRef != nil {
			payment.GatewayRef = *gatewayRef
		}

		payments = append(payments, payment)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

// recordWebhookEvent claims the (sessionID, eventType) pair in the durable
// idempotency ledger as part of the surrounding transaction. The primary key
// makes at-least-once webhook delivery collapse to exactly-once processing:
// a duplicate insert fails, which aborts the transaction before any mutation.
func recordWebhookEvent(ctx context.Context, tx pgx.Tx, sessionID string, eventType domain.WebhookEventType) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO webhook_events (session_id, event_type)
		VALUES ($1, $2)
	`, sessionID, eventType)

	if isUniqueViolation(err, "webhook_events_pkey") {
		return domain.ErrEventAlreadyProcessed
	}

	return err
}

// lockPaymentForTransition loads the payment row under an exclusive lock and
// checks the status transition table before any mutation is attempted.
func lockPaymentForTransition(
	ctx context.Context,
	tx pgx.Tx,
	sessionID string,
	next domain.PaymentStatus) (paymentID, bookingID string, err error) {

	var status domain.PaymentStatus

	err = tx.QueryRow(ctx, `
		SELECT id, booking_id, status
		FROM payments
		WHERE reference = $1
		FOR UPDATE
	`, sessionID).Scan(&paymentID, &bookingID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", domain.ErrRecordNotFound
		}

		return "", "", err
	}

	if !status.CanTransitionTo(next) {
		return "", "", domain.NewInvalidStateError("payment cannot move from %s to %s", status, next)
	}

	return paymentID, bookingID, nil
}

func lockBookingForTransition(
	ctx context.Context,
	tx pgx.Tx,
	bookingID string,
	next domain.BookingStatus) error {

	var status domain.BookingStatus

	err := tx.QueryRow(ctx, `
		SELECT status
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrRecordNotFound
		}

		return err
	}

	if !status.CanTransitionTo(next) {
		return domain.NewInvalidStateError("booking cannot move from %s to %s", status, next)
	}

	return nil
}

func (p *PostgresPaymentRepository) ConfirmBooking(
	ctx context.Context,
	sessionID string,
	eventType domain.WebhookEventType,
	gatewayRef string) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		err := recordWebhookEvent(ctx, tx, sessionID, eventType)
		if err != nil {
			return err
		}

		paymentID, bookingID, err := lockPaymentForTransition(ctx, tx, sessionID, domain.PaymentSuccess)
		if err != nil {
			return err
		}

		err = lockBookingForTransition(ctx, tx, bookingID, domain.BookingConfirmed)
		if err != nil {
			return err
		}

		gatewayData, err := json.Marshal(map[string]string{
			"confirmedAt": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET status = 'SUCCESS', gateway_ref = $2, gateway_data = $3, updated_at = NOW()
			WHERE id = $1
		`, paymentID, gatewayRef, gatewayData)
		if err != nil {
			return err
		}

		// Confirmed bookings no longer expire.
		_, err = tx.Exec(ctx, `
			UPDATE bookings
			SET status = 'CONFIRMED', expires_at = NULL, updated_at = NOW()
			WHERE id = $1
		`, bookingID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM seat_holds
			WHERE show_seat_id IN (
				SELECT show_seat_id FROM booking_seats WHERE booking_id = $1
			)
		`, bookingID)

		return err
	})
}

func (p *PostgresPaymentRepository) RecordFailure(
	ctx context.Context,
	sessionID string,
	eventType domain.WebhookEventType) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		err := recordWebhookEvent(ctx, tx, sessionID, eventType)
		if err != nil {
			return err
		}

		paymentID, bookingID, err := lockPaymentForTransition(ctx, tx, sessionID, domain.PaymentFailed)
		if err != nil {
			return err
		}

		gatewayData, err := json.Marshal(map[string]string{
			"failedAt": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET status = 'FAILED', gateway_data = $2, updated_at = NOW()
			WHERE id = $1
		`, paymentID, gatewayData)
		if err != nil {
			return err
		}

		// The booking stays PENDING so the user can retry; push the expiry
		// forward instead of letting the sweeper reclaim it mid-retry.
		_, err = tx.Exec(ctx, `
			UPDATE bookings
			SET expires_at = NOW() + make_interval(mins => $2), updated_at = NOW()
			WHERE id = $1 AND status = 'PENDING'
		`, bookingID, int(domain.PaymentRetryGrace.Minutes()))

		return err
	})
}

func (p *PostgresPaymentRepository) ExpireBooking(
	ctx context.Context,
	sessionID string,
	eventType domain.WebhookEventType) error {

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		err := recordWebhookEvent(ctx, tx, sessionID, eventType)
		if err != nil {
			return err
		}

		paymentID, bookingID, err := lockPaymentForTransition(ctx, tx, sessionID, domain.PaymentFailed)
		if err != nil {
			return err
		}

		err = lockBookingForTransition(ctx, tx, bookingID, domain.BookingExpired)
		if err != nil {
			return err
		}

		gatewayData, err := json.Marshal(map[string]string{
			"expiredAt": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET status = 'FAILED', gateway_data = $2, updated_at = NOW()
			WHERE id = $1
		`, paymentID, gatewayData)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE bookings
			SET status = 'EXPIRED', updated_at = NOW()
			WHERE id = $1
		`, bookingID)
		if err != nil {
			return err
		}

		// Release the seats immediately rather than waiting for the sweeper.
		_, err = tx.Exec(ctx, `DELETE FROM booking_seats WHERE booking_id = $1`, bookingID)

		return err
	})
}

func (p *PostgresPaymentRepository) Refund(ctx context.Context, params domain.RefundParams) error {
	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		var status domain.PaymentStatus

		err := tx.QueryRow(ctx, `
			SELECT status
			FROM payments
			WHERE id = $1
			FOR UPDATE
		`, params.PaymentID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRecordNotFound
			}

			return err
		}

		if !status.CanTransitionTo(domain.PaymentRefunded) {
			return domain.NewInvalidStateError("payment cannot move from %s to %s", status, domain.PaymentRefunded)
		}

		err = lockBookingForTransition(ctx, tx, params.BookingID, domain.BookingRefunded)
		if err != nil {
			return err
		}

		gatewayData, err := json.Marshal(map[string]any{
			"refundId":         params.RefundID,
			"refundAmount":     params.RefundAmount,
			"refundPercentage": params.RefundPercent,
			"refundedAt":       time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET status = 'REFUNDED', gateway_data = $2, updated_at = NOW()
			WHERE id = $1
		`, params.PaymentID, gatewayData)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE bookings
			SET status = 'REFUNDED', updated_at = NOW()
			WHERE id = $1
		`, params.BookingID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `DELETE FROM booking_seats WHERE booking_id = $1`, params.BookingID)

		return err
	})
}
