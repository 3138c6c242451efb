package repository

import (
	"context"
	"errors"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresShowRepository struct {
	db *pgxpool.Pool
}

func NewPostgresShowRepository(db *pgxpool.Pool) *PostgresShowRepository {
	return &PostgresShowRepository{
		db: db,
	}
}

func (p *PostgresShowRepository) GetByID(ctx context.Context, showID string) (*domain.Show, error) {
	query := `
		SELECT id, movie_id, screen_id, start_time, created_at
		FROM shows
		WHERE id = $1
	`

	var show domain.Show

	err := p.db.QueryRow(ctx, query, showID).Scan(
		&show.ID,
		&show.MovieID,
		&show.ScreenID,
		&show.StartTime,
		&show.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &show, nil
}

func (p *PostgresShowRepository) GetSeatAvailability(
	ctx context.Context,
	showID string) ([]domain.SeatAvailability, error) {

	// A seat is unavailable while a PENDING/CONFIRMED booking references it
	// or an unexpired hold covers it. Expired holds are treated as absent.
	query := `
		SELECT
			ss.id,
			s.seat_row,
			s.seat_col,
			ss.tier,
			ss.price,
			NOT EXISTS (
				SELECT 1
				FROM booking_seats bs
				JOIN bookings b ON bs.booking_id = b.id
				WHERE bs.show_seat_id = ss.id
					AND b.status IN ('PENDING', 'CONFIRMED')
			) AND NOT EXISTS (
				SELECT 1
				FROM seat_holds sh
				WHERE sh.show_seat_id = ss.id AND sh.expires_at > NOW()
			) AS available
		FROM show_seats ss
		JOIN seats s ON ss.seat_id = s.id
		WHERE ss.show_id = $1
		ORDER BY s.seat_row, s.seat_col
	`

	rows, err := p.db.Query(ctx, query, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]domain.SeatAvailability, 0)

	for rows.Next() {
		var seat domain.SeatAvailability

		err = rows.Scan(
			&seat.ShowSeatID,
			&seat.Row,
			&seat.Col,
			&seat.Tier,
			&seat.Price,
			&seat.Available,
		)
		if err != nil {
			return nil, err
		}

		seats = append(seats, seat)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return seats, nil
}
