package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func runInTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	var txOptions pgx.TxOptions

	tx, err := db.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err == nil {
		return tx.Commit(ctx)
	}

	rollbackErr := tx.Rollback(ctx)
	if rollbackErr != nil {
		return errors.Join(err, rollbackErr)
	}

	return err
}

// lockShowSeats takes exclusive row locks on the given show seats for the
// lifetime of tx. Seat ids are locked in ascending order so that concurrent
// transactions requesting overlapping seat sets never deadlock on each other.
func lockShowSeats(ctx context.Context, tx pgx.Tx, showID string, seatIDs []string) error {
	ids := append([]string(nil), seatIDs...)
	sort.Strings(ids)

	rows, err := tx.Query(ctx, `
		SELECT id
		FROM show_seats
		WHERE show_id = $1 AND id = ANY($2)
		ORDER BY id
		FOR UPDATE
	`, showID, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
	}

	return rows.Err()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	return pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == constraint
}
