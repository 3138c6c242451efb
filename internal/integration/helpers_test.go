package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

func (s *BaseSuite) seedUser(email string) string {
	var id string
	err := s.app.DB.QueryRow(context.Background(),
		`INSERT INTO users (email) VALUES ($1) RETURNING id`, email).Scan(&id)
	s.Require().NoError(err)

	return id
}

// seedShow creates a movie, theatre, screen and show with numSeats REGULAR
// seats at 150 each, returning the show id and its show seat ids.
func (s *BaseSuite) seedShow(startTime time.Time, numSeats int) (string, []string) {
	ctx := context.Background()

	var movieID, theatreID, screenID, showID string

	err := s.app.DB.QueryRow(ctx,
		`INSERT INTO movies (title, duration_min) VALUES ('Interstellar', 169) RETURNING id`).Scan(&movieID)
	s.Require().NoError(err)

	err = s.app.DB.QueryRow(ctx,
		`INSERT INTO theatres (name, city) VALUES ('Grand Plaza', 'Austin') RETURNING id`).Scan(&theatreID)
	s.Require().NoError(err)

	err = s.app.DB.QueryRow(ctx,
		`INSERT INTO screens (theatre_id, name) VALUES ($1, 'Screen 1') RETURNING id`, theatreID).Scan(&screenID)
	s.Require().NoError(err)

	err = s.app.DB.QueryRow(ctx,
		`INSERT INTO shows (movie_id, screen_id, start_time) VALUES ($1, $2, $3) RETURNING id`,
		movieID, screenID, startTime).Scan(&showID)
	s.Require().NoError(err)

	showSeatIDs := make([]string, 0, numSeats)
	for i := 0; i < numSeats; i++ {
		var seatID, showSeatID string

		err = s.app.DB.QueryRow(ctx,
			`INSERT INTO seats (screen_id, seat_row, seat_col) VALUES ($1, 1, $2) RETURNING id`,
			screenID, i+1).Scan(&seatID)
		s.Require().NoError(err)

		err = s.app.DB.QueryRow(ctx,
			`INSERT INTO show_seats (show_id, seat_id, tier, price) VALUES ($1, $2, 'REGULAR', 150.00) RETURNING id`,
			showID, seatID).Scan(&showSeatID)
		s.Require().NoError(err)

		showSeatIDs = append(showSeatIDs, showSeatID)
	}

	return showID, showSeatIDs
}

func (s *BaseSuite) bookingStatus(bookingID string) string {
	var status string
	err := s.app.DB.QueryRow(context.Background(),
		`SELECT status FROM bookings WHERE id = $1`, bookingID).Scan(&status)
	s.Require().NoError(err)

	return status
}

func (s *BaseSuite) bookingSeatCount(bookingID string) int {
	var count int
	err := s.app.DB.QueryRow(context.Background(),
		`SELECT count(*) FROM booking_seats WHERE booking_id = $1`, bookingID).Scan(&count)
	s.Require().NoError(err)

	return count
}

func (s *BaseSuite) forceBookingExpiry(bookingID string) {
	_, err := s.app.DB.Exec(context.Background(),
		`UPDATE bookings SET expires_at = NOW() - interval '1 minute' WHERE id = $1`, bookingID)
	s.Require().NoError(err)
}

// doJSON fires a request against the test server and decodes the JSON body.
func (s *BaseSuite) doJSON(method, path string, body any) (int, map[string]any) {
	var reader *bytes.Reader

	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer res.Body.Close()

	var decoded map[string]any
	err = json.NewDecoder(res.Body).Decode(&decoded)
	s.Require().NoError(err)

	return res.StatusCode, decoded
}

// createBooking books the given seats and returns the booking id.
func (s *BaseSuite) createBooking(userID, showID string, seatIDs []string) string {
	status, body := s.doJSON(http.MethodPost, "/bookings", map[string]any{
		"userId":  userID,
		"showId":  showID,
		"seatIds": seatIDs,
	})
	s.Require().Equal(http.StatusCreated, status, fmt.Sprintf("booking failed: %v", body))

	return body["bookingId"].(string)
}

// initiatePayment starts checkout for a booking and returns the session id.
func (s *BaseSuite) initiatePayment(userID, bookingID string) string {
	status, body := s.doJSON(http.MethodPost, "/payments/initiate", map[string]any{
		"bookingId": bookingID,
		"userId":    userID,
	})
	s.Require().Equal(http.StatusCreated, status, fmt.Sprintf("initiate failed: %v", body))

	return body["sessionId"].(string)
}
