package app

import (
	"net/http"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/shopspring/decimal"
)

type CreateBookingRequest struct {
	UserID         string   `json:"userId" validate:"required,uuid_id"`
	ShowID         string   `json:"showId" validate:"required,uuid_id"`
	SeatIDs        []string `json:"seatIds" validate:"required,min=1,max=10,unique,dive,uuid_id"`
	IdempotencyKey string   `json:"idempotencyKey" validate:"omitempty,max=100"`
}

type BookingResponse struct {
	BookingID   string               `json:"bookingId"`
	ShowID      string               `json:"showId"`
	SeatIDs     []string             `json:"seatIds"`
	Status      domain.BookingStatus `json:"status"`
	TotalAmount decimal.Decimal      `json:"totalAmount"`
	ExpiresAt   *time.Time           `json:"expiresAt,omitempty"`
	Message     string               `json:"message"`
}

type BookingDetailResponse struct {
	BookingID   string               `json:"bookingId"`
	UserID      string               `json:"userId"`
	ShowID      string               `json:"showId"`
	Status      domain.BookingStatus `json:"status"`
	TotalAmount decimal.Decimal      `json:"totalAmount"`
	SeatIDs     []string             `json:"seatIds"`
	ExpiresAt   *time.Time           `json:"expiresAt,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
}

type UserBookingsResponse struct {
	UserID   string                  `json:"userId"`
	Bookings []BookingDetailResponse `json:"bookings"`
}

type CancelBookingRequest struct {
	UserID string `json:"userId" validate:"required,uuid_id"`
}

func (app *Application) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	var input CreateBookingRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	result, err := app.bookingRepo.Create(r.Context(), domain.CreateBookingParams{
		UserID:         input.UserID,
		ShowID:         input.ShowID,
		SeatIDs:        input.SeatIDs,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	resp := BookingResponse{
		BookingID:   result.BookingID,
		ShowID:      result.ShowID,
		SeatIDs:     result.SeatIDs,
		Status:      result.Status,
		TotalAmount: result.TotalAmount,
		ExpiresAt:   result.ExpiresAt,
	}

	status := http.StatusCreated
	resp.Message = "Booking created. Complete payment within 15 minutes."

	if result.Idempotent {
		status = http.StatusOK
		resp.Message = "Booking already exists for this idempotency key."
	}

	err = app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetBookingHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readUUIDParam(r, "id")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	booking, err := app.bookingRepo.GetByID(r.Context(), id.String())
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toBookingDetail(*booking), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetUserBookingsHandler(w http.ResponseWriter, r *http.Request) {
	userId, err := app.readUUIDParam(r, "userId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	bookings, err := app.bookingRepo.GetAllByUserID(r.Context(), userId.String())
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := UserBookingsResponse{
		UserID:   userId.String(),
		Bookings: make([]BookingDetailResponse, len(bookings)),
	}
	for i, b := range bookings {
		resp.Bookings[i] = toBookingDetail(b)
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) CancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readUUIDParam(r, "id")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input CancelBookingRequest

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	booking, err := app.bookingRepo.GetByID(r.Context(), id.String())
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	if booking.UserID != input.UserID {
		app.forbiddenResponse(w, r, "you can only cancel your own bookings")
		return
	}

	// Cancelling twice is a no-op, not an error.
	if booking.Status == domain.BookingCancelled {
		app.writeJSON(w, http.StatusOK, map[string]any{
			"bookingId": booking.ID,
			"status":    booking.Status,
			"message":   "booking is already cancelled",
		}, nil)
		return
	}

	if booking.Status == domain.BookingConfirmed {
		app.domainErrorResponse(w, r, domain.NewInvalidStateError(
			"confirmed bookings cannot be cancelled directly, request a refund instead"))
		return
	}

	err = app.bookingRepo.Cancel(r.Context(), booking.ID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.contextGetLogger(r).Info("booking cancelled", "booking_id", booking.ID)

	err = app.writeJSON(w, http.StatusOK, map[string]any{
		"bookingId": booking.ID,
		"status":    domain.BookingCancelled,
		"message":   "booking cancelled and seats released",
	}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toBookingDetail(b domain.Booking) BookingDetailResponse {
	seatIDs := make([]string, len(b.Seats))
	for i, s := range b.Seats {
		seatIDs[i] = s.ShowSeatID
	}

	return BookingDetailResponse{
		BookingID:   b.ID,
		UserID:      b.UserID,
		ShowID:      b.ShowID,
		Status:      b.Status,
		TotalAmount: b.TotalAmount,
		SeatIDs:     seatIDs,
		ExpiresAt:   b.ExpiresAt,
		CreatedAt:   b.CreatedAt,
	}
}
