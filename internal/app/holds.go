package app

import (
	"net/http"
	"time"
)

type HoldSeatsRequest struct {
	UserID  string   `json:"userId" validate:"required,uuid_id"`
	ShowID  string   `json:"showId" validate:"required,uuid_id"`
	SeatIDs []string `json:"seatIds" validate:"required,min=1,max=10,unique,dive,uuid_id"`
}

type HoldSeatsResponse struct {
	UserID    string    `json:"userId"`
	ShowID    string    `json:"showId"`
	SeatIDs   []string  `json:"seatIds"`
	ExpiresAt time.Time `json:"expiresAt"`
	Message   string    `json:"message"`
}

func (app *Application) HoldSeatsHandler(w http.ResponseWriter, r *http.Request) {
	var input HoldSeatsRequest

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

	result, err := app.holdRepo.CreateHolds(r.Context(), input.UserID, input.ShowID, input.SeatIDs)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	resp := HoldSeatsResponse{
		UserID:    result.UserID,
		ShowID:    result.ShowID,
		SeatIDs:   result.SeatIDs,
		ExpiresAt: result.ExpiresAt,
		Message:   "Seats held for 5 minutes. Create a booking to keep them.",
	}

	err = app.writeJSON(w, http.StatusCreated, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) ReleaseHoldsHandler(w http.ResponseWriter, r *http.Request) {
	userId, err := app.readUUIDParam(r, "userId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	released, err := app.holdRepo.ReleaseByUser(r.Context(), userId.String())
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, map[string]any{
		"userId":   userId.String(),
		"released": released,
	}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
