package app

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type SeatAvailabilityItem struct {
	ShowSeatID string          `json:"showSeatId"`
	Row        int             `json:"row"`
	Col        int             `json:"col"`
	Tier       string          `json:"tier"`
	Price      decimal.Decimal `json:"price"`
	Available  bool            `json:"available"`
}

type ShowSeatsResponse struct {
	ShowID    string                 `json:"showId"`
	StartTime time.Time              `json:"startTime"`
	Seats     []SeatAvailabilityItem `json:"seats"`
}

// GetShowSeatAvailabilityHandler returns the seat map of a show. A seat is
// available when no PENDING or CONFIRMED booking owns it and no live hold
// covers it.
func (app *Application) GetShowSeatAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	showID, err := app.readUUIDParam(r, "id")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	show, err := app.showRepo.GetByID(r.Context(), showID.String())
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	availability, err := app.showRepo.GetSeatAvailability(r.Context(), show.ID)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := ShowSeatsResponse{
		ShowID:    show.ID,
		StartTime: show.StartTime,
		Seats:     make([]SeatAvailabilityItem, len(availability)),
	}
	for i, seat := range availability {
		resp.Seats[i] = SeatAvailabilityItem{
			ShowSeatID: seat.ShowSeatID,
			Row:        seat.Row,
			Col:        seat.Col,
			Tier:       string(seat.Tier),
			Price:      seat.Price,
			Available:  seat.Available,
		}
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
