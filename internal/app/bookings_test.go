package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/cinebook-io/cinebook/internal/mocks"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	testUserID    = "3f8e2a1b-9c4d-4e5f-8a6b-7c8d9e0f1a2b"
	testOtherUser = "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"
	testShowID    = "5d6e7f8a-9b0c-4d1e-8f2a-3b4c5d6e7f8a"
	testBookingID = "7a8b9c0d-1e2f-4a3b-8c4d-5e6f7a8b9c0d"
	testSeatA     = "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5e"
	testSeatB     = "2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d6f"
)

type BookingsTestSuite struct {
	suite.Suite
	app         *Application
	bookingRepo *mocks.MockBookingRepo
}

func (s *BookingsTestSuite) SetupTest() {
	s.bookingRepo = new(mocks.MockBookingRepo)
	s.app = newTestApplication(func(a *Application) {
		a.bookingRepo = s.bookingRepo
	})
}

func TestBookingsSuite(t *testing.T) {
	suite.Run(t, new(BookingsTestSuite))
}

func (s *BookingsTestSuite) TestCreateBookingHandler() {
	expiresAt := time.Now().Add(domain.BookingTTL).Truncate(time.Second).UTC()

	tests := []struct {
		name           string
		body           CreateBookingRequest
		setupMock      func()
		wantStatus     int
		wantErrMessage string
		wantIdempotent bool
	}{
		{
			name: "missing user id",
			body: CreateBookingRequest{
				ShowID:  testShowID,
				SeatIDs: []string{testSeatA},
			},
			wantStatus:     http.StatusUnprocessableEntity,
			wantErrMessage: "is required",
		},
		{
			name: "malformed seat id",
			body: CreateBookingRequest{
				UserID:  testUserID,
				ShowID:  testShowID,
				SeatIDs: []string{"not-a-uuid"},
			},
			wantStatus:     http.StatusUnprocessableEntity,
			wantErrMessage: "must be a valid id",
		},
		{
			name: "duplicate seat ids",
			body: CreateBookingRequest{
				UserID:  testUserID,
				ShowID:  testShowID,
				SeatIDs: []string{testSeatA, testSeatA},
			},
			wantStatus:     http.StatusUnprocessableEntity,
			wantErrMessage: "must not contain duplicates",
		},
		{
			name: "show not found",
			body: CreateBookingRequest{
				UserID:  testUserID,
				ShowID:  testShowID,
				SeatIDs: []string{testSeatA},
			},
			setupMock: func() {
				s.bookingRepo.On("Create", mock.Anything, mock.Anything).
					Return(nil, domain.NewNotFoundError("show not found: %s", testShowID))
			},
			wantStatus:     http.StatusNotFound,
			wantErrMessage: fmt.Sprintf("show not found: %s", testShowID),
		},
		{
			name: "seats already booked",
			body: CreateBookingRequest{
				UserID:  testUserID,
				ShowID:  testShowID,
				SeatIDs: []string{testSeatA, testSeatB},
			},
			setupMock: func() {
				s.bookingRepo.On("Create", mock.Anything, mock.Anything).
					Return(nil, domain.NewConflictError("one or more seats are already booked"))
			},
			wantStatus:     http.StatusConflict,
			wantErrMessage: "one or more seats are already booked",
		},
		{
			name: "successful booking",
			body: CreateBookingRequest{
				UserID:  testUserID,
				ShowID:  testShowID,
				SeatIDs: []string{testSeatA, testSeatB},
			},
			setupMock: func() {
				s.bookingRepo.On("Create", mock.Anything, domain.CreateBookingParams{
					UserID:  testUserID,
					ShowID:  testShowID,
					SeatIDs: []string{testSeatA, testSeatB},
				}).Return(&domain.BookingResult{
					BookingID:   testBookingID,
					ShowID:      testShowID,
					SeatIDs:     []string{testSeatA, testSeatB},
					Status:      domain.BookingPending,
					ExpiresAt:   &expiresAt,
					TotalAmount: decimal.NewFromInt(450),
				}, nil)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "idempotent replay",
			body: CreateBookingRequest{
				UserID:         testUserID,
				ShowID:         testShowID,
				SeatIDs:        []string{testSeatA, testSeatB},
				IdempotencyKey: "retry-key-1",
			},
			setupMock: func() {
				s.bookingRepo.On("Create", mock.Anything, mock.Anything).
					Return(&domain.BookingResult{
						BookingID:   testBookingID,
						ShowID:      testShowID,
						SeatIDs:     []string{testSeatA, testSeatB},
						Status:      domain.BookingPending,
						ExpiresAt:   &expiresAt,
						TotalAmount: decimal.NewFromInt(450),
						Idempotent:  true,
					}, nil)
			},
			wantStatus:     http.StatusOK,
			wantIdempotent: true,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			defer s.bookingRepo.AssertExpectations(s.T())

			if tt.setupMock != nil {
				tt.setupMock()
			}

			w, r := executeRequest(s.T(), http.MethodPost, "/bookings", tt.body)
			s.app.Routes().ServeHTTP(w, r)

			s.Equal(tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated || tt.wantStatus == http.StatusOK {
				var resp BookingResponse
				err := json.NewDecoder(w.Body).Decode(&resp)
				s.Require().NoError(err)

				s.Equal(testBookingID, resp.BookingID)
				s.Equal(domain.BookingPending, resp.Status)
				s.Equal([]string{testSeatA, testSeatB}, resp.SeatIDs)
				s.True(resp.TotalAmount.Equal(decimal.NewFromInt(450)))
				s.Require().NotNil(resp.ExpiresAt)
				s.True(resp.ExpiresAt.Equal(expiresAt))
			}

			checkErrorResponse(s.T(), w, tt.wantStatus, tt.wantErrMessage)
		})
	}
}

func (s *BookingsTestSuite) TestGetBookingHandler() {
	tests := []struct {
		name           string
		bookingID      string
		setupMock      func()
		wantStatus     int
		wantErrMessage string
	}{
		{
			name:           "malformed booking id",
			bookingID:      "nope",
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "invalid id parameter",
		},
		{
			name:      "booking not found",
			bookingID: testBookingID,
			setupMock: func() {
				s.bookingRepo.On("GetByID", mock.Anything, testBookingID).
					Return(nil, domain.ErrRecordNotFound)
			},
			wantStatus:     http.StatusNotFound,
			wantErrMessage: "The requested resource not found",
		},
		{
			name:      "successful retrieval",
			bookingID: testBookingID,
			setupMock: func() {
				s.bookingRepo.On("GetByID", mock.Anything, testBookingID).
					Return(&domain.Booking{
						ID:          testBookingID,
						UserID:      testUserID,
						ShowID:      testShowID,
						Status:      domain.BookingConfirmed,
						TotalAmount: decimal.NewFromInt(450),
						Seats: []domain.BookingSeat{
							{BookingID: testBookingID, ShowSeatID: testSeatA},
						},
					}, nil)
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			defer s.bookingRepo.AssertExpectations(s.T())

			if tt.setupMock != nil {
				tt.setupMock()
			}

			w, r := executeRequest(s.T(), http.MethodGet, "/bookings/"+tt.bookingID, nil)
			s.app.Routes().ServeHTTP(w, r)

			s.Equal(tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				var resp BookingDetailResponse
				err := json.NewDecoder(w.Body).Decode(&resp)
				s.Require().NoError(err)

				want := BookingDetailResponse{
					BookingID:   testBookingID,
					UserID:      testUserID,
					ShowID:      testShowID,
					Status:      domain.BookingConfirmed,
					TotalAmount: decimal.NewFromInt(450),
					SeatIDs:     []string{testSeatA},
				}

				diff := cmp.Diff(want, resp)
				s.Empty(diff, "Response mismatch (-want +got):\n%s", diff)
			}

			checkErrorResponse(s.T(), w, tt.wantStatus, tt.wantErrMessage)
		})
	}
}

func (s *BookingsTestSuite) TestCancelBookingHandler() {
	tests := []struct {
		name           string
		body           CancelBookingRequest
		setupMock      func()
		wantStatus     int
		wantErrMessage string
		wantMessage    string
	}{
		{
			name: "booking not found",
			body: CancelBookingRequest{UserID: testUserID},
			setupMock: func() {
				s.bookingRepo.On("GetByID", mock.Anything, testBookingID).
					Return(nil, domain.ErrRecordNotFound)
			},
			wantStatus:     http.StatusNotFound,
			wantErrMessage: "The requested resource not found",
		},
		{
			name: "cancelling someone else's booking",
			body: CancelBookingRequest{UserID: testOtherUser},
			setupMock: func() {
				s.bookingRepo.On("GetByID", mock.Anything, testBookingID).
					Return(&domain.Booking{ID: testBookingID, UserID: testUserID, Status: domain.BookingPending}, nil)
			},
			wantStatus:     http.StatusForbidden,
			wantErrMessage: "you can only cancel your own bookings",
		},
		{
			name: "already cancelled is a no-op",
			body: CancelBookingRequest{UserID: testUserID},
			setupMock: func() {
				s.bookingRepo.On("GetByID", mock.Anything, testBookingID).
					Return(&domain.Booking{ID: testBookingID, UserID: testUserID, Status: domain.BookingCancelled}, nil)
			},
			wantStatus:  http.StatusOK,
			wantMessage: "booking is already cancelled",
		},
		{
			name: "confirmed booking requires a refund",
			body: CancelBookingRequest{UserID: testUserID},
			setupMock: func() {
				s.bookingRepo.On("GetByID", mock.Anything, testBookingID).
					Return(&domain.Booking{ID: testBookingID, UserID: testUserID, Status: domain.BookingConfirmed}, nil)
			},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "confirmed bookings cannot be cancelled directly, request a refund instead",
		},
		{
			name: "successful cancellation",
			body: CancelBookingRequest{UserID: testUserID},
			setupMock: func() {
				s.bookingRepo.On("GetByID", mock.Anything, testBookingID).
					Return(&domain.Booking{ID: testBookingID, UserID: testUserID, Status: domain.BookingPending}, nil)
				s.bookingRepo.On("Cancel", mock.Anything, testBookingID).Return(nil)
			},
			wantStatus:  http.StatusOK,
			wantMessage: "booking cancelled and seats released",
		},
		{
			name: "expired booking can still be cancelled",
			body: CancelBookingRequest{UserID: testUserID},
			setupMock: func() {
				s.bookingRepo.On("GetByID", mock.Anything, testBookingID).
					Return(&domain.Booking{ID: testBookingID, UserID: testUserID, Status: domain.BookingExpired}, nil)
				s.bookingRepo.On("Cancel", mock.Anything, testBookingID).Return(nil)
			},
			wantStatus:  http.StatusOK,
			wantMessage: "booking cancelled and seats released",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			defer s.bookingRepo.AssertExpectations(s.T())

			if tt.setupMock != nil {
				tt.setupMock()
			}

			w, r := executeRequest(s.T(), http.MethodPatch, "/bookings/"+testBookingID+"/cancel", tt.body)
			s.app.Routes().ServeHTTP(w, r)

			s.Equal(tt.wantStatus, w.Code)

			if tt.wantMessage != "" {
				var resp map[string]any
				err := json.NewDecoder(w.Body).Decode(&resp)
				s.Require().NoError(err)
				s.Equal(tt.wantMessage, resp["message"])
			}

			checkErrorResponse(s.T(), w, tt.wantStatus, tt.wantErrMessage)
		})
	}
}
