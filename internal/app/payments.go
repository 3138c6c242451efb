package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	"github.com/shopspring/decimal"
)

// SignatureHeader carries the gateway's webhook signature.
const SignatureHeader = "x-payment-signature"

type InitiatePaymentRequest struct {
	BookingID string `json:"bookingId" validate:"required,uuid_id"`
	UserID    string `json:"userId" validate:"required,uuid_id"`
}

type InitiatePaymentResponse struct {
	PaymentID  string          `json:"paymentId"`
	SessionID  string          `json:"sessionId"`
	PaymentURL string          `json:"paymentUrl"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
}

type SimulatePaymentRequest struct {
	Result string `json:"result" validate:"omitempty,oneof=success failed"`
}

type RefundRequest struct {
	UserID string `json:"userId" validate:"required,uuid_id"`
}

type RefundResponse struct {
	BookingID        string          `json:"bookingId"`
	RefundID         string          `json:"refundId"`
	OriginalAmount   decimal.Decimal `json:"originalAmount"`
	RefundAmount     decimal.Decimal `json:"refundAmount"`
	RefundPercentage int64           `json:"refundPercentage"`
	Status           string          `json:"status"`
}

type PaymentSummary struct {
	PaymentID string               `json:"paymentId"`
	Amount    decimal.Decimal      `json:"amount"`
	Status    domain.PaymentStatus `json:"status"`
	Reference string               `json:"reference"`
	CreatedAt time.Time            `json:"createdAt"`
}

type PaymentStatusResponse struct {
	BookingID     string               `json:"bookingId"`
	BookingStatus domain.BookingStatus `json:"bookingStatus"`
	Payments      []PaymentSummary     `json:"payments"`
}

func (app *Application) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var input InitiatePaymentRequest

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

	booking, err := app.bookingRepo.GetByID(r.Context(), input.BookingID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	if booking.UserID != input.UserID {
		app.forbiddenResponse(w, r, "you can only pay for your own bookings")
		return
	}

	if booking.Status != domain.BookingPending {
		app.domainErrorResponse(w, r, domain.NewInvalidStateError(
			"cannot initiate payment for booking with status: %s", booking.Status))
		return
	}

	if booking.ExpiredAt(time.Now()) {
		app.domainErrorResponse(w, r, domain.NewInvalidStateError(
			"booking has expired, create a new booking"))
		return
	}

	show, err := app.showRepo.GetByID(r.Context(), booking.ShowID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	if show.HasStarted(time.Now()) {
		app.domainErrorResponse(w, r, domain.NewInvalidStateError(
			"show has already started, payment is no longer possible"))
		return
	}

	session, err := app.gateway.CreateSession(r.Context(), booking.ID, booking.TotalAmount, "USD")
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	payment := &domain.Payment{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Amount:    booking.TotalAmount,
		Status:    domain.PaymentInitiated,
		Reference: session.SessionID,
	}

	err = app.paymentRepo.Create(r.Context(), payment)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := InitiatePaymentResponse{
		PaymentID:  payment.ID,
		SessionID:  session.SessionID,
		PaymentURL: session.PaymentURL,
		ExpiresAt:  session.ExpiresAt,
		Amount:     session.Amount,
		Currency:   session.Currency,
		Status:     string(payment.Status),
	}

	err = app.writeJSON(w, http.StatusCreated, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("unable to read request body"))
		return
	}

	message, err := app.processWebhook(r.Context(), payload, r.Header.Get(SignatureHeader))
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": message,
	}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) SimulatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := app.readStringParam(r, "sessionId")

	// An empty body defaults to a successful payment.
	var input SimulatePaymentRequest
	if r.ContentLength > 0 {
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
	}

	outcome := domain.SessionCompleted
	if input.Result == "failed" {
		outcome = domain.SessionFailed
	}

	payload, signature, err := app.gateway.Complete(r.Context(), sessionID, outcome)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	// Deliver the signed event through the same path a real gateway would.
	message, err := app.processWebhook(r.Context(), payload, signature)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": sessionID,
		"message":   message,
	}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// processWebhook verifies, deduplicates and applies one gateway event. It is
// shared by the public webhook endpoint and the simulation endpoint.
func (app *Application) processWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	err := app.gateway.VerifySignature(payload, signature)
	if err != nil {
		return "", err
	}

	var event domain.WebhookEvent
	err = json.Unmarshal(payload, &event)
	if err != nil {
		return "", domain.NewValidationError("malformed webhook payload")
	}

	switch event.EventType {
	case domain.EventPaymentSuccess:
		err = app.paymentRepo.ConfirmBooking(ctx, event.SessionID, event.EventType, event.GatewayRef)
	case domain.EventPaymentFailed:
		err = app.paymentRepo.RecordFailure(ctx, event.SessionID, event.EventType)
	case domain.EventPaymentExpired:
		err = app.paymentRepo.ExpireBooking(ctx, event.SessionID, event.EventType)
	default:
		app.logger.Warn("ignoring unknown webhook event type", "event_type", event.EventType)
		return fmt.Sprintf("Ignored unknown event type: %s", event.EventType), nil
	}

	if errors.Is(err, domain.ErrEventAlreadyProcessed) {
		app.logger.Info("webhook event already processed",
			"session_id", event.SessionID, "event_type", event.EventType)
		return "Event already processed", nil
	}
	if err != nil {
		return "", err
	}

	if event.EventType == domain.EventPaymentSuccess {
		app.sendConfirmationEmail(event.SessionID)
	}

	return fmt.Sprintf("Processed %s", event.EventType), nil
}

func (app *Application) sendConfirmationEmail(sessionID string) {
	app.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		payment, err := app.paymentRepo.GetByReference(ctx, sessionID)
		if err != nil {
			app.logger.Error("failed to load payment for confirmation mail", "error", err)
			return
		}

		user, err := app.userRepo.GetByID(ctx, payment.UserID)
		if err != nil {
			app.logger.Error("failed to load user for confirmation mail", "error", err)
			return
		}

		data := map[string]any{
			"BookingID":   payment.BookingID,
			"TotalAmount": payment.Amount,
		}

		err = app.mailer.Send(user.Email, "booking_confirmation.tmpl", data)
		if err != nil {
			app.logger.Error("failed to send confirmation mail", "error", err)
		}
	})
}

func (app *Application) RefundHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := app.readUUIDParam(r, "bookingId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input RefundRequest

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

	booking, err := app.bookingRepo.GetByID(r.Context(), bookingID.String())
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	if booking.UserID != input.UserID {
		app.forbiddenResponse(w, r, "you can only refund your own bookings")
		return
	}

	if booking.Status != domain.BookingConfirmed {
		app.domainErrorResponse(w, r, domain.NewInvalidStateError(
			"only confirmed bookings can be refunded, current status: %s", booking.Status))
		return
	}

	payment, err := app.paymentRepo.GetLatestSuccessByBookingID(r.Context(), booking.ID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			app.domainErrorResponse(w, r, domain.NewInvalidStateError(
				"no successful payment found for this booking"))
			return
		}
		app.serverErrorResponse(w, r, err)
		return
	}

	show, err := app.showRepo.GetByID(r.Context(), booking.ShowID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	leadTime := time.Until(show.StartTime)
	refundAmount := domain.RefundAmount(booking.TotalAmount, leadTime)
	refundPercent := domain.RefundPercent(leadTime)

	receipt, err := app.gateway.Refund(r.Context(), payment.Reference, refundAmount)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.paymentRepo.Refund(r.Context(), domain.RefundParams{
		PaymentID:     payment.ID,
		BookingID:     booking.ID,
		RefundID:      receipt.RefundID,
		RefundAmount:  refundAmount,
		RefundPercent: refundPercent,
	})
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.contextGetLogger(r).Info("booking refunded",
		"booking_id", booking.ID,
		"refund_amount", refundAmount,
		"refund_percent", refundPercent,
	)

	resp := RefundResponse{
		BookingID:        booking.ID,
		RefundID:         receipt.RefundID,
		OriginalAmount:   booking.TotalAmount,
		RefundAmount:     refundAmount,
		RefundPercentage: refundPercent,
		Status:           string(domain.BookingRefunded),
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) PaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := app.readUUIDParam(r, "bookingId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	booking, err := app.bookingRepo.GetByID(r.Context(), bookingID.String())
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	payments, err := app.paymentRepo.GetAllByBookingID(r.Context(), booking.ID)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := PaymentStatusResponse{
		BookingID:     booking.ID,
		BookingStatus: booking.Status,
		Payments:      make([]PaymentSummary, len(payments)),
	}
	for i, p := range payments {
		resp.Payments[i] = PaymentSummary{
			PaymentID: p.ID,
			Amount:    p.Amount,
			Status:    p.Status,
			Reference: p.Reference,
			CreatedAt: p.CreatedAt,
		}
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
