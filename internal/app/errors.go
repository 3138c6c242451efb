package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/cinebook-io/cinebook/internal/domain"
	appvalidator "github.com/cinebook-io/cinebook/internal/validator"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

type ErrorResponse struct {
	Message   string    `json:"message"`
	RequestId string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ValidationErrorResponse struct {
	Message          string           `json:"message"`
	ValidationErrors []FieldViolation `json:"validationErrors"`
	RequestId        string           `json:"requestId,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (app *Application) logError(r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.Error(err.Error(), "method", method, "uri", uri)
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := ErrorResponse{
		Message:   message,
		RequestId: middleware.GetReqID(r.Context()),
		Timestamp: time.Now(),
	}

	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)

	message := "The server encountered a problem and could not process your request"
	app.errorResponse(w, r, http.StatusInternalServerError, message)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	message := "The requested resource not found"
	app.errorResponse(w, r, http.StatusNotFound, message)
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	app.errorResponse(w, r, http.StatusForbidden, message)
}

func (app *Application) conflictResponse(w http.ResponseWriter, r *http.Request, message string) {
	app.errorResponse(w, r, http.StatusConflict, message)
}

func (app *Application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		app.serverErrorResponse(w, r, err)
		return
	}

	violations := make([]FieldViolation, len(validationErrors))
	for i, fieldErr := range validationErrors {
		violations[i] = FieldViolation{
			Field:   fieldErr.Field(),
			Message: appvalidator.ValidationMessage(fieldErr),
		}
	}

	resp := ValidationErrorResponse{
		Message:          "Validation failed",
		ValidationErrors: violations,
		RequestId:        middleware.GetReqID(r.Context()),
		Timestamp:        time.Now(),
	}

	writeErr := app.writeJSON(w, http.StatusUnprocessableEntity, resp, nil)
	if writeErr != nil {
		app.logError(r, writeErr)
		w.WriteHeader(500)
	}
}

// domainErrorResponse maps repository and gateway errors to HTTP responses.
func (app *Application) domainErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr   *domain.ValidationError
		conflictErr     *domain.ConflictError
		forbiddenErr    *domain.ForbiddenError
		notFoundErr     *domain.NotFoundError
		invalidStateErr *domain.InvalidStateError
	)

	switch {
	case errors.As(err, &validationErr):
		app.errorResponse(w, r, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &conflictErr):
		app.conflictResponse(w, r, conflictErr.Message)
	case errors.As(err, &forbiddenErr):
		app.forbiddenResponse(w, r, forbiddenErr.Message)
	case errors.As(err, &notFoundErr):
		app.errorResponse(w, r, http.StatusNotFound, notFoundErr.Message)
	case errors.Is(err, domain.ErrRecordNotFound), errors.Is(err, domain.ErrSessionNotFound):
		app.notFoundResponse(w, r)
	case errors.As(err, &invalidStateErr):
		app.errorResponse(w, r, http.StatusBadRequest, invalidStateErr.Message)
	default:
		app.serverErrorResponse(w, r, err)
	}
}
