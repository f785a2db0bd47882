// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnsupported  = errors.New("unsupported")
)

// StatusError is implemented by errors that carry an HTTP status of their own,
// such as failures reported by the business API.
type StatusError interface {
	error
	StatusCode() int
	Detail() string
	FieldErrors() map[string][]string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var statusErr StatusError
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &statusErr):
		status := statusErr.StatusCode()
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeProblem(w, ProblemDetail{
			Title:  http.StatusText(status),
			Status: status,
			Detail: statusErr.Detail(),
			Fields: statusErr.FieldErrors(),
		})
	case errors.As(err, &validationErrs):
		writeProblem(w, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Fields: FieldMessages(validationErrs),
		})
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, ErrUnsupported):
		Problem(w, http.StatusNotAcceptable, "Not Acceptable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// FieldMessages flattens validator errors keyed by JSON field name.
func FieldMessages(errs validator.ValidationErrors) map[string][]string {
	out := make(map[string][]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = append(out[fe.Field()], fe.Tag())
	}
	return out
}
