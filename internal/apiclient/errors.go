package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrNotJSON is returned when a successful response does not carry JSON.
var ErrNotJSON = errors.New("apiclient: response is not JSON")

// APIError describes a non-2xx response from the business API.
type APIError struct {
	Status  int
	Message string
	// Fields holds per-field validation messages when the API reports them.
	Fields map[string][]string
	Body   []byte
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("apiclient: status %d: %s", e.Status, msg)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("apiclient: status %d: %s (%s)", e.Status, msg, strings.Join(keys, ", "))
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type errorBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: body}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}
	apiErr.Message = parsed.Message
	if apiErr.Message == "" {
		apiErr.Message = parsed.Error
	}
	if len(parsed.Errors) > 0 {
		fields := map[string][]string{}
		if err := json.Unmarshal(parsed.Errors, &fields); err == nil && len(fields) > 0 {
			apiErr.Fields = fields
		}
	}
	return apiErr
}

// StatusCode returns the upstream HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

// Detail returns the upstream message.
func (e *APIError) Detail() string { return e.Message }

// FieldErrors returns per-field validation messages.
func (e *APIError) FieldErrors() map[string][]string { return e.Fields }
