package apiclient

import (
	"bytes"
	"encoding/json"
)

// Meta is the pagination block the business API attaches to list responses.
type Meta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// Envelope is a `{"data": …, "meta": …}` response body.
type Envelope struct {
	Data json.RawMessage `json:"data"`
	Meta *Meta           `json:"meta,omitempty"`
}

// Unwrap returns the `data` member of an enveloped body, or the body itself
// when it is not enveloped.
func Unwrap(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return trimmed
	}
	if data, ok := probe["data"]; ok {
		return data
	}
	return trimmed
}

// DecodeData unmarshals the possibly enveloped body raw into out.
func DecodeData(raw json.RawMessage, out any) error {
	return json.Unmarshal(Unwrap(raw), out)
}
