package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// broadcastEnvelope is the wire form published by the business API's
// broadcaster: `{"event": "...", "data": {...}}`. data may arrive as a JSON
// encoded string.
type broadcastEnvelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// DecodeEnvelope decodes one published payload received on channel. The
// envelope's own channel wins when channel is empty.
func DecodeEnvelope(channel string, payload []byte) (Event, error) {
	var env broadcastEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("chat: decode envelope: %w", err)
	}
	name := strings.TrimPrefix(strings.TrimSpace(env.Event), ".")
	if name == "" {
		return Event{}, errors.New("chat: envelope without event name")
	}
	if channel == "" {
		channel = env.Channel
	}
	data := unquote(env.Data)
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}
	return Event{Name: name, Channel: channel, Data: data}, nil
}

// unquote accepts payloads delivered as a JSON encoded string.
func unquote(data json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return trimmed
	}
	return json.RawMessage(inner)
}
