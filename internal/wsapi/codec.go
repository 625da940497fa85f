package wsapi

import (
	"bytes"
	"encoding/json"

	"github.com/nerrad567/gray-logic-access/internal/apierr"
)

var (
	emptyContent = json.RawMessage(`{}`)
	nullContent  = json.RawMessage(`null`)
)

// ClientMessage is a parsed request envelope.
type ClientMessage struct {
	ID      string
	Method  string
	Payload json.RawMessage
}

// ServerMessage is a response envelope. ID and Method echo the request.
type ServerMessage struct {
	ID           string
	Method       string
	StatusCode   apierr.Status
	StatusString string
	Content      json.RawMessage
}

// wireResponse fixes the field order of serialized responses.
type wireResponse struct {
	ID           string          `json:"id"`
	Method       string          `json:"method"`
	StatusCode   int             `json:"status_code"`
	StatusString string          `json:"status_string"`
	Content      json.RawMessage `json:"content"`
}

// ParseClientMessage decodes a request envelope. It checks structure only:
// id and method must be non-empty strings and payload must be an object.
// Unknown fields are ignored. Every failure is an apierr Malformed error.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return ClientMessage{}, apierr.NewMalformed("request must be a JSON object")
	}

	id, err := requiredString(fields, "id")
	if err != nil {
		return ClientMessage{}, err
	}
	method, err := requiredString(fields, "method")
	if err != nil {
		return ClientMessage{}, err
	}

	payload, ok := fields["payload"]
	if !ok {
		return ClientMessage{}, apierr.NewMalformed("missing field %q", "payload")
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return ClientMessage{}, apierr.NewMalformed("field %q must be an object", "payload")
	}

	return ClientMessage{ID: id, Method: method, Payload: payload}, nil
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", apierr.NewMalformed("missing field %q", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", apierr.NewMalformed("field %q must be a string", name)
	}
	if s == "" {
		return "", apierr.NewMalformed("field %q must not be empty", name)
	}
	return s, nil
}

// Serialize encodes m. Missing or invalid content is sent as {}.
func (m ServerMessage) Serialize() []byte {
	content := m.Content
	if len(content) == 0 || !json.Valid(content) {
		content = emptyContent
	}
	data, _ := json.Marshal(wireResponse{ //nolint:errcheck // strings, an int and valid raw JSON cannot fail
		ID:           m.ID,
		Method:       m.Method,
		StatusCode:   int(m.StatusCode),
		StatusString: m.StatusString,
		Content:      content,
	})
	return data
}

// ParseServerMessage decodes a serialized response. Clients and tests use it.
func ParseServerMessage(raw []byte) (ServerMessage, error) {
	var w wireResponse
	if err := json.Unmarshal(raw, &w); err != nil {
		return ServerMessage{}, apierr.NewMalformed("invalid response: %v", err)
	}
	return ServerMessage{
		ID:           w.ID,
		Method:       w.Method,
		StatusCode:   apierr.Status(w.StatusCode),
		StatusString: w.StatusString,
		Content:      w.Content,
	}, nil
}
