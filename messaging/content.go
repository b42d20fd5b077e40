package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultAction is the reserved registry key used when a message carries no
// action header
const DefaultAction = "defaultAction"

// DecodeContent decodes a message body. JSON bodies decode to their value
// (numbers as json.Number so they survive unchanged); anything else is
// wrapped as {"data": <body text>}.
func DecodeContent(body []byte) interface{} {
	if json.Valid(body) {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err == nil {
			return v
		}
	}
	return map[string]interface{}{"data": string(body)}
}

// EncodeContent encodes payload for the wire. When original is set and the
// payload is already a byte slice it is sent untouched.
func EncodeContent(payload interface{}, original bool) ([]byte, error) {
	if original {
		if b, ok := payload.([]byte); ok {
			return b, nil
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message content: %w", err)
	}
	return body, nil
}

// ValidateMessage rejects deliveries that cannot be dispatched
func ValidateMessage(msg *RawMessage) error {
	if msg == nil {
		return ErrEmptyMessage
	}
	return nil
}

// ActionOf extracts the action header, falling back to DefaultAction
func ActionOf(properties Properties) (string, error) {
	v, ok := properties.Header(HeaderAction)
	if !ok || v == nil {
		return DefaultAction, nil
	}

	switch action := v.(type) {
	case string:
		if action == "" {
			return DefaultAction, nil
		}
		return action, nil
	default:
		return "", &UnexpectedActionTypeError{Value: v}
	}
}

// NewErrorContent returns {"error": msg} as a JSON string, the body services
// reply with when a request cannot be served
func NewErrorContent(msg string) string {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return string(body)
}
