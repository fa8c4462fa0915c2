// Package v1 defines the request and response bodies of the registry API.
// Every response uses the uniform {status, message?, content?} envelope.
package v1

import "encoding/json"

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the uniform response body.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Content any    `json:"content,omitempty"`
}

// Success wraps content in a success envelope.
func Success(content any) Envelope {
	return Envelope{Status: StatusSuccess, Content: content}
}

// OK is a success envelope with the conventional "ok" content.
func OK() Envelope {
	return Envelope{Status: StatusSuccess, Content: "ok"}
}

// Error wraps a message in an error envelope.
func Error(message string) Envelope {
	return Envelope{Status: StatusError, Message: message}
}

// TypedEnvelope decodes an envelope with typed content on the client side.
type TypedEnvelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Content T      `json:"content,omitempty"`
}

// DecodeEnvelope parses a typed envelope from raw JSON.
func DecodeEnvelope[T any](data []byte) (*TypedEnvelope[T], error) {
	var env TypedEnvelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
