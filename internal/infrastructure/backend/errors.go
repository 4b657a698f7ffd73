package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorKind distinguishes failures that never reached the server from ones it reported.
type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1
	KindApplication
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by the gateway. Message is meant for users.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func transportError(err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Message: fmt.Sprintf("failed to send request: %v", err),
		Err:     err,
	}
}

func statusError(status int, body []byte) *Error {
	msg := detailMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("Request failed with status code %d", status)
	}
	return &Error{
		Kind:       KindApplication,
		StatusCode: status,
		Message:    msg,
	}
}

func malformedError(status int, err error) *Error {
	return &Error{
		Kind:       KindApplication,
		StatusCode: status,
		Message:    fmt.Sprintf("malformed response body: %v", err),
		Err:        err,
	}
}

// detailMessage extracts the server's "detail" field, either a string or a list of
// validation errors carrying "msg".
func detailMessage(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if m := strings.TrimSpace(item.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
