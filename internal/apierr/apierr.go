// Package apierr is the error taxonomy shared by the gateway and every
// component built on it.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind is the category of a failure surfaced by the client core.
type Kind string

const (
	// NetworkError is a transport failure (connection refused, timeout, reset).
	NetworkError Kind = "network"
	// Unauthenticated is a 401 from the backend or a missing session token.
	Unauthenticated Kind = "unauthenticated"
	// BadRequest is any other 4xx, carrying the backend's validation detail.
	BadRequest Kind = "bad_request"
	// ServerError is any 5xx.
	ServerError Kind = "server"
	// DecodeError is a payload that could not be parsed.
	DecodeError Kind = "decode"
	// InvalidRequest is a client-side pre-validation failure. No network call was made.
	InvalidRequest Kind = "invalid_request"
)

// Error is the uniform error shape returned by the gateway and everything built on it.
type Error struct {
	Kind       Kind
	Op         string // operation name, e.g. "wallet.value"
	StatusCode int    // HTTP status when one was received
	Detail     string // backend {detail} or local validation message
	Cause      error
	Timestamp  time.Time

	token string // bearer the failed request carried
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(string(e.Kind))
	sb.WriteString("] ")
	sb.WriteString(e.Op)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&sb, " (HTTP %d)", e.StatusCode)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithToken records the bearer token the failed request was sent with.
func (e *Error) WithToken(token string) *Error {
	e.token = token
	return e
}

// SentToken returns the bearer token recorded by WithToken, if any.
func SentToken(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.token != "" {
		return e.token, true
	}
	return "", false
}

// Is lets errors.Is match on Kind: errors.Is(err, &Error{Kind: Unauthenticated}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New creates an error of the given kind.
func New(kind Kind, op, detail string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Detail:    detail,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// Network wraps a transport failure.
func Network(op string, cause error) *Error {
	return New(NetworkError, op, "", cause)
}

// Decode wraps a payload parsing failure.
func Decode(op string, cause error) *Error {
	return New(DecodeError, op, "", cause)
}

// Invalid reports a request rejected locally before any network call.
func Invalid(op, detail string) *Error {
	return New(InvalidRequest, op, detail, nil)
}

// NotAuthenticated reports a missing or rejected session token.
func NotAuthenticated(op, detail string) *Error {
	return New(Unauthenticated, op, detail, nil)
}

// FromStatus categorises a non-2xx HTTP response.
// The backend reports failures as {"detail": "..."}; the detail is extracted when present.
func FromStatus(op string, status int, body []byte) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized:
		kind = Unauthenticated
	case status >= 500:
		kind = ServerError
	case status >= 400:
		kind = BadRequest
	default:
		// 1xx/3xx are not expected from the backend; treat as server misbehaviour.
		kind = ServerError
	}

	e := New(kind, op, detailOf(body), nil)
	e.StatusCode = status
	return e
}

func detailOf(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		// FastAPI validation errors come back as a list of objects.
		return string(payload.Detail)
	}
	text := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(text) > maxDetail {
		text = string([]rune(text)[:maxDetail]) + "..."
	}
	return text
}

// maxDetail caps, in runes, a non-JSON body quoted as Detail.
const maxDetail = 200

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsUnauthenticated reports whether err means the session is missing or rejected.
func IsUnauthenticated(err error) bool {
	return IsKind(err, Unauthenticated)
}
