package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Session is the authenticated state of this client.
// It is created by a successful login/signup and lives until logout or until
// the backend rejects the token with a 401.
type Session struct {
	Token    string    `json:"token"`     // Opaque bearer credential issued by the backend
	Email    string    `json:"email"`     // Account the token was issued for
	IssuedAt time.Time `json:"issued_at"` // When this client received the token
}

// Valid reports whether the session carries a token.
func (s Session) Valid() bool {
	return s.Token != ""
}

// Credentials are the login/signup form values.
// The tags are enforced client-side before any network call.
type Credentials struct {
	Email    string `json:"email" validate:"required,contains=@"`
	Password string `json:"password" validate:"required,upperdigit"`
}

// Profile is the account behind the current token (GET /auth/me).
type Profile struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("unknown trade side %q", s)
}

// TradeRequest is a user-initiated buy or sell.
// It is never persisted locally; the backend alone decides whether it happened.
type TradeRequest struct {
	Ticker   string          `json:"ticker"`
	Quantity decimal.Decimal `json:"quantity"`
	Side     Side            `json:"side"`
}

// Validate returns a human-readable reason when the request can be rejected
// without asking the backend, or "" when it is acceptable.
func (r TradeRequest) Validate() string {
	if strings.TrimSpace(r.Ticker) == "" {
		return "no ticker selected"
	}
	if !r.Quantity.IsPositive() {
		return "quantity must be greater than zero"
	}
	if r.Side != Buy && r.Side != Sell {
		return fmt.Sprintf("unknown trade side %q", r.Side)
	}
	return ""
}

// TradeConfirmation is what the backend returned for a trade.
// The client never derives balances from it; the post-trade snapshot is re-fetched instead.
type TradeConfirmation struct {
	OK     bool            `json:"ok"`
	Detail string          `json:"detail,omitempty"`
	Raw    json.RawMessage `json:"result,omitempty"` // Backend result object, kept opaque
}
