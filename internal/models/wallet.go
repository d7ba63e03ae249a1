package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a quantity of one ticker owned within the simulated wallet.
type Holding struct {
	Ticker       string          `json:"ticker"`
	Quantity     decimal.Decimal `json:"quantity"`      // Non-negative, fractional shares allowed
	CurrentPrice decimal.Decimal `json:"current_price"` // Backend's last-known price
	HoldingValue decimal.Decimal `json:"holding_value"` // Quantity x CurrentPrice, as computed by the backend
}

// WalletSnapshot is a complete, frozen copy of the backend ledger at one instant.
// A snapshot always replaces the previous one; it is never merged.
type WalletSnapshot struct {
	Cash       decimal.Decimal `json:"cash"`
	TotalValue decimal.Decimal `json:"total_value"`
	Holdings   []Holding       `json:"holdings"`
	FetchedAt  time.Time       `json:"fetched_at"`
	Seq        uint64          `json:"seq"` // Completion order within one synchronizer
}

// HoldingsValue is the sum of all holding values.
func (s WalletSnapshot) HoldingsValue() decimal.Decimal {
	total := decimal.Zero
	for _, h := range s.Holdings {
		total = total.Add(h.HoldingValue)
	}
	return total
}

// Consistent reports whether TotalValue == Cash + sum(HoldingValue), to the cent.
func (s WalletSnapshot) Consistent() bool {
	want := s.Cash.Add(s.HoldingsValue()).Round(2)
	return s.TotalValue.Round(2).Equal(want)
}

// Age is the staleness of the snapshot: wall-clock time since it was fetched.
func (s WalletSnapshot) Age(now time.Time) time.Duration {
	if s.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(s.FetchedAt)
}

// Holding returns the holding for ticker, if any.
func (s WalletSnapshot) Holding(ticker string) (Holding, bool) {
	for _, h := range s.Holdings {
		if h.Ticker == ticker {
			return h, true
		}
	}
	return Holding{}, false
}

// Clone returns a copy that shares no slice memory with s.
func (s WalletSnapshot) Clone() WalletSnapshot {
	c := s
	c.Holdings = make([]Holding, len(s.Holdings))
	copy(c.Holdings, s.Holdings)
	return c
}
