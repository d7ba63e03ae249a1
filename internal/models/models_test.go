package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWalletSnapshot_Consistent(t *testing.T) {
	s := WalletSnapshot{
		Cash:       d("1000"),
		TotalValue: d("1500"),
		Holdings: []Holding{
			{Ticker: "AAPL", Quantity: d("5"), CurrentPrice: d("100"), HoldingValue: d("500")},
		},
	}
	assert.True(t, s.Consistent())
	assert.True(t, s.HoldingsValue().Equal(d("500")))

	s.TotalValue = d("1499.98")
	assert.False(t, s.Consistent())
}

func TestWalletSnapshot_CloneDoesNotShareHoldings(t *testing.T) {
	s := WalletSnapshot{Holdings: []Holding{{Ticker: "AAPL", Quantity: d("1")}}}
	c := s.Clone()
	c.Holdings[0].Ticker = "MSFT"

	assert.Equal(t, "AAPL", s.Holdings[0].Ticker)
	h, ok := s.Holding("AAPL")
	assert.True(t, ok)
	assert.True(t, h.Quantity.Equal(d("1")))
}

func TestWalletSnapshot_Age(t *testing.T) {
	now := time.Now()
	s := WalletSnapshot{FetchedAt: now.Add(-90 * time.Second)}
	assert.Equal(t, 90*time.Second, s.Age(now))
	assert.Equal(t, time.Duration(0), WalletSnapshot{}.Age(now))
}

func TestTradeRequest_Validate(t *testing.T) {
	assert.Equal(t, "", TradeRequest{Ticker: "AAPL", Quantity: d("2"), Side: Buy}.Validate())
	assert.Equal(t, "", TradeRequest{Ticker: "AAPL", Quantity: d("0.1"), Side: Sell}.Validate())

	assert.NotEmpty(t, TradeRequest{Ticker: "", Quantity: d("2"), Side: Buy}.Validate())
	assert.NotEmpty(t, TradeRequest{Ticker: "AAPL", Quantity: d("0"), Side: Buy}.Validate())
	assert.NotEmpty(t, TradeRequest{Ticker: "AAPL", Quantity: d("-1"), Side: Sell}.Validate())
	assert.NotEmpty(t, TradeRequest{Ticker: "AAPL", Quantity: d("1"), Side: "hold"}.Validate())
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" BUY ")
	assert.NoError(t, err)
	assert.Equal(t, Buy, s)

	_, err = ParseSide("short")
	assert.Error(t, err)
}

func TestTickerSeries_Tail(t *testing.T) {
	rows := make([]SeriesRow, 10)
	for i := range rows {
		rows[i] = SeriesRow{Fields: map[string]float64{FieldClose: float64(i)}}
	}
	s := TickerSeries{Rows: rows}

	assert.Len(t, s.Tail(3), 3)
	assert.Equal(t, 7.0, s.Tail(3)[0].Close())
	assert.Len(t, s.Tail(50), 10)

	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, 9.0, last.Close())

	_, ok = TickerSeries{}.Last()
	assert.False(t, ok)
}
