package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/models"

	"github.com/shopspring/decimal"
)

// ---- market data (public) ----

// TodayBullish returns today's ranked bullish scores in backend order.
func (c *Client) TodayBullish(ctx context.Context) ([]models.BullishScore, error) {
	var rows []models.BullishScore
	if err := c.call(ctx, "today_bullish", http.MethodGet, "/api/today_bullish", false, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// TickerHistory returns the OHLCV rows for ticker.
func (c *Client) TickerHistory(ctx context.Context, ticker string) ([]models.SeriesRow, error) {
	return c.series(ctx, "ticker_history", "/api/ticker_history/", ticker)
}

// TickerIndicators returns the indicator rows for ticker, including bullish_score.
func (c *Client) TickerIndicators(ctx context.Context, ticker string) ([]models.SeriesRow, error) {
	return c.series(ctx, "ticker_indicators", "/api/ticker_indicators/", ticker)
}

func (c *Client) series(ctx context.Context, op, prefix, ticker string) ([]models.SeriesRow, error) {
	if err := requireTicker(op, ticker); err != nil {
		return nil, err
	}
	var raw []map[string]json.RawMessage
	if err := c.call(ctx, op, http.MethodGet, prefix+tickerPath(ticker), false, nil, &raw); err != nil {
		return nil, err
	}
	return decodeRows(raw), nil
}

// AllTickers returns every ticker the backend has data for.
func (c *Client) AllTickers(ctx context.Context) ([]string, error) {
	var body struct {
		Tickers []string `json:"tickers"`
	}
	if err := c.call(ctx, "all_tickers", http.MethodGet, "/tickers/", false, nil, &body); err != nil {
		return nil, err
	}
	return body.Tickers, nil
}

// decodeRows turns loosely typed backend records into SeriesRows.
// Rows are keyed by timestamp, falling back to date. Non-numeric and null
// fields are dropped.
func decodeRows(raw []map[string]json.RawMessage) []models.SeriesRow {
	rows := make([]models.SeriesRow, 0, len(raw))
	for _, rec := range raw {
		row := models.SeriesRow{Fields: make(map[string]float64, len(rec))}

		keySrc := rec["timestamp"]
		if isNull(keySrc) {
			keySrc = rec["date"]
		}
		row.Key, row.Time = rowKey(keySrc)

		for name, v := range rec {
			if name == "timestamp" || name == "date" {
				continue
			}
			var f float64
			if err := json.Unmarshal(v, &f); err == nil && !isNull(v) {
				row.Fields[name] = f
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

// rowKey returns the join key exactly as sent and its parsed time.
// Numeric timestamps are epoch milliseconds.
func rowKey(v json.RawMessage) (string, time.Time) {
	if isNull(v) {
		return "", time.Time{}
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return s, time.UnixMilli(ms).UTC()
		}
		return s, parseDate(s)
	}

	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if ms, err := n.Int64(); err == nil {
			return n.String(), time.UnixMilli(ms).UTC()
		}
		return n.String(), time.Time{}
	}
	return string(v), time.Time{}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ---- auth ----

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token. The caller stores it.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (string, error) {
	return c.authenticate(ctx, "login", "/auth/login", creds)
}

// Signup creates an account and returns its bearer token.
func (c *Client) Signup(ctx context.Context, creds models.Credentials) (string, error) {
	return c.authenticate(ctx, "signup", "/auth/signup", creds)
}

func (c *Client) authenticate(ctx context.Context, op, path string, creds models.Credentials) (string, error) {
	var resp tokenResponse
	if err := c.call(ctx, op, http.MethodPost, path, false, creds, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", apierr.Decode(op, errors.New("response has no access_token"))
	}
	return resp.AccessToken, nil
}

// Me returns the account behind the current token.
func (c *Client) Me(ctx context.Context) (models.Profile, error) {
	var p models.Profile
	err := c.call(ctx, "me", http.MethodGet, "/auth/me", true, nil, &p)
	return p, err
}

// ---- wallet (authenticated) ----

// WalletValue fetches a complete wallet snapshot.
// Negative cash or quantities are rejected as malformed.
func (c *Client) WalletValue(ctx context.Context) (models.WalletSnapshot, error) {
	const op = "wallet_value"

	var snap models.WalletSnapshot
	if err := c.call(ctx, op, http.MethodGet, "/wallet/value", true, nil, &snap); err != nil {
		return models.WalletSnapshot{}, err
	}
	if snap.Cash.IsNegative() {
		return models.WalletSnapshot{}, apierr.Decode(op, fmt.Errorf("negative cash %s", snap.Cash))
	}
	for _, h := range snap.Holdings {
		if h.Quantity.IsNegative() {
			return models.WalletSnapshot{}, apierr.Decode(op, fmt.Errorf("negative quantity %s for %s", h.Quantity, h.Ticker))
		}
	}
	if snap.Holdings == nil {
		snap.Holdings = []models.Holding{}
	}
	snap.Seq = 0
	snap.FetchedAt = time.Now()
	return snap, nil
}

type tradeBody struct {
	Ticker   string `json:"ticker"`
	Quantity string `json:"quantity"` // decimal string, preserves precision
}

// PostTrade submits a buy or sell. The confirmation is informational only.
func (c *Client) PostTrade(ctx context.Context, side models.Side, ticker string, qty decimal.Decimal) (models.TradeConfirmation, error) {
	op := "trade_" + string(side)
	if side != models.Buy && side != models.Sell {
		return models.TradeConfirmation{}, apierr.Invalid(op, fmt.Sprintf("unknown side %q", side))
	}
	if err := requireTicker(op, ticker); err != nil {
		return models.TradeConfirmation{}, err
	}

	body := tradeBody{Ticker: strings.ToUpper(strings.TrimSpace(ticker)), Quantity: qty.String()}
	var conf models.TradeConfirmation
	if err := c.call(ctx, op, http.MethodPost, "/wallet/"+string(side), true, body, &conf); err != nil {
		return models.TradeConfirmation{}, err
	}
	return conf, nil
}

// LivePrice fetches the latest price of ticker.
func (c *Client) LivePrice(ctx context.Context, ticker string) (models.LivePriceObservation, error) {
	const op = "live_price"
	if err := requireTicker(op, ticker); err != nil {
		return models.LivePriceObservation{}, err
	}

	var body struct {
		Ticker string           `json:"ticker"`
		Price  *decimal.Decimal `json:"price"`
	}
	if err := c.call(ctx, op, http.MethodGet, "/wallet/live_price/"+tickerPath(ticker), true, nil, &body); err != nil {
		return models.LivePriceObservation{}, err
	}
	if body.Price == nil {
		return models.LivePriceObservation{}, apierr.Decode(op, errors.New("response has no price"))
	}

	t := strings.ToUpper(body.Ticker)
	if t == "" {
		t = strings.ToUpper(strings.TrimSpace(ticker))
	}
	return models.LivePriceObservation{Ticker: t, Price: *body.Price, ObservedAt: time.Now()}, nil
}
