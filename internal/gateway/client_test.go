package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

// newBackend starts a fake backend that counts requests.
func newBackend(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, time.Second), &hits
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestWalletValue_DecodesSnapshot(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallet/value", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, 200, `{"cash":1000,"total_value":1500,"holdings":[{"ticker":"AAPL","quantity":5,"current_price":100,"holding_value":500}]}`)
	})
	c.SetTokenSource(staticToken("tok"))

	snap, err := c.WalletValue(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Cash.Equal(decimal.NewFromInt(1000)))
	assert.True(t, snap.TotalValue.Equal(decimal.NewFromInt(1500)))
	require.Len(t, snap.Holdings, 1)
	assert.Equal(t, "AAPL", snap.Holdings[0].Ticker)
	assert.True(t, snap.Consistent())
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestWalletValue_NegativeCashIsDecodeError(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"cash":-1,"total_value":0,"holdings":[]}`)
	})
	c.SetTokenSource(staticToken("tok"))

	_, err := c.WalletValue(context.Background())
	assert.Equal(t, apierr.DecodeError, apierr.KindOf(err))
}

func TestAuthenticatedCall_NoTokenSkipsNetwork(t *testing.T) {
	c, hits := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{}`)
	})
	c.SetTokenSource(staticToken(""))

	_, err := c.WalletValue(context.Background())
	assert.True(t, apierr.IsUnauthenticated(err))
	_, err = c.PostTrade(context.Background(), models.Buy, "AAPL", decimal.NewFromInt(1))
	assert.True(t, apierr.IsUnauthenticated(err))
	_, err = c.LivePrice(context.Background(), "AAPL")
	assert.True(t, apierr.IsUnauthenticated(err))
	_, err = c.Me(context.Background())
	assert.True(t, apierr.IsUnauthenticated(err))

	assert.Equal(t, int32(0), hits.Load())
}

func TestTokenReadAtCallTime(t *testing.T) {
	var seen []string
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		writeJSON(w, 200, `{"ticker":"AAPL","price":1}`)
	})

	var cur atomic.Value
	cur.Store("old")
	c.SetTokenSource(tokenFunc(func() (string, bool) { return cur.Load().(string), true }))

	_, err := c.LivePrice(context.Background(), "aapl")
	require.NoError(t, err)
	cur.Store("new")
	_, err = c.LivePrice(context.Background(), "aapl")
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer old", "Bearer new"}, seen)
}

type tokenFunc func() (string, bool)

func (f tokenFunc) Token() (string, bool) { return f() }

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   apierr.Kind
		detail string
	}{
		{401, `{"detail":"Could not validate credentials"}`, apierr.Unauthenticated, "Could not validate credentials"},
		{400, `{"detail":"Insufficient cash to complete buy"}`, apierr.BadRequest, "Insufficient cash to complete buy"},
		{422, `{"detail":[{"loc":["body","quantity"]}]}`, apierr.BadRequest, ""},
		{500, `Internal Server Error`, apierr.ServerError, "Internal Server Error"},
		{503, ``, apierr.ServerError, ""},
	}

	for _, tc := range cases {
		c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tc.status, tc.body)
		})
		c.SetTokenSource(staticToken("tok"))

		_, err := c.PostTrade(context.Background(), models.Buy, "AAPL", decimal.NewFromInt(1))
		require.Error(t, err)

		var ae *apierr.Error
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, tc.kind, ae.Kind, "status %d", tc.status)
		assert.Equal(t, tc.status, ae.StatusCode)
		if tc.detail != "" {
			assert.Equal(t, tc.detail, ae.Detail)
		}
		sent, ok := apierr.SentToken(err)
		assert.True(t, ok)
		assert.Equal(t, "tok", sent, "the rejected bearer is recorded")
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second)
	_, err := c.TodayBullish(context.Background())
	assert.Equal(t, apierr.NetworkError, apierr.KindOf(err))
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, 20*time.Millisecond)
	_, err := c.AllTickers(context.Background())
	assert.Equal(t, apierr.NetworkError, apierr.KindOf(err))
}

func TestPostTrade_Body(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wallet/sell", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "AAPL", body["ticker"])
		assert.Equal(t, "0.125", body["quantity"], "quantity travels as a decimal string")

		writeJSON(w, 200, `{"ok":true,"result":{"tx_id":7}}`)
	})
	c.SetTokenSource(staticToken("tok"))

	conf, err := c.PostTrade(context.Background(), models.Sell, " aapl ", decimal.RequireFromString("0.125"))
	require.NoError(t, err)
	assert.True(t, conf.OK)
	assert.JSONEq(t, `{"tx_id":7}`, string(conf.Raw))
}

func TestLogin_ReturnsToken(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var creds models.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "a@b.com", creds.Email)

		writeJSON(w, 200, `{"access_token":"jwt","token_type":"bearer"}`)
	})

	tok, err := c.Login(context.Background(), models.Credentials{Email: "a@b.com", Password: "Abc1234"})
	require.NoError(t, err)
	assert.Equal(t, "jwt", tok)
}

func TestLogin_MissingTokenIsDecodeError(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"token_type":"bearer"}`)
	})
	_, err := c.Signup(context.Background(), models.Credentials{Email: "a@b.com", Password: "Abc1234"})
	assert.Equal(t, apierr.DecodeError, apierr.KindOf(err))
}

func TestTickerHistory_DecodesRows(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ticker_history/BRK.B", r.URL.Path)
		writeJSON(w, 200, `[
			{"date":"2025-01-02","open":1,"high":2,"low":0.5,"close":1.5,"volume":100,"ticker":"BRK.B"},
			{"timestamp":1735862400000,"close":null,"volume":50}
		]`)
	})

	rows, err := c.TickerHistory(context.Background(), "brk.b")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "2025-01-02", rows[0].Key)
	assert.Equal(t, 2025, rows[0].Time.Year())
	assert.Equal(t, 1.5, rows[0].Close())
	_, hasTicker := rows[0].Value("ticker")
	assert.False(t, hasTicker)

	assert.Equal(t, "1735862400000", rows[1].Key)
	assert.Equal(t, time.UnixMilli(1735862400000).UTC(), rows[1].Time)
	_, hasClose := rows[1].Value("close")
	assert.False(t, hasClose, "null fields are dropped")
}

func TestTodayBullish_ObjectBodyIsDecodeError(t *testing.T) {
	c, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"error":"Bullish score file not found"}`)
	})
	_, err := c.TodayBullish(context.Background())
	assert.Equal(t, apierr.DecodeError, apierr.KindOf(err))
}

func TestEmptyTickerRejectedLocally(t *testing.T) {
	c, hits := newBackend(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.TickerIndicators(context.Background(), "  ")
	assert.Equal(t, apierr.InvalidRequest, apierr.KindOf(err))
	assert.Equal(t, int32(0), hits.Load())
}
