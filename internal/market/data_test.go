package market

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls   atomic.Int32
	rows    []models.SeriesRow
	scores  []models.BullishScore
	tickers []string
	err     error
	perTick map[string]error
}

func (f *fakeBackend) TodayBullish(ctx context.Context) ([]models.BullishScore, error) {
	f.calls.Add(1)
	return f.scores, f.err
}

func (f *fakeBackend) TickerHistory(ctx context.Context, t string) ([]models.SeriesRow, error) {
	f.calls.Add(1)
	if err := f.perTick[t]; err != nil {
		return nil, err
	}
	return f.rows, f.err
}

func (f *fakeBackend) TickerIndicators(ctx context.Context, t string) ([]models.SeriesRow, error) {
	return f.TickerHistory(ctx, t)
}

func (f *fakeBackend) AllTickers(ctx context.Context) ([]string, error) {
	f.calls.Add(1)
	return f.tickers, f.err
}

func closes(vals ...float64) []models.SeriesRow {
	rows := make([]models.SeriesRow, len(vals))
	for i, v := range vals {
		rows[i] = models.SeriesRow{
			Key:    time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			Time:   time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Fields: map[string]float64{"close": v},
		}
	}
	return rows
}

func TestHistory_MalformedPayloadIsEmpty(t *testing.T) {
	be := &fakeBackend{err: apierr.Decode("ticker_history", errors.New("cannot unmarshal object"))}
	d := NewData(be, 0)

	s, err := d.History(context.Background(), "aapl")
	require.NoError(t, err)
	assert.True(t, s.Empty())
	assert.NotNil(t, s.Rows)
	assert.Equal(t, "AAPL", s.Ticker)
	assert.Equal(t, models.History, s.Kind)
}

func TestHistory_NetworkFailureIsFetchError(t *testing.T) {
	for _, cause := range []error{
		apierr.Network("ticker_history", errors.New("connection refused")),
		apierr.FromStatus("ticker_history", 500, nil),
		apierr.FromStatus("ticker_history", 404, []byte(`{"detail":"Not Found"}`)),
	} {
		d := NewData(&fakeBackend{err: cause}, 0)
		_, err := d.Indicators(context.Background(), "AAPL")

		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "AAPL", fe.Ticker)
		assert.Equal(t, models.Indicators, fe.Kind)
		assert.Equal(t, apierr.KindOf(cause), apierr.KindOf(err), "kind survives wrapping")
	}
}

func TestHistory_NoCacheRefetchesEveryCall(t *testing.T) {
	be := &fakeBackend{rows: closes(1, 2)}
	d := NewData(be, 0)

	for i := 0; i < 3; i++ {
		_, err := d.History(context.Background(), "AAPL")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), be.calls.Load())
}

func TestHistory_TTLCache(t *testing.T) {
	be := &fakeBackend{rows: closes(1, 2)}
	d := NewData(be, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	_, _ = d.History(context.Background(), "AAPL")
	_, _ = d.History(context.Background(), "aapl")
	assert.Equal(t, int32(1), be.calls.Load(), "served from cache")

	// History and indicators are separate keys
	_, _ = d.Indicators(context.Background(), "AAPL")
	assert.Equal(t, int32(2), be.calls.Load())

	now = now.Add(2 * time.Minute)
	_, _ = d.History(context.Background(), "AAPL")
	assert.Equal(t, int32(3), be.calls.Load(), "expired")

	d.Invalidate("AAPL")
	_, _ = d.History(context.Background(), "AAPL")
	assert.Equal(t, int32(4), be.calls.Load(), "invalidated")
}

func TestTodayBullish_ErrorBodyIsEmpty(t *testing.T) {
	d := NewData(&fakeBackend{err: apierr.Decode("today_bullish", errors.New("object"))}, 0)
	scores, err := d.TodayBullish(context.Background())
	require.NoError(t, err)
	assert.Empty(t, scores)

	d = NewData(&fakeBackend{err: apierr.Network("today_bullish", errors.New("down"))}, 0)
	_, err = d.TodayBullish(context.Background())
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestResources_AreShared(t *testing.T) {
	d := NewData(&fakeBackend{rows: closes(5)}, 0)
	r1 := d.HistoryResource("aapl")
	r2 := d.HistoryResource("AAPL")
	assert.Same(t, r1, r2)
	assert.NotSame(t, r1, d.IndicatorsResource("AAPL"))

	s, err := r1.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.0, s.Rows[0].Close())
	assert.Equal(t, 5.0, r2.State().Data.Rows[0].Close())
	assert.Same(t, d.BullishResource(), d.BullishResource())
}

func TestOverview(t *testing.T) {
	rows := closes(10, 10, 10, 10, 10, 10, 10, 10, 11)
	for i := range rows {
		rows[i].Fields["bullish_score"] = 0.8
		rows[i].Fields["RSI14_norm"] = 0.4
	}
	d := NewData(&fakeBackend{rows: rows}, 0)

	ov, err := d.Overview(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", ov.Ticker)
	assert.Equal(t, TrendUp, ov.Trend)
	assert.Equal(t, 11.0, ov.LastClose)
	assert.Equal(t, 10.0, ov.Change7d)
	assert.Equal(t, Bullish, ov.Band)
	assert.Equal(t, 0.4, ov.Latest["RSI14_norm"])
	assert.Len(t, ov.Recent, 9)
	assert.True(t, ov.HasHistory)
}

func TestOverview_FailurePropagates(t *testing.T) {
	d := NewData(&fakeBackend{err: apierr.Network("x", errors.New("down"))}, 0)
	_, err := d.Overview(context.Background(), "AAPL")
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestMovers_PerTickerFailureIsZero(t *testing.T) {
	be := &fakeBackend{
		tickers: []string{"AAPL", "MSFT"},
		rows:    closes(100, 100, 100, 100, 100, 100, 100, 100, 90),
		perTick: map[string]error{"MSFT": apierr.Network("x", errors.New("down"))},
	}
	d := NewData(be, 0)

	m, err := d.Movers(context.Background())
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, Mover{Ticker: "AAPL", LastClose: 90, Change7d: -10}, m[0])
	assert.Equal(t, Mover{Ticker: "MSFT"}, m[1])
}
