package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/logger"
	"bullwatch/internal/models"
	"bullwatch/internal/query"

	"golang.org/x/sync/errgroup"
)

type seriesKey struct {
	ticker string
	kind   models.SeriesKind
}

type cached struct {
	series models.TickerSeries
	at     time.Time
}

// Data is the market data cache. With a zero TTL every call re-fetches,
// which keeps pages fresh on every visit. A positive TTL serves a series
// fetched within the window without a network call.
type Data struct {
	src Backend
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[seriesKey]cached

	resMu     sync.Mutex
	resources map[seriesKey]*query.Resource[models.TickerSeries]
	bullish   *query.Resource[[]models.BullishScore]
}

// NewData creates a cache over src.
func NewData(src Backend, ttl time.Duration) *Data {
	if ttl < 0 {
		ttl = 0
	}
	return &Data{
		src:       src,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[seriesKey]cached),
		resources: make(map[seriesKey]*query.Resource[models.TickerSeries]),
	}
}

// History returns the OHLCV series for ticker.
func (d *Data) History(ctx context.Context, ticker string) (models.TickerSeries, error) {
	return d.series(ctx, ticker, models.History)
}

// Indicators returns the indicator series for ticker.
func (d *Data) Indicators(ctx context.Context, ticker string) (models.TickerSeries, error) {
	return d.series(ctx, ticker, models.Indicators)
}

func (d *Data) series(ctx context.Context, ticker string, kind models.SeriesKind) (models.TickerSeries, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	key := seriesKey{ticker, kind}

	if d.ttl > 0 {
		d.mu.Lock()
		c, ok := d.cache[key]
		d.mu.Unlock()
		if ok && d.now().Sub(c.at) < d.ttl {
			return c.series, nil
		}
	}

	fetch := d.src.TickerHistory
	if kind == models.Indicators {
		fetch = d.src.TickerIndicators
	}

	rows, err := fetch(ctx, ticker)
	if err != nil {
		if !emptyOnError(err) {
			return models.TickerSeries{}, &FetchError{Ticker: ticker, Kind: kind, What: string(kind), Err: err}
		}
		logger.Debugf("market: %s %s payload unusable, treating as empty: %v", ticker, kind, err)
		rows = nil
	}
	if rows == nil {
		rows = []models.SeriesRow{}
	}

	s := models.TickerSeries{Ticker: ticker, Kind: kind, Rows: rows, FetchedAt: d.now()}
	if d.ttl > 0 {
		d.mu.Lock()
		d.cache[key] = cached{series: s, at: s.FetchedAt}
		d.mu.Unlock()
	}
	return s, nil
}

// emptyOnError reports whether a failure is a payload problem rather than a
// failed call. Those resolve to "no data".
func emptyOnError(err error) bool {
	return apierr.IsKind(err, apierr.DecodeError)
}

// TodayBullish returns today's ranked scores. A malformed payload (such as
// the backend's {"error": ...} when the score file is missing) is empty.
func (d *Data) TodayBullish(ctx context.Context) ([]models.BullishScore, error) {
	scores, err := d.src.TodayBullish(ctx)
	if err != nil {
		if !emptyOnError(err) {
			return nil, &FetchError{What: "today_bullish", Err: err}
		}
		logger.Debugf("market: today_bullish payload unusable, treating as empty: %v", err)
	}
	if scores == nil {
		scores = []models.BullishScore{}
	}
	return scores, nil
}

// AllTickers returns every ticker the backend knows.
func (d *Data) AllTickers(ctx context.Context) ([]string, error) {
	tickers, err := d.src.AllTickers(ctx)
	if err != nil {
		if !emptyOnError(err) {
			return nil, &FetchError{What: "tickers", Err: err}
		}
		tickers = nil
	}
	if tickers == nil {
		tickers = []string{}
	}
	return tickers, nil
}

// Invalidate drops cached series for ticker.
func (d *Data) Invalidate(ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	d.mu.Lock()
	delete(d.cache, seriesKey{ticker, models.History})
	delete(d.cache, seriesKey{ticker, models.Indicators})
	d.mu.Unlock()
}

// HistoryResource returns the shared observable resource for ticker's history.
func (d *Data) HistoryResource(ticker string) *query.Resource[models.TickerSeries] {
	return d.resource(ticker, models.History)
}

// IndicatorsResource returns the shared observable resource for ticker's indicators.
func (d *Data) IndicatorsResource(ticker string) *query.Resource[models.TickerSeries] {
	return d.resource(ticker, models.Indicators)
}

func (d *Data) resource(ticker string, kind models.SeriesKind) *query.Resource[models.TickerSeries] {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	key := seriesKey{ticker, kind}

	d.resMu.Lock()
	defer d.resMu.Unlock()
	if r, ok := d.resources[key]; ok {
		return r
	}
	r := query.New(func(ctx context.Context) (models.TickerSeries, error) {
		return d.series(ctx, ticker, kind)
	})
	d.resources[key] = r
	return r
}

// BullishResource returns the shared observable resource for today's scores.
func (d *Data) BullishResource() *query.Resource[[]models.BullishScore] {
	d.resMu.Lock()
	defer d.resMu.Unlock()
	if d.bullish == nil {
		d.bullish = query.New(d.TodayBullish)
	}
	return d.bullish
}

// Overview is everything the ticker page shows for one symbol.
type Overview struct {
	Ticker     string             `json:"ticker"`
	Trend      Trend              `json:"trend"`
	LastClose  float64            `json:"last_close"`
	Change7d   float64            `json:"change_7d_pct"`
	Band       Band               `json:"band"`
	Latest     map[string]float64 `json:"latest"`
	Recent     []JoinedRow        `json:"recent"`
	Closes     []float64          `json:"closes"`
	HasHistory bool               `json:"has_history"`
}

// RecentRows is how many joined rows the overview carries.
const RecentRows = 15

// Overview loads history and indicators concurrently and derives the page.
func (d *Data) Overview(ctx context.Context, ticker string) (Overview, error) {
	var hist, ind models.TickerSeries

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		hist, err = d.History(gctx, ticker)
		return err
	})
	g.Go(func() (err error) {
		ind, err = d.Indicators(gctx, ticker)
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	latest := LatestIndicators(ind)
	ov := Overview{
		Ticker:     strings.ToUpper(strings.TrimSpace(ticker)),
		Trend:      TrendOf(hist),
		Latest:     latest,
		Recent:     JoinRecent(hist, ind, RecentRows),
		Closes:     Closes(hist, TrendWindow),
		HasHistory: !hist.Empty(),
	}
	if last, ok := hist.Last(); ok {
		ov.LastClose = last.Close()
	}
	ov.Change7d, _ = SevenDayChange(hist).Float64()
	if score, ok := latest[models.FieldBullishScore]; ok {
		ov.Band = BandOf(score)
	}
	return ov, nil
}

// Mover is one row of the wallet page's ticker list.
type Mover struct {
	Ticker    string  `json:"ticker"`
	LastClose float64 `json:"last_close"`
	Change7d  float64 `json:"change_7d_pct"`
}

// moverConcurrency bounds parallel history fetches.
const moverConcurrency = 8

// Movers loads every ticker's history and reports its 7-day change.
// A ticker whose history fails reports zeros instead of failing the list.
func (d *Data) Movers(ctx context.Context) ([]Mover, error) {
	tickers, err := d.AllTickers(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Mover, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(moverConcurrency)
	for i, t := range tickers {
		g.Go(func() error {
			out[i] = Mover{Ticker: t}
			hist, err := d.History(gctx, t)
			if err != nil {
				logger.Debugf("market: movers: %v", err)
				return nil
			}
			if last, ok := hist.Last(); ok {
				out[i].LastClose = last.Close()
			}
			out[i].Change7d, _ = SevenDayChange(hist).Float64()
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}
