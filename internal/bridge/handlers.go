package bridge

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/market"
	"bullwatch/internal/models"
	"bullwatch/internal/ticker"
	"bullwatch/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// JSON shapes. Views carry errors as strings since error values do not encode.

type sessionJSON struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Redirect      string `json:"redirect,omitempty"`
}

type walletViewJSON struct {
	Status    wallet.Status          `json:"status"`
	Loading   bool                   `json:"loading"`
	Snapshot  *models.WalletSnapshot `json:"snapshot"`
	Error     string                 `json:"error,omitempty"`
	UpdatedAt *time.Time             `json:"updated_at,omitempty"`
	StaleSec  float64                `json:"stale_seconds"`
}

type tickerViewJSON struct {
	Ticker      string                       `json:"ticker"`
	Observation *models.LivePriceObservation `json:"observation"`
	Loading     bool                         `json:"loading"`
	Error       string                       `json:"error,omitempty"`
}

type stateJSON struct {
	Session sessionJSON    `json:"session"`
	Wallet  walletViewJSON `json:"wallet"`
	Ticker  tickerViewJSON `json:"ticker"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func walletJSON(v wallet.View) walletViewJSON {
	out := walletViewJSON{
		Status:   v.Status,
		Loading:  v.Loading(),
		Snapshot: v.Snapshot,
		Error:    errString(v.Err),
		StaleSec: v.Stale.Seconds(),
	}
	if !v.UpdatedAt.IsZero() {
		t := v.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

func tickerJSON(v ticker.View) tickerViewJSON {
	return tickerViewJSON{
		Ticker:      v.Ticker,
		Observation: v.Observation,
		Loading:     v.Loading,
		Error:       errString(v.Err),
	}
}

func (s *Server) sessionState() sessionJSON {
	sess, ok := s.deps.Session.Current()
	if !ok {
		return sessionJSON{Authenticated: false, Redirect: LoginPath}
	}
	return sessionJSON{Authenticated: true, Email: sess.Email}
}

func (s *Server) state() stateJSON {
	return stateJSON{
		Session: s.sessionState(),
		Wallet:  walletJSON(s.deps.Wallet.View()),
		Ticker:  tickerJSON(s.deps.Ticker.View()),
	}
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.state())
}

// --- session ---

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessionState())
}

func (s *Server) getProfile(c *gin.Context) {
	p, err := s.deps.Session.Profile(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) login(c *gin.Context) {
	s.authenticate(c, s.deps.Session.Login)
}

func (s *Server) signup(c *gin.Context) {
	s.authenticate(c, s.deps.Session.Signup)
}

func (s *Server) authenticate(c *gin.Context, do func(ctx context.Context, email, password string) (models.Session, error)) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failLogin(c, apierr.Invalid("session", "request body must be {email, password}"))
		return
	}
	sess, err := do(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		failLogin(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionJSON{Authenticated: true, Email: sess.Email})
}

func (s *Server) logout(c *gin.Context) {
	if err := s.deps.Session.Logout(); err != nil {
		// The in-memory session is gone either way.
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "redirect": LoginPath, "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionJSON{Authenticated: false, Redirect: LoginPath})
}

// --- wallet ---

// tradeBody binds through gin's validator. Quantity accepts a JSON string or number.
type tradeBody struct {
	Ticker   string          `json:"ticker" binding:"required,max=16"`
	Quantity decimal.Decimal `json:"quantity"`
	Side     string          `json:"side" binding:"required,oneof=buy sell BUY SELL"`
}

type tradeResultJSON struct {
	Confirmation *models.TradeConfirmation `json:"confirmation,omitempty"`
	Error        *errorJSON                `json:"error,omitempty"`
	Wallet       walletViewJSON            `json:"wallet"`
}

func (s *Server) getWallet(c *gin.Context) {
	c.JSON(http.StatusOK, walletJSON(s.deps.Wallet.View()))
}

func (s *Server) refreshWallet(c *gin.Context) {
	if err := s.deps.Wallet.Refresh(c.Request.Context()); err != nil && apierr.IsUnauthenticated(err) {
		fail(c, err)
		return
	}
	// Other failures are part of the view: the last good snapshot plus the error.
	c.JSON(http.StatusOK, walletJSON(s.deps.Wallet.View()))
}

// trade submits the order. The response always carries the wallet as it
// stands after the reconciling refresh.
func (s *Server) trade(c *gin.Context) {
	var body tradeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, apierr.Invalid("trade", err.Error()))
		return
	}
	side, err := models.ParseSide(body.Side)
	if err != nil {
		fail(c, apierr.Invalid("trade", err.Error()))
		return
	}

	req := models.TradeRequest{Ticker: body.Ticker, Quantity: body.Quantity, Side: side}
	conf, err := s.deps.Wallet.Trade(c.Request.Context(), req)
	if err != nil {
		kind := apierr.KindOf(err)
		if kind == apierr.Unauthenticated || kind == apierr.InvalidRequest {
			fail(c, err)
			return
		}
		e := errorBody(err, false)
		c.JSON(statusFor(kind), tradeResultJSON{Error: &e, Wallet: walletJSON(s.deps.Wallet.View())})
		return
	}
	c.JSON(http.StatusOK, tradeResultJSON{Confirmation: &conf, Wallet: walletJSON(s.deps.Wallet.View())})
}

// --- ticker ---

type selectBody struct {
	Ticker string `json:"ticker" binding:"max=16"`
}

func (s *Server) getTicker(c *gin.Context) {
	c.JSON(http.StatusOK, tickerJSON(s.deps.Ticker.View()))
}

// selectTicker switches the tracked symbol. A failed first fetch is reported
// in the view; polling carries on regardless.
func (s *Server) selectTicker(c *gin.Context) {
	var body selectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, apierr.Invalid("ticker", err.Error()))
		return
	}
	if err := s.deps.Ticker.Select(c.Request.Context(), body.Ticker); err != nil && apierr.IsUnauthenticated(err) {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tickerJSON(s.deps.Ticker.View()))
}

// --- market ---

func (s *Server) getBullish(c *gin.Context) {
	scores, err := s.deps.Market.TodayBullish(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	n, _ := strconv.Atoi(c.DefaultQuery("top", "0"))
	c.JSON(http.StatusOK, market.TopBullish(scores, n))
}

func (s *Server) getTickers(c *gin.Context) {
	tickers, err := s.deps.Market.AllTickers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickers": tickers})
}

func (s *Server) getMovers(c *gin.Context) {
	m, err := s.deps.Market.Movers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) getHistory(c *gin.Context) {
	series, err := s.deps.Market.History(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) getIndicators(c *gin.Context) {
	series, err := s.deps.Market.Indicators(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) getOverview(c *gin.Context) {
	ov, err := s.deps.Market.Overview(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}
