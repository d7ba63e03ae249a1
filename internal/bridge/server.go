// Package bridge exposes the client core to a browser UI: a small JSON API
// for reads and commands, plus a websocket that pushes every state change.
package bridge

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/logger"
	"bullwatch/internal/market"
	"bullwatch/internal/models"
	"bullwatch/internal/ticker"
	"bullwatch/internal/wallet"

	"github.com/gin-gonic/gin"
)

// LoginPath is where the UI sends the user when the session is gone.
const LoginPath = "/auth"

// Session is the slice of session.Store the bridge drives.
type Session interface {
	Login(ctx context.Context, email, password string) (models.Session, error)
	Signup(ctx context.Context, email, password string) (models.Session, error)
	Logout() error
	IsAuthenticated() bool
	Current() (models.Session, bool)
	Profile(ctx context.Context) (models.Profile, error)
	OnExpired(fn func()) (cancel func())
}

// Wallet is the slice of wallet.Synchronizer the bridge drives.
type Wallet interface {
	View() wallet.View
	Refresh(ctx context.Context) error
	Trade(ctx context.Context, req models.TradeRequest) (models.TradeConfirmation, error)
	Subscribe(fn func(wallet.View)) (cancel func())
}

// Ticker is the slice of ticker.Ticker the bridge drives.
type Ticker interface {
	View() ticker.View
	Select(ctx context.Context, symbol string) error
	Subscribe(fn func(ticker.View)) (cancel func())
}

// Market is the slice of market.Data the bridge reads.
type Market interface {
	TodayBullish(ctx context.Context) ([]models.BullishScore, error)
	AllTickers(ctx context.Context) ([]string, error)
	History(ctx context.Context, ticker string) (models.TickerSeries, error)
	Indicators(ctx context.Context, ticker string) (models.TickerSeries, error)
	Overview(ctx context.Context, ticker string) (market.Overview, error)
	Movers(ctx context.Context) ([]market.Mover, error)
}

// Deps are the components the bridge serves.
type Deps struct {
	Session Session
	Wallet  Wallet
	Ticker  Ticker
	Market  Market
}

// Server is the bridge HTTP server.
type Server struct {
	deps   Deps
	engine *gin.Engine
	hub    *hub

	attachOnce sync.Once
	detach     []func()
}

// New builds the server and its routes. debug keeps gin's debug output.
func New(deps Deps, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{deps: deps, engine: gin.New()}
	s.hub = newHub(func() Event { return Event{Type: "state", Data: s.state()} })

	s.engine.Use(gin.Recovery(), requestLog(), cors())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")

	api.GET("/state", s.getState)

	api.GET("/session", s.getSession)
	api.GET("/session/me", s.requireSession, s.getProfile)
	api.POST("/session", s.login)
	api.POST("/session/signup", s.signup)
	api.DELETE("/session", s.logout)

	api.GET("/wallet", s.requireSession, s.getWallet)
	api.POST("/wallet/refresh", s.requireSession, s.refreshWallet)
	api.POST("/wallet/trade", s.requireSession, s.trade)

	api.GET("/ticker", s.requireSession, s.getTicker)
	api.PUT("/ticker", s.requireSession, s.selectTicker)

	api.GET("/market/bullish", s.getBullish)
	api.GET("/market/tickers", s.getTickers)
	api.GET("/market/movers", s.getMovers)
	api.GET("/market/:ticker/history", s.getHistory)
	api.GET("/market/:ticker/indicators", s.getIndicators)
	api.GET("/market/:ticker/overview", s.getOverview)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the routes, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.engine }

// Attach starts the push hub and subscribes it to the components. It is
// called by Run; tests call it directly. The hub stops with ctx.
func (s *Server) Attach(ctx context.Context) {
	s.attachOnce.Do(func() {
		go s.hub.run(ctx)

		s.detach = append(s.detach,
			s.deps.Wallet.Subscribe(func(v wallet.View) {
				s.hub.publish(Event{Type: "wallet", Data: walletJSON(v)})
			}),
			s.deps.Ticker.Subscribe(func(v ticker.View) {
				s.hub.publish(Event{Type: "ticker", Data: tickerJSON(v)})
			}),
			s.deps.Session.OnExpired(func() {
				s.hub.publish(Event{Type: "session", Data: sessionJSON{Authenticated: false, Redirect: LoginPath}})
			}),
		)

		go func() {
			<-ctx.Done()
			for _, cancel := range s.detach {
				cancel()
			}
		}()
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.Attach(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("bridge: listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Infof("bridge: stopped")
	return nil
}

// --- middleware ---

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("bridge: %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func allowedOrigin(origin string) bool {
	return origin == "" ||
		strings.HasPrefix(origin, "http://127.0.0.1:") ||
		strings.HasPrefix(origin, "http://localhost:")
}

// cors lets a UI served from another local port call the bridge.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && allowedOrigin(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requireSession(c *gin.Context) {
	if !s.deps.Session.IsAuthenticated() {
		fail(c, apierr.NotAuthenticated("bridge", "not logged in"))
		return
	}
	c.Next()
}

// --- error mapping ---

type errorJSON struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.Unauthenticated:
		return http.StatusUnauthorized
	case apierr.InvalidRequest, apierr.BadRequest:
		return http.StatusBadRequest
	case apierr.NetworkError, apierr.ServerError, apierr.DecodeError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorBody(err error, redirect bool) errorJSON {
	kind := apierr.KindOf(err)
	body := errorJSON{Error: err.Error(), Kind: string(kind)}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		body.Detail = ae.Detail
	}
	if redirect && kind == apierr.Unauthenticated {
		body.Redirect = LoginPath
	}
	return body
}

// fail writes err as JSON. Unauthenticated responses point the UI at the login page.
func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(apierr.KindOf(err)), errorBody(err, true))
}

// failLogin is fail without the redirect: the user is already on the login page.
func failLogin(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(apierr.KindOf(err)), errorBody(err, false))
}
