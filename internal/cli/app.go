// Package cli implements the bullwatch command line.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"bullwatch/internal/ai"
	"bullwatch/internal/config"
	"bullwatch/internal/gateway"
	"bullwatch/internal/logger"
	"bullwatch/internal/market"
	"bullwatch/internal/market/alpaca"
	"bullwatch/internal/report"
	"bullwatch/internal/session"
	"bullwatch/internal/storage"
	"bullwatch/internal/telegram"
	"bullwatch/internal/ticker"
	"bullwatch/internal/wallet"

	"github.com/google/subcommands"
)

// App is the wired client core shared by every command.
type App struct {
	Config  *config.Config
	Gateway *gateway.Client
	Session *session.Store
	Market  *market.Data
	Wallet  *wallet.Synchronizer
	Ticker  *ticker.Ticker
	Bot     *telegram.Bot

	prices  market.PriceSource
	store   storage.TokenStore
	closers []io.Closer

	Out io.Writer
	Err io.Writer
	In  io.Reader

	render *report.Renderer
	stdin  *bufio.Reader

	// generator builds the model client for analyze.
	generator func(ctx context.Context) (ai.Generator, error)
}

// NewApp builds every component from cfg. The gateway reads its token from
// the session store, which persists it through the configured backend.
func NewApp(cfg *config.Config) (*App, error) {
	store, err := storage.Open(cfg.Session.Store, cfg.Session.File, cfg.Session.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	gw := gateway.New(cfg.API.BaseURL, cfg.API.RequestTimeout)
	sess := session.New(gw, store)
	gw.SetTokenSource(sess)

	app := &App{
		Config:  cfg,
		Gateway: gw,
		Session: sess,
		Market:  market.NewData(gw, cfg.Market.CacheTTL),
		Wallet:  wallet.New(gw, sess, cfg.Wallet.PollInterval),
		Bot:     telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID),
		store:   store,
		Out:     os.Stdout,
		Err:     os.Stderr,
		In:      os.Stdin,
		generator: func(ctx context.Context) (ai.Generator, error) {
			return ai.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		},
	}

	src, err := app.priceSource()
	if err != nil {
		store.Close()
		return nil, err
	}
	app.prices = src
	app.Ticker = ticker.New(src, sess, cfg.Ticker.PollInterval)

	return app, nil
}

// priceSource picks the live price feed for the ticker.
func (a *App) priceSource() (market.PriceSource, error) {
	cfg := a.Config
	switch cfg.Ticker.Source {
	case config.SourceBackend, "":
		return a.Gateway, nil
	case config.SourceAlpaca:
		logger.Infof("live prices from Alpaca latest trade (REST)")
		return alpaca.NewSource(cfg.Alpaca.KeyID, cfg.Alpaca.SecretKey), nil
	case config.SourceAlpacaStream:
		logger.Infof("live prices from Alpaca trade stream")
		s := alpaca.NewStreamSource(cfg.Alpaca.KeyID, cfg.Alpaca.SecretKey)
		a.closers = append(a.closers, s)
		return s, nil
	}
	return nil, fmt.Errorf("unknown price source %q", cfg.Ticker.Source)
}

// Close stops the pollers and releases the session store.
func (a *App) Close() error {
	a.Wallet.Stop()
	a.Ticker.Stop()
	for _, c := range a.closers {
		c.Close()
	}
	return a.store.Close()
}

// print renders markdown to Out, through glamour when Out is a terminal.
func (a *App) print(md string) {
	if a.render == nil && a.Out == os.Stdout && isTerminal(os.Stdout) {
		if r, err := report.NewRenderer("", 100); err == nil {
			a.render = r
		}
	}
	if err := a.render.Print(a.Out, md); err != nil {
		logger.Warnf("print: %v", err)
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

// fail reports err on Err and returns the failure status.
func (a *App) fail(what string, err error) subcommands.ExitStatus {
	fmt.Fprintf(a.Err, "Error %s: %v\n", what, err)
	return subcommands.ExitFailure
}

// readLine prompts on Err and reads one line from In.
func (a *App) readLine(prompt string) (string, error) {
	fmt.Fprint(a.Err, prompt)
	if a.stdin == nil {
		a.stdin = bufio.NewReader(a.In)
	}
	line, err := a.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// Register adds every command to c.
func Register(c *subcommands.Commander, app *App) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(c.CommandsCommand(), "")

	c.Register(&authCmd{app: app, name: "login"}, "session")
	c.Register(&authCmd{app: app, name: "signup"}, "session")
	c.Register(&logoutCmd{app: app}, "session")
	c.Register(&whoamiCmd{app: app}, "session")

	c.Register(&bullishCmd{app: app}, "market")
	c.Register(&tickersCmd{app: app}, "market")
	c.Register(&seriesCmd{app: app, kind: "history"}, "market")
	c.Register(&seriesCmd{app: app, kind: "indicators"}, "market")
	c.Register(&overviewCmd{app: app}, "market")

	c.Register(&walletCmd{app: app}, "wallet")
	c.Register(&tradeCmd{app: app, side: "buy"}, "wallet")
	c.Register(&tradeCmd{app: app, side: "sell"}, "wallet")
	c.Register(&priceCmd{app: app}, "wallet")
	c.Register(&analyzeCmd{app: app}, "wallet")

	c.Register(&watchCmd{app: app}, "live")
	c.Register(&serveCmd{app: app}, "live")
}
