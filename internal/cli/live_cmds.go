package cli

import (
	"context"
	"flag"
	"fmt"
	"sync"

	"bullwatch/internal/bridge"
	"bullwatch/internal/logger"
	"bullwatch/internal/report"
	"bullwatch/internal/ticker"
	"bullwatch/internal/wallet"

	"github.com/google/subcommands"
)

// watchCmd keeps the wallet and a ticker price live in the terminal until
// interrupted or until the session expires.
type watchCmd struct {
	app      *App
	symbol   string
	digest   string
	telegram bool
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "follow the wallet and a live price until interrupted" }
func (*watchCmd) Usage() string {
	return `watch [-ticker <TICKER>] [-digest <cron>]:
  Prints the wallet on every refresh and the ticker price on every poll.
  -digest prints today's top bullish scores on a six-field cron schedule.
  With Telegram configured, digests and expiry alerts also go to the chat,
  and the chat can ask for /wallet, /bullish, /price and /overview.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "ticker", "", "ticker whose live price to follow")
	f.StringVar(&c.digest, "digest", "", "cron schedule for the bullish digest (default digest.cron)")
	f.BoolVar(&c.telegram, "telegram", true, "use the configured Telegram chat")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	if !a.requireLogin() {
		return subcommands.ExitFailure
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var outMu sync.Mutex
	emit := func(md string) {
		outMu.Lock()
		defer outMu.Unlock()
		a.print(md)
	}

	bot := a.Bot
	if !c.telegram || !bot.Enabled() {
		bot = nil
	}

	var expired sync.Once
	stopExpired := a.Session.OnExpired(func() {
		expired.Do(func() {
			fmt.Fprintln(a.Err, "Session expired. Run: login")
			if bot != nil {
				if err := bot.Send(context.WithoutCancel(ctx), "bullwatch: session expired, log in again"); err != nil {
					logger.Warnf("watch: telegram alert: %v", err)
				}
			}
			cancel()
		})
	})
	defer stopExpired()

	stopWallet := a.Wallet.Subscribe(func(v wallet.View) {
		if v.Status == wallet.Ready || v.Status == wallet.Error {
			emit(report.WalletMarkdown(v))
		}
	})
	defer stopWallet()

	stopTicker := a.Ticker.Subscribe(func(v ticker.View) {
		if v.Ticker != "" && !v.Loading {
			emit(report.PriceLine(v) + "\n")
		}
	})
	defer stopTicker()

	spec := c.digest
	if spec == "" {
		spec = a.Config.Digest.Cron
	}
	if spec != "" {
		digestOut := emit
		if bot != nil {
			digestOut = func(md string) {
				emit(md)
				if err := bot.SendWithRetry(ctx, md, 3); err != nil {
					logger.Errorf("watch: telegram digest: %v", err)
				}
			}
		}
		d := NewDigest(ctx, a.Market, a.Config.Digest.Top, digestOut)
		if err := d.Register(spec); err != nil {
			return a.fail("scheduling digest", err)
		}
		d.Start()
		defer d.Stop()
	}

	// Failures of the first loads show up in the views; the pollers keep going.
	if err := a.Wallet.Start(ctx); err != nil {
		logger.Warnf("watch: initial wallet load failed: %v", err)
	}
	if c.symbol != "" {
		if err := a.Ticker.Select(ctx, c.symbol); err != nil {
			logger.Warnf("watch: initial price for %s failed: %v", c.symbol, err)
		}
	}

	var listening sync.WaitGroup
	if bot != nil {
		listening.Add(1)
		go func() {
			defer listening.Done()
			bot.Listen(ctx, a.botCommand)
		}()
	}

	<-ctx.Done()
	a.Wallet.Stop()
	a.Ticker.Stop()
	listening.Wait()
	return subcommands.ExitSuccess
}

// serveCmd runs the browser bridge.
type serveCmd struct {
	app   *App
	addr  string
	debug bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the JSON and websocket bridge for a browser UI" }
func (*serveCmd) Usage() string {
	return `serve [-addr <host:port>] [-debug]:
  Serves /api and /ws until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "listen address (default bridge.addr)")
	f.BoolVar(&c.debug, "debug", false, "gin debug output")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	addr := c.addr
	if addr == "" {
		addr = a.Config.Bridge.Addr
	}

	srv := bridge.New(bridge.Deps{
		Session: a.Session,
		Wallet:  a.Wallet,
		Ticker:  a.Ticker,
		Market:  a.Market,
	}, c.debug)

	// The wallet polls for the whole run. Without a session each poll fails
	// as unauthenticated until the UI logs in, and the next poll then heals.
	if err := a.Wallet.Start(ctx); err != nil {
		logger.Infof("serve: initial wallet load failed: %v", err)
	}

	err := srv.Run(ctx, addr)
	a.Wallet.Stop()
	a.Ticker.Stop()
	if err != nil {
		return a.fail("serving bridge", err)
	}
	return subcommands.ExitSuccess
}
