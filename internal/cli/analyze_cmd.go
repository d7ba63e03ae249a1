package cli

import (
	"context"
	"encoding/json"
	"flag"
	"strings"
	"sync"
	"time"

	"bullwatch/internal/ai"
	"bullwatch/internal/logger"
	"bullwatch/internal/market"
	"bullwatch/internal/models"
	"bullwatch/internal/report"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
)

// analyzeCmd asks the model to review the wallet.
type analyzeCmd struct {
	app    *App
	asJSON bool
}

func (*analyzeCmd) Name() string     { return "analyze" }
func (*analyzeCmd) Synopsis() string { return "ask Gemini for a review of the wallet (advice only)" }
func (*analyzeCmd) Usage() string {
	return `analyze [-json]:
  Sends the wallet, each holding's 7-day change and today's top bullish
  scores to the configured Gemini model. Needs GEMINI_API_KEY.
`
}

func (c *analyzeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "print the review as JSON")
}

func (c *analyzeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	if !a.requireLogin() {
		return subcommands.ExitFailure
	}

	gen, err := a.generator(ctx)
	if err != nil {
		return a.fail("starting analysis", err)
	}

	if err := a.Wallet.Refresh(ctx); err != nil {
		return a.fail("loading wallet", err)
	}
	snap, _ := a.Wallet.Snapshot()

	scores, err := a.Market.TodayBullish(ctx)
	if err != nil {
		logger.Warnf("analyze: no bullish scores: %v", err)
	}

	review, err := ai.New(gen).Analyze(ctx, ai.NewSnapshot(snap, scores, a.holdingChanges(ctx, snap), a.Config.Digest.Top, time.Now()))
	if err != nil {
		return a.fail("analyzing wallet", err)
	}

	if c.asJSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(review); err != nil {
			return a.fail("encoding review", err)
		}
		return subcommands.ExitSuccess
	}
	a.print(report.AnalysisMarkdown(review))
	return subcommands.ExitSuccess
}

// holdingChanges loads each holding's 7-day change. Tickers whose history
// fails are left out.
func (a *App) holdingChanges(ctx context.Context, snap models.WalletSnapshot) map[string]float64 {
	var mu sync.Mutex
	out := make(map[string]float64, len(snap.Holdings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, h := range snap.Holdings {
		t := strings.ToUpper(h.Ticker)
		g.Go(func() error {
			hist, err := a.Market.History(gctx, t)
			if err != nil {
				logger.Debugf("analyze: %s history: %v", t, err)
				return nil
			}
			pct, _ := market.SevenDayChange(hist).Float64()
			mu.Lock()
			out[t] = pct
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
