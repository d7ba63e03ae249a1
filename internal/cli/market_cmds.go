package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"bullwatch/internal/models"
	"bullwatch/internal/report"

	"github.com/google/subcommands"
)

type bullishCmd struct {
	app *App
	top int
}

func (*bullishCmd) Name() string     { return "bullish" }
func (*bullishCmd) Synopsis() string { return "show today's highest bullish scores" }
func (*bullishCmd) Usage() string {
	return `bullish [-n <count>]:
  Ranks today's published scores, best first.
`
}

func (c *bullishCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.top, "n", 0, "how many to show (default digest.top)")
}

func (c *bullishCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	n := c.top
	if n <= 0 {
		n = a.Config.Digest.Top
	}
	scores, err := a.Market.TodayBullish(ctx)
	if err != nil {
		return a.fail("loading bullish scores", err)
	}
	a.print(report.BullishMarkdown(scores, n))
	return subcommands.ExitSuccess
}

type tickersCmd struct {
	app    *App
	movers bool
}

func (*tickersCmd) Name() string     { return "tickers" }
func (*tickersCmd) Synopsis() string { return "list every tracked ticker" }
func (*tickersCmd) Usage() string {
	return `tickers [-movers]:
  Lists tickers. With -movers, adds the last close and 7-day change of each.
`
}

func (c *tickersCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.movers, "movers", false, "include last close and 7-day change")
}

func (c *tickersCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	if c.movers {
		m, err := a.Market.Movers(ctx)
		if err != nil {
			return a.fail("loading movers", err)
		}
		a.print(report.MoversMarkdown(m))
		return subcommands.ExitSuccess
	}

	tickers, err := a.Market.AllTickers(ctx)
	if err != nil {
		return a.fail("loading tickers", err)
	}
	for _, t := range tickers {
		a.printf("%s\n", t)
	}
	return subcommands.ExitSuccess
}

// seriesCmd prints the tail of a ticker's history or indicator series.
type seriesCmd struct {
	app  *App
	kind string
	rows int
}

func (c *seriesCmd) Name() string { return c.kind }
func (c *seriesCmd) Synopsis() string {
	if c.kind == "indicators" {
		return "show a ticker's indicator rows"
	}
	return "show a ticker's daily price history"
}
func (c *seriesCmd) Usage() string {
	return fmt.Sprintf("%s [-n <rows>] <TICKER>\n", c.kind)
}

func (c *seriesCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.rows, "n", 10, "most recent rows to show")
}

func (c *seriesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	if f.NArg() != 1 {
		fmt.Fprint(a.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	symbol := f.Arg(0)

	var (
		s   models.TickerSeries
		err error
	)
	if c.kind == "indicators" {
		s, err = a.Market.Indicators(ctx, symbol)
	} else {
		s, err = a.Market.History(ctx, symbol)
	}
	if err != nil {
		return a.fail("loading "+c.kind, err)
	}
	a.print(report.SeriesMarkdown(s, c.rows))
	return subcommands.ExitSuccess
}

type overviewCmd struct{ app *App }

func (*overviewCmd) Name() string { return "overview" }
func (*overviewCmd) Synopsis() string {
	return "summarize one ticker: trend, change, latest indicators"
}
func (*overviewCmd) Usage() string          { return "overview <TICKER>\n" }
func (*overviewCmd) SetFlags(*flag.FlagSet) {}

func (c *overviewCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	if f.NArg() != 1 {
		fmt.Fprint(a.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	ov, err := a.Market.Overview(ctx, strings.TrimSpace(f.Arg(0)))
	if err != nil {
		return a.fail("loading overview", err)
	}
	a.print(report.OverviewMarkdown(ov))
	return subcommands.ExitSuccess
}
