package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"bullwatch/internal/apierr"
	"bullwatch/internal/models"
	"bullwatch/internal/report"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type walletCmd struct {
	app    *App
	asJSON bool
}

func (*walletCmd) Name() string     { return "wallet" }
func (*walletCmd) Synopsis() string { return "show cash, holdings and total value" }
func (*walletCmd) Usage() string {
	return `wallet [-json]:
  Fetches the wallet once and prints it.
`
}

func (c *walletCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "print the snapshot as JSON")
}

func (c *walletCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	if !a.requireLogin() {
		return subcommands.ExitFailure
	}
	if err := a.Wallet.Refresh(ctx); err != nil {
		return a.fail("loading wallet", err)
	}

	v := a.Wallet.View()
	if c.asJSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v.Snapshot); err != nil {
			return a.fail("encoding wallet", err)
		}
		return subcommands.ExitSuccess
	}
	a.print(report.WalletMarkdown(v))
	return subcommands.ExitSuccess
}

// tradeCmd is buy or sell.
type tradeCmd struct {
	app  *App
	side string
}

func (c *tradeCmd) Name() string     { return c.side }
func (c *tradeCmd) Synopsis() string { return c.side + " shares at the backend's price" }
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf(`%s <TICKER> <QUANTITY>:
  Submits the order, then prints the wallet as the backend reports it.
`, c.side)
}
func (*tradeCmd) SetFlags(*flag.FlagSet) {}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	if f.NArg() != 2 {
		fmt.Fprint(a.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	if !a.requireLogin() {
		return subcommands.ExitFailure
	}

	side, err := models.ParseSide(c.side)
	if err != nil {
		return a.fail("parsing side", err)
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(f.Arg(1)))
	if err != nil {
		return a.fail(c.side, apierr.Invalid("trade", fmt.Sprintf("quantity %q is not a number", f.Arg(1))))
	}

	req := models.TradeRequest{Ticker: f.Arg(0), Quantity: qty, Side: side}
	_, terr := a.Wallet.Trade(ctx, req)
	a.printf("%s\n", report.TradeLine(req, terr))

	// Invalid requests never reached the backend, so there is no fresh wallet to show.
	if !apierr.IsKind(terr, apierr.InvalidRequest) {
		a.print(report.WalletMarkdown(a.Wallet.View()))
	}
	if terr != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type priceCmd struct{ app *App }

func (*priceCmd) Name() string           { return "price" }
func (*priceCmd) Synopsis() string       { return "show the live price of a ticker" }
func (*priceCmd) Usage() string          { return "price <TICKER>\n" }
func (*priceCmd) SetFlags(*flag.FlagSet) {}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := c.app
	if f.NArg() != 1 {
		fmt.Fprint(a.Err, c.Usage())
		return subcommands.ExitUsageError
	}

	err := a.Ticker.Select(ctx, f.Arg(0))
	v := a.Ticker.View()
	a.Ticker.Stop()
	if err != nil {
		return a.fail("loading price", err)
	}
	a.printf("%s\n", report.PriceLine(v))
	return subcommands.ExitSuccess
}
